package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagpos/backend/internal/domain"
)

func defaults() domain.Settings {
	return domain.Settings{Store: domain.StoreDetails{Name: "TagPOS Store", Currency: "INR"}}
}

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "settings.json"), defaults(), nil)
	require.NoError(t, err)
	assert.Equal(t, "TagPOS Store", s.Get().Store.Name)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s, err := Open(path, defaults(), nil)
	require.NoError(t, err)

	next := s.Get()
	next.Store.Name = "Corner Threads"
	next.Store.ReceiptFooter = "See you soon"
	next.Payment = domain.PaymentKeys{KeyID: "key_live", KeySecret: "shh"}
	next.Messaging.EnabledChannels = []string{"whatsapp_link", "sms"}
	next.Messaging.SMSEndpoint = "https://sms.example/send"
	SetPermissions(&next, "Manager", []string{"sales", "inventory", "bogus", "sales"})
	require.NoError(t, s.Save(next))

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Open(path, defaults(), nil)
	require.NoError(t, err)
	got := reloaded.Get()
	assert.Equal(t, "Corner Threads", got.Store.Name)
	assert.Equal(t, "INR", got.Store.Currency)
	assert.Equal(t, "shh", got.Payment.KeySecret)
	assert.Equal(t, []string{"whatsapp_link", "sms"}, got.Messaging.EnabledChannels)
	assert.Equal(t, []string{"inventory", "sales"}, PermissionsFor(got, "manager"))
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path, defaults(), nil)
	assert.Error(t, err)
}

func TestGetReturnsCopy(t *testing.T) {
	s, err := Open("", defaults(), nil)
	require.NoError(t, err)
	_, err = s.Update(func(next *domain.Settings) error {
		SetPermissions(next, "manager", []string{"returns"})
		return nil
	})
	require.NoError(t, err)

	snapshot := s.Get()
	snapshot.Managers[0].Permissions[0] = "catalog"
	assert.Equal(t, []string{"returns"}, PermissionsFor(s.Get(), "manager"))
}

func TestRedactionRoundTrip(t *testing.T) {
	stored := defaults()
	stored.Payment.KeySecret = "secret"
	stored.Messaging.SMSAPIKey = "sms-key"

	redacted := Redacted(stored)
	assert.Equal(t, Mask, redacted.Payment.KeySecret)
	assert.Equal(t, Mask, redacted.Messaging.SMSAPIKey)
	assert.Empty(t, redacted.Messaging.EmailAPIKey)

	redacted.Messaging.EmailAPIKey = "new-email-key"
	KeepMaskedSecrets(&redacted, stored)
	assert.Equal(t, "secret", redacted.Payment.KeySecret)
	assert.Equal(t, "sms-key", redacted.Messaging.SMSAPIKey)
	assert.Equal(t, "new-email-key", redacted.Messaging.EmailAPIKey)
}
