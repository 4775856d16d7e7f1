// Package settings persists the store configuration as one JSON snapshot.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tagpos/backend/internal/domain"
)

// Mask replaces secrets in settings served to clients. A secret submitted
// back as Mask keeps its stored value.
const Mask = "********"

type Store struct {
	mu      sync.RWMutex
	path    string
	current domain.Settings
	logger  *zap.Logger
}

// Open loads the snapshot at path. A missing file yields defaults; it is
// created on the first Save. An empty path keeps settings in memory only.
func Open(path string, defaults domain.Settings, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, current: clone(defaults), logger: logger}
	if path == "" {
		return s, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			logger.Info("settings file not found, using defaults", zap.String("path", path))
			return s, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	loaded := clone(defaults)
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	s.current = loaded
	return s, nil
}

func (s *Store) Get() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.current)
}

// Save replaces the whole snapshot and writes it through to disk.
func (s *Store) Save(next domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next = clone(next)
	if s.path != "" {
		if err := write(s.path, next); err != nil {
			return err
		}
	}
	s.current = next
	return nil
}

// Update applies fn to a copy of the current snapshot and saves the result.
func (s *Store) Update(fn func(*domain.Settings) error) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := clone(s.current)
	if err := fn(&next); err != nil {
		return domain.Settings{}, err
	}
	if s.path != "" {
		if err := write(s.path, next); err != nil {
			return domain.Settings{}, err
		}
	}
	s.current = next
	return clone(next), nil
}

func write(path string, snapshot domain.Settings) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.MergeConfigMap(asMap); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := v.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// Redacted masks every credential in s.
func Redacted(s domain.Settings) domain.Settings {
	out := clone(s)
	mask(&out.Payment.KeySecret)
	mask(&out.Messaging.SMSAPIKey)
	mask(&out.Messaging.WhatsAppToken)
	mask(&out.Messaging.EmailAPIKey)
	return out
}

// KeepMaskedSecrets copies stored credentials into next wherever next still
// carries the mask from a redacted read.
func KeepMaskedSecrets(next *domain.Settings, stored domain.Settings) {
	keep(&next.Payment.KeySecret, stored.Payment.KeySecret)
	keep(&next.Messaging.SMSAPIKey, stored.Messaging.SMSAPIKey)
	keep(&next.Messaging.WhatsAppToken, stored.Messaging.WhatsAppToken)
	keep(&next.Messaging.EmailAPIKey, stored.Messaging.EmailAPIKey)
}

// PermissionsFor returns the grants recorded for a manager.
func PermissionsFor(s domain.Settings, username string) []string {
	username = strings.ToLower(strings.TrimSpace(username))
	for _, grant := range s.Managers {
		if strings.ToLower(grant.Username) == username {
			return slices.Clone(grant.Permissions)
		}
	}
	return nil
}

// SetPermissions records the grants for a manager, replacing earlier ones.
func SetPermissions(s *domain.Settings, username string, permissions []string) {
	username = strings.ToLower(strings.TrimSpace(username))
	perms := normalizePermissions(permissions)
	for i := range s.Managers {
		if strings.ToLower(s.Managers[i].Username) == username {
			s.Managers[i].Permissions = perms
			return
		}
	}
	s.Managers = append(s.Managers, domain.ManagerGrant{Username: username, Permissions: perms})
}

func normalizePermissions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if slices.Contains(domain.AllPermissions, p) && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

func mask(value *string) {
	if *value != "" {
		*value = Mask
	}
}

func keep(value *string, stored string) {
	if *value == Mask {
		*value = stored
	}
}

func clone(s domain.Settings) domain.Settings {
	out := s
	out.Messaging.EnabledChannels = slices.Clone(s.Messaging.EnabledChannels)
	out.Managers = make([]domain.ManagerGrant, len(s.Managers))
	for i, grant := range s.Managers {
		out.Managers[i] = domain.ManagerGrant{Username: grant.Username, Permissions: slices.Clone(grant.Permissions)}
	}
	return out
}
