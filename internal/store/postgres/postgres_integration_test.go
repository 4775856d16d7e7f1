package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tagpos/backend/internal/domain"
	"tagpos/backend/internal/store"
	"tagpos/backend/internal/xid"
)

func TestPostgresReturnFlowIntegration(t *testing.T) {
	databaseURL := os.Getenv("TAGPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TAGPOS_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, Migrate(s.DB(), zap.NewNop()))

	before, err := s.DataVersion(ctx)
	require.NoError(t, err)

	txID := xid.New("txn")
	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.AppendTransaction(ctx, domain.Transaction{
		ID:          txID,
		AttemptedAt: now,
		Status:      domain.TxStatusSuccess,
		Total:       decimal.NewFromInt(499),
		Items: []domain.LineItem{
			{ID: 1, Name: "Shirt", UnitPrice: decimal.NewFromInt(499), ScannedAt: now, Tag: "it-001", Status: domain.LineItemStatusSold},
		},
	}))

	tx, err := s.MarkLineItemReturned(ctx, txID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.LineItemStatusReturned, tx.Items[0].Status)

	_, err = s.MarkLineItemReturned(ctx, txID, 1)
	assert.ErrorIs(t, err, store.ErrAlreadyReturned)

	after, err := s.DataVersion(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)
}
