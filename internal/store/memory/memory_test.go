package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagpos/backend/internal/domain"
	"tagpos/backend/internal/store"
)

func successTx(id string, tags ...string) domain.Transaction {
	items := make([]domain.LineItem, 0, len(tags))
	for i, tag := range tags {
		items = append(items, domain.LineItem{
			ID:        i + 1,
			Name:      "item " + tag,
			UnitPrice: decimal.NewFromInt(100),
			Tag:       tag,
			Status:    domain.LineItemStatusSold,
		})
	}
	return domain.Transaction{
		ID:          id,
		AttemptedAt: time.Now().UTC(),
		Status:      domain.TxStatusSuccess,
		Items:       items,
		Total:       decimal.NewFromInt(int64(100 * len(tags))),
	}
}

func TestLedgerKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, id := range []string{"tx-b", "tx-a", "tx-c"} {
		require.NoError(t, s.AppendTransaction(ctx, successTx(id, "001")))
	}

	txs, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "tx-b", txs[0].ID)
	assert.Equal(t, "tx-a", txs[1].ID)
	assert.Equal(t, "tx-c", txs[2].ID)
}

func TestAppendTransactionRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.AppendTransaction(ctx, successTx("tx-1", "001")))
	err := s.AppendTransaction(ctx, successTx("tx-1", "002"))
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestListTransactionsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AppendTransaction(ctx, successTx("tx-1", "001")))

	txs, err := s.ListTransactions(ctx)
	require.NoError(t, err)
	txs[0].Items[0].Status = domain.LineItemStatusReturned

	again, err := s.FindTransactionByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.LineItemStatusSold, again.Items[0].Status)
}

func TestMarkLineItemReturned(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AppendTransaction(ctx, successTx("tx-1", "001", "002")))

	before, err := s.DataVersion(ctx)
	require.NoError(t, err)

	tx, err := s.MarkLineItemReturned(ctx, "tx-1", 2)
	require.NoError(t, err)
	assert.Equal(t, domain.LineItemStatusSold, tx.Items[0].Status)
	assert.Equal(t, domain.LineItemStatusReturned, tx.Items[1].Status)

	after, err := s.DataVersion(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)

	t.Run("second return is rejected", func(t *testing.T) {
		_, err := s.MarkLineItemReturned(ctx, "tx-1", 2)
		assert.ErrorIs(t, err, store.ErrAlreadyReturned)
	})

	t.Run("unknown line item", func(t *testing.T) {
		_, err := s.MarkLineItemReturned(ctx, "tx-1", 9)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := s.MarkLineItemReturned(ctx, "tx-404", 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("failed transaction", func(t *testing.T) {
		failed := successTx("tx-failed", "001")
		failed.Status = domain.TxStatusFailed
		require.NoError(t, s.AppendTransaction(ctx, failed))

		_, err := s.MarkLineItemReturned(ctx, "tx-failed", 1)
		assert.ErrorIs(t, err, store.ErrInvalidTransaction)
	})
}

func TestReplaceCatalogIsWholesale(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded(nil)

	require.NoError(t, s.ReplaceCatalog(ctx, []domain.CatalogEntry{
		{Tag: "A1", Name: "Scarf", UnitPrice: decimal.NewFromInt(250)},
		{Tag: "A2", Name: "Belt", UnitPrice: decimal.NewFromInt(300)},
		{Tag: "A1", Name: "Wool Scarf", UnitPrice: decimal.NewFromInt(275)},
	}))

	catalog, err := s.ListCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.Equal(t, "Wool Scarf", catalog[0].Name)

	_, err = s.GetCatalogEntry(ctx, "001")
	assert.ErrorIs(t, err, store.ErrNotFound)

	entry, err := s.GetCatalogEntry(ctx, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Belt", entry.Name)
}

func TestAppendStockEventDefaults(t *testing.T) {
	ctx := context.Background()
	s := New()

	event, err := s.AppendStockEvent(ctx, domain.StockEvent{Tag: "001", Name: "Shirt", UnitPrice: decimal.NewFromInt(499)})
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.ArrivedAt.IsZero())

	_, err = s.AppendStockEvent(ctx, domain.StockEvent{})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	events, err := s.ListStockEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAuditLogWindow(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: "old", CreatedAt: base.Add(-48 * time.Hour)}))
	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: "first", CreatedAt: base}))
	require.NoError(t, s.CreateAuditLog(ctx, domain.AuditLog{Action: "second", CreatedAt: base.Add(time.Hour)}))

	logs, err := s.ListAuditLogs(ctx, base.Add(-time.Hour), base.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].Action)
	assert.Equal(t, "first", logs[1].Action)
}

func TestSeedUsersAreHashed(t *testing.T) {
	s := NewSeeded(nil)
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	for _, user := range users {
		assert.NotEqual(t, "admin123", user.Password)
		assert.True(t, user.Active)
	}
}
