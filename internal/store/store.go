package store

import (
	"context"
	"errors"
	"time"

	"tagpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrAlreadyReturned    = errors.New("line item already returned")
)

// Repository persists the sales ledger, stock-in events, the product catalog
// and account data. Ledger and stock events are append-only; the only
// in-place mutation is flipping a line item to returned.
type Repository interface {
	ReplaceCatalog(ctx context.Context, entries []domain.CatalogEntry) error
	ListCatalog(ctx context.Context) ([]domain.CatalogEntry, error)
	GetCatalogEntry(ctx context.Context, tag string) (*domain.CatalogEntry, error)
	AppendStockEvent(ctx context.Context, event domain.StockEvent) (*domain.StockEvent, error)
	ListStockEvents(ctx context.Context) ([]domain.StockEvent, error)
	AppendTransaction(ctx context.Context, tx domain.Transaction) error
	// ListTransactions returns the ledger in insertion order.
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	MarkLineItemReturned(ctx context.Context, transactionID string, lineItemID int) (*domain.Transaction, error)
	// DataVersion changes whenever the catalog, stock events or ledger change.
	DataVersion(ctx context.Context) (int64, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
