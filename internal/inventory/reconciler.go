// Package inventory derives stock on hand from the stock-in log and the
// sales ledger.
package inventory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tagpos/backend/internal/cache"
	"tagpos/backend/internal/domain"
)

// Reconcile returns one StockLevel per catalog entry, in catalog order.
// Stock-in counts stock events; stock-out counts line items of successful
// transactions, returned ones included. Tags outside the catalog are
// ignored and Available may go negative.
func Reconcile(catalog []domain.CatalogEntry, events []domain.StockEvent, txs []domain.Transaction) []domain.StockLevel {
	stockIn := make(map[string]int, len(catalog))
	for _, event := range events {
		stockIn[event.Tag]++
	}

	stockOut := make(map[string]int, len(catalog))
	for _, tx := range txs {
		if tx.Status != domain.TxStatusSuccess {
			continue
		}
		for _, item := range tx.Items {
			stockOut[item.Tag]++
		}
	}

	levels := make([]domain.StockLevel, 0, len(catalog))
	for _, entry := range catalog {
		in, out := stockIn[entry.Tag], stockOut[entry.Tag]
		levels = append(levels, domain.StockLevel{
			Tag:       entry.Tag,
			Name:      entry.Name,
			UnitPrice: entry.UnitPrice,
			StockIn:   in,
			StockOut:  out,
			Available: in - out,
		})
	}
	return levels
}

// Source is the read side of the repository the reconciler needs.
type Source interface {
	ListCatalog(ctx context.Context) ([]domain.CatalogEntry, error)
	ListStockEvents(ctx context.Context) ([]domain.StockEvent, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
	DataVersion(ctx context.Context) (int64, error)
}

// Reconciler memoizes Reconcile keyed on the repository data version, so a
// cached view is reused only while nothing has changed.
type Reconciler struct {
	source   Source
	cache    cache.InventoryCache
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(source Source, cacheStore cache.InventoryCache, cacheTTL time.Duration, logger *zap.Logger) *Reconciler {
	if cacheStore == nil {
		cacheStore = cache.NoopInventoryCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) View(ctx context.Context) (domain.InventoryResponse, error) {
	version, err := r.source.DataVersion(ctx)
	if err != nil {
		return domain.InventoryResponse{}, err
	}

	key := cacheKey(version)
	if cached, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		r.logger.Warn("inventory cache read failed", zap.Error(err))
	}

	catalog, err := r.source.ListCatalog(ctx)
	if err != nil {
		return domain.InventoryResponse{}, err
	}
	events, err := r.source.ListStockEvents(ctx)
	if err != nil {
		return domain.InventoryResponse{}, err
	}
	txs, err := r.source.ListTransactions(ctx)
	if err != nil {
		return domain.InventoryResponse{}, err
	}

	resp := domain.InventoryResponse{
		Items:       Reconcile(catalog, events, txs),
		GeneratedAt: r.now().Format(time.RFC3339),
	}
	if err := r.cache.Set(ctx, key, &resp, r.cacheTTL); err != nil {
		r.logger.Warn("inventory cache write failed", zap.Error(err))
	}
	return resp, nil
}

func cacheKey(version int64) string {
	return fmt.Sprintf("pos:inventory:v%d", version)
}
