package cache

import (
	"context"
	"time"

	"tagpos/backend/internal/domain"
)

// InventoryCache stores reconciled inventory views keyed by data version.
type InventoryCache interface {
	Get(ctx context.Context, key string) (*domain.InventoryResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.InventoryResponse, ttl time.Duration) error
}

type NoopInventoryCache struct{}

func (NoopInventoryCache) Get(_ context.Context, _ string) (*domain.InventoryResponse, bool, error) {
	return nil, false, nil
}

func (NoopInventoryCache) Set(_ context.Context, _ string, _ *domain.InventoryResponse, _ time.Duration) error {
	return nil
}
