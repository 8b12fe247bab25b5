package cache

import (
	"context"
	"time"

	"apotekku/backend/internal/domain"
)

// LookupCache is a best-effort read-through cache for the upstream
// lookup endpoints. Misses and cache failures both fall through to the
// upstream; nothing here is authoritative.
type LookupCache interface {
	GetCatalog(ctx context.Context) ([]domain.CatalogItem, bool, error)
	SetCatalog(ctx context.Context, items []domain.CatalogItem, ttl time.Duration) error
	GetBatches(ctx context.Context, medicineID string) ([]domain.SupplyBatch, bool, error)
	SetBatches(ctx context.Context, medicineID string, batches []domain.SupplyBatch, ttl time.Duration) error
}

// NoopLookupCache disables caching. Used when no redis address is
// configured.
type NoopLookupCache struct{}

func (NoopLookupCache) GetCatalog(_ context.Context) ([]domain.CatalogItem, bool, error) {
	return nil, false, nil
}

func (NoopLookupCache) SetCatalog(_ context.Context, _ []domain.CatalogItem, _ time.Duration) error {
	return nil
}

func (NoopLookupCache) GetBatches(_ context.Context, _ string) ([]domain.SupplyBatch, bool, error) {
	return nil, false, nil
}

func (NoopLookupCache) SetBatches(_ context.Context, _ string, _ []domain.SupplyBatch, _ time.Duration) error {
	return nil
}
