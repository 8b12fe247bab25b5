package upstream

import (
	"context"
	"errors"
	"strings"
	"time"

	"apotekku/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrUnavailable wraps transport failures: the upstream POS API could
	// not be reached. Retryable without editing the cart.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrConflict wraps server-side rejections of an already-validated
	// submission (e.g. stock changed concurrently). Recoverable only by
	// re-editing and resubmitting.
	ErrConflict = errors.New("upstream rejected submission")
)

// Catalog is the catalog index collaborator: in-stock items eligible for
// return, per-item batches, and canonical item lookup.
type Catalog interface {
	ListAvailableItems(ctx context.Context) ([]domain.CatalogItem, error)
	GetItem(ctx context.Context, id string) (*domain.CatalogItem, error)
	FindItemByName(ctx context.Context, name string) (*domain.CatalogItem, error)
	ListBatches(ctx context.Context, medicineID string) ([]domain.SupplyBatch, error)
}

// SaleLedger exposes completed historical sales for invoice-based returns.
// Returned pages contain sales only; returns and voids are excluded.
type SaleLedger interface {
	QuerySales(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleTransaction, error)
}

// LedgerWriter accepts emitted return transactions.
type LedgerWriter interface {
	SubmitReturn(ctx context.Context, tx domain.ReturnTransaction) (*domain.ReturnTransaction, error)
}

// ResolveCanonicalItem maps a sale line back to its canonical catalog
// item. Sale records may carry a legacy id scheme, so the fallback order
// is fixed: id match, then exact name match, then ErrNotFound.
func ResolveCanonicalItem(ctx context.Context, catalog Catalog, rawID string, name string) (*domain.CatalogItem, error) {
	if strings.TrimSpace(rawID) != "" {
		item, err := catalog.GetItem(ctx, rawID)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if strings.TrimSpace(name) != "" {
		item, err := catalog.FindItemByName(ctx, name)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, ErrNotFound
}

// FilterSalesByText refines a fetched sales page by invoice number or
// customer name. Pure and case-insensitive; an empty query keeps the
// whole page.
func FilterSalesByText(sales []domain.SaleTransaction, query string) []domain.SaleTransaction {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		result := make([]domain.SaleTransaction, len(sales))
		copy(result, sales)
		return result
	}

	result := make([]domain.SaleTransaction, 0, len(sales))
	for _, tx := range sales {
		if strings.Contains(strings.ToLower(tx.TransactionID), query) {
			result = append(result, tx)
			continue
		}
		if tx.Customer != nil && strings.Contains(strings.ToLower(tx.Customer.Name), query) {
			result = append(result, tx)
		}
	}
	return result
}
