package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"apotekku/backend/internal/domain"
	"apotekku/backend/internal/upstream"
)

// Store is an in-memory stand-in for the upstream pharmacy POS API. It
// implements upstream.Catalog, upstream.SaleLedger and
// upstream.LedgerWriter, and is used in dev/demo mode and in tests.
type Store struct {
	mu      sync.RWMutex
	items   map[string]domain.CatalogItem
	order   []string
	batches map[string][]domain.SupplyBatch
	sales   []domain.SaleTransaction
	returns []domain.ReturnTransaction
}

func NewSeeded() *Store {
	price := decimal.NewFromInt

	items := []domain.CatalogItem{
		{ID: "MED-PARA-500", Name: "Paracetamol 500mg Tablet", Category: "analgesic", UnitPrice: price(2500), CurrentStock: 120},
		{ID: "MED-AMOX-250", Name: "Amoxicillin 250mg Capsule", Category: "antibiotic", UnitPrice: price(4800), CurrentStock: 60},
		{ID: "MED-OBH-100", Name: "OBH Cough Syrup 100ml", Category: "cough-cold", UnitPrice: price(18500), CurrentStock: 35},
		{ID: "MED-VITC-500", Name: "Vitamin C 500mg Tablet", Category: "supplement", UnitPrice: price(1200), CurrentStock: 200},
		{ID: "MED-IBU-400", Name: "Ibuprofen 400mg Tablet", Category: "analgesic", UnitPrice: price(3200), CurrentStock: 0},
	}

	batches := map[string][]domain.SupplyBatch{
		"MED-PARA-500": {
			{ID: "BAT-PARA-01", MedicineID: "MED-PARA-500", BatchNumber: "P2406A", Quantity: 80},
			{ID: "BAT-PARA-02", MedicineID: "MED-PARA-500", BatchNumber: "P2409B", Quantity: 40},
		},
		"MED-AMOX-250": {
			{ID: "BAT-AMOX-01", MedicineID: "MED-AMOX-250", BatchNumber: "A2405C", Quantity: 60},
		},
		"MED-OBH-100": {
			{ID: "BAT-OBH-01", MedicineID: "MED-OBH-100", BatchNumber: "O2403A", Quantity: 35},
		},
		"MED-VITC-500": {
			{ID: "BAT-VITC-01", MedicineID: "MED-VITC-500", BatchNumber: "V2408A", Quantity: 200},
		},
	}

	saleDate := time.Now().UTC().Add(-72 * time.Hour)
	sales := []domain.SaleTransaction{
		{
			ID:            "sale-0001",
			TransactionID: "INV-2024-0001",
			CreatedAt:     saleDate,
			Customer:      &domain.Customer{ID: "cus-001", Name: "Budi Santoso"},
			Items: []domain.SaleLineItem{
				{ID: "MED-PARA-500", Name: "Paracetamol 500mg Tablet", Price: price(2500), Quantity: 5, Subtotal: price(12500)},
				// Sold under the legacy id scheme; only the name matches
				// the live catalog.
				{ID: "LGC-0042", Name: "Vitamin C 500mg Tablet", Price: price(1200), Quantity: 10, Subtotal: price(12000)},
			},
		},
		{
			ID:            "sale-0002",
			TransactionID: "INV-2024-0002",
			CreatedAt:     saleDate.Add(24 * time.Hour),
			Items: []domain.SaleLineItem{
				{ID: "MED-AMOX-250", Name: "Amoxicillin 250mg Capsule", Price: price(4800), Quantity: 3, Subtotal: price(14400)},
			},
		},
	}

	itemMap := make(map[string]domain.CatalogItem, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		itemMap[item.ID] = item
		order = append(order, item.ID)
	}

	return &Store{
		items:   itemMap,
		order:   order,
		batches: batches,
		sales:   sales,
		returns: make([]domain.ReturnTransaction, 0, 8),
	}
}

func (s *Store) ListAvailableItems(_ context.Context) ([]domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.CatalogItem, 0, len(s.order))
	for _, id := range s.order {
		item := s.items[id]
		if item.CurrentStock < 1 {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) FindItemByName(_ context.Context, name string) (*domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(name))
	for _, id := range s.order {
		item := s.items[id]
		if strings.ToLower(item.Name) == needle {
			found := item
			return &found, nil
		}
	}
	return nil, upstream.ErrNotFound
}

func (s *Store) ListBatches(_ context.Context, medicineID string) ([]domain.SupplyBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := s.batches[medicineID]
	result := make([]domain.SupplyBatch, len(batches))
	copy(result, batches)
	return result, nil
}

func (s *Store) QuerySales(_ context.Context, from time.Time, to time.Time) ([]domain.SaleTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleTransaction, 0, len(s.sales))
	for _, tx := range s.sales {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

// SubmitReturn records the transaction and applies its stock effects:
// restocked quantities go back onto the item (and batch, when one is
// named). Unknown items are rejected as a conflict, mirroring the real
// ledger's post-validation checks.
func (s *Store) SubmitReturn(_ context.Context, tx domain.ReturnTransaction) (*domain.ReturnTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.returns {
		if existing.ID == tx.ID {
			return nil, fmt.Errorf("%w: duplicate transaction id %s", upstream.ErrConflict, tx.ID)
		}
	}
	for _, item := range tx.Items {
		if _, ok := s.items[item.ID]; !ok {
			return nil, fmt.Errorf("%w: unknown item %s", upstream.ErrConflict, item.ID)
		}
	}

	for _, item := range tx.Items {
		if !item.Restock {
			continue
		}
		stocked := s.items[item.ID]
		stocked.CurrentStock += item.Quantity
		s.items[item.ID] = stocked

		if item.BatchID == "" {
			continue
		}
		batches := s.batches[item.ID]
		for i := range batches {
			if batches[i].ID == item.BatchID {
				batches[i].Quantity += item.Quantity
				break
			}
		}
	}

	s.returns = append(s.returns, tx)
	confirmed := tx
	return &confirmed, nil
}

// Returns exposes the submitted transactions, oldest first.
func (s *Store) Returns() []domain.ReturnTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ReturnTransaction, len(s.returns))
	copy(result, s.returns)
	return result
}
