package upstream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"apotekku/backend/internal/domain"
	"apotekku/backend/internal/upstream"
	"apotekku/backend/internal/upstream/memory"
)

func TestResolveCanonicalItem_ByID(t *testing.T) {
	store := memory.NewSeeded()

	item, err := upstream.ResolveCanonicalItem(context.Background(), store, "MED-PARA-500", "ignored")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.ID != "MED-PARA-500" {
		t.Fatalf("expected MED-PARA-500, got %s", item.ID)
	}
}

func TestResolveCanonicalItem_FallsBackToName(t *testing.T) {
	store := memory.NewSeeded()

	// Legacy id that no longer exists; the name still matches.
	item, err := upstream.ResolveCanonicalItem(context.Background(), store, "LGC-0042", "Vitamin C 500mg Tablet")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if item.ID != "MED-VITC-500" {
		t.Fatalf("expected MED-VITC-500, got %s", item.ID)
	}
}

func TestResolveCanonicalItem_NotFound(t *testing.T) {
	store := memory.NewSeeded()

	_, err := upstream.ResolveCanonicalItem(context.Background(), store, "LGC-404", "Discontinued Elixir")
	if !errors.Is(err, upstream.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFilterSalesByText(t *testing.T) {
	sales := []domain.SaleTransaction{
		{ID: "sale-1", TransactionID: "INV-2024-0001", Customer: &domain.Customer{ID: "cus-1", Name: "Budi Santoso"}},
		{ID: "sale-2", TransactionID: "INV-2024-0002"},
		{ID: "sale-3", TransactionID: "INV-2024-0103", Customer: &domain.Customer{ID: "cus-2", Name: "Sari Wulandari"}},
	}

	if got := upstream.FilterSalesByText(sales, ""); len(got) != 3 {
		t.Fatalf("empty query must keep all sales, got %d", len(got))
	}
	if got := upstream.FilterSalesByText(sales, "budi"); len(got) != 1 || got[0].ID != "sale-1" {
		t.Fatalf("customer name filter failed: %+v", got)
	}
	if got := upstream.FilterSalesByText(sales, "0103"); len(got) != 1 || got[0].ID != "sale-3" {
		t.Fatalf("invoice number filter failed: %+v", got)
	}
	if got := upstream.FilterSalesByText(sales, "nothing"); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}

func TestMemoryStore_SubmitReturnRestocks(t *testing.T) {
	store := memory.NewSeeded()
	ctx := context.Background()

	before, err := store.GetItem(ctx, "MED-PARA-500")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}

	tx := domain.ReturnTransaction{
		ID:        "RET-1",
		Type:      domain.TransactionTypeReturn,
		CreatedAt: time.Now().UTC(),
		Customer:  domain.WalkInCustomer(),
		Items: []domain.ReturnTransactionItem{
			{ID: "MED-PARA-500", Name: "Paracetamol 500mg Tablet", Quantity: 4, Reason: domain.ReasonDamaged, Restock: true, BatchID: "BAT-PARA-01"},
		},
		RefundMethod: domain.RefundMethodCash,
	}
	if _, err := store.SubmitReturn(ctx, tx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	after, err := store.GetItem(ctx, "MED-PARA-500")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if after.CurrentStock != before.CurrentStock+4 {
		t.Fatalf("expected stock %d, got %d", before.CurrentStock+4, after.CurrentStock)
	}

	batches, err := store.ListBatches(ctx, "MED-PARA-500")
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if batches[0].Quantity != 84 {
		t.Fatalf("expected batch quantity 84, got %d", batches[0].Quantity)
	}

	if returns := store.Returns(); len(returns) != 1 || returns[0].ID != "RET-1" {
		t.Fatalf("expected recorded return, got %+v", returns)
	}
}

func TestMemoryStore_SubmitReturnRejectsUnknownItem(t *testing.T) {
	store := memory.NewSeeded()

	tx := domain.ReturnTransaction{
		ID:       "RET-2",
		Customer: domain.WalkInCustomer(),
		Items: []domain.ReturnTransactionItem{
			{ID: "MED-GHOST", Quantity: 1, Reason: domain.ReasonOther},
		},
	}
	_, err := store.SubmitReturn(context.Background(), tx)
	if !errors.Is(err, upstream.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(store.Returns()) != 0 {
		t.Fatalf("rejected return must not be recorded")
	}
}
