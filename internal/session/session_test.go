package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"apotekku/backend/internal/domain"
	"apotekku/backend/internal/emitter"
	"apotekku/backend/internal/upstream"
	"apotekku/backend/internal/upstream/memory"
)

func newTestSession(t *testing.T) (*Session, *memory.Store) {
	t.Helper()
	store := memory.NewSeeded()
	return newSession(store, store, store), store
}

func salesWindow() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.AddDate(0, 0, -30), now.Add(24 * time.Hour)
}

func TestManualFlow(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := sess.RefreshCatalog(ctx); err != nil {
		t.Fatalf("refresh catalog: %v", err)
	}

	lineID, err := sess.AddManualItem(ctx, "MED-PARA-500")
	if err != nil {
		t.Fatalf("add manual: %v", err)
	}

	snap := sess.Snapshot()
	if snap.Mode != domain.SessionModeManual || snap.State != string(emitter.StateIdle) {
		t.Fatalf("unexpected session state: %+v", snap)
	}
	if len(snap.Cart.Lines) != 1 || snap.Cart.Lines[0].LineID != lineID {
		t.Fatalf("unexpected cart: %+v", snap.Cart)
	}
	if snap.Cart.Lines[0].AvailableStock != 120 {
		t.Fatalf("expected captured stock 120, got %d", snap.Cart.Lines[0].AvailableStock)
	}
}

func TestAddManualItem_FallsBackToDirectLookup(t *testing.T) {
	sess, _ := newTestSession(t)

	// No catalog page fetched yet; the add resolves the item directly.
	if _, err := sess.AddManualItem(context.Background(), "MED-AMOX-250"); err != nil {
		t.Fatalf("add without page: %v", err)
	}
	if _, err := sess.AddManualItem(context.Background(), "MED-GHOST"); !errors.Is(err, upstream.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestModeGuards(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := sess.AddInvoiceItem(ctx, domain.AddInvoiceItemRequest{InvoiceID: "sale-0001", LineID: "MED-PARA-500", Quantity: 1}); !errors.Is(err, ErrWrongMode) {
		t.Fatalf("expected ErrWrongMode in manual mode, got %v", err)
	}

	if err := sess.SetMode(domain.SessionModeInvoice); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if _, err := sess.AddManualItem(ctx, "MED-PARA-500"); !errors.Is(err, ErrWrongMode) {
		t.Fatalf("expected ErrWrongMode in invoice mode, got %v", err)
	}
	if err := sess.SetMode("bulk"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestModeSwitch_KeepsCartDropsPages(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := sess.AddManualItem(ctx, "MED-PARA-500"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := sess.SetMode(domain.SessionModeInvoice); err != nil {
		t.Fatalf("set mode: %v", err)
	}

	snap := sess.Snapshot()
	if len(snap.Cart.Lines) != 1 {
		t.Fatalf("cart must survive mode switch, got %d lines", len(snap.Cart.Lines))
	}

	// The sales page was never fetched in this mode, so invoice adds
	// cannot see the invoice.
	_, err := sess.AddInvoiceItem(ctx, domain.AddInvoiceItemRequest{InvoiceID: "sale-0001", LineID: "MED-PARA-500", Quantity: 1})
	if !errors.Is(err, upstream.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without fetched page, got %v", err)
	}
}

func TestInvoiceReturn_EndToEnd(t *testing.T) {
	sess, store := newTestSession(t)
	ctx := context.Background()

	if err := sess.SetMode(domain.SessionModeInvoice); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	from, to := salesWindow()
	sales, err := sess.FetchSales(ctx, from, to, "budi")
	if err != nil {
		t.Fatalf("fetch sales: %v", err)
	}
	if len(sales) != 1 || sales[0].TransactionID != "INV-2024-0001" {
		t.Fatalf("unexpected sales page: %+v", sales)
	}

	// The legacy-id line resolves to the live catalog item by name.
	lineID, err := sess.AddInvoiceItem(ctx, domain.AddInvoiceItemRequest{InvoiceID: "sale-0001", LineID: "LGC-0042", Quantity: 4})
	if err != nil {
		t.Fatalf("add invoice item: %v", err)
	}
	if err := sess.UpdateLine(ctx, lineID, domain.UpdateLineRequest{Reason: strPtr(domain.ReasonExpired)}); err != nil {
		t.Fatalf("set reason: %v", err)
	}

	summary, err := sess.Confirm()
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if summary.TotalQuantity != 4 {
		t.Fatalf("expected quantity 4, got %d", summary.TotalQuantity)
	}

	receipt, err := sess.Submit(ctx, "Sari Wulandari")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	returns := store.Returns()
	if len(returns) != 1 {
		t.Fatalf("expected 1 submitted return, got %d", len(returns))
	}
	item := returns[0].Items[0]
	if item.ID != "MED-VITC-500" {
		t.Fatalf("expected canonical item id, got %s", item.ID)
	}
	if item.Provenance == nil || item.Provenance.InvoiceID != "sale-0001" || item.Provenance.OriginalLineID != "LGC-0042" {
		t.Fatalf("missing invoice provenance: %+v", item.Provenance)
	}
	if returns[0].Customer.ID != "cus-001" {
		t.Fatalf("expected invoice customer carried over, got %+v", returns[0].Customer)
	}

	snap := sess.Snapshot()
	if len(snap.Cart.Lines) != 0 || snap.State != string(emitter.StateIdle) {
		t.Fatalf("session must be clean after submit: %+v", snap)
	}
	if got := sess.LastReceipt(); got == nil || got.TransactionID != receipt.TransactionID {
		t.Fatalf("last receipt not retained: %+v", got)
	}
}

func TestUpdateLine_BatchValidation(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	lineID, err := sess.AddManualItem(ctx, "MED-PARA-500")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := sess.UpdateLine(ctx, lineID, domain.UpdateLineRequest{BatchID: strPtr("BAT-AMOX-01")}); !errors.Is(err, upstream.ErrNotFound) {
		t.Fatalf("foreign batch must be rejected, got %v", err)
	}
	if err := sess.UpdateLine(ctx, lineID, domain.UpdateLineRequest{BatchID: strPtr("BAT-PARA-02")}); err != nil {
		t.Fatalf("assign batch: %v", err)
	}
	if err := sess.UpdateLine(ctx, lineID, domain.UpdateLineRequest{BatchID: strPtr("")}); err != nil {
		t.Fatalf("clear batch: %v", err)
	}
	if line := sess.Snapshot().Cart.Lines[0]; line.BatchID != "" {
		t.Fatalf("expected cleared batch, got %q", line.BatchID)
	}
}

// gatedLedger delays sales queries until released, to race a fetch
// against a session reset.
type gatedLedger struct {
	inner   upstream.SaleLedger
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedLedger) QuerySales(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleTransaction, error) {
	close(g.entered)
	<-g.gate
	return g.inner.QuerySales(ctx, from, to)
}

func TestStaleSalesPageIsDiscarded(t *testing.T) {
	store := memory.NewSeeded()
	gated := &gatedLedger{inner: store, entered: make(chan struct{}), gate: make(chan struct{})}
	sess := newSession(store, gated, store)
	ctx := context.Background()

	if err := sess.SetMode(domain.SessionModeInvoice); err != nil {
		t.Fatalf("set mode: %v", err)
	}

	from, to := salesWindow()
	fetched := make(chan error, 1)
	go func() {
		_, err := sess.FetchSales(ctx, from, to, "")
		fetched <- err
	}()

	// Reset while the fetch is still in flight, then let it complete.
	<-gated.entered
	if err := sess.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	close(gated.gate)
	if err := <-fetched; err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// The delivered page must have been discarded: the invoice is not
	// addressable.
	_, err := sess.AddInvoiceItem(ctx, domain.AddInvoiceItemRequest{InvoiceID: "sale-0001", LineID: "MED-PARA-500", Quantity: 1})
	if !errors.Is(err, upstream.ErrNotFound) {
		t.Fatalf("expected stale page to be dropped, got %v", err)
	}
}

func TestManager(t *testing.T) {
	store := memory.NewSeeded()
	manager := NewManager(store, store, store, time.Hour)
	defer manager.Close()

	sess := manager.Create()
	got, err := manager.Get(sess.ID())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID() != sess.ID() {
		t.Fatalf("expected same session")
	}

	manager.Remove(sess.ID())
	if _, err := manager.Get(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func strPtr(s string) *string {
	return &s
}
