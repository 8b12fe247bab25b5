package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"apotekku/backend/internal/cart"
	"apotekku/backend/internal/domain"
	"apotekku/backend/internal/upstream"
	"apotekku/backend/internal/xid"
)

var (
	ErrSubmitInFlight = errors.New("a submission is already in flight")
	ErrNotConfirmed   = errors.New("return has not been confirmed")
)

// State is the emitter's position in the validate-confirm-submit flow.
type State string

const (
	StateIdle       State = "idle"
	StateConfirming State = "confirming"
	StateSubmitting State = "submitting"
)

// Emitter drives a single cart through confirmation and submission. It
// guarantees at most one in-flight submission, gates confirmation on the
// cart validator, and on upstream rejection hands the cart back intact
// for re-editing.
type Emitter struct {
	mu     sync.Mutex
	state  State
	cart   *cart.Cart
	writer upstream.LedgerWriter
	now    func() time.Time
}

func New(c *cart.Cart, writer upstream.LedgerWriter) *Emitter {
	return &Emitter{
		state:  StateIdle,
		cart:   c,
		writer: writer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *Emitter) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Begin validates the cart and, if it passes, moves to the confirming
// state and returns the summary the cashier reviews. Calling Begin again
// while already confirming re-validates against the live cart.
func (e *Emitter) Begin() (*domain.ReturnSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateSubmitting {
		return nil, ErrSubmitInFlight
	}
	if err := cart.Validate(e.cart); err != nil {
		return nil, err
	}

	e.state = StateConfirming
	summary := e.summaryLocked()
	return &summary, nil
}

// Cancel abandons a pending confirmation. The cart is untouched.
func (e *Emitter) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateSubmitting {
		return ErrSubmitInFlight
	}
	e.state = StateIdle
	return nil
}

// Submit dispatches the confirmed return to the upstream ledger. On
// success the cart is cleared and the receipt returned; on failure the
// emitter drops back to confirming with the cart exactly as it was.
func (e *Emitter) Submit(ctx context.Context, cashierName string) (*domain.ReturnReceipt, error) {
	e.mu.Lock()
	if e.state == StateSubmitting {
		e.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if e.state != StateConfirming {
		e.mu.Unlock()
		return nil, ErrNotConfirmed
	}
	if err := cart.Validate(e.cart); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	tx := e.buildTransactionLocked(cashierName)
	e.state = StateSubmitting
	e.mu.Unlock()

	confirmed, err := e.writer.SubmitReturn(ctx, tx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.state = StateConfirming
		return nil, fmt.Errorf("submit return: %w", err)
	}

	receipt := domain.ReturnReceipt{
		ID:            xid.New("rcpt"),
		TransactionID: confirmed.ID,
		CreatedAt:     e.now(),
		Transaction:   *confirmed,
	}
	e.cart.Reset()
	e.state = StateIdle
	return &receipt, nil
}

func (e *Emitter) summaryLocked() domain.ReturnSummary {
	totalQty := 0
	for _, line := range e.cart.Lines() {
		totalQty += line.Quantity
	}
	return domain.ReturnSummary{
		LineCount:     e.cart.Len(),
		TotalQuantity: totalQty,
		TotalRefund:   e.cart.TotalRefund(),
		RefundMethod:  e.cart.RefundMethod(),
	}
}

func (e *Emitter) buildTransactionLocked(cashierName string) domain.ReturnTransaction {
	now := e.now()

	customer := domain.WalkInCustomer()
	if attached := e.cart.Customer(); attached != nil {
		customer = *attached
	}

	lines := e.cart.Lines()
	items := make([]domain.ReturnTransactionItem, 0, len(lines))
	for _, line := range lines {
		item := domain.ReturnTransactionItem{
			ID:       line.ID,
			Name:     line.Name,
			Price:    line.UnitPrice,
			Quantity: line.Quantity,
			Subtotal: line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))),
			Reason:   line.ReturnReason,
			Restock:  line.Restock,
			BatchID:  line.BatchID,
		}
		if prov, ok := line.Provenance.(domain.FromInvoice); ok {
			item.Provenance = &domain.InvoiceProvenance{
				InvoiceID:        prov.InvoiceID,
				OriginalLineID:   prov.OriginalLineID,
				OriginalQuantity: prov.OriginalQuantity,
			}
		}
		items = append(items, item)
	}

	return domain.ReturnTransaction{
		ID:           fmt.Sprintf("RET-%d", now.UnixMilli()),
		Type:         domain.TransactionTypeReturn,
		CreatedAt:    now,
		Customer:     customer,
		Items:        items,
		TotalRefund:  e.cart.TotalRefund(),
		RefundMethod: e.cart.RefundMethod(),
		Notes:        e.cart.Notes(),
		CashierName:  cashierName,
	}
}
