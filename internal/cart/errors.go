package cart

import (
	"errors"
	"fmt"
)

var (
	ErrLineNotFound    = errors.New("line item not found")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrInvalidReason   = errors.New("unknown return reason")
)

// CapacityError reports a quantity change that would exceed the line's
// returnable cap: current stock for manual lines, remaining un-returned
// sold quantity for invoice lines. The cart is left unchanged.
type CapacityError struct {
	LineID    string
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	if e.Remaining <= 0 {
		return fmt.Sprintf("%s: no returnable quantity remaining", e.LineID)
	}
	return fmt.Sprintf("%s: only %d remaining, requested %d", e.LineID, e.Remaining, e.Requested)
}

// BatchMismatchError reports an attempt to assign a batch that belongs to
// a different medicine than the line item.
type BatchMismatchError struct {
	BatchID    string
	MedicineID string
	ItemID     string
}

func (e *BatchMismatchError) Error() string {
	return fmt.Sprintf("batch %s belongs to medicine %s, not %s", e.BatchID, e.MedicineID, e.ItemID)
}

const (
	ValidationEmptyCart     = "empty_cart"
	ValidationMissingReason = "missing_reason"
	ValidationZeroRefund    = "zero_refund"
)

// ValidationError names the first submission precondition a cart violates.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
