package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The upstream POS API exchanges money amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Customer is a pharmacy customer as known to the upstream directory.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WalkInCustomer is the placeholder used when a return has no customer
// attached.
func WalkInCustomer() Customer {
	return Customer{ID: "walk-in", Name: "Walk-in Customer"}
}

// CatalogItem is a medicine in the upstream catalog with its live
// aggregate stock.
type CatalogItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CurrentStock int             `json:"current_stock"`
}

// SupplyBatch is one received lot of a medicine, the granularity at
// which restocked returns go back on the shelf.
type SupplyBatch struct {
	ID          string `json:"id"`
	MedicineID  string `json:"medicine_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    int    `json:"quantity"`
}

// SaleLineItem is one line of a historical sale. Its id may follow a
// legacy scheme that no longer matches the live catalog.
type SaleLineItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// SaleTransaction is a completed sale invoice from the upstream ledger.
type SaleTransaction struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transaction_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Customer      *Customer      `json:"customer,omitempty"`
	Items         []SaleLineItem `json:"items"`
}

// Provenance records how a return line entered the cart and carries the
// data its quantity cap is computed from. It is a sealed union: the only
// implementations are Manual and FromInvoice.
type Provenance interface {
	provenanceKind() string
}

// Manual provenance: the item was added directly from the catalog. The
// cap is the aggregate stock captured at add time.
type Manual struct {
	AvailableStock int
}

func (Manual) provenanceKind() string { return "manual" }

// FromInvoice provenance: the item was drawn from a historical sale
// line. The cap is the originally-sold quantity.
type FromInvoice struct {
	InvoiceID        string
	SaleDate         time.Time
	OriginalLineID   string
	OriginalQuantity int
	OriginalPrice    decimal.Decimal
}

func (FromInvoice) provenanceKind() string { return "invoice" }

// ReturnLineItem is one cart line under construction.
type ReturnLineItem struct {
	ID           string
	Name         string
	UnitPrice    decimal.Decimal
	Quantity     int
	Provenance   Provenance
	Restock      bool
	BatchID      string
	ReturnReason string
}

// ReturnLineView is the JSON projection of a cart line, flattened so
// clients never see the provenance union directly.
type ReturnLineView struct {
	LineID           string           `json:"line_id"`
	ItemID           string           `json:"item_id"`
	Name             string           `json:"name"`
	UnitPrice        decimal.Decimal  `json:"unit_price"`
	Quantity         int              `json:"quantity"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	Restock          bool             `json:"restock"`
	BatchID          string           `json:"batch_id,omitempty"`
	ReturnReason     string           `json:"return_reason,omitempty"`
	Source           string           `json:"source"`
	AvailableStock   int              `json:"available_stock,omitempty"`
	InvoiceID        string           `json:"invoice_id,omitempty"`
	SaleDate         *time.Time       `json:"sale_date,omitempty"`
	OriginalQuantity int              `json:"original_quantity,omitempty"`
	OriginalPrice    *decimal.Decimal `json:"original_price,omitempty"`
}

// CartSnapshot is the full read-only view of a return cart.
type CartSnapshot struct {
	Lines        []ReturnLineView `json:"lines"`
	Customer     *Customer        `json:"customer,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	RefundMethod string           `json:"refund_method"`
	TotalRefund  decimal.Decimal  `json:"total_refund"`
}

// ReturnSummary is what the cashier confirms before submission.
type ReturnSummary struct {
	LineCount     int             `json:"line_count"`
	TotalQuantity int             `json:"total_quantity"`
	TotalRefund   decimal.Decimal `json:"total_refund"`
	RefundMethod  string          `json:"refund_method"`
}

// InvoiceProvenance is the invoice linkage carried on a submitted return
// line, present only for invoice-drawn lines.
type InvoiceProvenance struct {
	InvoiceID        string `json:"invoice_id"`
	OriginalLineID   string `json:"original_line_id"`
	OriginalQuantity int    `json:"original_quantity"`
}

// ReturnTransactionItem is one finalized line of a submitted return.
type ReturnTransactionItem struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Price      decimal.Decimal    `json:"price"`
	Quantity   int                `json:"quantity"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	Reason     string             `json:"reason"`
	Restock    bool               `json:"restock"`
	BatchID    string             `json:"batch_id,omitempty"`
	Provenance *InvoiceProvenance `json:"provenance,omitempty"`
}

const (
	TransactionTypeSale   = "Sale"
	TransactionTypeReturn = "Return"
)

// ReturnTransaction is the finalized return dispatched to the upstream
// ledger.
type ReturnTransaction struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	CreatedAt    time.Time               `json:"created_at"`
	Customer     Customer                `json:"customer"`
	Items        []ReturnTransactionItem `json:"items"`
	TotalRefund  decimal.Decimal         `json:"total_refund"`
	RefundMethod string                  `json:"refund_method"`
	Notes        string                  `json:"notes,omitempty"`
	CashierName  string                  `json:"cashier_name"`
}

// ReturnReceipt is the archived record of an accepted return.
type ReturnReceipt struct {
	ID            string            `json:"id"`
	TransactionID string            `json:"transaction_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Transaction   ReturnTransaction `json:"transaction"`
}

const (
	ReasonDamaged         = "damaged"
	ReasonExpired         = "expired"
	ReasonWrongItem       = "wrong_item"
	ReasonAdverseReaction = "adverse_reaction"
	ReasonOther           = "other"
)

// ReturnReasons lists the accepted return reasons in display order.
func ReturnReasons() []string {
	return []string{ReasonDamaged, ReasonExpired, ReasonWrongItem, ReasonAdverseReaction, ReasonOther}
}

func IsValidReturnReason(reason string) bool {
	switch reason {
	case ReasonDamaged, ReasonExpired, ReasonWrongItem, ReasonAdverseReaction, ReasonOther:
		return true
	}
	return false
}

const (
	RefundMethodCash        = "cash"
	RefundMethodTransfer    = "transfer"
	RefundMethodStoreCredit = "store_credit"
)

func IsSupportedRefundMethod(method string) bool {
	switch method {
	case RefundMethodCash, RefundMethodTransfer, RefundMethodStoreCredit:
		return true
	}
	return false
}

const (
	RolePharmacist = "pharmacist"
	RoleAdmin      = "admin"
)

// Actor identifies the authenticated user performing a request.
type Actor struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// UserAccount is a local account as stored in the archive.
type UserAccount struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type AddManualItemRequest struct {
	ItemID string `json:"item_id"`
}

type AddInvoiceItemRequest struct {
	InvoiceID string `json:"invoice_id"`
	LineID    string `json:"line_id"`
	Quantity  int    `json:"quantity"`
}

// UpdateLineRequest carries a partial line update. Absent fields leave
// the line untouched, so a client can clear the quantity box mid-edit
// without losing the line.
type UpdateLineRequest struct {
	Quantity *int    `json:"quantity,omitempty"`
	Reason   *string `json:"reason,omitempty"`
	Restock  *bool   `json:"restock,omitempty"`
	BatchID  *string `json:"batch_id,omitempty"`
}

// UpdateCartRequest carries cart-level edits.
type UpdateCartRequest struct {
	Customer     *Customer `json:"customer,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	RefundMethod *string   `json:"refund_method,omitempty"`
}

const (
	SessionModeManual  = "manual"
	SessionModeInvoice = "invoice"
)

type SessionResponse struct {
	SessionID string       `json:"session_id"`
	Mode      string       `json:"mode"`
	State     string       `json:"state"`
	Cart      CartSnapshot `json:"cart"`
}

type SubmitResponse struct {
	Receipt ReturnReceipt `json:"receipt"`
}

// AuditLog records a state-changing action for the audit trail.
type AuditLog struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}
