package cart

import (
	"strings"

	"github.com/shopspring/decimal"

	"apotekku/backend/internal/domain"
)

// Cart is the in-memory return cart for a single return session. All
// mutation goes through its methods; each operation is synchronous and
// atomic, validates against the live cart state, and on failure leaves
// the cart exactly as it was.
//
// Lines are keyed so that a manually-added medicine and an invoice-drawn
// line for the same medicine coexist with independently tracked caps:
// manual lines by catalog id, invoice lines by invoiceID:saleLineID.
type Cart struct {
	order []string
	lines map[string]*domain.ReturnLineItem

	customer       *domain.Customer
	customerPinned bool
	notes          string
	refundMethod   string
}

func New() *Cart {
	return &Cart{
		order:        make([]string, 0, 8),
		lines:        make(map[string]*domain.ReturnLineItem),
		refundMethod: domain.RefundMethodCash,
	}
}

func manualLineKey(itemID string) string {
	return itemID
}

func invoiceLineKey(invoiceID string, saleLineID string) string {
	return invoiceID + ":" + saleLineID
}

// AddManualItem adds one unit of an in-stock catalog item, or increments
// the existing manual line by one. The aggregate stock captured at add
// time is the line's cap.
func (c *Cart) AddManualItem(item domain.CatalogItem) (string, error) {
	key := manualLineKey(item.ID)

	if existing, ok := c.lines[key]; ok {
		prov, isManual := existing.Provenance.(domain.Manual)
		if !isManual {
			// Key collision with an invoice line cannot happen by
			// construction, but guard the invariant anyway.
			return "", ErrLineNotFound
		}
		if existing.Quantity+1 > prov.AvailableStock {
			return "", &CapacityError{
				LineID:    key,
				Requested: existing.Quantity + 1,
				Remaining: prov.AvailableStock - existing.Quantity,
			}
		}
		existing.Quantity++
		return key, nil
	}

	if item.CurrentStock < 1 {
		return "", &CapacityError{LineID: key, Requested: 1, Remaining: 0}
	}

	c.insert(key, &domain.ReturnLineItem{
		ID:         item.ID,
		Name:       item.Name,
		UnitPrice:  item.UnitPrice,
		Quantity:   1,
		Provenance: domain.Manual{AvailableStock: item.CurrentStock},
		Restock:    true,
	})
	return key, nil
}

// AddInvoiceItem adds qty units of a sale line from a historical invoice.
// The caller must have resolved the sale line to its canonical catalog
// item first. The cap is the originally-sold quantity minus everything
// already in the cart for the same (invoice, sale line) pair.
func (c *Cart) AddInvoiceItem(item domain.CatalogItem, saleItem domain.SaleLineItem, invoice domain.SaleTransaction, qty int) (string, error) {
	if qty < 1 {
		return "", ErrInvalidQuantity
	}

	key := invoiceLineKey(invoice.ID, saleItem.ID)
	remaining := saleItem.Quantity - c.returnedQty(invoice.ID, saleItem.ID)
	if remaining < 1 {
		return "", &CapacityError{LineID: key, Requested: qty, Remaining: 0}
	}
	if qty > remaining {
		return "", &CapacityError{LineID: key, Requested: qty, Remaining: remaining}
	}

	if existing, ok := c.lines[key]; ok {
		existing.Quantity += qty
	} else {
		c.insert(key, &domain.ReturnLineItem{
			ID:        item.ID,
			Name:      item.Name,
			UnitPrice: saleItem.Price,
			Quantity:  qty,
			Provenance: domain.FromInvoice{
				InvoiceID:        invoice.ID,
				SaleDate:         invoice.CreatedAt,
				OriginalLineID:   saleItem.ID,
				OriginalQuantity: saleItem.Quantity,
				OriginalPrice:    saleItem.Price,
			},
			Restock: true,
		})
	}

	// Attach the invoice's customer at most once, and never override an
	// explicit prior choice.
	if c.customer == nil && !c.customerPinned && invoice.Customer != nil && invoice.Customer.ID != "" {
		attached := *invoice.Customer
		c.customer = &attached
	}

	return key, nil
}

// RemoveItem removes a line unconditionally. Removing an absent line is
// a no-op.
func (c *Cart) RemoveItem(lineID string) {
	if _, ok := c.lines[lineID]; !ok {
		return
	}
	delete(c.lines, lineID)
	for i, key := range c.order {
		if key == lineID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// UpdateQuantity sets a line's quantity. Zero is equivalent to removal.
// The new quantity is validated against the line's provenance cap
// recomputed from the current cart state, not a cached value.
func (c *Cart) UpdateQuantity(lineID string, newQty int) error {
	line, ok := c.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	if newQty < 0 {
		return ErrInvalidQuantity
	}
	if newQty == 0 {
		c.RemoveItem(lineID)
		return nil
	}

	switch prov := line.Provenance.(type) {
	case domain.Manual:
		if newQty > prov.AvailableStock {
			return &CapacityError{LineID: lineID, Requested: newQty, Remaining: prov.AvailableStock}
		}
	case domain.FromInvoice:
		others := c.returnedQty(prov.InvoiceID, prov.OriginalLineID) - line.Quantity
		remaining := prov.OriginalQuantity - others
		if newQty > remaining {
			return &CapacityError{LineID: lineID, Requested: newQty, Remaining: remaining}
		}
	}

	line.Quantity = newQty
	return nil
}

// SetReturnReason assigns one of the fixed return reasons. An empty
// reason clears the field; it is tolerated while building the cart and
// rejected by the validator at submission time.
func (c *Cart) SetReturnReason(lineID string, reason string) error {
	line, ok := c.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	reason = strings.TrimSpace(reason)
	if reason != "" && !domain.IsValidReturnReason(reason) {
		return ErrInvalidReason
	}
	line.ReturnReason = reason
	return nil
}

func (c *Cart) SetRestock(lineID string, restock bool) error {
	line, ok := c.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	// BatchID is intentionally kept when restock is toggled off so that
	// re-enabling restocks the previous batch choice.
	line.Restock = restock
	return nil
}

// SetBatch assigns the destination batch for a restocked line. The batch
// must belong to the line's medicine.
func (c *Cart) SetBatch(lineID string, batch domain.SupplyBatch) error {
	line, ok := c.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	if batch.MedicineID != line.ID {
		return &BatchMismatchError{BatchID: batch.ID, MedicineID: batch.MedicineID, ItemID: line.ID}
	}
	line.BatchID = batch.ID
	return nil
}

func (c *Cart) ClearBatch(lineID string) error {
	line, ok := c.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	line.BatchID = ""
	return nil
}

// AttachCustomer records an explicit customer choice, which invoice adds
// will never override.
func (c *Cart) AttachCustomer(customer domain.Customer) {
	attached := customer
	c.customer = &attached
	c.customerPinned = true
}

func (c *Cart) Customer() *domain.Customer {
	if c.customer == nil {
		return nil
	}
	customer := *c.customer
	return &customer
}

func (c *Cart) SetNotes(notes string) {
	c.notes = notes
}

func (c *Cart) Notes() string {
	return c.notes
}

func (c *Cart) SetRefundMethod(method string) error {
	if !domain.IsSupportedRefundMethod(method) {
		return ErrInvalidReason
	}
	c.refundMethod = method
	return nil
}

func (c *Cart) RefundMethod() string {
	return c.refundMethod
}

// TotalRefund is the pure sum of quantity times unit price over all
// lines. Unit prices are carried as entered; nothing is rounded here.
func (c *Cart) TotalRefund() decimal.Decimal {
	total := decimal.Zero
	for _, key := range c.order {
		line := c.lines[key]
		if line.Quantity < 1 {
			continue
		}
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// Reset clears all line items, detaches the customer, and clears notes.
func (c *Cart) Reset() {
	c.order = c.order[:0]
	c.lines = make(map[string]*domain.ReturnLineItem)
	c.customer = nil
	c.customerPinned = false
	c.notes = ""
}

func (c *Cart) Len() int {
	return len(c.order)
}

// Line returns a copy of the line with the given id.
func (c *Cart) Line(lineID string) (domain.ReturnLineItem, bool) {
	line, ok := c.lines[lineID]
	if !ok {
		return domain.ReturnLineItem{}, false
	}
	return *line, true
}

// Lines returns copies of all lines in insertion order.
func (c *Cart) Lines() []domain.ReturnLineItem {
	result := make([]domain.ReturnLineItem, 0, len(c.order))
	for _, key := range c.order {
		result = append(result, *c.lines[key])
	}
	return result
}

// Snapshot builds the read-only JSON view of the cart.
func (c *Cart) Snapshot() domain.CartSnapshot {
	views := make([]domain.ReturnLineView, 0, len(c.order))
	for _, key := range c.order {
		line := c.lines[key]
		view := domain.ReturnLineView{
			LineID:       key,
			ItemID:       line.ID,
			Name:         line.Name,
			UnitPrice:    line.UnitPrice,
			Quantity:     line.Quantity,
			Subtotal:     line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))),
			Restock:      line.Restock,
			BatchID:      line.BatchID,
			ReturnReason: line.ReturnReason,
		}
		switch prov := line.Provenance.(type) {
		case domain.Manual:
			view.Source = "manual"
			view.AvailableStock = prov.AvailableStock
		case domain.FromInvoice:
			view.Source = "invoice"
			view.InvoiceID = prov.InvoiceID
			saleDate := prov.SaleDate
			view.SaleDate = &saleDate
			view.OriginalQuantity = prov.OriginalQuantity
			originalPrice := prov.OriginalPrice
			view.OriginalPrice = &originalPrice
		}
		views = append(views, view)
	}

	return domain.CartSnapshot{
		Lines:        views,
		Customer:     c.Customer(),
		Notes:        c.notes,
		RefundMethod: c.refundMethod,
		TotalRefund:  c.TotalRefund(),
	}
}

// returnedQty sums cart quantities across all lines drawn from the same
// (invoice, sale line) pair.
func (c *Cart) returnedQty(invoiceID string, saleLineID string) int {
	total := 0
	for _, line := range c.lines {
		prov, ok := line.Provenance.(domain.FromInvoice)
		if !ok {
			continue
		}
		if prov.InvoiceID == invoiceID && prov.OriginalLineID == saleLineID {
			total += line.Quantity
		}
	}
	return total
}

func (c *Cart) insert(key string, line *domain.ReturnLineItem) {
	c.lines[key] = line
	c.order = append(c.order, key)
}
