package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"apotekku/backend/internal/domain"
	"apotekku/backend/internal/upstream"
)

// Client talks to the upstream pharmacy POS HTTP API. It implements
// upstream.Catalog, upstream.SaleLedger and upstream.LedgerWriter.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Wire shapes follow the upstream API's camelCase convention.

type wireItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	CurrentStock int             `json:"currentStock"`
}

type wireBatch struct {
	ID          string `json:"id"`
	MedicineID  string `json:"medicineId"`
	BatchNumber string `json:"batchNumber"`
	Quantity    int    `json:"quantity"`
}

type wireCustomer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireSaleLine struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type wireSale struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transactionId"`
	CreatedAt     time.Time      `json:"createdAt"`
	Customer      *wireCustomer  `json:"customer"`
	Items         []wireSaleLine `json:"items"`
}

type wireReturnProvenance struct {
	InvoiceID        string `json:"invoiceId"`
	OriginalLineID   string `json:"originalLineId"`
	OriginalQuantity int    `json:"originalQuantity"`
}

type wireReturnItem struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Price      decimal.Decimal       `json:"price"`
	Quantity   int                   `json:"quantity"`
	Subtotal   decimal.Decimal       `json:"subtotal"`
	Reason     string                `json:"reason"`
	Restock    bool                  `json:"restock"`
	BatchID    string                `json:"batchId,omitempty"`
	Provenance *wireReturnProvenance `json:"provenance,omitempty"`
}

type wireReturn struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	CreatedAt    time.Time        `json:"createdAt"`
	Customer     wireCustomer     `json:"customer"`
	Items        []wireReturnItem `json:"items"`
	TotalRefund  decimal.Decimal  `json:"totalRefund"`
	RefundMethod string           `json:"refundMethod"`
	Notes        string           `json:"notes,omitempty"`
	CashierName  string           `json:"cashierName"`
}

func (w wireItem) toDomain() domain.CatalogItem {
	return domain.CatalogItem{
		ID:           w.ID,
		Name:         w.Name,
		Category:     w.Category,
		UnitPrice:    w.UnitPrice,
		CurrentStock: w.CurrentStock,
	}
}

func (w wireSale) toDomain() domain.SaleTransaction {
	tx := domain.SaleTransaction{
		ID:            w.ID,
		TransactionID: w.TransactionID,
		CreatedAt:     w.CreatedAt.UTC(),
		Items:         make([]domain.SaleLineItem, 0, len(w.Items)),
	}
	if w.Customer != nil {
		tx.Customer = &domain.Customer{ID: w.Customer.ID, Name: w.Customer.Name}
	}
	for _, line := range w.Items {
		tx.Items = append(tx.Items, domain.SaleLineItem{
			ID:       line.ID,
			Name:     line.Name,
			Price:    line.Price,
			Quantity: line.Quantity,
			Subtotal: line.Subtotal,
		})
	}
	return tx
}

func toWireReturn(tx domain.ReturnTransaction) wireReturn {
	out := wireReturn{
		ID:           tx.ID,
		Type:         tx.Type,
		CreatedAt:    tx.CreatedAt,
		Customer:     wireCustomer{ID: tx.Customer.ID, Name: tx.Customer.Name},
		Items:        make([]wireReturnItem, 0, len(tx.Items)),
		TotalRefund:  tx.TotalRefund,
		RefundMethod: tx.RefundMethod,
		Notes:        tx.Notes,
		CashierName:  tx.CashierName,
	}
	for _, item := range tx.Items {
		wi := wireReturnItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Subtotal: item.Subtotal,
			Reason:   item.Reason,
			Restock:  item.Restock,
			BatchID:  item.BatchID,
		}
		if item.Provenance != nil {
			wi.Provenance = &wireReturnProvenance{
				InvoiceID:        item.Provenance.InvoiceID,
				OriginalLineID:   item.Provenance.OriginalLineID,
				OriginalQuantity: item.Provenance.OriginalQuantity,
			}
		}
		out.Items = append(out.Items, wi)
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", upstream.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return upstream.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: upstream responded %d", upstream.ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", upstream.ErrUnavailable, err)
	}
	return nil
}

func (c *Client) ListAvailableItems(ctx context.Context) ([]domain.CatalogItem, error) {
	var wire []wireItem
	if err := c.getJSON(ctx, "/catalog/items", nil, &wire); err != nil {
		return nil, err
	}
	items := make([]domain.CatalogItem, 0, len(wire))
	for _, w := range wire {
		items = append(items, w.toDomain())
	}
	return items, nil
}

func (c *Client) GetItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	var wire wireItem
	if err := c.getJSON(ctx, "/catalog/items/"+url.PathEscape(id), nil, &wire); err != nil {
		return nil, err
	}
	item := wire.toDomain()
	return &item, nil
}

func (c *Client) FindItemByName(ctx context.Context, name string) (*domain.CatalogItem, error) {
	query := url.Values{"name": {name}}
	var wire []wireItem
	if err := c.getJSON(ctx, "/catalog/items", query, &wire); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, w := range wire {
		if strings.ToLower(w.Name) == needle {
			item := w.toDomain()
			return &item, nil
		}
	}
	return nil, upstream.ErrNotFound
}

func (c *Client) ListBatches(ctx context.Context, medicineID string) ([]domain.SupplyBatch, error) {
	query := url.Values{"medicineId": {medicineID}}
	var wire []wireBatch
	if err := c.getJSON(ctx, "/catalog/batches", query, &wire); err != nil {
		return nil, err
	}
	batches := make([]domain.SupplyBatch, 0, len(wire))
	for _, w := range wire {
		batches = append(batches, domain.SupplyBatch{
			ID:          w.ID,
			MedicineID:  w.MedicineID,
			BatchNumber: w.BatchNumber,
			Quantity:    w.Quantity,
		})
	}
	return batches, nil
}

func (c *Client) QuerySales(ctx context.Context, from time.Time, to time.Time) ([]domain.SaleTransaction, error) {
	query := url.Values{
		"startDate": {from.UTC().Format("2006-01-02")},
		"endDate":   {to.UTC().Format("2006-01-02")},
		"type":      {domain.TransactionTypeSale},
	}
	var wire []wireSale
	if err := c.getJSON(ctx, "/sales", query, &wire); err != nil {
		return nil, err
	}
	sales := make([]domain.SaleTransaction, 0, len(wire))
	for _, w := range wire {
		sales = append(sales, w.toDomain())
	}
	return sales, nil
}

func (c *Client) SubmitReturn(ctx context.Context, tx domain.ReturnTransaction) (*domain.ReturnTransaction, error) {
	body, err := json.Marshal(toWireReturn(tx))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/returns", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", upstream.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		// fall through to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: %s", upstream.ErrConflict, readErrorMessage(resp.Body))
	default:
		return nil, fmt.Errorf("%w: upstream responded %d", upstream.ErrUnavailable, resp.StatusCode)
	}

	var confirmed wireReturn
	if err := json.NewDecoder(resp.Body).Decode(&confirmed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", upstream.ErrUnavailable, err)
	}
	result := tx
	result.ID = confirmed.ID
	result.CreatedAt = confirmed.CreatedAt.UTC()
	return &result, nil
}

func readErrorMessage(body io.Reader) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Message == "" {
		return "return rejected"
	}
	return payload.Message
}
