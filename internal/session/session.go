package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"apotekku/backend/internal/cart"
	"apotekku/backend/internal/domain"
	"apotekku/backend/internal/emitter"
	"apotekku/backend/internal/upstream"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownMode     = errors.New("unknown session mode")
	// ErrWrongMode rejects an add that does not match the session's
	// current entry mode.
	ErrWrongMode = errors.New("operation not allowed in current mode")
)

// Session is one cashier's return-building workspace: a cart, the
// emitter driving it, and the lookup pages fetched from upstream. All
// access goes through the session's mutex.
//
// Lookup fetches run outside the lock and are delivered through a
// generation token, so a page that was requested before a reset or a
// mode switch is discarded instead of resurrecting stale rows.
type Session struct {
	mu sync.Mutex

	id      string
	mode    string
	cart    *cart.Cart
	emitter *emitter.Emitter
	catalog upstream.Catalog
	ledger  upstream.SaleLedger

	gen         uint64
	catalogPage []domain.CatalogItem
	salesPage   []domain.SaleTransaction
	lastReceipt *domain.ReturnReceipt
	touchedAt   time.Time
}

func newSession(catalog upstream.Catalog, ledger upstream.SaleLedger, writer upstream.LedgerWriter) *Session {
	c := cart.New()
	return &Session{
		id:        uuid.NewString(),
		mode:      domain.SessionModeManual,
		cart:      c,
		emitter:   emitter.New(c, writer),
		catalog:   catalog,
		ledger:    ledger,
		touchedAt: time.Now().UTC(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Snapshot is the full session view returned by most handlers.
func (s *Session) Snapshot() domain.SessionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchedAt = time.Now().UTC()
	return domain.SessionResponse{
		SessionID: s.id,
		Mode:      s.mode,
		State:     string(s.emitter.State()),
		Cart:      s.cart.Snapshot(),
	}
}

// SetMode switches between manual and invoice entry. The cart survives
// the switch; the fetched lookup pages do not.
func (s *Session) SetMode(mode string) error {
	if mode != domain.SessionModeManual && mode != domain.SessionModeInvoice {
		return ErrUnknownMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureEditableLocked(); err != nil {
		return err
	}
	s.mode = mode
	s.invalidatePagesLocked()
	return nil
}

// Reset abandons the cart and starts over: lines, customer, notes and
// pending confirmation all go; in-flight lookups are invalidated.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.emitter.Cancel(); err != nil {
		return err
	}
	s.cart.Reset()
	s.invalidatePagesLocked()
	return nil
}

// RefreshCatalog fetches the in-stock catalog page. The fetch runs
// without the session lock; if the session was reset or switched modes
// in the meantime the result is returned but not retained for adds.
func (s *Session) RefreshCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	s.mu.Lock()
	tok := s.gen
	s.mu.Unlock()

	items, err := s.catalog.ListAvailableItems(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == tok {
		s.catalogPage = items
	} else {
		log.Printf("[session] WARN: discarding stale catalog page for session %s", s.id)
	}
	return items, nil
}

// FetchSales fetches the sales ledger page for a date window and applies
// the optional text filter. Stale results are discarded the same way as
// catalog pages.
func (s *Session) FetchSales(ctx context.Context, from time.Time, to time.Time, query string) ([]domain.SaleTransaction, error) {
	s.mu.Lock()
	tok := s.gen
	s.mu.Unlock()

	sales, err := s.ledger.QuerySales(ctx, from, to)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == tok {
		s.salesPage = sales
	} else {
		log.Printf("[session] WARN: discarding stale sales page for session %s", s.id)
	}
	return upstream.FilterSalesByText(sales, query), nil
}

// AddManualItem adds one unit of a catalog item in manual mode. The item
// comes from the retained catalog page, falling back to a direct lookup
// when the page has not been fetched.
func (s *Session) AddManualItem(ctx context.Context, itemID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureEditableLocked(); err != nil {
		return "", err
	}
	if s.mode != domain.SessionModeManual {
		return "", ErrWrongMode
	}

	for _, item := range s.catalogPage {
		if item.ID == itemID {
			return s.cart.AddManualItem(item)
		}
	}

	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return "", err
	}
	return s.cart.AddManualItem(*item)
}

// AddInvoiceItem draws a quantity from a sale line on the fetched sales
// page. The sale line is resolved to its canonical catalog item before
// it enters the cart.
func (s *Session) AddInvoiceItem(ctx context.Context, req domain.AddInvoiceItemRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureEditableLocked(); err != nil {
		return "", err
	}
	if s.mode != domain.SessionModeInvoice {
		return "", ErrWrongMode
	}

	invoice, saleItem, err := s.findSaleLineLocked(req.InvoiceID, req.LineID)
	if err != nil {
		return "", err
	}

	item, err := upstream.ResolveCanonicalItem(ctx, s.catalog, saleItem.ID, saleItem.Name)
	if err != nil {
		return "", err
	}
	return s.cart.AddInvoiceItem(*item, saleItem, invoice, req.Quantity)
}

// UpdateLine applies a partial line edit. Only the fields present in the
// request change.
func (s *Session) UpdateLine(ctx context.Context, lineID string, req domain.UpdateLineRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureEditableLocked(); err != nil {
		return err
	}

	if req.Quantity != nil {
		if err := s.cart.UpdateQuantity(lineID, *req.Quantity); err != nil {
			return err
		}
		if *req.Quantity == 0 {
			return nil
		}
	}
	if req.Reason != nil {
		if err := s.cart.SetReturnReason(lineID, *req.Reason); err != nil {
			return err
		}
	}
	if req.Restock != nil {
		if err := s.cart.SetRestock(lineID, *req.Restock); err != nil {
			return err
		}
	}
	if req.BatchID != nil {
		if err := s.setBatchLocked(ctx, lineID, *req.BatchID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) RemoveLine(lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureEditableLocked(); err != nil {
		return err
	}
	s.cart.RemoveItem(lineID)
	return nil
}

// UpdateCart applies cart-level edits: explicit customer, notes, refund
// method.
func (s *Session) UpdateCart(req domain.UpdateCartRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureEditableLocked(); err != nil {
		return err
	}

	if req.Customer != nil {
		s.cart.AttachCustomer(*req.Customer)
	}
	if req.Notes != nil {
		s.cart.SetNotes(*req.Notes)
	}
	if req.RefundMethod != nil {
		if err := s.cart.SetRefundMethod(*req.RefundMethod); err != nil {
			return err
		}
	}
	return nil
}

// Confirm validates the cart and moves the session into the confirming
// state, returning the summary for cashier review.
func (s *Session) Confirm() (*domain.ReturnSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter.Begin()
}

func (s *Session) CancelConfirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter.Cancel()
}

// Submit dispatches the confirmed return upstream. The session lock is
// held for the duration, so the cart cannot drift under an in-flight
// submission.
func (s *Session) Submit(ctx context.Context, cashierName string) (*domain.ReturnReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, err := s.emitter.Submit(ctx, cashierName)
	if err != nil {
		return nil, err
	}
	s.lastReceipt = receipt
	s.invalidatePagesLocked()
	return receipt, nil
}

// LastReceipt returns the receipt of the most recent successful
// submission, if any.
func (s *Session) LastReceipt() *domain.ReturnReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReceipt == nil {
		return nil
	}
	receipt := *s.lastReceipt
	return &receipt
}

func (s *Session) setBatchLocked(ctx context.Context, lineID string, batchID string) error {
	if batchID == "" {
		return s.cart.ClearBatch(lineID)
	}

	line, ok := s.cart.Line(lineID)
	if !ok {
		return cart.ErrLineNotFound
	}

	batches, err := s.catalog.ListBatches(ctx, line.ID)
	if err != nil {
		return err
	}
	for _, batch := range batches {
		if batch.ID == batchID {
			return s.cart.SetBatch(lineID, batch)
		}
	}
	return upstream.ErrNotFound
}

func (s *Session) findSaleLineLocked(invoiceID string, lineID string) (domain.SaleTransaction, domain.SaleLineItem, error) {
	for _, tx := range s.salesPage {
		if tx.ID != invoiceID && tx.TransactionID != invoiceID {
			continue
		}
		for _, line := range tx.Items {
			if line.ID == lineID {
				return tx, line, nil
			}
		}
		return domain.SaleTransaction{}, domain.SaleLineItem{}, cart.ErrLineNotFound
	}
	return domain.SaleTransaction{}, domain.SaleLineItem{}, upstream.ErrNotFound
}

func (s *Session) ensureEditableLocked() error {
	if s.emitter.State() == emitter.StateSubmitting {
		return emitter.ErrSubmitInFlight
	}
	s.touchedAt = time.Now().UTC()
	return nil
}

// invalidatePagesLocked bumps the generation so in-flight fetches are
// discarded on delivery, and drops the retained pages.
func (s *Session) invalidatePagesLocked() {
	s.gen++
	s.catalogPage = nil
	s.salesPage = nil
}

// Manager owns the live sessions and evicts the ones idle past the TTL.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	stop     chan struct{}

	catalog upstream.Catalog
	ledger  upstream.SaleLedger
	writer  upstream.LedgerWriter
}

func NewManager(catalog upstream.Catalog, ledger upstream.SaleLedger, writer upstream.LedgerWriter, ttl time.Duration) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		stop:     make(chan struct{}),
		catalog:  catalog,
		ledger:   ledger,
		writer:   writer,
	}
	go m.sweep()
	return m
}

func (m *Manager) Create() *Session {
	s := newSession(m.catalog, m.ledger, m.writer)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) Close() {
	close(m.stop)
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := time.Now().UTC().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.touchedAt.Before(cutoff) && s.emitter.State() != emitter.StateSubmitting
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			log.Printf("[session] evicted idle session %s", id)
		}
	}
}
