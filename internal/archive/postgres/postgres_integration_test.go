package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"apotekku/backend/internal/archive"
	"apotekku/backend/internal/domain"
)

func TestReceiptRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("APOTEKKU_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set APOTEKKU_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	receiptID := fmt.Sprintf("rcpt-it-%d", stamp)
	txID := fmt.Sprintf("RET-IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM return_receipts WHERE id = $1`, receiptID)
	})

	receipt := domain.ReturnReceipt{
		ID:            receiptID,
		TransactionID: txID,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
		Transaction: domain.ReturnTransaction{
			ID:        txID,
			Type:      domain.TransactionTypeReturn,
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
			Customer:  domain.WalkInCustomer(),
			Items: []domain.ReturnTransactionItem{
				{
					ID:       "MED-IT-1",
					Name:     "Paracetamol 500mg",
					Price:    decimal.NewFromInt(2500),
					Quantity: 2,
					Subtotal: decimal.NewFromInt(5000),
					Reason:   domain.ReasonDamaged,
					Restock:  true,
				},
			},
			TotalRefund:  decimal.NewFromInt(5000),
			RefundMethod: domain.RefundMethodCash,
			CashierName:  "Integration Test",
		},
	}

	if err := s.SaveReceipt(ctx, receipt); err != nil {
		t.Fatalf("save receipt: %v", err)
	}
	if err := s.SaveReceipt(ctx, receipt); !errors.Is(err, archive.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on resave, got %v", err)
	}

	got, err := s.GetReceipt(ctx, receiptID)
	if err != nil {
		t.Fatalf("get receipt: %v", err)
	}
	if got.TransactionID != txID {
		t.Fatalf("expected transaction id %s, got %s", txID, got.TransactionID)
	}
	if len(got.Transaction.Items) != 1 || got.Transaction.Items[0].ID != "MED-IT-1" {
		t.Fatalf("transaction payload did not round-trip: %+v", got.Transaction)
	}
	if !got.Transaction.TotalRefund.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected total 5000, got %s", got.Transaction.TotalRefund)
	}

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	receipts, err := s.ListReceipts(ctx, from, to, 10)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	found := false
	for _, r := range receipts {
		if r.ID == receiptID {
			found = true
		}
	}
	if !found {
		t.Fatalf("saved receipt not in listing")
	}
}

func TestAuditLogRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("APOTEKKU_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set APOTEKKU_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	detail := fmt.Sprintf("it-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE detail = $1`, detail)
	})

	if err := s.CreateAuditLog(ctx, domain.AuditLog{
		Actor:  "integration",
		Action: "return.submit",
		Detail: detail,
	}); err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	entries, err := s.ListAuditLogs(ctx, from, to, 100)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.Detail == detail {
			if entry.ID == "" || entry.CreatedAt.IsZero() {
				t.Fatalf("expected generated id and timestamp, got %+v", entry)
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("created audit entry not in listing")
	}
}
