package archive

import (
	"context"
	"errors"
	"time"

	"apotekku/backend/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Store is the local archive: receipts of accepted returns, the audit
// trail, and user accounts. The upstream ledger stays the system of
// record for stock and transactions; the archive only keeps what this
// service produced.
type Store interface {
	SaveReceipt(ctx context.Context, receipt domain.ReturnReceipt) error
	ListReceipts(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.ReturnReceipt, error)
	GetReceipt(ctx context.Context, id string) (*domain.ReturnReceipt, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error
}
