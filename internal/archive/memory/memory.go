package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"apotekku/backend/internal/archive"
	"apotekku/backend/internal/domain"
	"apotekku/backend/internal/xid"
)

// Store is the in-memory archive used in dev/demo mode and in tests.
type Store struct {
	mu              sync.RWMutex
	receipts        []domain.ReturnReceipt
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// seedUsers builds the initial in-memory user accounts for dev/demo
// mode. Credentials are read from SEED_ADMIN_PASSWORD and
// SEED_PHARMACIST_PASSWORD, with well-known defaults for local work.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	pharmacistPwd := envOr("SEED_PHARMACIST_PASSWORD", "pharmacist123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_PHARMACIST_PASSWORD") == "" {
		log.Println("[memory-archive] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_PHARMACIST_PASSWORD to override.")
	}

	seeds := []struct {
		username    string
		displayName string
		role        string
		password    string
	}{
		{"admin", "Store Admin", domain.RoleAdmin, adminPwd},
		{"sari", "Sari Wulandari", domain.RolePharmacist, pharmacistPwd},
	}

	users := make(map[string]domain.UserAccount, len(seeds))
	for _, u := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[memory-archive] WARN: hashing seed password for %s: %v", u.username, err)
			continue
		}
		users[u.username] = domain.UserAccount{
			ID:           xid.New("usr"),
			Username:     u.username,
			DisplayName:  u.displayName,
			Role:         u.role,
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		}
	}
	return users
}

func NewSeeded() *Store {
	return &Store{
		receipts:        make([]domain.ReturnReceipt, 0, 32),
		auditLogs:       make([]domain.AuditLog, 0, 64),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) SaveReceipt(_ context.Context, receipt domain.ReturnReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.receipts {
		if existing.ID == receipt.ID {
			return archive.ErrDuplicate
		}
	}
	s.receipts = append(s.receipts, receipt)
	return nil
}

func (s *Store) ListReceipts(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.ReturnReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ReturnReceipt, 0, len(s.receipts))
	for _, receipt := range s.receipts {
		if receipt.CreatedAt.Before(from) || !receipt.CreatedAt.Before(to) {
			continue
		}
		result = append(result, receipt)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (*domain.ReturnReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, receipt := range s.receipts {
		if receipt.ID == id {
			found := receipt
			return &found, nil
		}
	}
	return nil, archive.ErrNotFound
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByUsername[user.Username]; ok {
		return archive.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, archive.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return archive.ErrNotFound
	}
	user.PasswordHash = passwordHash
	s.usersByUsername[username] = user
	return nil
}
