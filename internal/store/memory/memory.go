package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tagpos/backend/internal/domain"
	"tagpos/backend/internal/store"
	"tagpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	catalog         []domain.CatalogEntry
	catalogByTag    map[string]int
	stockEvents     []domain.StockEvent
	transactions    []*domain.Transaction
	transactionByID map[string]int
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	version         int64
}

// New returns an empty store. The data version starts from the clock so a
// restarted process never reuses a version an earlier run cached under.
func New() *Store {
	return &Store{
		catalogByTag:    make(map[string]int),
		transactionByID: make(map[string]int),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
		version:         time.Now().UnixNano(),
	}
}

// NewSeeded builds a store with dev/demo accounts and a small catalog.
// Credentials are read from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD; unset values fall back to dev defaults. These are
// never used when DATABASE_URL is set.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	s.usersByUsername = seedUsers(logger)

	for _, entry := range []domain.CatalogEntry{
		{Tag: "001", Name: "Shirt", UnitPrice: decimal.NewFromInt(499)},
		{Tag: "002", Name: "Denim Jeans", UnitPrice: decimal.NewFromInt(1299)},
		{Tag: "003", Name: "Cotton Socks", UnitPrice: decimal.RequireFromString("149.50")},
		{Tag: "004", Name: "Baseball Cap", UnitPrice: decimal.NewFromInt(349)},
	} {
		s.catalogByTag[entry.Tag] = len(s.catalog)
		s.catalog = append(s.catalog, entry)
	}
	return s
}

func seedUsers(logger *zap.Logger) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"manager", managerPwd, domain.RoleManager},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ReplaceCatalog(_ context.Context, entries []domain.CatalogEntry) error {
	catalog := make([]domain.CatalogEntry, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Tag) == "" || strings.TrimSpace(entry.Name) == "" {
			return store.ErrInvalidTransaction
		}
		if pos, exists := index[entry.Tag]; exists {
			catalog[pos] = entry
			continue
		}
		index[entry.Tag] = len(catalog)
		catalog = append(catalog, entry)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = catalog
	s.catalogByTag = index
	s.version++
	return nil
}

func (s *Store) ListCatalog(_ context.Context) ([]domain.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.catalog), nil
}

func (s *Store) GetCatalogEntry(_ context.Context, tag string) (*domain.CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.catalogByTag[tag]
	if !exists {
		return nil, store.ErrNotFound
	}
	entry := s.catalog[pos]
	return &entry, nil
}

func (s *Store) AppendStockEvent(_ context.Context, event domain.StockEvent) (*domain.StockEvent, error) {
	if strings.TrimSpace(event.Tag) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if event.ID == "" {
		event.ID = xid.New("stk")
	}
	if event.ArrivedAt.IsZero() {
		event.ArrivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stockEvents = append(s.stockEvents, event)
	s.version++
	created := event
	return &created, nil
}

func (s *Store) ListStockEvents(_ context.Context) ([]domain.StockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.stockEvents), nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.Transaction) error {
	if tx.ID == "" || tx.Status == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionByID[tx.ID]; exists {
		return store.ErrInvalidTransaction
	}
	s.transactionByID[tx.ID] = len(s.transactions)
	s.transactions = append(s.transactions, cloneTransaction(&tx))
	s.version++
	return nil
}

func (s *Store) ListTransactions(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, *cloneTransaction(tx))
	}
	return out, nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, exists := s.transactionByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(s.transactions[pos]), nil
}

func (s *Store) MarkLineItemReturned(_ context.Context, transactionID string, lineItemID int) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, exists := s.transactionByID[transactionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	tx := s.transactions[pos]
	if tx.Status != domain.TxStatusSuccess {
		return nil, store.ErrInvalidTransaction
	}
	for i := range tx.Items {
		if tx.Items[i].ID != lineItemID {
			continue
		}
		if tx.Items[i].Status == domain.LineItemStatusReturned {
			return nil, store.ErrAlreadyReturned
		}
		tx.Items[i].Status = domain.LineItemStatusReturned
		s.version++
		return cloneTransaction(tx), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) DataVersion(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	out := *src
	out.Items = slices.Clone(src.Items)
	return &out
}
