// Package store provides storage backends for LeadLine.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backed stores selected by DSN detection.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadline/leadline/internal/models"
)

// Store is the conversation store consumed by the orchestrator.
// FindCustomerByPhone returns (nil, nil) when no customer exists for the
// phone number; any non-nil error means the lookup itself failed.
type Store interface {
	FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, c *models.Customer) error
	SetTakeover(ctx context.Context, customerID string, active bool) error
	UpdateStatus(ctx context.Context, customerID string, status models.CustomerStatus) error
	ListCustomers(ctx context.Context) ([]models.Customer, error)
	InsertMessage(ctx context.Context, m *models.Message) error
	RecentMessages(ctx context.Context, phone string, limit int) ([]models.Message, error)
	IncrementScore(ctx context.Context, customerID string, delta int) error
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (assumed to be a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded in-memory implementation of Store.
type InMemoryStore struct {
	mu        sync.Mutex
	customers map[string]*models.Customer // keyed by phone number
	messages  []models.Message
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{customers: make(map[string]*models.Customer)}
}

func (s *InMemoryStore) FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *InMemoryStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.customers[c.PhoneNumber]; exists {
		return models.ErrCustomerExists
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = models.StatusLead
	}
	copied := *c
	s.customers[c.PhoneNumber] = &copied
	return nil
}

func (s *InMemoryStore) SetTakeover(ctx context.Context, customerID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.ID == customerID {
			c.IsHumanTakeover = active
			if active {
				c.Status = models.StatusHumanTakeover
			} else if c.Status == models.StatusHumanTakeover {
				c.Status = models.StatusLead
			}
			return nil
		}
	}
	return models.ErrCustomerNotFound
}

func (s *InMemoryStore) UpdateStatus(ctx context.Context, customerID string, status models.CustomerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.ID == customerID {
			c.Status = status
			return nil
		}
	}
	return models.ErrCustomerNotFound
}

func (s *InMemoryStore) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeadScore > out[j].LeadScore })
	return out, nil
}

func (s *InMemoryStore) InsertMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, *m)
	return nil
}

func (s *InMemoryStore) RecentMessages(ctx context.Context, phone string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.Message
	for _, m := range s.messages {
		if m.PhoneNumber == phone {
			matched = append(matched, m)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (s *InMemoryStore) IncrementScore(ctx context.Context, customerID string, delta int) error {
	if delta < 0 {
		return models.ErrNegativeScoreDelta
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.ID == customerID {
			c.LeadScore += delta
			return nil
		}
	}
	return models.ErrCustomerNotFound
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
