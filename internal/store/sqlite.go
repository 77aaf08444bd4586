// Package store provides storage backends for LeadLine.
//
// This file implements an SQLite-backed store for customers and messages.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/leadline/leadline/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone_number, status, lead_score, is_human_takeover, created_at FROM customers WHERE phone_number = ?`, phone)
	c, err := scanCustomerRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore FindCustomerByPhone not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindCustomerByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to look up customer for %s: %w", phone, err)
	}
	return c, nil
}

func (s *SQLiteStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	fillCustomerDefaults(c)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, phone_number, status, lead_score, is_human_takeover, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.PhoneNumber, c.Status, c.LeadScore, c.IsHumanTakeover, c.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("create customer for %s: %w", c.PhoneNumber, models.ErrCustomerExists)
		}
		slog.Error("SQLiteStore CreateCustomer failed", "error", err, "phone", c.PhoneNumber)
		return fmt.Errorf("failed to create customer for %s: %w", c.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore CreateCustomer succeeded", "id", c.ID, "phone", c.PhoneNumber)
	return nil
}

func (s *SQLiteStore) SetTakeover(ctx context.Context, customerID string, active bool) error {
	status := models.StatusHumanTakeover
	if !active {
		status = models.StatusLead
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET is_human_takeover = ?, status = ? WHERE id = ?`, active, status, customerID)
	if err != nil {
		slog.Error("SQLiteStore SetTakeover failed", "error", err, "customerID", customerID)
		return fmt.Errorf("failed to set takeover for %s: %w", customerID, err)
	}
	return requireRowAffected(res, customerID)
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, customerID string, status models.CustomerStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE customers SET status = ? WHERE id = ?`, status, customerID)
	if err != nil {
		slog.Error("SQLiteStore UpdateStatus failed", "error", err, "customerID", customerID)
		return fmt.Errorf("failed to update status for %s: %w", customerID, err)
	}
	return requireRowAffected(res, customerID)
}

func (s *SQLiteStore) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone_number, status, lead_score, is_human_takeover, created_at FROM customers ORDER BY lead_score DESC, created_at`)
	if err != nil {
		slog.Error("SQLiteStore ListCustomers query failed", "error", err)
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()
	return collectCustomers(rows)
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, m *models.Message) error {
	fillMessageDefaults(m)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, customer_id, phone_number, body, direction, sender, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, nilIfEmpty(m.CustomerID), m.PhoneNumber, m.Body, m.Direction, m.Sender, m.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore InsertMessage failed", "error", err, "phone", m.PhoneNumber, "direction", m.Direction)
		return fmt.Errorf("failed to insert message for %s: %w", m.PhoneNumber, err)
	}
	slog.Debug("SQLiteStore InsertMessage succeeded", "phone", m.PhoneNumber, "direction", m.Direction, "sender", m.Sender)
	return nil
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, phone string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_id, phone_number, body, direction, sender, created_at
		 FROM messages WHERE phone_number = ? ORDER BY created_at DESC LIMIT ?`, phone, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentMessages query failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to query messages for %s: %w", phone, err)
	}
	defer rows.Close()
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

func (s *SQLiteStore) IncrementScore(ctx context.Context, customerID string, delta int) error {
	if delta < 0 {
		return models.ErrNegativeScoreDelta
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET lead_score = lead_score + ? WHERE id = ?`, delta, customerID)
	if err != nil {
		slog.Error("SQLiteStore IncrementScore failed", "error", err, "customerID", customerID, "delta", delta)
		return fmt.Errorf("failed to increment score for %s: %w", customerID, err)
	}
	slog.Debug("SQLiteStore IncrementScore succeeded", "customerID", customerID, "delta", delta)
	return requireRowAffected(res, customerID)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

func fillCustomerDefaults(c *models.Customer) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = models.StatusLead
	}
}

func fillMessageDefaults(m *models.Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}
