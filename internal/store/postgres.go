// Package store provides storage backends for LeadLine.
//
// This file implements a PostgreSQL-backed store for customers and messages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/leadline/leadline/internal/models"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone_number, status, lead_score, is_human_takeover, created_at FROM customers WHERE phone_number = $1`, phone)
	c, err := scanCustomerRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore FindCustomerByPhone not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindCustomerByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to look up customer for %s: %w", phone, err)
	}
	return c, nil
}

func (s *PostgresStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	fillCustomerDefaults(c)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, phone_number, status, lead_score, is_human_takeover, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.PhoneNumber, c.Status, c.LeadScore, c.IsHumanTakeover, c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("create customer for %s: %w", c.PhoneNumber, models.ErrCustomerExists)
		}
		slog.Error("PostgresStore CreateCustomer failed", "error", err, "phone", c.PhoneNumber)
		return fmt.Errorf("failed to create customer for %s: %w", c.PhoneNumber, err)
	}
	slog.Debug("PostgresStore CreateCustomer succeeded", "id", c.ID, "phone", c.PhoneNumber)
	return nil
}

func (s *PostgresStore) SetTakeover(ctx context.Context, customerID string, active bool) error {
	status := models.StatusHumanTakeover
	if !active {
		status = models.StatusLead
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET is_human_takeover = $1, status = $2 WHERE id = $3`, active, status, customerID)
	if err != nil {
		slog.Error("PostgresStore SetTakeover failed", "error", err, "customerID", customerID)
		return fmt.Errorf("failed to set takeover for %s: %w", customerID, err)
	}
	return requireRowAffected(res, customerID)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, customerID string, status models.CustomerStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE customers SET status = $1 WHERE id = $2`, status, customerID)
	if err != nil {
		slog.Error("PostgresStore UpdateStatus failed", "error", err, "customerID", customerID)
		return fmt.Errorf("failed to update status for %s: %w", customerID, err)
	}
	return requireRowAffected(res, customerID)
}

func (s *PostgresStore) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone_number, status, lead_score, is_human_takeover, created_at FROM customers ORDER BY lead_score DESC, created_at`)
	if err != nil {
		slog.Error("PostgresStore ListCustomers query failed", "error", err)
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()
	return collectCustomers(rows)
}

func (s *PostgresStore) InsertMessage(ctx context.Context, m *models.Message) error {
	fillMessageDefaults(m)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, customer_id, phone_number, body, direction, sender, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, nilIfEmpty(m.CustomerID), m.PhoneNumber, m.Body, m.Direction, m.Sender, m.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore InsertMessage failed", "error", err, "phone", m.PhoneNumber, "direction", m.Direction)
		return fmt.Errorf("failed to insert message for %s: %w", m.PhoneNumber, err)
	}
	slog.Debug("PostgresStore InsertMessage succeeded", "phone", m.PhoneNumber, "direction", m.Direction, "sender", m.Sender)
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, phone string, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_id, phone_number, body, direction, sender, created_at
		 FROM messages WHERE phone_number = $1 ORDER BY created_at DESC LIMIT $2`, phone, limit)
	if err != nil {
		slog.Error("PostgresStore RecentMessages query failed", "error", err, "phone", phone)
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

func (s *PostgresStore) IncrementScore(ctx context.Context, customerID string, delta int) error {
	if delta < 0 {
		return models.ErrNegativeScoreDelta
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET lead_score = lead_score + $1 WHERE id = $2`, delta, customerID)
	if err != nil {
		slog.Error("PostgresStore IncrementScore failed", "error", err, "customerID", customerID, "delta", delta)
		return fmt.Errorf("failed to increment score for %s: %w", customerID, err)
	}
	slog.Debug("PostgresStore IncrementScore succeeded", "customerID", customerID, "delta", delta)
	return requireRowAffected(res, customerID)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
