package store

import (
	"database/sql"
	"fmt"

	"github.com/leadline/leadline/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanCustomerRow scans a Customer from a single sql.Row.
func scanCustomerRow(row *sql.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.PhoneNumber, &c.Status, &c.LeadScore, &c.IsHumanTakeover, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// collectCustomers scans all customers from sql.Rows.
func collectCustomers(rows *sql.Rows) ([]models.Customer, error) {
	var customers []models.Customer
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.PhoneNumber, &c.Status, &c.LeadScore, &c.IsHumanTakeover, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customer rows: %w", err)
	}
	return customers, nil
}

// collectMessages scans all messages from sql.Rows.
func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var customerID sql.NullString
		if err := rows.Scan(&m.ID, &customerID, &m.PhoneNumber, &m.Body, &m.Direction, &m.Sender, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.CustomerID = customerID.String
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

// reverseMessages flips a newest-first result set into chronological order.
func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// requireRowAffected maps a zero-row update to ErrCustomerNotFound.
func requireRowAffected(res sql.Result, customerID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("customer %s: %w", customerID, models.ErrCustomerNotFound)
	}
	return nil
}
