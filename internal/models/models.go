// Package models defines the core data structures for LeadLine.
//
// It includes the customer and message records shared across modules, plus
// the standard API response envelope.
package models

import (
	"errors"
	"time"
)

// CustomerStatus represents the lifecycle stage of a customer.
type CustomerStatus string

const (
	// StatusLead indicates a newly created customer with no qualification yet.
	StatusLead CustomerStatus = "lead"
	// StatusQualified indicates a customer flagged as sales-ready.
	StatusQualified CustomerStatus = "qualified"
	// StatusHumanTakeover indicates a human agent owns the conversation.
	StatusHumanTakeover CustomerStatus = "human_takeover"
	// StatusClosed indicates the conversation has ended.
	StatusClosed CustomerStatus = "closed"
)

// IsValidCustomerStatus checks if the given customer status is supported.
func IsValidCustomerStatus(s CustomerStatus) bool {
	switch s {
	case StatusLead, StatusQualified, StatusHumanTakeover, StatusClosed:
		return true
	default:
		return false
	}
}

// MessageDirection indicates whether a message was received or sent.
type MessageDirection string

const (
	// DirectionInbound is a message received from a customer.
	DirectionInbound MessageDirection = "inbound"
	// DirectionOutbound is a message sent to a customer.
	DirectionOutbound MessageDirection = "outbound"
)

// MessageSender identifies who authored a message.
type MessageSender string

const (
	// SenderCustomer is the customer on the far end of the conversation.
	SenderCustomer MessageSender = "customer"
	// SenderAI is the automated reply generator.
	SenderAI MessageSender = "ai"
	// SenderHuman is an operator sending through the manual endpoint.
	SenderHuman MessageSender = "human"
)

// Validation constants for input validation
const (
	// MaxMessageBodyLength defines the maximum allowed length for a message body
	MaxMessageBodyLength = 4096
	// MinPhoneDigits defines the minimum number of digits in a phone number
	MinPhoneDigits = 6
)

// Error variables for better error handling and testability
var (
	ErrEmptyPhone         = errors.New("phone number cannot be empty")
	ErrEmptyBody          = errors.New("message body cannot be empty")
	ErrBodyTooLong        = errors.New("message body exceeds maximum length")
	ErrInvalidDirection   = errors.New("invalid message direction")
	ErrInvalidSender      = errors.New("invalid message sender")
	ErrCustomerExists     = errors.New("customer already exists for phone number")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrNegativeScoreDelta = errors.New("score delta cannot be negative")
)

// Customer is the durable record for a single phone number. Exactly one
// customer exists per phone number; it is created lazily on first contact
// and never deleted.
type Customer struct {
	ID              string         `json:"id"`
	PhoneNumber     string         `json:"phone_number"`
	Status          CustomerStatus `json:"status"`
	LeadScore       int            `json:"lead_score"`
	IsHumanTakeover bool           `json:"is_human_takeover"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Message is a single inbound or outbound text. Messages are immutable once
// stored and are ordered by CreatedAt within a conversation.
type Message struct {
	ID          string           `json:"id"`
	CustomerID  string           `json:"customer_id,omitempty"` // empty until customer resolution completes
	PhoneNumber string           `json:"phone_number"`
	Body        string           `json:"body"`
	Direction   MessageDirection `json:"direction"`
	Sender      MessageSender    `json:"sender"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Validate performs validation on a Message before it is stored.
func (m *Message) Validate() error {
	if m.PhoneNumber == "" {
		return ErrEmptyPhone
	}
	if m.Body == "" {
		return ErrEmptyBody
	}
	if len(m.Body) > MaxMessageBodyLength {
		return ErrBodyTooLong
	}
	switch m.Direction {
	case DirectionInbound, DirectionOutbound:
	default:
		return ErrInvalidDirection
	}
	switch m.Sender {
	case SenderCustomer, SenderAI, SenderHuman:
	default:
		return ErrInvalidSender
	}
	return nil
}

// SendMessageRequest is the payload for the manual send endpoint.
type SendMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendMessageResult is returned by the manual send endpoint on success.
type SendMessageResult struct {
	Success    bool   `json:"success"`
	MessageSID string `json:"messageSid"`
}

// TakeoverRequest is the payload for toggling the human takeover flag.
type TakeoverRequest struct {
	Phone  string `json:"phone"`
	Active bool   `json:"active"`
}
