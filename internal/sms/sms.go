// Package sms wraps the Twilio API for SMS delivery in LeadLine.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/leadline/leadline/internal/models"
)

// Sender delivers an outbound text and returns the carrier's delivery id.
type Sender interface {
	Send(ctx context.Context, from, to, body string) (string, error)
}

// phoneRegex strips everything except digits and a leading plus.
var phoneRegex = regexp.MustCompile(`[^0-9+]`)

// CanonicalizePhone validates and canonicalizes an E.164-like phone number.
// It removes separators and whitespace, keeping digits and a leading plus.
func CanonicalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", models.ErrEmptyPhone
	}
	canonical := phoneRegex.ReplaceAllString(phone, "")
	digits := 0
	for _, r := range canonical {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < models.MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", phone, models.MinPhoneDigits)
	}
	if canonical != phone {
		slog.Debug("Canonicalized phone number", "original", phone, "canonical", canonical)
	}
	return canonical, nil
}

// Opts holds configuration options for the Twilio SMS client.
type Opts struct {
	AccountSID string
	AuthToken  string
}

// Option defines a configuration option for the Twilio SMS client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// Client wraps the Twilio REST API for SMS.
type Client struct {
	client *twilio.RestClient
}

// NewClient creates a Twilio SMS client. Credentials fall back to the
// TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{client: client}, nil
}

// Send sends an SMS through Twilio and returns the message SID.
func (c *Client) Send(ctx context.Context, from, to, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(to)
	params.SetBody(body)

	msg, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio Send failed", "from", from, "to", to, "error", err)
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	sid := ""
	if msg.Sid != nil {
		sid = *msg.Sid
	}
	slog.Debug("Twilio message sent", "from", from, "to", to, "sid", sid)
	return sid, nil
}

// MockClient records sent messages for tests.
type MockClient struct {
	SentMessages []SentMessage
	Err          error // returned by Send when set
	nextSid      int
}

// SentMessage is a single message captured by the mock.
type SentMessage struct {
	From string
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) Send(ctx context.Context, from, to, body string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{From: from, To: to, Body: body})
	m.nextSid++
	return fmt.Sprintf("SM%08d", m.nextSid), nil
}
