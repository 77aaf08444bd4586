// Package engage implements the conversation orchestration pipeline for
// LeadLine: it consumes inbound SMS events, drives the store, the reply
// generator and the dispatcher in a fixed sequence, and enforces the human
// takeover gate.
package engage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"

	"github.com/leadline/leadline/internal/models"
	"github.com/leadline/leadline/internal/scoring"
	"github.com/leadline/leadline/internal/sms"
	"github.com/leadline/leadline/internal/store"
)

// ReplyGenerator produces a natural-language reply from a message sequence.
// It may fail or time out; the orchestrator falls back to a fixed reply.
type ReplyGenerator interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// Pipeline constants
const (
	// WindowSize is the number of recent messages used as generation context.
	WindowSize = 10
	// FallbackReply is sent when the generator fails or times out.
	FallbackReply = "Thanks for your message! Someone will get back to you soon."
)

// systemPreamble fixes the assistant's role and goal for every generation.
const systemPreamble = "You are a friendly assistant helping to qualify leads and steer " +
	"conversations toward booking an appointment. Keep replies brief and " +
	"conversational, suitable for SMS. Ask questions that reveal intent, budget " +
	"and timeline. When a prospect seems strongly interested, suggest connecting " +
	"them with a team member."

// InboundStatus describes how an inbound message was handled.
type InboundStatus string

const (
	// InboundReplied indicates an automated reply was produced and dispatched.
	InboundReplied InboundStatus = "replied"
	// InboundHumanReview indicates the message was stored without a reply
	// because a human agent owns the conversation.
	InboundHumanReview InboundStatus = "stored_for_human_review"
)

// InboundOutcome reports the result of handling one inbound message.
type InboundOutcome struct {
	Status     InboundStatus
	CustomerID string
	Reply      string
	MessageSID string
	ScoreDelta int
}

// Opts holds configuration options for the orchestrator.
type Opts struct {
	DefaultFrom string
	Policy      scoring.Policy
	WindowSize  int
}

// Option defines a configuration option for the orchestrator.
type Option func(*Opts)

// WithDefaultFrom sets the originating line for manual sends.
func WithDefaultFrom(from string) Option {
	return func(o *Opts) { o.DefaultFrom = from }
}

// WithPolicy overrides the default scoring policy.
func WithPolicy(p scoring.Policy) Option {
	return func(o *Opts) { o.Policy = p }
}

// WithWindowSize overrides the conversation window size.
func WithWindowSize(n int) Option {
	return func(o *Opts) { o.WindowSize = n }
}

// Orchestrator is the central conversation pipeline. Collaborators are
// injected once at construction and shared across concurrent inbound events;
// the orchestrator itself holds no per-conversation state.
type Orchestrator struct {
	store       store.Store
	generator   ReplyGenerator
	sender      sms.Sender
	policy      scoring.Policy
	defaultFrom string
	windowSize  int
}

// NewOrchestrator creates an orchestrator with the given collaborators.
func NewOrchestrator(st store.Store, gen ReplyGenerator, snd sms.Sender, opts ...Option) *Orchestrator {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Policy == nil {
		cfg.Policy = scoring.DefaultPolicy()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = WindowSize
	}
	return &Orchestrator{
		store:       st,
		generator:   gen,
		sender:      snd,
		policy:      cfg.Policy,
		defaultFrom: cfg.DefaultFrom,
		windowSize:  cfg.WindowSize,
	}
}

// HandleInbound processes one inbound SMS. The inbound message is persisted
// first and never lost; only a failure to persist it or to resolve the
// customer surfaces as an error. Generation, dispatch and scoring failures
// degrade the outcome but do not fail the event.
func (o *Orchestrator) HandleInbound(ctx context.Context, from, to, body string) (InboundOutcome, error) {
	fromPhone, err := sms.CanonicalizePhone(from)
	if err != nil {
		return InboundOutcome{}, fmt.Errorf("invalid sender number: %w", err)
	}
	toPhone, err := sms.CanonicalizePhone(to)
	if err != nil {
		return InboundOutcome{}, fmt.Errorf("invalid receiving number: %w", err)
	}

	inbound := &models.Message{
		PhoneNumber: fromPhone,
		Body:        body,
		Direction:   models.DirectionInbound,
		Sender:      models.SenderCustomer,
	}
	if err := inbound.Validate(); err != nil {
		return InboundOutcome{}, fmt.Errorf("invalid inbound message: %w", err)
	}
	if err := o.store.InsertMessage(ctx, inbound); err != nil {
		slog.Error("Orchestrator failed to persist inbound message", "error", err, "from", fromPhone)
		return InboundOutcome{}, fmt.Errorf("failed to persist inbound message: %w", err)
	}
	slog.Debug("Orchestrator persisted inbound message", "from", fromPhone, "message_id", inbound.ID)

	customer, err := o.resolveCustomer(ctx, fromPhone)
	if err != nil {
		slog.Error("Orchestrator failed to resolve customer", "error", err, "phone", fromPhone)
		return InboundOutcome{}, fmt.Errorf("failed to resolve customer: %w", err)
	}

	if customer.IsHumanTakeover {
		slog.Info("Orchestrator skipping reply, human takeover active", "phone", fromPhone, "customer_id", customer.ID)
		return InboundOutcome{Status: InboundHumanReview, CustomerID: customer.ID}, nil
	}

	reply := o.generateReply(ctx, fromPhone, inbound.ID, body)

	// Replies always originate from the line that received the inbound.
	sid, sendErr := o.sender.Send(ctx, toPhone, fromPhone, reply)
	if sendErr != nil {
		slog.Error("Orchestrator failed to dispatch reply", "error", sendErr, "to", fromPhone)
	}

	outbound := &models.Message{
		CustomerID:  customer.ID,
		PhoneNumber: fromPhone,
		Body:        reply,
		Direction:   models.DirectionOutbound,
		Sender:      models.SenderAI,
	}
	if err := o.store.InsertMessage(ctx, outbound); err != nil {
		slog.Error("Orchestrator failed to persist outbound message", "error", err, "to", fromPhone)
	}

	delta := o.policy.Score(body)
	if delta > 0 {
		if err := o.store.IncrementScore(ctx, customer.ID, delta); err != nil {
			slog.Error("Orchestrator failed to apply score delta", "error", err, "customer_id", customer.ID, "delta", delta)
		} else {
			slog.Debug("Orchestrator applied score delta", "customer_id", customer.ID, "delta", delta)
		}
	}

	return InboundOutcome{
		Status:     InboundReplied,
		CustomerID: customer.ID,
		Reply:      reply,
		MessageSID: sid,
		ScoreDelta: delta,
	}, nil
}

// resolveCustomer finds or lazily creates the customer for a phone number.
// A lookup failure aborts instead of creating, so transient store errors
// cannot mint duplicate customers. A lost creation race is absorbed by one
// fresh lookup; the unique constraint on the phone number is the arbiter.
func (o *Orchestrator) resolveCustomer(ctx context.Context, phone string) (*models.Customer, error) {
	customer, err := o.store.FindCustomerByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("customer lookup failed: %w", err)
	}
	if customer != nil {
		return customer, nil
	}

	fresh := &models.Customer{PhoneNumber: phone, Status: models.StatusLead}
	createErr := o.store.CreateCustomer(ctx, fresh)
	if createErr == nil {
		slog.Info("Orchestrator created customer on first contact", "phone", phone, "customer_id", fresh.ID)
		return fresh, nil
	}
	if !errors.Is(createErr, models.ErrCustomerExists) {
		return nil, fmt.Errorf("customer creation failed: %w", createErr)
	}

	customer, err = o.store.FindCustomerByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("customer lookup after lost create race failed: %w", err)
	}
	if customer == nil {
		return nil, fmt.Errorf("customer for %s vanished after create conflict", phone)
	}
	return customer, nil
}

// generateReply builds the conversation window and asks the generator for a
// reply, falling back to the fixed default on any failure.
func (o *Orchestrator) generateReply(ctx context.Context, phone, inboundID, body string) string {
	window, err := o.store.RecentMessages(ctx, phone, o.windowSize)
	if err != nil {
		slog.Error("Orchestrator failed to load conversation window", "error", err, "phone", phone)
		window = nil
	}

	messages := buildPromptMessages(window, inboundID, body)
	reply, err := o.generator.GenerateWithMessages(ctx, messages)
	if err != nil || reply == "" {
		slog.Warn("Orchestrator using fallback reply", "error", err, "phone", phone)
		return FallbackReply
	}
	return reply
}

// buildPromptMessages maps the conversation window onto chat messages:
// preamble, then history oldest to newest, then the triggering inbound body.
// The just-persisted inbound is excluded from the history portion so it
// appears exactly once.
func buildPromptMessages(window []models.Message, inboundID, body string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(window)+2)
	messages = append(messages, openai.SystemMessage(systemPreamble))
	for _, m := range window {
		if m.ID == inboundID {
			continue
		}
		if m.Direction == models.DirectionInbound {
			messages = append(messages, openai.UserMessage(m.Body))
		} else {
			messages = append(messages, openai.AssistantMessage(m.Body))
		}
	}
	messages = append(messages, openai.UserMessage(body))
	return messages
}

// SendManual dispatches an operator-written message from the configured
// default line, bypassing the takeover gate, and persists it with the human
// sender role. Dispatch failure is the only fatal error on this path.
func (o *Orchestrator) SendManual(ctx context.Context, to, body string) (string, error) {
	toPhone, err := sms.CanonicalizePhone(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient number: %w", err)
	}
	if body == "" {
		return "", models.ErrEmptyBody
	}

	sid, err := o.sender.Send(ctx, o.defaultFrom, toPhone, body)
	if err != nil {
		slog.Error("Orchestrator manual send failed", "error", err, "to", toPhone)
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	outbound := &models.Message{
		PhoneNumber: toPhone,
		Body:        body,
		Direction:   models.DirectionOutbound,
		Sender:      models.SenderHuman,
	}
	if customer, lookupErr := o.store.FindCustomerByPhone(ctx, toPhone); lookupErr == nil && customer != nil {
		outbound.CustomerID = customer.ID
	}
	if err := o.store.InsertMessage(ctx, outbound); err != nil {
		slog.Error("Orchestrator failed to persist manual message", "error", err, "to", toPhone)
	}

	slog.Info("Orchestrator manual message sent", "to", toPhone, "sid", sid)
	return sid, nil
}

// SetTakeover flips the human takeover flag for the customer behind a phone
// number. This is the out-of-band write path used by human agents; the
// inbound pipeline only ever reads the flag.
func (o *Orchestrator) SetTakeover(ctx context.Context, phone string, active bool) (*models.Customer, error) {
	canonical, err := sms.CanonicalizePhone(phone)
	if err != nil {
		return nil, fmt.Errorf("invalid phone number: %w", err)
	}
	customer, err := o.store.FindCustomerByPhone(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("customer lookup failed: %w", err)
	}
	if customer == nil {
		return nil, models.ErrCustomerNotFound
	}
	if err := o.store.SetTakeover(ctx, customer.ID, active); err != nil {
		return nil, fmt.Errorf("failed to set takeover: %w", err)
	}
	customer.IsHumanTakeover = active
	if active {
		customer.Status = models.StatusHumanTakeover
	}
	slog.Info("Orchestrator takeover flag updated", "phone", canonical, "active", active)
	return customer, nil
}
