package engage

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"

	"github.com/leadline/leadline/internal/models"
	"github.com/leadline/leadline/internal/sms"
	"github.com/leadline/leadline/internal/store"
)

// stubGenerator is a ReplyGenerator with a canned reply or error.
type stubGenerator struct {
	reply    string
	err      error
	calls    int
	lastMsgs []openai.ChatCompletionMessageParamUnion
}

func (g *stubGenerator) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	g.calls++
	g.lastMsgs = messages
	return g.reply, g.err
}

// failingLookupStore wraps a Store and fails every customer lookup.
type failingLookupStore struct {
	store.Store
}

func (s *failingLookupStore) FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	return nil, errors.New("store unavailable")
}

func newTestOrchestrator(gen *stubGenerator) (*Orchestrator, *store.InMemoryStore, *sms.MockClient) {
	st := store.NewInMemoryStore()
	mock := sms.NewMockClient()
	o := NewOrchestrator(st, gen, mock, WithDefaultFrom("+15550000000"))
	return o, st, mock
}

func TestHandleInboundCreatesCustomerOnce(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "Happy to help!"}
	o, st, _ := newTestOrchestrator(gen)

	outcome, err := o.HandleInbound(ctx, "+15551234567", "+17770002222", "hello")
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if outcome.Status != InboundReplied {
		t.Errorf("status = %q, want %q", outcome.Status, InboundReplied)
	}

	customer, err := st.FindCustomerByPhone(ctx, "+15551234567")
	if err != nil || customer == nil {
		t.Fatalf("customer not created: %v", err)
	}
	if customer.Status != models.StatusLead {
		t.Errorf("status = %q, want %q", customer.Status, models.StatusLead)
	}
	if customer.LeadScore != 0 {
		t.Errorf("score = %d, want 0 for non-qualifying first message", customer.LeadScore)
	}

	if _, err := o.HandleInbound(ctx, "+15551234567", "+17770002222", "still there?"); err != nil {
		t.Fatalf("second HandleInbound failed: %v", err)
	}
	customers, _ := st.ListCustomers(ctx)
	if len(customers) != 1 {
		t.Errorf("customer count = %d, want 1", len(customers))
	}
}

func TestHandleInboundTakeoverGate(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "should never be sent"}
	o, st, mock := newTestOrchestrator(gen)

	c := &models.Customer{PhoneNumber: "+15551234567"}
	if err := st.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if err := st.SetTakeover(ctx, c.ID, true); err != nil {
		t.Fatalf("SetTakeover failed: %v", err)
	}

	outcome, err := o.HandleInbound(ctx, "+15551234567", "+17770002222", "I want to buy today")
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if outcome.Status != InboundHumanReview {
		t.Errorf("status = %q, want %q", outcome.Status, InboundHumanReview)
	}
	if gen.calls != 0 {
		t.Error("generator must not be invoked while takeover is active")
	}
	if len(mock.SentMessages) != 0 {
		t.Error("no reply may be dispatched while takeover is active")
	}

	// The inbound message is still persisted for the human to read.
	msgs, _ := st.RecentMessages(ctx, "+15551234567", 10)
	if len(msgs) != 1 || msgs[0].Direction != models.DirectionInbound {
		t.Errorf("inbound not stored under takeover: %+v", msgs)
	}
}

func TestHandleInboundFallbackOnGeneratorFailure(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{err: errors.New("model timeout")}
	o, st, mock := newTestOrchestrator(gen)

	outcome, err := o.HandleInbound(ctx, "+15551234567", "+17770002222", "hi there")
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if outcome.Reply != FallbackReply {
		t.Errorf("reply = %q, want fallback", outcome.Reply)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].Body != FallbackReply {
		t.Errorf("fallback not dispatched: %+v", mock.SentMessages)
	}

	msgs, _ := st.RecentMessages(ctx, "+15551234567", 10)
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	out := msgs[1]
	if out.Direction != models.DirectionOutbound || out.Sender != models.SenderAI || out.Body != FallbackReply {
		t.Errorf("outbound fallback not persisted as ai message: %+v", out)
	}
}

func TestHandleInboundRepliesFromReceivingLine(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "Sure thing!"}
	o, _, mock := newTestOrchestrator(gen)

	if _, err := o.HandleInbound(ctx, "+15551112222", "+17773334444", "hello"); err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mock.SentMessages))
	}
	sent := mock.SentMessages[0]
	if sent.From != "+17773334444" {
		t.Errorf("reply from %q, want the receiving line +17773334444", sent.From)
	}
	if sent.To != "+15551112222" {
		t.Errorf("reply to %q, want the customer +15551112222", sent.To)
	}
}

func TestHandleInboundAppliesScoreDelta(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "Noted!"}
	o, st, _ := newTestOrchestrator(gen)

	outcome, err := o.HandleInbound(ctx, "+15551234567", "+17770002222", "This is urgent, what's the timeline and cost?")
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if outcome.ScoreDelta != 20 {
		t.Errorf("delta = %d, want 20 (urgency + qualifying question)", outcome.ScoreDelta)
	}
	customer, _ := st.FindCustomerByPhone(ctx, "+15551234567")
	if customer.LeadScore != 20 {
		t.Errorf("score = %d, want 20", customer.LeadScore)
	}

	outcome, err = o.HandleInbound(ctx, "+15551234567", "+17770002222", "hello")
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if outcome.ScoreDelta != 0 {
		t.Errorf("delta = %d, want 0", outcome.ScoreDelta)
	}
	customer, _ = st.FindCustomerByPhone(ctx, "+15551234567")
	if customer.LeadScore != 20 {
		t.Errorf("score changed to %d on non-qualifying message", customer.LeadScore)
	}
}

func TestHandleInboundWindowBounded(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "ok"}
	o, st, _ := newTestOrchestrator(gen)
	phone := "+15551234567"

	for i := 0; i < 15; i++ {
		msg := &models.Message{
			PhoneNumber: phone,
			Body:        "earlier message",
			Direction:   models.DirectionInbound,
			Sender:      models.SenderCustomer,
		}
		if err := st.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	if _, err := o.HandleInbound(ctx, phone, "+17770002222", "latest"); err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	// Window of 10 includes the just-stored inbound, which is excluded from
	// the history portion: system + 9 history + 1 latest.
	if got := len(gen.lastMsgs); got != 11 {
		t.Errorf("prompt message count = %d, want 11", got)
	}
}

func TestHandleInboundDispatchFailureStillRecords(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "Sounds good!"}
	o, st, mock := newTestOrchestrator(gen)
	mock.Err = errors.New("carrier unavailable")

	outcome, err := o.HandleInbound(ctx, "+15551234567", "+17770002222", "interested")
	if err != nil {
		t.Fatalf("dispatch failure must not fail the inbound event: %v", err)
	}
	if outcome.MessageSID != "" {
		t.Errorf("sid = %q, want empty on dispatch failure", outcome.MessageSID)
	}

	msgs, _ := st.RecentMessages(ctx, "+15551234567", 10)
	if len(msgs) != 2 || msgs[1].Direction != models.DirectionOutbound {
		t.Errorf("outbound attempt not recorded: %+v", msgs)
	}
	// Scoring still runs after a failed dispatch.
	customer, _ := st.FindCustomerByPhone(ctx, "+15551234567")
	if customer.LeadScore != 10 {
		t.Errorf("score = %d, want 10", customer.LeadScore)
	}
}

func TestHandleInboundLookupFailureAborts(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "ok"}
	inner := store.NewInMemoryStore()
	o := NewOrchestrator(&failingLookupStore{Store: inner}, gen, sms.NewMockClient())

	if _, err := o.HandleInbound(ctx, "+15551234567", "+17770002222", "hello"); err == nil {
		t.Fatal("expected error when customer lookup fails")
	}
	// A transient lookup failure must not mint a customer.
	customers, _ := inner.ListCustomers(ctx)
	if len(customers) != 0 {
		t.Errorf("customer created despite lookup failure: %+v", customers)
	}
	// The inbound message was persisted before the failure.
	msgs, _ := inner.RecentMessages(ctx, "+15551234567", 10)
	if len(msgs) != 1 {
		t.Errorf("inbound message lost: %+v", msgs)
	}
}

func TestSendManual(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "unused"}
	o, st, mock := newTestOrchestrator(gen)

	// No prior conversation exists for this number.
	sid, err := o.SendManual(ctx, "+15559876543", "Hi, this is Sam following up.")
	if err != nil {
		t.Fatalf("SendManual failed: %v", err)
	}
	if sid == "" {
		t.Error("expected a delivery sid")
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(mock.SentMessages))
	}
	if mock.SentMessages[0].From != "+15550000000" {
		t.Errorf("manual send from %q, want the configured default line", mock.SentMessages[0].From)
	}

	msgs, _ := st.RecentMessages(ctx, "+15559876543", 10)
	if len(msgs) != 1 || msgs[0].Sender != models.SenderHuman || msgs[0].Direction != models.DirectionOutbound {
		t.Errorf("manual message not persisted as outbound human: %+v", msgs)
	}
}

func TestSendManualBypassesTakeover(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{reply: "unused"}
	o, st, mock := newTestOrchestrator(gen)

	c := &models.Customer{PhoneNumber: "+15551234567"}
	if err := st.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	if err := st.SetTakeover(ctx, c.ID, true); err != nil {
		t.Fatalf("SetTakeover failed: %v", err)
	}

	if _, err := o.SendManual(ctx, "+15551234567", "A human is on it."); err != nil {
		t.Fatalf("SendManual under takeover failed: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Error("manual send must bypass the takeover gate")
	}
	msgs, _ := st.RecentMessages(ctx, "+15551234567", 10)
	if len(msgs) != 1 || msgs[0].CustomerID != c.ID {
		t.Errorf("manual message not linked to customer: %+v", msgs)
	}
}

func TestSendManualDispatchFailure(t *testing.T) {
	ctx := context.Background()
	o, st, mock := newTestOrchestrator(&stubGenerator{})
	mock.Err = errors.New("carrier unavailable")

	if _, err := o.SendManual(ctx, "+15551234567", "hello"); err == nil {
		t.Fatal("expected error when dispatch fails on the manual path")
	}
	msgs, _ := st.RecentMessages(ctx, "+15551234567", 10)
	if len(msgs) != 0 {
		t.Errorf("failed manual send should not be persisted: %+v", msgs)
	}
}

func TestSetTakeover(t *testing.T) {
	ctx := context.Background()
	o, st, _ := newTestOrchestrator(&stubGenerator{reply: "ok"})

	if _, err := o.SetTakeover(ctx, "+15551234567", true); !errors.Is(err, models.ErrCustomerNotFound) {
		t.Errorf("SetTakeover on unknown phone = %v, want ErrCustomerNotFound", err)
	}

	c := &models.Customer{PhoneNumber: "+15551234567"}
	if err := st.CreateCustomer(ctx, c); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}
	updated, err := o.SetTakeover(ctx, "+1 (555) 123-4567", true)
	if err != nil {
		t.Fatalf("SetTakeover failed: %v", err)
	}
	if !updated.IsHumanTakeover {
		t.Error("takeover flag not set")
	}

	// Clearing the flag re-enables automated replies.
	if _, err := o.SetTakeover(ctx, "+15551234567", false); err != nil {
		t.Fatalf("clearing takeover failed: %v", err)
	}
	outcome, err := o.HandleInbound(ctx, "+15551234567", "+17770002222", "hello again")
	if err != nil {
		t.Fatalf("HandleInbound failed: %v", err)
	}
	if outcome.Status != InboundReplied {
		t.Errorf("status after clearing takeover = %q, want %q", outcome.Status, InboundReplied)
	}
}
