package ingress

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-inbox/channels"
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/dispatch"
	"github.com/goliatone/go-inbox/escalation"
)

type stubParser struct {
	verifyErr error
	parseErr  error
	event     channels.Event
	challenge string
}

func (p *stubParser) Channel() core.Channel { return core.ChannelWebsiteForm }

func (p *stubParser) Verify(context.Context, core.InboundRequest) error { return p.verifyErr }

func (p *stubParser) VerifyHandshake(params channels.HandshakeParams) (string, error) {
	if p.challenge == "" {
		return "", errors.New("handshake rejected")
	}
	return p.challenge, nil
}

func (p *stubParser) Parse([]byte) (channels.Event, error) {
	if p.parseErr != nil {
		return channels.Event{}, p.parseErr
	}
	return p.event, nil
}

type stubResolver struct {
	workspaces map[string]string
	err        error
}

func (r *stubResolver) ResolveWorkspace(_ context.Context, _ core.Channel, accountID string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.workspaces[accountID], nil
}

type countingSender struct {
	mu    sync.Mutex
	calls int
	texts []string
	fail  bool
}

func (s *countingSender) Send(_ context.Context, req core.SendRequest) (core.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.texts = append(s.texts, req.Text)
	if s.fail {
		return core.SendResult{}, errors.New("channel unavailable")
	}
	return core.SendResult{Success: true}, nil
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingSender) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type fixedResponder struct {
	text       string
	confidence float64
}

func (r *fixedResponder) Generate(context.Context, core.GenerateRequest) (core.GenerateResult, error) {
	return core.GenerateResult{Text: r.text, Confidence: r.confidence}, nil
}

type staticRuleStore struct {
	rules []core.AutomationRule
}

func (s *staticRuleStore) ListEnabled(context.Context, string, string) ([]core.AutomationRule, error) {
	return append([]core.AutomationRule(nil), s.rules...), nil
}

type gatewayFixture struct {
	gateway     *Gateway
	parser      *stubParser
	messages    *InMemoryMessageStore
	escalations *escalation.InMemoryEscalationStore
	sender      *countingSender
}

func formEvent() channels.Event {
	return channels.Event{
		AccountID: "site-1",
		Messages: []core.Message{{
			Channel:        core.ChannelWebsiteForm,
			ExternalID:     "sub-1",
			ConversationID: "conv-1",
			SenderID:       "lee@example.com",
			SenderName:     "Lee",
			Text:           "what is the pricing?",
			Type:           core.MessageTypeForm,
		}},
	}
}

func replyRule() core.AutomationRule {
	return core.AutomationRule{
		ID:                   "rule-1",
		WorkspaceID:          "ws-1",
		Enabled:              true,
		TriggerType:          core.TriggerTypeKeyword,
		TriggerWords:         []string{"pricing"},
		ActionType:           core.ActionTypeSendDM,
		PrivateReplyTemplate: "Prices start at 10",
	}
}

func newGatewayFixture(t *testing.T, ruleSet []core.AutomationRule, responder core.AIResponder) *gatewayFixture {
	t.Helper()

	parser := &stubParser{event: formEvent(), challenge: "challenge-1"}
	registry, err := channels.NewRegistry(parser)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	messages := NewInMemoryMessageStore()
	applications := dispatch.NewInMemoryRuleApplicationStore()
	entries := escalation.NewInMemoryEscalationStore()
	sender := &countingSender{}

	dispatcher := dispatch.NewDispatcher(applications, messages, sender, responder)
	dispatcher.Sleep = func(context.Context, time.Duration) error { return nil }

	manager := escalation.NewManager(entries, messages, nil)

	gateway := NewGateway(
		registry,
		&stubResolver{workspaces: map[string]string{"site-1": "ws-1"}},
		messages,
		&staticRuleStore{rules: ruleSet},
		applications,
		dispatcher,
		manager,
	)
	return &gatewayFixture{
		gateway:     gateway,
		parser:      parser,
		messages:    messages,
		escalations: entries,
		sender:      sender,
	}
}

func deliveryRequest() core.InboundRequest {
	return core.InboundRequest{
		Channel: core.ChannelWebsiteForm,
		Body:    []byte(`{}`),
	}
}

func (f *gatewayFixture) storedMessages(t *testing.T) []core.Message {
	t.Helper()
	msgs, err := f.messages.Query(context.Background(), "ws-1", core.MessageFilter{}, core.Pagination{})
	if err != nil {
		t.Fatalf("query messages: %v", err)
	}
	return msgs
}

func (f *gatewayFixture) openEntries(t *testing.T) []core.EscalationEntry {
	t.Helper()
	entries, err := f.escalations.List(context.Background(), "ws-1", true, core.Pagination{})
	if err != nil {
		t.Fatalf("list escalations: %v", err)
	}
	return entries
}

func TestProcess_MatchedRuleSendsAndCompletes(t *testing.T) {
	fixture := newGatewayFixture(t, []core.AutomationRule{replyRule()}, nil)

	result, err := fixture.gateway.Process(context.Background(), deliveryRequest())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result %+v", result)
	}
	if fixture.sender.count() != 1 {
		t.Fatalf("expected one send, got %d", fixture.sender.count())
	}

	msgs := fixture.storedMessages(t)
	if len(msgs) != 1 {
		t.Fatalf("expected one stored message, got %d", len(msgs))
	}
	if msgs[0].Status != core.MessageStatusCompleted {
		t.Fatalf("expected auto-completed message, got %q", msgs[0].Status)
	}
	if len(fixture.openEntries(t)) != 0 {
		t.Fatalf("expected no escalation entries")
	}
}

func TestProcess_RedeliveryIsDeduped(t *testing.T) {
	fixture := newGatewayFixture(t, []core.AutomationRule{replyRule()}, nil)

	if _, err := fixture.gateway.Process(context.Background(), deliveryRequest()); err != nil {
		t.Fatalf("first process: %v", err)
	}
	result, err := fixture.gateway.Process(context.Background(), deliveryRequest())
	if err != nil {
		t.Fatalf("second process: %v", err)
	}

	if result.Metadata["deduped"] != 1 || result.Metadata["stored"] != 0 {
		t.Fatalf("expected redelivery deduped, got %+v", result.Metadata)
	}
	if fixture.sender.count() != 1 {
		t.Fatalf("expected no second send, got %d", fixture.sender.count())
	}
	if len(fixture.storedMessages(t)) != 1 {
		t.Fatalf("expected a single stored row")
	}
}

func TestProcess_InvalidSignatureStoresNothing(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)
	fixture.parser.verifyErr = errors.New("signature mismatch")

	result, err := fixture.gateway.Process(context.Background(), deliveryRequest())
	if err == nil {
		t.Fatalf("expected verification error")
	}
	if result.Accepted || result.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401-class rejection, got %+v", result)
	}
	if len(fixture.storedMessages(t)) != 0 {
		t.Fatalf("rejected delivery must not persist messages")
	}
}

func TestProcess_MalformedPayloadRejected(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)
	fixture.parser.parseErr = errors.New("unexpected payload shape")

	result, err := fixture.gateway.Process(context.Background(), deliveryRequest())
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if result.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400-class rejection, got %d", result.StatusCode)
	}
}

func TestProcess_UnresolvedWorkspaceAckedWithoutStorage(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)
	fixture.gateway.Resolver = &stubResolver{workspaces: map[string]string{}}

	result, err := fixture.gateway.Process(context.Background(), deliveryRequest())
	if err != nil {
		t.Fatalf("unresolved workspace must not surface an error: %v", err)
	}
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("expected acknowledged delivery, got %+v", result)
	}
	if result.Metadata["workspace_unresolved"] != true {
		t.Fatalf("expected unresolved marker, got %+v", result.Metadata)
	}
	if len(fixture.storedMessages(t)) != 0 {
		t.Fatalf("unresolved delivery must not persist messages")
	}
}

func TestProcess_NoMatchEscalates(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	if _, err := fixture.gateway.Process(context.Background(), deliveryRequest()); err != nil {
		t.Fatalf("process: %v", err)
	}

	entries := fixture.openEntries(t)
	if len(entries) != 1 || entries[0].Reason != escalation.ReasonNoMatch {
		t.Fatalf("expected no_rule_matched entry, got %+v", entries)
	}
	msgs := fixture.storedMessages(t)
	if msgs[0].Status != core.MessageStatusQueued {
		t.Fatalf("expected queued message, got %q", msgs[0].Status)
	}
}

func TestProcess_LowConfidenceEscalates(t *testing.T) {
	rule := replyRule()
	rule.PrivateReplyTemplate = "Hi {{name}}, let me check"
	responder := &fixedResponder{text: "Maybe around 10?", confidence: 0.55}
	fixture := newGatewayFixture(t, []core.AutomationRule{rule}, responder)

	if _, err := fixture.gateway.Process(context.Background(), deliveryRequest()); err != nil {
		t.Fatalf("process: %v", err)
	}

	entries := fixture.openEntries(t)
	if len(entries) != 1 || entries[0].Reason != escalation.ReasonLowConfidence {
		t.Fatalf("expected low_confidence entry, got %+v", entries)
	}
	msgs := fixture.storedMessages(t)
	if msgs[0].AIConfidence == nil || *msgs[0].AIConfidence != 0.55 {
		t.Fatalf("expected recorded confidence 0.55, got %+v", msgs[0].AIConfidence)
	}
	if fixture.sender.count() != 1 {
		t.Fatalf("low confidence still sends before queueing, got %d sends", fixture.sender.count())
	}
}

func TestProcess_HighConfidenceCompletes(t *testing.T) {
	rule := replyRule()
	rule.PrivateReplyTemplate = "Hi {{name}}, let me check"
	responder := &fixedResponder{text: "Prices start at 10.", confidence: 0.93}
	fixture := newGatewayFixture(t, []core.AutomationRule{rule}, responder)

	if _, err := fixture.gateway.Process(context.Background(), deliveryRequest()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(fixture.openEntries(t)) != 0 {
		t.Fatalf("high confidence must not escalate")
	}
	if fixture.storedMessages(t)[0].Status != core.MessageStatusCompleted {
		t.Fatalf("expected completed message")
	}
}

func TestProcess_DispatchFailureEscalates(t *testing.T) {
	fixture := newGatewayFixture(t, []core.AutomationRule{replyRule()}, nil)
	fixture.sender.fail = true

	if _, err := fixture.gateway.Process(context.Background(), deliveryRequest()); err != nil {
		t.Fatalf("process: %v", err)
	}

	entries := fixture.openEntries(t)
	if len(entries) != 1 || entries[0].Reason != escalation.ReasonDispatchFailed {
		t.Fatalf("expected dispatch_failed entry, got %+v", entries)
	}
}

func TestProcess_DelayedRuleFiresAfterImmediateSiblings(t *testing.T) {
	delayed := replyRule()
	delayed.ID = "rule-delayed"
	delayed.DelaySeconds = 120
	delayed.PrivateReplyTemplate = "Following up on pricing"

	immediate := replyRule()
	immediate.ID = "rule-hours"
	immediate.TriggerWords = []string{"hours"}
	immediate.PrivateReplyTemplate = "We are open 9 to 5"

	fixture := newGatewayFixture(t, []core.AutomationRule{delayed, immediate}, nil)
	scheduler := dispatch.NewDelayedScheduler()
	defer scheduler.Close()
	fixture.gateway.Scheduler = scheduler
	fixture.gateway.Delay = func(core.AutomationRule) time.Duration { return 10 * time.Millisecond }

	if _, err := fixture.gateway.Process(context.Background(), deliveryRequest()); err != nil {
		t.Fatalf("process delayed delivery: %v", err)
	}
	if fixture.sender.count() != 0 {
		t.Fatalf("delayed action must not send during ingestion, got %d sends", fixture.sender.count())
	}
	if scheduler.Pending() != 1 {
		t.Fatalf("expected one pending delayed action, got %d", scheduler.Pending())
	}
	msgs := fixture.storedMessages(t)
	if len(msgs) != 1 || msgs[0].Status != core.MessageStatusNew {
		t.Fatalf("delayed-only message must await its timer, got %+v", msgs)
	}

	fixture.parser.event = channels.Event{
		AccountID: "site-1",
		Messages: []core.Message{{
			Channel:        core.ChannelWebsiteForm,
			ExternalID:     "sub-2",
			ConversationID: "conv-2",
			SenderID:       "kim@example.com",
			Text:           "what are your hours?",
			Type:           core.MessageTypeForm,
		}},
	}
	if _, err := fixture.gateway.Process(context.Background(), deliveryRequest()); err != nil {
		t.Fatalf("process immediate delivery: %v", err)
	}
	if fixture.sender.count() != 1 {
		t.Fatalf("immediate rule must send right away, got %d sends", fixture.sender.count())
	}

	deadline := time.Now().Add(2 * time.Second)
	for fixture.sender.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	sent := fixture.sender.sentTexts()
	if len(sent) != 2 {
		t.Fatalf("expected the delayed action to fire, sends=%v", sent)
	}
	if sent[0] != "We are open 9 to 5" || sent[1] != "Following up on pricing" {
		t.Fatalf("expected the immediate reply before the delayed one, got %v", sent)
	}

	for scheduler.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if scheduler.Pending() != 0 {
		t.Fatalf("fired action must leave the pending set, got %d", scheduler.Pending())
	}

	for time.Now().Before(deadline) {
		if fixture.storedMessages(t)[0].Status == core.MessageStatusCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := fixture.storedMessages(t)[0].Status; got != core.MessageStatusCompleted {
		t.Fatalf("delayed send must route the message on firing, got %q", got)
	}
}

func TestProcess_UnknownChannelRejected(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	req := deliveryRequest()
	req.Channel = core.ChannelFacebook
	if _, err := fixture.gateway.Process(context.Background(), req); err == nil {
		t.Fatalf("expected unregistered channel to fail")
	}
}

func TestHandshake_RoutesToChannelParser(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	challenge, err := fixture.gateway.Handshake(core.ChannelWebsiteForm, channels.HandshakeParams{
		Mode:        "subscribe",
		VerifyToken: "token",
		Challenge:   "challenge-1",
	})
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if challenge != "challenge-1" {
		t.Fatalf("expected parser challenge, got %q", challenge)
	}
	if _, err := fixture.gateway.Handshake(core.ChannelWhatsApp, channels.HandshakeParams{}); err == nil {
		t.Fatalf("expected unknown channel handshake to fail")
	}
}
