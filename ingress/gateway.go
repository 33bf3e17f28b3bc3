// Package ingress composes the webhook pipeline: verify the delivery,
// canonicalize it, persist idempotently, evaluate the rule snapshot,
// dispatch matched actions, and route unresolved messages to escalation.
// Each delivery is handled independently; ordering holds only within a
// single message's Parse → Persist → Evaluate → Dispatch → Enqueue chain.
package ingress

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-inbox/channels"
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/dispatch"
	"github.com/goliatone/go-inbox/escalation"
	"github.com/goliatone/go-inbox/rules"
)

type Gateway struct {
	Parsers      *channels.Registry
	Resolver     core.WorkspaceResolver
	Messages     core.MessageStore
	Rules        core.RuleStore
	Applications core.RuleApplicationStore
	Dispatcher   *dispatch.Dispatcher
	Scheduler    *dispatch.DelayedScheduler
	Escalations  *escalation.Manager

	// ConfidenceThreshold routes AI-answered messages below it to a human.
	ConfidenceThreshold float64
	Observer            *core.Observer
	Now                 func() time.Time
	// Delay maps a rule's configured delay to the scheduler wait; nil
	// means delay_seconds taken literally.
	Delay func(rule core.AutomationRule) time.Duration
}

func NewGateway(
	parsers *channels.Registry,
	resolver core.WorkspaceResolver,
	messages core.MessageStore,
	ruleStore core.RuleStore,
	applications core.RuleApplicationStore,
	dispatcher *dispatch.Dispatcher,
	escalations *escalation.Manager,
) *Gateway {
	return &Gateway{
		Parsers:             parsers,
		Resolver:            resolver,
		Messages:            messages,
		Rules:               ruleStore,
		Applications:        applications,
		Dispatcher:          dispatcher,
		Escalations:         escalations,
		ConfidenceThreshold: 0.8,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handshake answers a GET webhook-verification challenge for a channel.
func (g *Gateway) Handshake(channel core.Channel, params channels.HandshakeParams) (string, error) {
	if g == nil || g.Parsers == nil {
		return "", ingressInternal("ingress: gateway is not configured")
	}
	parser, ok := g.Parsers.Parser(channel)
	if !ok {
		return "", ingressBadInput("ingress: unknown channel", map[string]any{"channel": channel})
	}
	return parser.VerifyHandshake(params)
}

// Process handles one POST delivery end to end. Signature and payload
// failures are terminal for the request and persist nothing; an unresolved
// workspace is logged and acknowledged without storage.
func (g *Gateway) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if g == nil || g.Parsers == nil || g.Messages == nil {
		return core.InboundResult{}, ingressInternal("ingress: gateway is not configured")
	}
	startedAt := g.now()

	parser, ok := g.Parsers.Parser(req.Channel)
	if !ok {
		return core.InboundResult{}, ingressBadInput("ingress: unknown channel", map[string]any{"channel": req.Channel})
	}

	if err := parser.Verify(ctx, req); err != nil {
		g.observe(ctx, startedAt, "ingest.verify", err, map[string]any{"channel": string(req.Channel)})
		return core.InboundResult{
			Accepted:   false,
			StatusCode: statusFromError(err, http.StatusUnauthorized),
			Metadata:   map[string]any{"channel": string(req.Channel), "rejected": true},
		}, err
	}

	event, err := parser.Parse(req.Body)
	if err != nil {
		g.observe(ctx, startedAt, "ingest.parse", err, map[string]any{"channel": string(req.Channel)})
		return core.InboundResult{
			Accepted:   false,
			StatusCode: statusFromError(err, http.StatusBadRequest),
			Metadata:   map[string]any{"channel": string(req.Channel)},
		}, err
	}

	workspaceID, err := g.resolveWorkspace(ctx, req.Channel, event.AccountID)
	if err != nil {
		// Not an ingestion error: the channel retries nothing, we store
		// nothing, and the delivery is acknowledged.
		g.observe(ctx, startedAt, "ingest.resolve_workspace", err, map[string]any{
			"channel":    string(req.Channel),
			"account_id": event.AccountID,
		})
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"channel":              string(req.Channel),
				"workspace_unresolved": true,
			},
		}, nil
	}

	stored, deduped := 0, 0
	for _, msg := range event.Messages {
		wasNew, handleErr := g.handleMessage(ctx, workspaceID, msg)
		if handleErr != nil {
			// Contained per message: siblings in the same delivery still
			// process, the failure surfaces as a log entry.
			g.observe(ctx, startedAt, "ingest.message", handleErr, map[string]any{
				"workspace_id": workspaceID,
				"channel":      string(req.Channel),
				"external_id":  msg.ExternalID,
			})
			continue
		}
		if wasNew {
			stored++
		} else {
			deduped++
		}
	}

	g.observe(ctx, startedAt, "ingest", nil, map[string]any{
		"workspace_id": workspaceID,
		"channel":      string(req.Channel),
		"stored":       stored,
		"deduped":      deduped,
	})
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"channel":      string(req.Channel),
			"workspace_id": workspaceID,
			"stored":       stored,
			"deduped":      deduped,
		},
	}, nil
}

func (g *Gateway) resolveWorkspace(ctx context.Context, channel core.Channel, accountID string) (string, error) {
	if g.Resolver == nil {
		return "", workspaceUnresolved(channel, accountID)
	}
	workspaceID, err := g.Resolver.ResolveWorkspace(ctx, channel, accountID)
	if err != nil {
		return "", workspaceUnresolved(channel, accountID)
	}
	if strings.TrimSpace(workspaceID) == "" {
		return "", workspaceUnresolved(channel, accountID)
	}
	return strings.TrimSpace(workspaceID), nil
}

// handleMessage runs Persist → Evaluate → Dispatch → Enqueue for one
// canonical message. Redelivered events short-circuit at the store's
// uniqueness key: no second evaluation pass occurs.
func (g *Gateway) handleMessage(ctx context.Context, workspaceID string, msg core.Message) (bool, error) {
	msg.WorkspaceID = workspaceID
	if err := msg.Validate(); err != nil {
		return false, err
	}

	persisted, wasNew, err := g.Messages.Upsert(ctx, msg)
	if err != nil {
		return false, err
	}
	if !wasNew {
		return false, nil
	}

	snapshot, err := g.ruleSnapshot(ctx, persisted)
	if err != nil {
		return true, err
	}

	priorReply := false
	if g.Applications != nil {
		priorReply, err = g.Applications.HasSuccessfulReply(ctx, persisted.WorkspaceID, persisted.ConversationID)
		if err != nil {
			return true, err
		}
	}

	evaluation := rules.Evaluate(persisted, snapshot, rules.Options{PriorReplyInConversation: priorReply})
	g.logSkipped(ctx, persisted, evaluation.Skipped)

	if len(evaluation.Matches) == 0 {
		return true, g.enqueue(ctx, persisted, escalation.ReasonNoMatch)
	}

	immediate := make([]core.ActionResult, 0, len(evaluation.Matches))
	for _, match := range evaluation.Matches {
		if match.Rule.DelaySeconds > 0 && g.Scheduler != nil {
			g.scheduleDelayed(persisted, match)
			continue
		}
		immediate = append(immediate, g.dispatchOne(ctx, persisted, match))
	}
	if len(immediate) == 0 {
		// All actions are delayed; routing happens when they fire.
		return true, nil
	}
	return true, g.routeOutcomes(ctx, persisted, immediate)
}

func (g *Gateway) ruleSnapshot(ctx context.Context, msg core.Message) ([]core.AutomationRule, error) {
	if g.Rules == nil {
		return nil, nil
	}
	return g.Rules.ListEnabled(ctx, msg.WorkspaceID, msg.AgentID)
}

func (g *Gateway) dispatchOne(ctx context.Context, msg core.Message, match core.MatchedRule) core.ActionResult {
	if g.Dispatcher == nil {
		return core.ActionResult{Err: ingressInternal("ingress: dispatcher is not configured")}
	}
	return g.Dispatcher.Dispatch(ctx, msg, match)
}

func (g *Gateway) scheduleDelayed(msg core.Message, match core.MatchedRule) {
	delay := time.Duration(match.Rule.DelaySeconds) * time.Second
	if g.Delay != nil {
		delay = g.Delay(match.Rule)
	}
	g.Scheduler.Schedule(msg, match, delay, func(ctx context.Context, fireMsg core.Message, fireMatch core.MatchedRule) {
		result := g.dispatchOne(ctx, fireMsg, fireMatch)
		if err := g.routeOutcomes(ctx, fireMsg, []core.ActionResult{result}); err != nil {
			g.observe(ctx, g.now(), "ingest.delayed_route", err, map[string]any{
				"workspace_id": fireMsg.WorkspaceID,
				"message_id":   fireMsg.ID,
				"rule_id":      fireMatch.Rule.ID,
			})
		}
	})
}

// routeOutcomes applies the confidence-based routing contract: dispatch
// exhaustion or any AI confidence below the threshold queues the message;
// otherwise a successful send completes it.
func (g *Gateway) routeOutcomes(ctx context.Context, msg core.Message, results []core.ActionResult) error {
	anyFailed := false
	anySent := false
	lowConfidence := false
	allAlreadyApplied := len(results) > 0

	threshold := g.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.8
	}

	for _, result := range results {
		if !result.AlreadyApplied {
			allAlreadyApplied = false
		}
		if result.Err != nil {
			anyFailed = true
			continue
		}
		if result.Sent {
			anySent = true
			if result.Confidence != nil && *result.Confidence < threshold {
				lowConfidence = true
			}
		}
	}

	if allAlreadyApplied {
		// A prior delivery already decided routing for these rules.
		return nil
	}

	switch {
	case anyFailed:
		return g.enqueue(ctx, msg, escalation.ReasonDispatchFailed)
	case lowConfidence:
		return g.enqueue(ctx, msg, escalation.ReasonLowConfidence)
	case anySent:
		if g.Messages != nil {
			if err := g.Messages.UpdateStatus(ctx, msg.ID, core.MessageStatusNew, core.MessageStatusCompleted); err != nil {
				// A concurrent handler may have routed the message first;
				// the guarded transition is the arbiter.
				g.observe(ctx, g.now(), "ingest.autocomplete", err, map[string]any{
					"workspace_id": msg.WorkspaceID,
					"message_id":   msg.ID,
				})
			}
		}
		return nil
	default:
		return nil
	}
}

func (g *Gateway) enqueue(ctx context.Context, msg core.Message, reason string) error {
	if g.Escalations == nil {
		return ingressInternal("ingress: escalation manager is not configured")
	}
	_, err := g.Escalations.Enqueue(ctx, msg.WorkspaceID, msg.ID, reason)
	return err
}

func (g *Gateway) logSkipped(ctx context.Context, msg core.Message, skipped []rules.SkippedRule) {
	if g == nil || g.Observer == nil || len(skipped) == 0 {
		return
	}
	for _, skip := range skipped {
		if skip.Reason != rules.SkipReasonConfigInvalid && skip.Reason != rules.SkipReasonAutoSkipReplies {
			continue
		}
		g.Observer.LogInfo(ctx, "rule skipped", map[string]any{
			"workspace_id": msg.WorkspaceID,
			"message_id":   msg.ID,
			"rule_id":      skip.RuleID,
			"reason":       string(skip.Reason),
		})
	}
}

func (g *Gateway) observe(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if g == nil || g.Observer == nil {
		return
	}
	g.Observer.ObserveOperation(ctx, startedAt, operation, err, fields)
}

func (g *Gateway) now() time.Time {
	if g != nil && g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func statusFromError(err error, fallback int) int {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code
	}
	return fallback
}
