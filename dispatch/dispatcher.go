// Package dispatch executes matched automation rules: at-most-once per
// (message, rule, action), AI-assisted templating with a bounded timeout,
// bounded-retry outbound sends, and cancellable delayed execution. Outcomes
// are isolated per rule; one failure never aborts a sibling.
package dispatch

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
	"github.com/google/uuid"
)

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.InitialBackoff)
	next := time.Duration(base * math.Pow(2, float64(attempt-1)))
	if next < 0 || next > p.MaxBackoff {
		return p.MaxBackoff
	}
	return next
}

// CredentialSource resolves the outbound credentials for a workspace and
// channel. Owned by the account-connection subsystem.
type CredentialSource interface {
	Credentials(ctx context.Context, workspaceID string, channel core.Channel) (map[string]string, error)
}

type StaticCredentialSource map[string]map[string]string

func (s StaticCredentialSource) Credentials(_ context.Context, workspaceID string, channel core.Channel) (map[string]string, error) {
	if s == nil {
		return nil, nil
	}
	return s[workspaceID+"::"+string(channel)], nil
}

type Dispatcher struct {
	Applications core.RuleApplicationStore
	Messages     core.MessageStore
	Sender       core.OutboundSender
	Responder    core.AIResponder
	Credentials  CredentialSource

	Retry       RetryPolicy
	AITimeout   time.Duration
	Observer    *core.Observer
	Now         func() time.Time
	// Sleep is overridable so retry backoff is testable without waiting.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(
	applications core.RuleApplicationStore,
	messages core.MessageStore,
	sender core.OutboundSender,
	responder core.AIResponder,
) *Dispatcher {
	return &Dispatcher{
		Applications: applications,
		Messages:     messages,
		Sender:       sender,
		Responder:    responder,
		Retry:        DefaultRetryPolicy(),
		AITimeout:    5 * time.Second,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Sleep: sleepContext,
	}
}

// Dispatch executes one matched rule for one message. Duplicate execution
// (webhook redelivery, re-evaluation) is reported as already-applied, not
// an error.
func (d *Dispatcher) Dispatch(ctx context.Context, msg core.Message, match core.MatchedRule) core.ActionResult {
	if d == nil || d.Applications == nil {
		return core.ActionResult{Err: dispatchInternal("dispatch: dispatcher is not configured")}
	}
	rule := match.Rule

	claimed, err := d.Applications.Claim(ctx, core.RuleApplication{
		ID:             uuid.NewString(),
		WorkspaceID:    msg.WorkspaceID,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		RuleID:         rule.ID,
		ActionType:     rule.ActionType,
		Status:         core.RuleApplicationStatusApplied,
		CreatedAt:      d.now(),
		UpdatedAt:      d.now(),
	})
	if err != nil {
		return core.ActionResult{Err: dispatchWrapError(err, "dispatch: claim rule application", d.fields(msg, rule))}
	}
	if !claimed {
		d.observe(ctx, "dispatch.skip", nil, d.fields(msg, rule, "reason", "already_applied"))
		return core.ActionResult{OK: true, AlreadyApplied: true}
	}

	switch rule.ActionType {
	case core.ActionTypeSendDM, core.ActionTypeSendPublicReply:
	default:
		// send_email / send_webhook ride dedicated outbound collaborators
		// outside this pipeline; the claim stays recorded as skipped.
		cause := "action type " + string(rule.ActionType) + " is not executed by the ingestion pipeline"
		_ = d.Applications.MarkStatus(ctx, msg.ID, rule.ID, rule.ActionType, core.RuleApplicationStatusSkipped, cause)
		d.observe(ctx, "dispatch.skip", nil, d.fields(msg, rule, "reason", "action_unsupported"))
		return core.ActionResult{OK: true, Sent: false}
	}

	text, confidence, genErr := d.resolveText(ctx, msg, rule)
	if genErr != nil {
		_ = d.Applications.MarkStatus(ctx, msg.ID, rule.ID, rule.ActionType, core.RuleApplicationStatusFailed, genErr.Error())
		d.observe(ctx, "dispatch.send", genErr, d.fields(msg, rule))
		return core.ActionResult{Err: genErr}
	}

	result := d.sendWithRetry(ctx, msg, rule, text)
	result.ResponseText = text
	result.Confidence = confidence

	if result.Err != nil {
		_ = d.Applications.MarkStatus(ctx, msg.ID, rule.ID, rule.ActionType, core.RuleApplicationStatusFailed, result.Err.Error())
		d.observe(ctx, "dispatch.send", result.Err, d.fields(msg, rule, "attempts", result.Attempts))
		return result
	}

	if confidence != nil && d.Messages != nil {
		if recordErr := d.Messages.RecordAIResponse(ctx, msg.ID, text, confidence); recordErr != nil {
			d.observe(ctx, "dispatch.record_response", recordErr, d.fields(msg, rule))
		}
	}
	d.observe(ctx, "dispatch.send", nil, d.fields(msg, rule, "attempts", result.Attempts))
	return result
}

// resolveText produces the outbound text. Placeholder templates call the AI
// responder under a bounded timeout; timeout or error falls back verbatim
// to the raw template with no confidence recorded for the send.
func (d *Dispatcher) resolveText(ctx context.Context, msg core.Message, rule core.AutomationRule) (string, *float64, error) {
	template := rule.Template()
	if !HasPlaceholders(template) && strings.TrimSpace(template) != "" {
		return template, nil, nil
	}
	if d.Responder == nil {
		if strings.TrimSpace(template) == "" {
			return "", nil, dispatchError("dispatch: rule has no template and no responder is configured", d.fields(msg, rule))
		}
		return template, nil, nil
	}

	timeout := d.AITimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	generated, err := d.Responder.Generate(genCtx, core.GenerateRequest{
		WorkspaceID:    msg.WorkspaceID,
		ConversationID: msg.ConversationID,
		MessageText:    msg.Text,
		Template:       template,
	})
	if err != nil {
		if strings.TrimSpace(template) == "" {
			return "", nil, dispatchWrapError(err, "dispatch: responder failed with no fallback template", d.fields(msg, rule))
		}
		d.observe(ctx, "dispatch.responder_fallback", err, d.fields(msg, rule,
			"timeout", errors.Is(err, context.DeadlineExceeded)))
		return RenderStatic(template, msg.SenderName), nil, nil
	}
	confidence := core.RoundConfidence(generated.Confidence)
	return generated.Text, &confidence, nil
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, msg core.Message, rule core.AutomationRule, text string) core.ActionResult {
	if d.Sender == nil {
		return core.ActionResult{Err: dispatchInternal("dispatch: outbound sender is not configured")}
	}
	credentials := map[string]string{}
	if d.Credentials != nil {
		resolved, err := d.Credentials.Credentials(ctx, msg.WorkspaceID, msg.Channel)
		if err != nil {
			return core.ActionResult{Err: dispatchWrapError(err, "dispatch: resolve outbound credentials", d.fields(msg, rule))}
		}
		credentials = resolved
	}

	recipient := msg.SenderID
	if rule.ActionType == core.ActionTypeSendPublicReply && strings.TrimSpace(msg.ExternalID) != "" {
		// Public replies target the comment, not the author inbox.
		recipient = msg.ExternalID
	}

	policy := d.Retry
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		sent, err := d.Sender.Send(ctx, core.SendRequest{
			Channel:     msg.Channel,
			RecipientID: recipient,
			Text:        text,
			Credentials: credentials,
		})
		if err == nil && sent.Success {
			return core.ActionResult{OK: true, Sent: true, Attempts: attempt}
		}
		if err == nil {
			err = dispatchError("dispatch: channel send reported failure", d.fields(msg, rule))
		}
		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}
		if sleepErr := d.sleep(ctx, policy.delay(attempt)); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}
	return core.ActionResult{
		Attempts: policy.MaxAttempts,
		Err: dispatchWrapError(lastErr, "dispatch: send retries exhausted", d.fields(msg, rule,
			"max_attempts", policy.MaxAttempts)),
	}
}

func (d *Dispatcher) fields(msg core.Message, rule core.AutomationRule, extra ...any) map[string]any {
	fields := map[string]any{
		"workspace_id": msg.WorkspaceID,
		"message_id":   msg.ID,
		"channel":      string(msg.Channel),
		"rule_id":      rule.ID,
		"action_type":  string(rule.ActionType),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if key, ok := extra[i].(string); ok {
			fields[key] = extra[i+1]
		}
	}
	return fields
}

func (d *Dispatcher) observe(ctx context.Context, operation string, err error, fields map[string]any) {
	if d == nil || d.Observer == nil {
		return
	}
	d.Observer.ObserveOperation(ctx, d.now(), operation, err, fields)
}

func (d *Dispatcher) now() time.Time {
	if d != nil && d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) sleep(ctx context.Context, duration time.Duration) error {
	if d != nil && d.Sleep != nil {
		return d.Sleep(ctx, duration)
	}
	return sleepContext(ctx, duration)
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
