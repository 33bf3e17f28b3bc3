package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
)

// DurableScheduler enqueues delayed rule actions on a queue backend instead
// of in-process timers, so pending delays survive restarts. The idempotency
// key matches the rule application key, so a redelivered job cannot fire an
// action twice: the Claim in Dispatch absorbs the duplicate.
type DurableScheduler struct {
	Queue core.JobEnqueuer
	JobID string
}

func NewDurableScheduler(queue core.JobEnqueuer, jobID string) *DurableScheduler {
	return &DurableScheduler{Queue: queue, JobID: jobID}
}

func (s *DurableScheduler) Schedule(ctx context.Context, msg core.Message, match core.MatchedRule) error {
	if s == nil || s.Queue == nil {
		return dispatchInternal("dispatch: durable scheduler is not configured")
	}
	return s.Queue.Enqueue(ctx, &core.JobExecutionMessage{
		JobID: s.JobID,
		Parameters: map[string]any{
			"workspace_id":  msg.WorkspaceID,
			"message_id":    msg.ID,
			"rule_id":       match.Rule.ID,
			"delay_seconds": match.Rule.DelaySeconds,
		},
		IdempotencyKey: delayKey(msg.ID, match.Rule.ID),
	})
}

// QueueWorker drains the durable delay queue: each delivery names a
// (message, rule) pair whose delay has elapsed. The worker reloads both rows
// so the fired action sees current state, not the state at enqueue time.
type QueueWorker struct {
	Deliveries core.JobDequeuer
	Messages   core.MessageStore
	Rules      core.RuleStore
	Fire       FireFunc
	Observer   *core.Observer
}

func NewQueueWorker(deliveries core.JobDequeuer, messages core.MessageStore, ruleStore core.RuleStore, fire FireFunc) *QueueWorker {
	return &QueueWorker{
		Deliveries: deliveries,
		Messages:   messages,
		Rules:      ruleStore,
		Fire:       fire,
	}
}

// Run consumes deliveries until the context is cancelled.
func (w *QueueWorker) Run(ctx context.Context) error {
	if w == nil || w.Deliveries == nil || w.Messages == nil || w.Rules == nil || w.Fire == nil {
		return dispatchInternal("dispatch: queue worker is not configured")
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.Deliveries.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.observe(ctx, "dispatch.queue_dequeue", err, nil)
			continue
		}
		w.handle(ctx, delivery)
	}
}

func (w *QueueWorker) handle(ctx context.Context, delivery core.JobDelivery) {
	payload := delivery.Message()
	if payload == nil {
		delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "empty delivery"})
		return
	}

	workspaceID := stringParam(payload.Parameters, "workspace_id")
	messageID := stringParam(payload.Parameters, "message_id")
	ruleID := stringParam(payload.Parameters, "rule_id")
	if workspaceID == "" || messageID == "" || ruleID == "" {
		delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "missing identifiers"})
		return
	}

	msg, err := w.Messages.Get(ctx, workspaceID, messageID)
	if err != nil {
		// Deleted before the delay elapsed; the action is moot.
		w.observe(ctx, "dispatch.queue_load_message", err, map[string]any{
			"workspace_id": workspaceID,
			"message_id":   messageID,
		})
		delivery.Ack(ctx)
		return
	}

	rule, found, err := w.lookupRule(ctx, msg, ruleID)
	if err != nil {
		delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: 5 * time.Second, Reason: err.Error()})
		return
	}
	if !found {
		// Rule disabled or removed while the delay was pending.
		delivery.Ack(ctx)
		return
	}

	w.Fire(ctx, msg, core.MatchedRule{Rule: rule, MatchedOn: "delayed"})
	if err := delivery.Ack(ctx); err != nil {
		w.observe(ctx, "dispatch.queue_ack", err, map[string]any{
			"workspace_id": workspaceID,
			"message_id":   messageID,
			"rule_id":      ruleID,
		})
	}
}

func (w *QueueWorker) lookupRule(ctx context.Context, msg core.Message, ruleID string) (core.AutomationRule, bool, error) {
	snapshot, err := w.Rules.ListEnabled(ctx, msg.WorkspaceID, msg.AgentID)
	if err != nil {
		return core.AutomationRule{}, false, err
	}
	for _, rule := range snapshot {
		if rule.ID == ruleID {
			return rule, true, nil
		}
	}
	return core.AutomationRule{}, false, nil
}

func (w *QueueWorker) observe(ctx context.Context, operation string, err error, fields map[string]any) {
	if w == nil || w.Observer == nil {
		return
	}
	w.Observer.ObserveOperation(ctx, time.Now().UTC(), operation, err, fields)
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	switch value := params[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}
