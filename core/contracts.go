package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// InboundRequest is the transport-neutral shape of one webhook delivery.
type InboundRequest struct {
	Channel  Channel
	Headers  map[string]string
	Query    map[string]string
	Body     []byte
	Metadata map[string]any
}

// InboundResult reports how a delivery was handled. Accepted deliveries ack
// with an empty body regardless of downstream automation outcome.
type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// MessageStore persists canonical messages. Every read and write is
// workspace scoped; there is no implicit current workspace.
type MessageStore interface {
	// Upsert enforces the (workspace_id, channel, external_id) uniqueness
	// with insert-or-ignore semantics: when the row already exists the
	// stored row is returned unmutated with wasNew=false.
	Upsert(ctx context.Context, msg Message) (stored Message, wasNew bool, err error)
	Get(ctx context.Context, workspaceID string, messageID string) (Message, error)
	Query(ctx context.Context, workspaceID string, filter MessageFilter, page Pagination) ([]Message, error)
	// UpdateStatus is a guarded transition: it fails when fromStatus does
	// not match the current row, catching races between concurrent handlers.
	UpdateStatus(ctx context.Context, messageID string, fromStatus MessageStatus, toStatus MessageStatus) error
	RecordAIResponse(ctx context.Context, messageID string, response string, confidence *float64) error
}

// RuleStore loads the enabled rule snapshot evaluated against a message.
// Rules are read-only to the pipeline.
type RuleStore interface {
	ListEnabled(ctx context.Context, workspaceID string, agentID string) ([]AutomationRule, error)
}

// RuleApplicationStore enforces at-most-once rule execution per message.
type RuleApplicationStore interface {
	// Claim records the (message, rule, action) key. claimed=false means a
	// prior execution already holds the key.
	Claim(ctx context.Context, app RuleApplication) (claimed bool, err error)
	MarkStatus(ctx context.Context, messageID string, ruleID string, action ActionType, status RuleApplicationStatus, cause string) error
	// HasSuccessfulReply reports whether any rule already produced a
	// successful reply within the conversation (auto_skip_replies input).
	HasSuccessfulReply(ctx context.Context, workspaceID string, conversationID string) (bool, error)
}

// EscalationStore owns the escalation queue rows. Claim is the only
// contended write and must be a conditional update on the unassigned row.
type EscalationStore interface {
	// Insert creates an entry unless an open entry already exists for the
	// message, in which case the existing entry is returned with
	// created=false.
	Insert(ctx context.Context, entry EscalationEntry) (stored EscalationEntry, created bool, err error)
	Get(ctx context.Context, entryID string) (EscalationEntry, error)
	OpenByMessage(ctx context.Context, workspaceID string, messageID string) (EscalationEntry, bool, error)
	// Claim sets assigned_employee_id iff it is currently unset.
	Claim(ctx context.Context, entryID string, employeeID string, claimedAt time.Time) (ok bool, err error)
	Close(ctx context.Context, entryID string, closedAt time.Time) error
	List(ctx context.Context, workspaceID string, onlyOpen bool, page Pagination) ([]EscalationEntry, error)
	CountAssigned(ctx context.Context, workspaceID string, employeeID string) (int, error)
}

// OutboundSender delivers a reply through a channel API. Implementations are
// owned by the channel-integration subsystem; the pipeline only retries per
// its own policy and never relies on sender-side retry semantics.
type OutboundSender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// AIResponder generates reply text with a [0,1] confidence estimate. Callers
// bound every invocation with an explicit timeout.
type AIResponder interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

// WorkspaceResolver maps a channel-native account or page id onto a
// workspace. Owned by the external account-connection subsystem.
type WorkspaceResolver interface {
	ResolveWorkspace(ctx context.Context, channel Channel, accountID string) (workspaceID string, err error)
}

// AssignmentStrategy selects the employee a freshly queued entry is routed
// to. The contract is intentionally open: round-robin and least-loaded ship
// with the module, deployments may plug their own.
type AssignmentStrategy interface {
	Next(ctx context.Context, workspaceID string) (employeeID string, err error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// JobExecutionMessage mirrors the go-job execution message so queue-backed
// scheduling (durable delayed actions, time triggers) stays adapter shaped.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}
