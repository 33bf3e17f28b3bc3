// Package inbox assembles the message ingestion and automation pipeline:
// webhook intake, rule evaluation, action dispatch, and the escalation
// queue, wired from a single configuration object.
package inbox

import (
	"fmt"

	"github.com/goliatone/go-inbox/adapters/gologger"
	"github.com/goliatone/go-inbox/channels"
	inboxcommand "github.com/goliatone/go-inbox/command"
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/dispatch"
	"github.com/goliatone/go-inbox/escalation"
	"github.com/goliatone/go-inbox/ingress"
	inboxquery "github.com/goliatone/go-inbox/query"
	job "github.com/goliatone/go-job"
)

// Dependencies carries the collaborators the pipeline does not own. Stores
// come from store/sql (or the in-memory variants); sender, responder, and
// resolver belong to neighboring subsystems.
type Dependencies struct {
	Messages     core.MessageStore
	Rules        core.RuleStore
	Applications core.RuleApplicationStore
	Escalations  core.EscalationStore

	Sender      core.OutboundSender
	Responder   core.AIResponder
	Resolver    core.WorkspaceResolver
	Strategy    core.AssignmentStrategy
	Credentials dispatch.CredentialSource

	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Metrics        core.MetricsRecorder

	// Queue enables durable delayed actions; nil keeps the in-process
	// timer scheduler.
	Queue      core.JobEnqueuer
	DelayJobID string
}

// Pipeline is the assembled ingestion system. Handler is ready to mount at
// /webhooks/{channel}.
type Pipeline struct {
	Gateway    *ingress.Gateway
	Handler    *ingress.WebhookHandler
	Dispatcher *dispatch.Dispatcher
	Scheduler  *dispatch.DelayedScheduler
	Manager    *escalation.Manager

	config core.Config
}

func NewPipeline(cfg core.Config, deps Dependencies) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Messages == nil {
		return nil, fmt.Errorf("inbox: message store is required")
	}
	if deps.Rules == nil {
		return nil, fmt.Errorf("inbox: rule store is required")
	}
	if deps.Applications == nil {
		return nil, fmt.Errorf("inbox: rule application store is required")
	}
	if deps.Escalations == nil {
		return nil, fmt.Errorf("inbox: escalation store is required")
	}
	if deps.Sender == nil {
		return nil, fmt.Errorf("inbox: outbound sender is required")
	}

	_, logger := gologger.Resolve("inbox", deps.LoggerProvider, deps.Logger)
	observer := core.NewObserver(logger, deps.Metrics)

	dispatcher := &dispatch.Dispatcher{
		Applications: deps.Applications,
		Messages:     deps.Messages,
		Sender:       deps.Sender,
		Responder:    deps.Responder,
		Credentials:  deps.Credentials,
		Retry: dispatch.RetryPolicy{
			MaxAttempts:    cfg.Dispatch.MaxSendAttempts,
			InitialBackoff: cfg.Dispatch.InitialBackoff,
			MaxBackoff:     cfg.Dispatch.MaxBackoff,
		},
		AITimeout: cfg.Dispatch.AIResponderTimeout,
		Observer:  observer,
	}

	manager := escalation.NewManager(deps.Escalations, deps.Messages, deps.Strategy)
	manager.Observer = observer

	scheduler := dispatch.NewDelayedScheduler()

	registry, err := channels.NewDefaultRegistry(cfg)
	if err != nil {
		return nil, err
	}

	gateway := ingress.NewGateway(
		registry,
		deps.Resolver,
		deps.Messages,
		deps.Rules,
		deps.Applications,
		dispatcher,
		manager,
	)
	gateway.Scheduler = scheduler
	gateway.Observer = observer
	gateway.ConfidenceThreshold = cfg.Escalation.ConfidenceThreshold

	return &Pipeline{
		Gateway:    gateway,
		Handler:    ingress.NewWebhookHandler(gateway),
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
		Manager:    manager,
		config:     cfg,
	}, nil
}

func (p *Pipeline) Config() core.Config {
	if p == nil {
		return core.Config{}
	}
	return p.config
}

// Close stops pending in-process delay timers.
func (p *Pipeline) Close() {
	if p == nil || p.Scheduler == nil {
		return
	}
	p.Scheduler.Close()
}

// DurableScheduler builds the queue-backed delay scheduler when a queue
// enqueuer was supplied.
func (p *Pipeline) DurableScheduler(deps Dependencies) (*dispatch.DurableScheduler, error) {
	if deps.Queue == nil {
		return nil, fmt.Errorf("inbox: job enqueuer is required for durable scheduling")
	}
	jobID := deps.DelayJobID
	if jobID == "" {
		jobID = "inbox.action.delayed"
	}
	return dispatch.NewDurableScheduler(deps.Queue, jobID), nil
}

// JobLogging resolves the go-job logger bridges for the durable scheduling
// runtime, using the same provider > logger > nop precedence the pipeline
// observer uses.
func JobLogging(deps Dependencies) (job.LoggerProvider, job.Logger) {
	_, _, jobProvider, jobLogger := gologger.ResolveForJob("inbox", deps.LoggerProvider, deps.Logger)
	return jobProvider, jobLogger
}

type Commands struct {
	EnqueueEscalation   *inboxcommand.EnqueueEscalationCommand
	ClaimEscalation     *inboxcommand.ClaimEscalationCommand
	ResolveEscalation   *inboxcommand.ResolveEscalationCommand
	EscalateEscalation  *inboxcommand.EscalateEscalationCommand
	UpdateMessageStatus *inboxcommand.UpdateMessageStatusCommand
}

type Queries struct {
	GetMessage           *inboxquery.GetMessageQuery
	ListMessages         *inboxquery.ListMessagesQuery
	ListQueue            *inboxquery.ListQueueQuery
	ListRuleApplications *inboxquery.ListRuleApplicationsQuery
}

type Facade struct {
	pipeline *Pipeline
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	applicationReader inboxquery.RuleApplicationReader
}

// WithRuleApplicationReader supplies the audit-trail reader; the SQL rule
// application store implements it.
func WithRuleApplicationReader(reader inboxquery.RuleApplicationReader) FacadeOption {
	return func(options *facadeOptions) {
		options.applicationReader = reader
	}
}

func NewFacade(pipeline *Pipeline, deps Dependencies, opts ...FacadeOption) (*Facade, error) {
	if pipeline == nil || pipeline.Manager == nil {
		return nil, fmt.Errorf("inbox: pipeline is required")
	}
	if deps.Messages == nil || deps.Escalations == nil {
		return nil, fmt.Errorf("inbox: message and escalation stores are required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.applicationReader == nil {
		if reader, ok := deps.Applications.(inboxquery.RuleApplicationReader); ok {
			cfg.applicationReader = reader
		}
	}

	facade := &Facade{pipeline: pipeline}
	facade.commands = Commands{
		EnqueueEscalation:   inboxcommand.NewEnqueueEscalationCommand(pipeline.Manager),
		ClaimEscalation:     inboxcommand.NewClaimEscalationCommand(pipeline.Manager),
		ResolveEscalation:   inboxcommand.NewResolveEscalationCommand(pipeline.Manager),
		EscalateEscalation:  inboxcommand.NewEscalateEscalationCommand(pipeline.Manager),
		UpdateMessageStatus: inboxcommand.NewUpdateMessageStatusCommand(deps.Messages),
	}
	facade.queries = Queries{
		GetMessage:           inboxquery.NewGetMessageQuery(deps.Messages),
		ListMessages:         inboxquery.NewListMessagesQuery(deps.Messages),
		ListQueue:            inboxquery.NewListQueueQuery(deps.Escalations),
		ListRuleApplications: inboxquery.NewListRuleApplicationsQuery(cfg.applicationReader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Pipeline() *Pipeline {
	if f == nil {
		return nil
	}
	return f.pipeline
}
