// Package command exposes the pipeline's mutating operations as go-command
// handlers so hosts can route them through their dispatcher, middleware, and
// result collection.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inbox/core"
)

// EscalationService is the mutating surface of the escalation queue.
type EscalationService interface {
	Enqueue(ctx context.Context, workspaceID string, messageID string, reason string) (core.EscalationEntry, error)
	Claim(ctx context.Context, entryID string, employeeID string) (bool, error)
	Resolve(ctx context.Context, entryID string) error
	Escalate(ctx context.Context, entryID string) error
}

type MessageMutator interface {
	UpdateStatus(ctx context.Context, messageID string, fromStatus core.MessageStatus, toStatus core.MessageStatus) error
}

type EnqueueEscalationCommand struct {
	service EscalationService
}

func NewEnqueueEscalationCommand(service EscalationService) *EnqueueEscalationCommand {
	return &EnqueueEscalationCommand{service: service}
}

func (c *EnqueueEscalationCommand) Execute(ctx context.Context, msg EnqueueEscalationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: escalation service is required")
	}
	out, err := c.service.Enqueue(ctx, msg.WorkspaceID, msg.MessageID, msg.Reason)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ClaimEscalationCommand struct {
	service EscalationService
}

func NewClaimEscalationCommand(service EscalationService) *ClaimEscalationCommand {
	return &ClaimEscalationCommand{service: service}
}

func (c *ClaimEscalationCommand) Execute(ctx context.Context, msg ClaimEscalationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: escalation service is required")
	}
	claimed, err := c.service.Claim(ctx, msg.EntryID, msg.EmployeeID)
	if err != nil {
		return err
	}
	storeResult(ctx, claimed)
	return nil
}

type ResolveEscalationCommand struct {
	service EscalationService
}

func NewResolveEscalationCommand(service EscalationService) *ResolveEscalationCommand {
	return &ResolveEscalationCommand{service: service}
}

func (c *ResolveEscalationCommand) Execute(ctx context.Context, msg ResolveEscalationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: escalation service is required")
	}
	return c.service.Resolve(ctx, msg.EntryID)
}

type EscalateEscalationCommand struct {
	service EscalationService
}

func NewEscalateEscalationCommand(service EscalationService) *EscalateEscalationCommand {
	return &EscalateEscalationCommand{service: service}
}

func (c *EscalateEscalationCommand) Execute(ctx context.Context, msg EscalateEscalationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: escalation service is required")
	}
	return c.service.Escalate(ctx, msg.EntryID)
}

type UpdateMessageStatusCommand struct {
	messages MessageMutator
}

func NewUpdateMessageStatusCommand(messages MessageMutator) *UpdateMessageStatusCommand {
	return &UpdateMessageStatusCommand{messages: messages}
}

func (c *UpdateMessageStatusCommand) Execute(ctx context.Context, msg UpdateMessageStatusMessage) error {
	if c == nil || c.messages == nil {
		return commandDependencyError("command: message mutator is required")
	}
	return c.messages.UpdateStatus(ctx, msg.MessageID, msg.FromStatus, msg.ToStatus)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
