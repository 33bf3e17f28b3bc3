package command

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-inbox/core"
)

type stubEscalationService struct {
	enqueued  []EnqueueEscalationMessage
	claimed   []ClaimEscalationMessage
	resolved  []string
	escalated []string
	claimOK   bool
	err       error
}

func (s *stubEscalationService) Enqueue(_ context.Context, workspaceID, messageID, reason string) (core.EscalationEntry, error) {
	s.enqueued = append(s.enqueued, EnqueueEscalationMessage{WorkspaceID: workspaceID, MessageID: messageID, Reason: reason})
	if s.err != nil {
		return core.EscalationEntry{}, s.err
	}
	return core.EscalationEntry{ID: "entry-1", WorkspaceID: workspaceID, MessageID: messageID, Reason: reason}, nil
}

func (s *stubEscalationService) Claim(_ context.Context, entryID, employeeID string) (bool, error) {
	s.claimed = append(s.claimed, ClaimEscalationMessage{EntryID: entryID, EmployeeID: employeeID})
	return s.claimOK, s.err
}

func (s *stubEscalationService) Resolve(_ context.Context, entryID string) error {
	s.resolved = append(s.resolved, entryID)
	return s.err
}

func (s *stubEscalationService) Escalate(_ context.Context, entryID string) error {
	s.escalated = append(s.escalated, entryID)
	return s.err
}

type stubMessageMutator struct {
	calls []UpdateMessageStatusMessage
	err   error
}

func (s *stubMessageMutator) UpdateStatus(_ context.Context, messageID string, from, to core.MessageStatus) error {
	s.calls = append(s.calls, UpdateMessageStatusMessage{MessageID: messageID, FromStatus: from, ToStatus: to})
	return s.err
}

func TestEnqueueEscalationCommand(t *testing.T) {
	service := &stubEscalationService{}
	cmd := NewEnqueueEscalationCommand(service)

	msg := EnqueueEscalationMessage{WorkspaceID: "ws-1", MessageID: "msg-1", Reason: "no_rule_matched"}
	if err := cmd.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.enqueued) != 1 || service.enqueued[0] != msg {
		t.Fatalf("unexpected service call %+v", service.enqueued)
	}
}

func TestClaimEscalationCommand(t *testing.T) {
	service := &stubEscalationService{claimOK: true}
	cmd := NewClaimEscalationCommand(service)

	msg := ClaimEscalationMessage{EntryID: "entry-1", EmployeeID: "emp-1"}
	if err := cmd.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.claimed) != 1 || service.claimed[0] != msg {
		t.Fatalf("unexpected service call %+v", service.claimed)
	}
}

func TestResolveAndEscalateCommands(t *testing.T) {
	service := &stubEscalationService{}

	if err := NewResolveEscalationCommand(service).Execute(context.Background(), ResolveEscalationMessage{EntryID: "e-1"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := NewEscalateEscalationCommand(service).Execute(context.Background(), EscalateEscalationMessage{EntryID: "e-2"}); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if len(service.resolved) != 1 || service.resolved[0] != "e-1" {
		t.Fatalf("unexpected resolve calls %v", service.resolved)
	}
	if len(service.escalated) != 1 || service.escalated[0] != "e-2" {
		t.Fatalf("unexpected escalate calls %v", service.escalated)
	}
}

func TestUpdateMessageStatusCommand(t *testing.T) {
	mutator := &stubMessageMutator{}
	cmd := NewUpdateMessageStatusCommand(mutator)

	msg := UpdateMessageStatusMessage{
		MessageID:  "msg-1",
		FromStatus: core.MessageStatusQueued,
		ToStatus:   core.MessageStatusInProgress,
	}
	if err := cmd.Execute(context.Background(), msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(mutator.calls) != 1 || mutator.calls[0] != msg {
		t.Fatalf("unexpected mutator call %+v", mutator.calls)
	}
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	service := &stubEscalationService{err: errors.New("store offline")}
	if err := NewEnqueueEscalationCommand(service).Execute(context.Background(), EnqueueEscalationMessage{WorkspaceID: "ws-1", MessageID: "m-1"}); err == nil {
		t.Fatalf("expected service error surfaced")
	}
}

func TestCommands_RequireDependencies(t *testing.T) {
	if err := NewEnqueueEscalationCommand(nil).Execute(context.Background(), EnqueueEscalationMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil service")
	}
	if err := NewUpdateMessageStatusCommand(nil).Execute(context.Background(), UpdateMessageStatusMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil mutator")
	}
}

func TestCommandMessageValidation(t *testing.T) {
	if err := (EnqueueEscalationMessage{MessageID: "m-1"}).Validate(); err == nil {
		t.Fatalf("expected missing workspace id rejected")
	}
	if err := (ClaimEscalationMessage{EntryID: "e-1"}).Validate(); err == nil {
		t.Fatalf("expected missing employee id rejected")
	}
	if err := (ResolveEscalationMessage{}).Validate(); err == nil {
		t.Fatalf("expected missing entry id rejected")
	}
	if err := (UpdateMessageStatusMessage{MessageID: "m-1", FromStatus: core.MessageStatusNew}).Validate(); err == nil {
		t.Fatalf("expected missing target status rejected")
	}
	valid := UpdateMessageStatusMessage{
		MessageID:  "m-1",
		FromStatus: core.MessageStatusNew,
		ToStatus:   core.MessageStatusQueued,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
}
