package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

const (
	TypeEnqueueEscalation   = "inbox.command.escalation.enqueue"
	TypeClaimEscalation     = "inbox.command.escalation.claim"
	TypeResolveEscalation   = "inbox.command.escalation.resolve"
	TypeEscalateEscalation  = "inbox.command.escalation.escalate"
	TypeUpdateMessageStatus = "inbox.command.message.update_status"
)

type EnqueueEscalationMessage struct {
	WorkspaceID string
	MessageID   string
	Reason      string
}

func (EnqueueEscalationMessage) Type() string { return TypeEnqueueEscalation }

func (m EnqueueEscalationMessage) Validate() error {
	if strings.TrimSpace(m.WorkspaceID) == "" {
		return fmt.Errorf("command: workspace id is required")
	}
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("command: message id is required")
	}
	return nil
}

type ClaimEscalationMessage struct {
	EntryID    string
	EmployeeID string
}

func (ClaimEscalationMessage) Type() string { return TypeClaimEscalation }

func (m ClaimEscalationMessage) Validate() error {
	if strings.TrimSpace(m.EntryID) == "" {
		return fmt.Errorf("command: entry id is required")
	}
	if strings.TrimSpace(m.EmployeeID) == "" {
		return fmt.Errorf("command: employee id is required")
	}
	return nil
}

type ResolveEscalationMessage struct {
	EntryID string
}

func (ResolveEscalationMessage) Type() string { return TypeResolveEscalation }

func (m ResolveEscalationMessage) Validate() error {
	if strings.TrimSpace(m.EntryID) == "" {
		return fmt.Errorf("command: entry id is required")
	}
	return nil
}

type EscalateEscalationMessage struct {
	EntryID string
}

func (EscalateEscalationMessage) Type() string { return TypeEscalateEscalation }

func (m EscalateEscalationMessage) Validate() error {
	if strings.TrimSpace(m.EntryID) == "" {
		return fmt.Errorf("command: entry id is required")
	}
	return nil
}

type UpdateMessageStatusMessage struct {
	MessageID  string
	FromStatus core.MessageStatus
	ToStatus   core.MessageStatus
}

func (UpdateMessageStatusMessage) Type() string { return TypeUpdateMessageStatus }

func (m UpdateMessageStatusMessage) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("command: message id is required")
	}
	if m.FromStatus == "" || m.ToStatus == "" {
		return fmt.Errorf("command: from and to statuses are required")
	}
	return nil
}
