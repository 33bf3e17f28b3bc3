package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

const (
	TypeGetMessage           = "inbox.query.message.get"
	TypeListMessages         = "inbox.query.message.list"
	TypeListQueue            = "inbox.query.escalation.list"
	TypeListRuleApplications = "inbox.query.rule_application.list"
)

type GetMessageMessage struct {
	WorkspaceID string
	MessageID   string
}

func (GetMessageMessage) Type() string { return TypeGetMessage }

func (m GetMessageMessage) Validate() error {
	if strings.TrimSpace(m.WorkspaceID) == "" {
		return fmt.Errorf("query: workspace id is required")
	}
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("query: message id is required")
	}
	return nil
}

type ListMessagesMessage struct {
	WorkspaceID string
	Filter      core.MessageFilter
	Page        core.Pagination
}

func (ListMessagesMessage) Type() string { return TypeListMessages }

func (m ListMessagesMessage) Validate() error {
	if strings.TrimSpace(m.WorkspaceID) == "" {
		return fmt.Errorf("query: workspace id is required")
	}
	if m.Page.Offset < 0 {
		return fmt.Errorf("query: offset must be >= 0")
	}
	return nil
}

type ListQueueMessage struct {
	WorkspaceID string
	OnlyOpen    bool
	Page        core.Pagination
}

func (ListQueueMessage) Type() string { return TypeListQueue }

func (m ListQueueMessage) Validate() error {
	if strings.TrimSpace(m.WorkspaceID) == "" {
		return fmt.Errorf("query: workspace id is required")
	}
	if m.Page.Offset < 0 {
		return fmt.Errorf("query: offset must be >= 0")
	}
	return nil
}

type ListRuleApplicationsMessage struct {
	WorkspaceID string
	MessageID   string
}

func (ListRuleApplicationsMessage) Type() string { return TypeListRuleApplications }

func (m ListRuleApplicationsMessage) Validate() error {
	if strings.TrimSpace(m.WorkspaceID) == "" {
		return fmt.Errorf("query: workspace id is required")
	}
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("query: message id is required")
	}
	return nil
}
