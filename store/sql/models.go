package sqlstore

import (
	"time"

	"github.com/goliatone/go-inbox/core"
	"github.com/uptrace/bun"
)

type messageRecord struct {
	bun.BaseModel `bun:"table:inbox_messages,alias:im"`

	ID                 string     `bun:"id,pk"`
	WorkspaceID        string     `bun:"workspace_id,notnull"`
	Channel            string     `bun:"channel,notnull"`
	ExternalID         string     `bun:"external_id,notnull"`
	ConversationID     string     `bun:"conversation_id"`
	SenderID           string     `bun:"sender_id"`
	SenderName         string     `bun:"sender_name"`
	Text               string     `bun:"text"`
	PostID             string     `bun:"post_id"`
	AgentID            string     `bun:"agent_id"`
	MessageType        string     `bun:"message_type,notnull"`
	Status             string     `bun:"status,notnull"`
	AIResponse         string     `bun:"ai_response"`
	AIConfidence       *float64   `bun:"ai_confidence,nullzero"`
	AssignedEmployeeID string     `bun:"assigned_employee_id"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt          *time.Time `bun:"deleted_at,soft_delete"`
}

type automationRuleRecord struct {
	bun.BaseModel `bun:"table:automation_rules,alias:ar"`

	ID                   string    `bun:"id,pk"`
	WorkspaceID          string    `bun:"workspace_id,notnull"`
	AgentID              string    `bun:"agent_id"`
	Enabled              bool      `bun:"enabled,notnull"`
	TriggerType          string    `bun:"trigger_type,notnull"`
	TriggerWords         []string  `bun:"trigger_words,type:jsonb"`
	TriggerPlatforms     []string  `bun:"trigger_platforms,type:jsonb"`
	ActionType           string    `bun:"action_type,notnull"`
	PrivateReplyTemplate string    `bun:"private_reply_template"`
	PublicReplyTemplate  string    `bun:"public_reply_template"`
	AutoSkipReplies      bool      `bun:"auto_skip_replies,notnull"`
	DelaySeconds         int       `bun:"delay_seconds,notnull"`
	CreatedAt            time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type ruleApplicationRecord struct {
	bun.BaseModel `bun:"table:rule_applications,alias:ra"`

	ID             string    `bun:"id,pk"`
	WorkspaceID    string    `bun:"workspace_id,notnull"`
	MessageID      string    `bun:"message_id,notnull"`
	ConversationID string    `bun:"conversation_id"`
	RuleID         string    `bun:"rule_id,notnull"`
	ActionType     string    `bun:"action_type,notnull"`
	Status         string    `bun:"status,notnull"`
	Error          string    `bun:"error"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type escalationEntryRecord struct {
	bun.BaseModel `bun:"table:escalation_queue,alias:eq"`

	ID                 string     `bun:"id,pk"`
	MessageID          string     `bun:"message_id,notnull"`
	WorkspaceID        string     `bun:"workspace_id,notnull"`
	Reason             string     `bun:"reason,notnull"`
	AssignedEmployeeID *string    `bun:"assigned_employee_id"`
	ClaimedAt          *time.Time `bun:"claimed_at,nullzero"`
	ClosedAt           *time.Time `bun:"closed_at,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func messageToDomain(record *messageRecord) core.Message {
	if record == nil {
		return core.Message{}
	}
	msg := core.Message{
		ID:                 record.ID,
		WorkspaceID:        record.WorkspaceID,
		Channel:            core.Channel(record.Channel),
		ExternalID:         record.ExternalID,
		ConversationID:     record.ConversationID,
		SenderID:           record.SenderID,
		SenderName:         record.SenderName,
		Text:               record.Text,
		PostID:             record.PostID,
		AgentID:            record.AgentID,
		Type:               core.MessageType(record.MessageType),
		Status:             core.MessageStatus(record.Status),
		AIResponse:         record.AIResponse,
		AssignedEmployeeID: record.AssignedEmployeeID,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
	if record.AIConfidence != nil {
		value := *record.AIConfidence
		msg.AIConfidence = &value
	}
	return msg
}

func messageFromDomain(msg core.Message) *messageRecord {
	record := &messageRecord{
		ID:                 msg.ID,
		WorkspaceID:        msg.WorkspaceID,
		Channel:            string(msg.Channel),
		ExternalID:         msg.ExternalID,
		ConversationID:     msg.ConversationID,
		SenderID:           msg.SenderID,
		SenderName:         msg.SenderName,
		Text:               msg.Text,
		PostID:             msg.PostID,
		AgentID:            msg.AgentID,
		MessageType:        string(msg.Type),
		Status:             string(msg.Status),
		AIResponse:         msg.AIResponse,
		AssignedEmployeeID: msg.AssignedEmployeeID,
		CreatedAt:          msg.CreatedAt,
		UpdatedAt:          msg.UpdatedAt,
	}
	if msg.AIConfidence != nil {
		value := *msg.AIConfidence
		record.AIConfidence = &value
	}
	return record
}

func ruleToDomain(record *automationRuleRecord) core.AutomationRule {
	if record == nil {
		return core.AutomationRule{}
	}
	rule := core.AutomationRule{
		ID:                   record.ID,
		WorkspaceID:          record.WorkspaceID,
		AgentID:              record.AgentID,
		Enabled:              record.Enabled,
		TriggerType:          core.TriggerType(record.TriggerType),
		TriggerWords:         append([]string(nil), record.TriggerWords...),
		ActionType:           core.ActionType(record.ActionType),
		PrivateReplyTemplate: record.PrivateReplyTemplate,
		PublicReplyTemplate:  record.PublicReplyTemplate,
		AutoSkipReplies:      record.AutoSkipReplies,
		DelaySeconds:         record.DelaySeconds,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
	}
	for _, platform := range record.TriggerPlatforms {
		rule.TriggerPlatforms = append(rule.TriggerPlatforms, core.Channel(platform))
	}
	return rule
}

func ruleApplicationToDomain(record *ruleApplicationRecord) core.RuleApplication {
	if record == nil {
		return core.RuleApplication{}
	}
	return core.RuleApplication{
		ID:             record.ID,
		WorkspaceID:    record.WorkspaceID,
		MessageID:      record.MessageID,
		ConversationID: record.ConversationID,
		RuleID:         record.RuleID,
		ActionType:     core.ActionType(record.ActionType),
		Status:         core.RuleApplicationStatus(record.Status),
		Error:          record.Error,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
}

func escalationEntryToDomain(record *escalationEntryRecord) core.EscalationEntry {
	if record == nil {
		return core.EscalationEntry{}
	}
	entry := core.EscalationEntry{
		ID:          record.ID,
		MessageID:   record.MessageID,
		WorkspaceID: record.WorkspaceID,
		Reason:      record.Reason,
		CreatedAt:   record.CreatedAt,
	}
	if record.AssignedEmployeeID != nil {
		entry.AssignedEmployeeID = *record.AssignedEmployeeID
	}
	if record.ClaimedAt != nil {
		value := *record.ClaimedAt
		entry.ClaimedAt = &value
	}
	if record.ClosedAt != nil {
		value := *record.ClosedAt
		entry.ClosedAt = &value
	}
	return entry
}
