package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrInvalidChannel                 = errors.New("core: invalid channel")
	ErrInvalidMessageType             = errors.New("core: invalid message type")
	ErrInvalidMessageStatusTransition = errors.New("core: invalid message status transition")
	ErrMessageNotFound                = errors.New("core: message not found")
	ErrEscalationEntryNotFound        = errors.New("core: escalation entry not found")
)

type Channel string

const (
	ChannelFacebook    Channel = "facebook"
	ChannelInstagram   Channel = "instagram"
	ChannelWhatsApp    Channel = "whatsapp"
	ChannelWebsiteForm Channel = "website_form"
)

func ParseChannel(value string) (Channel, error) {
	switch Channel(strings.TrimSpace(strings.ToLower(value))) {
	case ChannelFacebook:
		return ChannelFacebook, nil
	case ChannelInstagram:
		return ChannelInstagram, nil
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	case ChannelWebsiteForm:
		return ChannelWebsiteForm, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidChannel, value)
	}
}

type MessageType string

const (
	MessageTypeComment MessageType = "comment"
	MessageTypeDM      MessageType = "dm"
	MessageTypeForm    MessageType = "form"
)

type MessageStatus string

const (
	MessageStatusNew        MessageStatus = "new"
	MessageStatusInProgress MessageStatus = "in_progress"
	MessageStatusQueued     MessageStatus = "queued"
	MessageStatusEscalated  MessageStatus = "escalated"
	MessageStatusCompleted  MessageStatus = "completed"
)

// Message is the canonical representation of an inbound customer
// interaction, independent of the source channel.
type Message struct {
	ID                 string
	WorkspaceID        string
	Channel            Channel
	ExternalID         string
	ConversationID     string
	SenderID           string
	SenderName         string
	Text               string
	PostID             string
	AgentID            string
	Type               MessageType
	Status             MessageStatus
	AIResponse         string
	AIConfidence       *float64
	AssignedEmployeeID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.WorkspaceID) == "" {
		return fmt.Errorf("core: message workspace id is required")
	}
	if _, err := ParseChannel(string(m.Channel)); err != nil {
		return err
	}
	if strings.TrimSpace(m.ExternalID) == "" {
		return fmt.Errorf("core: message external id is required")
	}
	switch m.Type {
	case MessageTypeComment, MessageTypeDM, MessageTypeForm:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMessageType, m.Type)
	}
	return nil
}

// DedupKey is the uniqueness key enforced by the message store: duplicate
// delivery of the same channel event must not create a second row.
func (m Message) DedupKey() string {
	return strings.Join([]string{
		strings.TrimSpace(m.WorkspaceID),
		string(m.Channel),
		strings.TrimSpace(m.ExternalID),
	}, "::")
}

func (m *Message) TransitionTo(status MessageStatus, now time.Time) error {
	if m == nil {
		return nil
	}
	if m.Status == status {
		m.UpdatedAt = now
		return nil
	}
	if !messageTransitionAllowed(m.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidMessageStatusTransition, m.Status, status)
	}
	m.Status = status
	m.UpdatedAt = now
	return nil
}

func messageTransitionAllowed(current, next MessageStatus) bool {
	allowed := map[MessageStatus]map[MessageStatus]struct{}{
		MessageStatusNew: {
			MessageStatusQueued:    {},
			MessageStatusCompleted: {},
		},
		MessageStatusQueued: {
			MessageStatusInProgress: {},
		},
		MessageStatusInProgress: {
			MessageStatusCompleted: {},
			MessageStatusEscalated: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// RoundConfidence normalizes an AI confidence score to the stored 2-decimal
// precision, clamped to [0, 1].
func RoundConfidence(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return math.Round(value*100) / 100
}

type TriggerType string

const (
	TriggerTypeComment TriggerType = "comment"
	TriggerTypeKeyword TriggerType = "keyword"
	TriggerTypeTime    TriggerType = "time"
	TriggerTypeManual  TriggerType = "manual"
)

type ActionType string

const (
	ActionTypeSendDM          ActionType = "send_dm"
	ActionTypeSendPublicReply ActionType = "send_public_reply"
	ActionTypeSendEmail       ActionType = "send_email"
	ActionTypeSendWebhook     ActionType = "send_webhook"
)

// AutomationRule is admin authored and read-only to the pipeline; rule
// lifecycle is owned by the external admin surface.
type AutomationRule struct {
	ID                   string
	WorkspaceID          string
	AgentID              string
	Enabled              bool
	TriggerType          TriggerType
	TriggerWords         []string
	TriggerPlatforms     []Channel
	ActionType           ActionType
	PrivateReplyTemplate string
	PublicReplyTemplate  string
	AutoSkipReplies      bool
	DelaySeconds         int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (r AutomationRule) TriggerSupported() bool {
	switch r.TriggerType {
	case TriggerTypeComment, TriggerTypeKeyword, TriggerTypeTime, TriggerTypeManual:
		return true
	default:
		return false
	}
}

func (r AutomationRule) ActionSupported() bool {
	switch r.ActionType {
	case ActionTypeSendDM, ActionTypeSendPublicReply, ActionTypeSendEmail, ActionTypeSendWebhook:
		return true
	default:
		return false
	}
}

// Template resolves the reply template for the rule's action type.
func (r AutomationRule) Template() string {
	switch r.ActionType {
	case ActionTypeSendPublicReply:
		return r.PublicReplyTemplate
	default:
		return r.PrivateReplyTemplate
	}
}

type MatchedRule struct {
	Rule      AutomationRule
	MatchedOn string
}

type RuleApplicationStatus string

const (
	RuleApplicationStatusApplied RuleApplicationStatus = "applied"
	RuleApplicationStatusSkipped RuleApplicationStatus = "skipped"
	RuleApplicationStatusFailed  RuleApplicationStatus = "failed"
)

// RuleApplication marks that a rule has fired (or conclusively failed) for a
// message; it enforces at-most-once execution per (message, rule, action)
// and doubles as the automation audit record.
type RuleApplication struct {
	ID             string
	WorkspaceID    string
	MessageID      string
	ConversationID string
	RuleID         string
	ActionType     ActionType
	Status         RuleApplicationStatus
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a RuleApplication) Key() string {
	return strings.Join([]string{
		strings.TrimSpace(a.MessageID),
		strings.TrimSpace(a.RuleID),
		string(a.ActionType),
	}, "::")
}

// EscalationEntry is a message awaiting human handling. An entry is open
// until an employee claims and later resolves it.
type EscalationEntry struct {
	ID                 string
	MessageID          string
	WorkspaceID        string
	Reason             string
	AssignedEmployeeID string
	ClaimedAt          *time.Time
	ClosedAt           *time.Time
	CreatedAt          time.Time
}

func (e EscalationEntry) Open() bool {
	return e.ClosedAt == nil
}

func (e EscalationEntry) Claimed() bool {
	return strings.TrimSpace(e.AssignedEmployeeID) != ""
}

type ActionResult struct {
	OK             bool
	Sent           bool
	AlreadyApplied bool
	Attempts       int
	ResponseText   string
	Confidence     *float64
	Err            error
}

type SendRequest struct {
	Channel     Channel
	RecipientID string
	Text        string
	Credentials map[string]string
}

type SendResult struct {
	Success   bool
	MessageID string
}

type GenerateRequest struct {
	WorkspaceID    string
	ConversationID string
	MessageText    string
	Template       string
}

type GenerateResult struct {
	Text       string
	Confidence float64
}

type MessageFilter struct {
	Status             MessageStatus
	Channel            Channel
	AssignedEmployeeID string
}

type Pagination struct {
	Limit  int
	Offset int
}

func (p Pagination) Normalized() Pagination {
	out := p
	if out.Limit <= 0 {
		out.Limit = 50
	}
	if out.Limit > 500 {
		out.Limit = 500
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}
