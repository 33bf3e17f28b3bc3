package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RuleApplicationStore enforces at-most-once rule execution through the
// unique index over (message_id, rule_id, action_type).
type RuleApplicationStore struct {
	db   *bun.DB
	repo repository.Repository[*ruleApplicationRecord]

	now func() time.Time
}

func NewRuleApplicationStore(db *bun.DB) (*RuleApplicationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ruleApplicationRecord](db, ruleApplicationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rule application repository wiring: %w", err)
		}
	}
	return &RuleApplicationStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Claim records the execution key. claimed=false means a prior execution
// already holds it, so the caller must not re-run the action.
func (s *RuleApplicationStore) Claim(ctx context.Context, app core.RuleApplication) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: rule application store is not configured")
	}
	if strings.TrimSpace(app.MessageID) == "" || strings.TrimSpace(app.RuleID) == "" {
		return false, fmt.Errorf("sqlstore: message id and rule id are required")
	}

	now := s.now()
	if strings.TrimSpace(app.ID) == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = core.RuleApplicationStatusApplied
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	record := &ruleApplicationRecord{
		ID:             app.ID,
		WorkspaceID:    strings.TrimSpace(app.WorkspaceID),
		MessageID:      strings.TrimSpace(app.MessageID),
		ConversationID: strings.TrimSpace(app.ConversationID),
		RuleID:         strings.TrimSpace(app.RuleID),
		ActionType:     string(app.ActionType),
		Status:         string(app.Status),
		Error:          app.Error,
		CreatedAt:      app.CreatedAt,
		UpdatedAt:      app.UpdatedAt,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *RuleApplicationStore) MarkStatus(ctx context.Context, messageID string, ruleID string, action core.ActionType, status core.RuleApplicationStatus, cause string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rule application store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*ruleApplicationRecord)(nil)).
		Set("status = ?", string(status)).
		Set("error = ?", cause).
		Set("updated_at = ?", s.now()).
		Where("message_id = ?", strings.TrimSpace(messageID)).
		Where("rule_id = ?", strings.TrimSpace(ruleID)).
		Where("action_type = ?", string(action)).
		Exec(ctx)
	return err
}

func (s *RuleApplicationStore) HasSuccessfulReply(ctx context.Context, workspaceID string, conversationID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: rule application store is not configured")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return false, nil
	}
	count, err := s.db.NewSelect().
		Model((*ruleApplicationRecord)(nil)).
		Where("?TableAlias.workspace_id = ?", strings.TrimSpace(workspaceID)).
		Where("?TableAlias.conversation_id = ?", conversationID).
		Where("?TableAlias.status = ?", string(core.RuleApplicationStatusApplied)).
		Where("?TableAlias.action_type IN (?)", bun.In([]string{
			string(core.ActionTypeSendDM),
			string(core.ActionTypeSendPublicReply),
		})).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByMessage returns the audit trail of rule executions for a message.
func (s *RuleApplicationStore) ListByMessage(ctx context.Context, workspaceID string, messageID string) ([]core.RuleApplication, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: rule application store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("workspace_id", "=", strings.TrimSpace(workspaceID)),
		repository.SelectBy("message_id", "=", strings.TrimSpace(messageID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	applications := make([]core.RuleApplication, 0, len(records))
	for _, record := range records {
		applications = append(applications, ruleApplicationToDomain(record))
	}
	return applications, nil
}

var _ core.RuleApplicationStore = (*RuleApplicationStore)(nil)
