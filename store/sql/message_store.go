// Package sqlstore implements the persistence contracts on bun. Postgres is
// the production dialect; SQLite backs tests and single-binary deployments.
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

type MessageStore struct {
	db   *bun.DB
	repo repository.Repository[*messageRecord]

	now func() time.Time
}

func NewMessageStore(db *bun.DB) (*MessageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*messageRecord](db, messageHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid message repository wiring: %w", err)
		}
	}
	return &MessageStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Upsert inserts the message, relying on the unique index over
// (workspace_id, channel, external_id); on a duplicate the stored row is
// returned untouched.
func (s *MessageStore) Upsert(ctx context.Context, msg core.Message) (core.Message, bool, error) {
	if s == nil || s.db == nil {
		return core.Message{}, false, fmt.Errorf("sqlstore: message store is not configured")
	}
	if err := msg.Validate(); err != nil {
		return core.Message{}, false, err
	}

	now := s.now()
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = core.MessageStatusNew
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now

	record := messageFromDomain(msg)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getByDedupKey(ctx, msg.WorkspaceID, msg.Channel, msg.ExternalID)
			if getErr != nil {
				return core.Message{}, false, getErr
			}
			return existing, false, nil
		}
		return core.Message{}, false, err
	}
	return messageToDomain(record), true, nil
}

func (s *MessageStore) Get(ctx context.Context, workspaceID string, messageID string) (core.Message, error) {
	if s == nil || s.db == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", strings.TrimSpace(messageID)),
		repository.SelectBy("workspace_id", "=", strings.TrimSpace(workspaceID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Message{}, err
	}
	if len(records) == 0 {
		return core.Message{}, core.ErrMessageNotFound
	}
	return messageToDomain(records[0]), nil
}

func (s *MessageStore) Query(ctx context.Context, workspaceID string, filter core.MessageFilter, page core.Pagination) ([]core.Message, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: message store is not configured")
	}
	page = page.Normalized()

	selectors := []repository.SelectCriteria{
		repository.SelectBy("workspace_id", "=", strings.TrimSpace(workspaceID)),
	}
	if filter.Status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", string(filter.Status)))
	}
	if filter.Channel != "" {
		selectors = append(selectors, repository.SelectBy("channel", "=", string(filter.Channel)))
	}
	if filter.AssignedEmployeeID != "" {
		selectors = append(selectors, repository.SelectBy("assigned_employee_id", "=", strings.TrimSpace(filter.AssignedEmployeeID)))
	}
	selectors = append(selectors,
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(page.Limit, page.Offset),
	)
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}

	messages := make([]core.Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, messageToDomain(record))
	}
	return messages, nil
}

// UpdateStatus only succeeds when the row still holds fromStatus; a zero
// row count means another handler transitioned the message first.
func (s *MessageStore) UpdateStatus(ctx context.Context, messageID string, fromStatus core.MessageStatus, toStatus core.MessageStatus) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: message store is not configured")
	}
	if !transitionAllowed(fromStatus, toStatus) {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidMessageStatusTransition, fromStatus, toStatus)
	}

	result, err := s.db.NewUpdate().
		Model((*messageRecord)(nil)).
		Set("status = ?", string(toStatus)).
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(messageID)).
		Where("status = ?", string(fromStatus)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidMessageStatusTransition, fromStatus, toStatus)
	}
	return nil
}

func (s *MessageStore) RecordAIResponse(ctx context.Context, messageID string, response string, confidence *float64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: message store is not configured")
	}
	query := s.db.NewUpdate().
		Model((*messageRecord)(nil)).
		Set("ai_response = ?", response).
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(messageID))
	if confidence != nil {
		query = query.Set("ai_confidence = ?", core.RoundConfidence(*confidence))
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrMessageNotFound
	}
	return nil
}

func (s *MessageStore) getByDedupKey(ctx context.Context, workspaceID string, channel core.Channel, externalID string) (core.Message, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("workspace_id", "=", strings.TrimSpace(workspaceID)),
		repository.SelectBy("channel", "=", string(channel)),
		repository.SelectBy("external_id", "=", strings.TrimSpace(externalID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Message{}, err
	}
	if len(records) == 0 {
		return core.Message{}, core.ErrMessageNotFound
	}
	return messageToDomain(records[0]), nil
}

func transitionAllowed(from, to core.MessageStatus) bool {
	probe := core.Message{Status: from}
	return probe.TransitionTo(to, time.Time{}) == nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.MessageStore = (*MessageStore)(nil)
