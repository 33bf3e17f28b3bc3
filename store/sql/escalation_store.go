package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// EscalationStore owns the escalation queue rows. Claim is the contended
// write: a single conditional UPDATE arbitrates concurrent employees.
type EscalationStore struct {
	db   *bun.DB
	repo repository.Repository[*escalationEntryRecord]
}

func NewEscalationStore(db *bun.DB) (*EscalationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*escalationEntryRecord](db, escalationEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid escalation entry repository wiring: %w", err)
		}
	}
	return &EscalationStore{db: db, repo: repo}, nil
}

func (s *EscalationStore) Insert(ctx context.Context, entry core.EscalationEntry) (core.EscalationEntry, bool, error) {
	if s == nil || s.db == nil {
		return core.EscalationEntry{}, false, fmt.Errorf("sqlstore: escalation store is not configured")
	}

	existing, found, err := s.OpenByMessage(ctx, entry.WorkspaceID, entry.MessageID)
	if err != nil {
		return core.EscalationEntry{}, false, err
	}
	if found {
		return existing, false, nil
	}

	record := &escalationEntryRecord{
		ID:          entry.ID,
		MessageID:   strings.TrimSpace(entry.MessageID),
		WorkspaceID: strings.TrimSpace(entry.WorkspaceID),
		Reason:      strings.TrimSpace(entry.Reason),
		CreatedAt:   entry.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			// Lost the insert race to a concurrent enqueue of the same
			// message; return its entry.
			existing, found, getErr := s.OpenByMessage(ctx, entry.WorkspaceID, entry.MessageID)
			if getErr != nil {
				return core.EscalationEntry{}, false, getErr
			}
			if found {
				return existing, false, nil
			}
			return core.EscalationEntry{}, false, err
		}
		return core.EscalationEntry{}, false, err
	}
	return escalationEntryToDomain(record), true, nil
}

func (s *EscalationStore) Get(ctx context.Context, entryID string) (core.EscalationEntry, error) {
	if s == nil || s.db == nil {
		return core.EscalationEntry{}, fmt.Errorf("sqlstore: escalation store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", strings.TrimSpace(entryID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.EscalationEntry{}, err
	}
	if len(records) == 0 {
		return core.EscalationEntry{}, core.ErrEscalationEntryNotFound
	}
	return escalationEntryToDomain(records[0]), nil
}

func (s *EscalationStore) OpenByMessage(ctx context.Context, workspaceID string, messageID string) (core.EscalationEntry, bool, error) {
	if s == nil || s.db == nil {
		return core.EscalationEntry{}, false, fmt.Errorf("sqlstore: escalation store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("workspace_id", "=", strings.TrimSpace(workspaceID)),
		repository.SelectBy("message_id", "=", strings.TrimSpace(messageID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.closed_at IS NULL")
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.EscalationEntry{}, false, err
	}
	if len(records) == 0 {
		return core.EscalationEntry{}, false, nil
	}
	return escalationEntryToDomain(records[0]), true, nil
}

// Claim sets assigned_employee_id iff the row is still unassigned and open.
// Exactly one of N concurrent claimers observes rows affected = 1.
func (s *EscalationStore) Claim(ctx context.Context, entryID string, employeeID string, claimedAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: escalation store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*escalationEntryRecord)(nil)).
		Set("assigned_employee_id = ?", strings.TrimSpace(employeeID)).
		Set("claimed_at = ?", claimedAt.UTC()).
		Where("id = ?", strings.TrimSpace(entryID)).
		Where("assigned_employee_id IS NULL").
		Where("closed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *EscalationStore) Close(ctx context.Context, entryID string, closedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: escalation store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*escalationEntryRecord)(nil)).
		Set("closed_at = ?", closedAt.UTC()).
		Where("id = ?", strings.TrimSpace(entryID)).
		Where("closed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrEscalationEntryNotFound
	}
	return nil
}

func (s *EscalationStore) List(ctx context.Context, workspaceID string, onlyOpen bool, page core.Pagination) ([]core.EscalationEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: escalation store is not configured")
	}
	page = page.Normalized()

	selectors := []repository.SelectCriteria{
		repository.SelectBy("workspace_id", "=", strings.TrimSpace(workspaceID)),
	}
	if onlyOpen {
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.closed_at IS NULL")
		}))
	}
	selectors = append(selectors,
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(page.Limit, page.Offset),
	)
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}

	entries := make([]core.EscalationEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, escalationEntryToDomain(record))
	}
	return entries, nil
}

func (s *EscalationStore) CountAssigned(ctx context.Context, workspaceID string, employeeID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: escalation store is not configured")
	}
	return s.db.NewSelect().
		Model((*escalationEntryRecord)(nil)).
		Where("?TableAlias.workspace_id = ?", strings.TrimSpace(workspaceID)).
		Where("?TableAlias.assigned_employee_id = ?", strings.TrimSpace(employeeID)).
		Where("?TableAlias.closed_at IS NULL").
		Count(ctx)
}

var _ core.EscalationStore = (*EscalationStore)(nil)
