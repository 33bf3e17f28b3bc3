package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RuleStore reads the automation rule snapshot. Rules are written by the
// admin surface; this store is read-only on purpose.
type RuleStore struct {
	db   *bun.DB
	repo repository.Repository[*automationRuleRecord]
}

func NewRuleStore(db *bun.DB) (*RuleStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*automationRuleRecord](db, ruleHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid automation rule repository wiring: %w", err)
		}
	}
	return &RuleStore{db: db, repo: repo}, nil
}

// ListEnabled returns enabled rules for the workspace, optionally narrowed
// to an agent, ordered by creation time ascending.
func (s *RuleStore) ListEnabled(ctx context.Context, workspaceID string, agentID string) ([]core.AutomationRule, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: rule store is not configured")
	}
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, fmt.Errorf("sqlstore: workspace id is required")
	}

	selectors := []repository.SelectCriteria{
		repository.SelectBy("workspace_id", "=", workspaceID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.enabled = ?", true)
		}),
	}
	if agentID = strings.TrimSpace(agentID); agentID != "" {
		selectors = append(selectors, repository.SelectBy("agent_id", "=", agentID))
	}
	selectors = append(selectors, repository.OrderBy("created_at ASC"))
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}

	rules := make([]core.AutomationRule, 0, len(records))
	for _, record := range records {
		rules = append(rules, ruleToDomain(record))
	}
	return rules, nil
}

var _ core.RuleStore = (*RuleStore)(nil)
