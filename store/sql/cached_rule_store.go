package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-inbox/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const ruleSnapshotCacheKeyPrefix = "go-inbox::rule_snapshot::v1"

// CachedRuleStore wraps a RuleStore with a read-through cache: rule
// snapshots are fetched on every message, change rarely, and staleness is
// bounded by the cache TTL. Invalidate is called by the admin surface after
// any rule write.
type CachedRuleStore struct {
	base  core.RuleStore
	cache repositorycache.CacheService
}

func NewCachedRuleStore(base core.RuleStore, cacheService repositorycache.CacheService) (*CachedRuleStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base rule store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: rule cache service is required")
	}
	return &CachedRuleStore{base: base, cache: cacheService}, nil
}

// RuleSnapshotCacheKey returns the deterministic cache key for a workspace's
// rule snapshot: go-inbox::rule_snapshot::v1::<workspace_id>::<agent_id>
// with each segment URL-path escaped.
func RuleSnapshotCacheKey(workspaceID string, agentID string) (string, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return "", fmt.Errorf("sqlstore: workspace id is required")
	}
	segments := []string{
		url.PathEscape(workspaceID),
		url.PathEscape(strings.TrimSpace(agentID)),
	}
	return strings.Join(append([]string{ruleSnapshotCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedRuleStore) ListEnabled(ctx context.Context, workspaceID string, agentID string) ([]core.AutomationRule, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached rule store is not configured")
	}
	cacheKey, err := RuleSnapshotCacheKey(workspaceID, agentID)
	if err != nil {
		return nil, err
	}

	rules, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) ([]core.AutomationRule, error) {
		fetched, fetchErr := s.base.ListEnabled(ctx, workspaceID, agentID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneRules(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneRules(rules), nil
}

// Invalidate drops the cached snapshot for a workspace/agent pair.
func (s *CachedRuleStore) Invalidate(ctx context.Context, workspaceID string, agentID string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached rule store is not configured")
	}
	cacheKey, err := RuleSnapshotCacheKey(workspaceID, agentID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneRules(rules []core.AutomationRule) []core.AutomationRule {
	cloned := make([]core.AutomationRule, len(rules))
	for i, rule := range rules {
		copied := rule
		copied.TriggerWords = append([]string(nil), rule.TriggerWords...)
		copied.TriggerPlatforms = append([]core.Channel(nil), rule.TriggerPlatforms...)
		cloned[i] = copied
	}
	return cloned
}

var _ core.RuleStore = (*CachedRuleStore)(nil)
