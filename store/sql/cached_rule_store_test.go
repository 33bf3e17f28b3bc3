package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-inbox/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubRuleStore struct {
	mu        sync.Mutex
	rules     []core.AutomationRule
	listCalls int
	listErr   error
}

func (s *stubRuleStore) ListEnabled(_ context.Context, _ string, _ string) ([]core.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]core.AutomationRule(nil), s.rules...), nil
}

func (s *stubRuleStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func TestCachedRuleStore_ListEnabled_MissFetchThenHit(t *testing.T) {
	cacheService := newTestRuleCacheService(t)
	base := &stubRuleStore{
		rules: []core.AutomationRule{{
			ID:           "rule-1",
			WorkspaceID:  "ws-1",
			Enabled:      true,
			TriggerType:  core.TriggerTypeKeyword,
			TriggerWords: []string{"pricing"},
			ActionType:   core.ActionTypeSendDM,
		}},
	}

	store, err := NewCachedRuleStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached rule store: %v", err)
	}

	rules, err := store.ListEnabled(context.Background(), "ws-1", "")
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "rule-1" {
		t.Fatalf("unexpected snapshot: %+v", rules)
	}
	if base.calls() != 1 {
		t.Fatalf("expected first list to fetch the base store once, got %d", base.calls())
	}

	if _, err := store.ListEnabled(context.Background(), "ws-1", ""); err != nil {
		t.Fatalf("second list: %v", err)
	}
	if base.calls() != 1 {
		t.Fatalf("expected second list to be a cache hit, base calls=%d", base.calls())
	}
}

func TestCachedRuleStore_InvalidateForcesRefetch(t *testing.T) {
	cacheService := newTestRuleCacheService(t)
	base := &stubRuleStore{
		rules: []core.AutomationRule{{ID: "rule-1", WorkspaceID: "ws-1", Enabled: true}},
	}

	store, err := NewCachedRuleStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached rule store: %v", err)
	}

	if _, err := store.ListEnabled(context.Background(), "ws-1", "agent-1"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if base.calls() != 1 {
		t.Fatalf("expected one base read after priming, got %d", base.calls())
	}

	if err := store.Invalidate(context.Background(), "ws-1", "agent-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	if _, err := store.ListEnabled(context.Background(), "ws-1", "agent-1"); err != nil {
		t.Fatalf("list after invalidation: %v", err)
	}
	if base.calls() != 2 {
		t.Fatalf("expected invalidated key to force a second base read, got %d", base.calls())
	}
}

func TestCachedRuleStore_SnapshotIsIsolatedFromCallers(t *testing.T) {
	cacheService := newTestRuleCacheService(t)
	base := &stubRuleStore{
		rules: []core.AutomationRule{{
			ID:           "rule-1",
			WorkspaceID:  "ws-1",
			Enabled:      true,
			TriggerWords: []string{"pricing"},
		}},
	}

	store, err := NewCachedRuleStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached rule store: %v", err)
	}

	first, err := store.ListEnabled(context.Background(), "ws-1", "")
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	first[0].TriggerWords[0] = "mutated"

	second, err := store.ListEnabled(context.Background(), "ws-1", "")
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if second[0].TriggerWords[0] != "pricing" {
		t.Fatalf("cached snapshot leaked caller mutation: %+v", second[0].TriggerWords)
	}
}

func TestCachedRuleStore_PropagatesBaseErrors(t *testing.T) {
	cacheService := newTestRuleCacheService(t)
	baseErr := errors.New("rule table unavailable")
	base := &stubRuleStore{listErr: baseErr}

	store, err := NewCachedRuleStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached rule store: %v", err)
	}

	if _, err := store.ListEnabled(context.Background(), "ws-1", ""); !errors.Is(err, baseErr) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func newTestRuleCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
