package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inbox/core"
)

// InMemoryRuleApplicationStore backs tests and single-process deployments.
// The SQL-backed store in store/sql is the production implementation.
type InMemoryRuleApplicationStore struct {
	mu      sync.Mutex
	entries map[string]core.RuleApplication
	Now     func() time.Time
}

func NewInMemoryRuleApplicationStore() *InMemoryRuleApplicationStore {
	return &InMemoryRuleApplicationStore{
		entries: map[string]core.RuleApplication{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *InMemoryRuleApplicationStore) Claim(_ context.Context, app core.RuleApplication) (bool, error) {
	if s == nil {
		return false, dispatchInternal("dispatch: rule application store is nil")
	}
	key := app.Key()
	if strings.TrimSpace(app.MessageID) == "" || strings.TrimSpace(app.RuleID) == "" {
		return false, dispatchInternal("dispatch: rule application requires message and rule ids")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; exists {
		return false, nil
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = s.now()
	}
	app.UpdatedAt = app.CreatedAt
	s.entries[key] = app
	return true, nil
}

func (s *InMemoryRuleApplicationStore) MarkStatus(
	_ context.Context,
	messageID string,
	ruleID string,
	action core.ActionType,
	status core.RuleApplicationStatus,
	cause string,
) error {
	if s == nil {
		return dispatchInternal("dispatch: rule application store is nil")
	}
	key := core.RuleApplication{MessageID: messageID, RuleID: ruleID, ActionType: action}.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.entries[key]
	if !exists {
		return nil
	}
	entry.Status = status
	entry.Error = strings.TrimSpace(cause)
	entry.UpdatedAt = s.now()
	s.entries[key] = entry
	return nil
}

func (s *InMemoryRuleApplicationStore) HasSuccessfulReply(
	_ context.Context,
	workspaceID string,
	conversationID string,
) (bool, error) {
	if s == nil {
		return false, dispatchInternal("dispatch: rule application store is nil")
	}
	workspaceID = strings.TrimSpace(workspaceID)
	conversationID = strings.TrimSpace(conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.Status != core.RuleApplicationStatusApplied {
			continue
		}
		if strings.TrimSpace(entry.WorkspaceID) == workspaceID &&
			strings.TrimSpace(entry.ConversationID) == conversationID {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the stored application for a key, primarily for tests.
func (s *InMemoryRuleApplicationStore) Get(messageID string, ruleID string, action core.ActionType) (core.RuleApplication, bool) {
	if s == nil {
		return core.RuleApplication{}, false
	}
	key := core.RuleApplication{MessageID: messageID, RuleID: ruleID, ActionType: action}.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok
}

func (s *InMemoryRuleApplicationStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.RuleApplicationStore = (*InMemoryRuleApplicationStore)(nil)
