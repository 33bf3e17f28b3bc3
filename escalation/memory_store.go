package escalation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inbox/core"
)

// InMemoryEscalationStore backs tests and single-process deployments; the
// claim path mirrors the SQL store's conditional update.
type InMemoryEscalationStore struct {
	mu      sync.Mutex
	entries map[string]core.EscalationEntry
	order   []string
}

func NewInMemoryEscalationStore() *InMemoryEscalationStore {
	return &InMemoryEscalationStore{entries: map[string]core.EscalationEntry{}}
}

func (s *InMemoryEscalationStore) Insert(_ context.Context, entry core.EscalationEntry) (core.EscalationEntry, bool, error) {
	if s == nil {
		return core.EscalationEntry{}, false, escalationInternal("escalation: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.Open() &&
			existing.WorkspaceID == entry.WorkspaceID &&
			existing.MessageID == entry.MessageID {
			return existing, false, nil
		}
	}
	s.entries[entry.ID] = entry
	s.order = append(s.order, entry.ID)
	return entry, true, nil
}

func (s *InMemoryEscalationStore) Get(_ context.Context, entryID string) (core.EscalationEntry, error) {
	if s == nil {
		return core.EscalationEntry{}, escalationInternal("escalation: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(entryID)]
	if !ok {
		return core.EscalationEntry{}, core.ErrEscalationEntryNotFound
	}
	return entry, nil
}

func (s *InMemoryEscalationStore) OpenByMessage(_ context.Context, workspaceID string, messageID string) (core.EscalationEntry, bool, error) {
	if s == nil {
		return core.EscalationEntry{}, false, escalationInternal("escalation: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.Open() &&
			entry.WorkspaceID == strings.TrimSpace(workspaceID) &&
			entry.MessageID == strings.TrimSpace(messageID) {
			return entry, true, nil
		}
	}
	return core.EscalationEntry{}, false, nil
}

func (s *InMemoryEscalationStore) Claim(_ context.Context, entryID string, employeeID string, claimedAt time.Time) (bool, error) {
	if s == nil {
		return false, escalationInternal("escalation: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(entryID)]
	if !ok {
		return false, core.ErrEscalationEntryNotFound
	}
	if entry.Claimed() || !entry.Open() {
		return false, nil
	}
	entry.AssignedEmployeeID = strings.TrimSpace(employeeID)
	at := claimedAt.UTC()
	entry.ClaimedAt = &at
	s.entries[entry.ID] = entry
	return true, nil
}

func (s *InMemoryEscalationStore) Close(_ context.Context, entryID string, closedAt time.Time) error {
	if s == nil {
		return escalationInternal("escalation: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(entryID)]
	if !ok {
		return core.ErrEscalationEntryNotFound
	}
	at := closedAt.UTC()
	entry.ClosedAt = &at
	s.entries[entry.ID] = entry
	return nil
}

func (s *InMemoryEscalationStore) List(_ context.Context, workspaceID string, onlyOpen bool, page core.Pagination) ([]core.EscalationEntry, error) {
	if s == nil {
		return nil, escalationInternal("escalation: store is nil")
	}
	page = page.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]core.EscalationEntry, 0)
	for _, id := range s.order {
		entry := s.entries[id]
		if entry.WorkspaceID != strings.TrimSpace(workspaceID) {
			continue
		}
		if onlyOpen && !entry.Open() {
			continue
		}
		matched = append(matched, entry)
	}
	if page.Offset >= len(matched) {
		return []core.EscalationEntry{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Offset:end], nil
}

func (s *InMemoryEscalationStore) CountAssigned(_ context.Context, workspaceID string, employeeID string) (int, error) {
	if s == nil {
		return 0, escalationInternal("escalation: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.entries {
		if entry.Open() &&
			entry.WorkspaceID == strings.TrimSpace(workspaceID) &&
			entry.AssignedEmployeeID == strings.TrimSpace(employeeID) {
			count++
		}
	}
	return count, nil
}

var _ core.EscalationStore = (*InMemoryEscalationStore)(nil)
