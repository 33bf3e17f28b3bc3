package ingress

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inbox/core"
	"github.com/google/uuid"
)

// InMemoryMessageStore backs tests and single-process deployments; the SQL
// store under store/sql is the production implementation.
type InMemoryMessageStore struct {
	mu       sync.Mutex
	byID     map[string]core.Message
	byDedup  map[string]string
	ordering []string

	Now func() time.Time
}

func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{
		byID:    map[string]core.Message{},
		byDedup: map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *InMemoryMessageStore) Upsert(_ context.Context, msg core.Message) (core.Message, bool, error) {
	if s == nil {
		return core.Message{}, false, ingressInternal("ingress: message store is nil")
	}
	if err := msg.Validate(); err != nil {
		return core.Message{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.byDedup[msg.DedupKey()]; ok {
		return s.byID[existingID], false, nil
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

	s.byID[msg.ID] = msg
	s.byDedup[msg.DedupKey()] = msg.ID
	s.ordering = append(s.ordering, msg.ID)
	return msg, true, nil
}

func (s *InMemoryMessageStore) Get(_ context.Context, workspaceID string, messageID string) (core.Message, error) {
	if s == nil {
		return core.Message{}, ingressInternal("ingress: message store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[strings.TrimSpace(messageID)]
	if !ok || msg.WorkspaceID != strings.TrimSpace(workspaceID) {
		return core.Message{}, core.ErrMessageNotFound
	}
	return msg, nil
}

func (s *InMemoryMessageStore) Query(_ context.Context, workspaceID string, filter core.MessageFilter, page core.Pagination) ([]core.Message, error) {
	if s == nil {
		return nil, ingressInternal("ingress: message store is nil")
	}
	page = page.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]core.Message, 0)
	for _, id := range s.ordering {
		msg := s.byID[id]
		if msg.WorkspaceID != strings.TrimSpace(workspaceID) {
			continue
		}
		if filter.Status != "" && msg.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && msg.Channel != filter.Channel {
			continue
		}
		if filter.AssignedEmployeeID != "" && msg.AssignedEmployeeID != filter.AssignedEmployeeID {
			continue
		}
		matched = append(matched, msg)
	}
	if page.Offset >= len(matched) {
		return []core.Message{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Offset:end], nil
}

func (s *InMemoryMessageStore) UpdateStatus(_ context.Context, messageID string, fromStatus core.MessageStatus, toStatus core.MessageStatus) error {
	if s == nil {
		return ingressInternal("ingress: message store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[strings.TrimSpace(messageID)]
	if !ok {
		return core.ErrMessageNotFound
	}
	if msg.Status != fromStatus {
		return core.ErrInvalidMessageStatusTransition
	}
	if err := msg.TransitionTo(toStatus, s.now()); err != nil {
		return err
	}
	s.byID[msg.ID] = msg
	return nil
}

func (s *InMemoryMessageStore) RecordAIResponse(_ context.Context, messageID string, response string, confidence *float64) error {
	if s == nil {
		return ingressInternal("ingress: message store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.byID[strings.TrimSpace(messageID)]
	if !ok {
		return core.ErrMessageNotFound
	}
	msg.AIResponse = response
	if confidence != nil {
		rounded := core.RoundConfidence(*confidence)
		msg.AIConfidence = &rounded
	}
	msg.UpdatedAt = s.now()
	s.byID[msg.ID] = msg
	return nil
}

func (s *InMemoryMessageStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.MessageStore = (*InMemoryMessageStore)(nil)
