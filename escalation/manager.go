// Package escalation routes messages that automation could not resolve to
// a human employee: idempotent enqueueing, compare-and-swap claims, and the
// message status state machine around them.
package escalation

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-inbox/core"
	"github.com/google/uuid"
)

const (
	ReasonNoMatch         = "no_rule_matched"
	ReasonLowConfidence   = "low_confidence"
	ReasonDispatchFailed  = "dispatch_failed"
	ReasonManualEscalated = "manual"
)

type Manager struct {
	Entries  core.EscalationStore
	Messages core.MessageStore
	Strategy core.AssignmentStrategy
	Observer *core.Observer
	Now      func() time.Time
}

func NewManager(entries core.EscalationStore, messages core.MessageStore, strategy core.AssignmentStrategy) *Manager {
	return &Manager{
		Entries:  entries,
		Messages: messages,
		Strategy: strategy,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Enqueue moves a message into the escalation queue. Enqueueing a message
// that already has an open entry is a no-op returning the existing entry.
func (m *Manager) Enqueue(ctx context.Context, workspaceID string, messageID string, reason string) (core.EscalationEntry, error) {
	if m == nil || m.Entries == nil {
		return core.EscalationEntry{}, escalationInternal("escalation: manager is not configured")
	}
	workspaceID = strings.TrimSpace(workspaceID)
	messageID = strings.TrimSpace(messageID)
	if workspaceID == "" || messageID == "" {
		return core.EscalationEntry{}, escalationBadInput("escalation: workspace id and message id are required")
	}

	now := m.now()
	entry := core.EscalationEntry{
		ID:          uuid.NewString(),
		MessageID:   messageID,
		WorkspaceID: workspaceID,
		Reason:      strings.TrimSpace(reason),
		CreatedAt:   now,
	}
	stored, created, err := m.Entries.Insert(ctx, entry)
	if err != nil {
		return core.EscalationEntry{}, err
	}
	if !created {
		return stored, nil
	}

	if m.Messages != nil {
		if err := m.Messages.UpdateStatus(ctx, messageID, core.MessageStatusNew, core.MessageStatusQueued); err != nil {
			// The entry exists either way; a lost status race is logged
			// and left to the guarded transition's winner.
			m.observe(ctx, "escalation.enqueue_status", err, map[string]any{
				"workspace_id": workspaceID,
				"message_id":   messageID,
			})
		}
	}

	if m.Strategy != nil {
		if employeeID, err := m.Strategy.Next(ctx, workspaceID); err != nil {
			m.observe(ctx, "escalation.assign", err, map[string]any{
				"workspace_id": workspaceID,
				"message_id":   messageID,
			})
		} else if employeeID != "" {
			// Routing claims the entry on the employee's behalf: the full
			// claim transition runs so Resolve and Escalate see the same
			// state a manual claim would leave.
			if ok, claimErr := m.Entries.Claim(ctx, stored.ID, employeeID, now); claimErr == nil && ok {
				stored.AssignedEmployeeID = employeeID
				claimedAt := now
				stored.ClaimedAt = &claimedAt
				if m.Messages != nil {
					if err := m.Messages.UpdateStatus(ctx, messageID, core.MessageStatusQueued, core.MessageStatusInProgress); err != nil {
						m.observe(ctx, "escalation.assign_status", err, map[string]any{
							"workspace_id": workspaceID,
							"message_id":   messageID,
							"employee_id":  employeeID,
						})
					}
				}
			}
		}
	}

	m.observe(ctx, "escalation.enqueue", nil, map[string]any{
		"workspace_id": workspaceID,
		"message_id":   messageID,
		"reason":       entry.Reason,
	})
	return stored, nil
}

// Claim assigns an entry to an employee with compare-and-swap semantics:
// among concurrent claims exactly one succeeds.
func (m *Manager) Claim(ctx context.Context, entryID string, employeeID string) (bool, error) {
	if m == nil || m.Entries == nil {
		return false, escalationInternal("escalation: manager is not configured")
	}
	entryID = strings.TrimSpace(entryID)
	employeeID = strings.TrimSpace(employeeID)
	if entryID == "" || employeeID == "" {
		return false, escalationBadInput("escalation: entry id and employee id are required")
	}

	now := m.now()
	ok, err := m.Entries.Claim(ctx, entryID, employeeID, now)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, claimConflict("escalation: entry already claimed", map[string]any{
			"entry_id": entryID,
		})
	}

	entry, err := m.Entries.Get(ctx, entryID)
	if err != nil {
		return true, err
	}
	if m.Messages != nil {
		if err := m.Messages.UpdateStatus(ctx, entry.MessageID, core.MessageStatusQueued, core.MessageStatusInProgress); err != nil {
			return true, statusConflict(err, "escalation: claimed entry message is not queued", map[string]any{
				"entry_id":   entryID,
				"message_id": entry.MessageID,
			})
		}
	}
	m.observe(ctx, "escalation.claim", nil, map[string]any{
		"workspace_id": entry.WorkspaceID,
		"entry_id":     entryID,
		"employee_id":  employeeID,
	})
	return true, nil
}

// Resolve closes an entry after the employee completed the message. The
// completion signal arrives from the external employee surface.
func (m *Manager) Resolve(ctx context.Context, entryID string) error {
	return m.close(ctx, entryID, core.MessageStatusCompleted, "escalation.resolve")
}

// Escalate closes an entry by routing the message to the admin/support
// tier; this core only records the signal.
func (m *Manager) Escalate(ctx context.Context, entryID string) error {
	return m.close(ctx, entryID, core.MessageStatusEscalated, "escalation.escalate")
}

func (m *Manager) close(ctx context.Context, entryID string, toStatus core.MessageStatus, operation string) error {
	if m == nil || m.Entries == nil {
		return escalationInternal("escalation: manager is not configured")
	}
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		return escalationBadInput("escalation: entry id is required")
	}

	entry, err := m.Entries.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if !entry.Claimed() {
		return claimConflict("escalation: entry must be claimed before closing", map[string]any{
			"entry_id": entryID,
		})
	}

	now := m.now()
	if m.Messages != nil {
		if err := m.Messages.UpdateStatus(ctx, entry.MessageID, core.MessageStatusInProgress, toStatus); err != nil {
			return statusConflict(err, "escalation: closing entry with stale message status", map[string]any{
				"entry_id":   entryID,
				"message_id": entry.MessageID,
			})
		}
	}
	if err := m.Entries.Close(ctx, entryID, now); err != nil {
		return err
	}
	m.observe(ctx, operation, nil, map[string]any{
		"workspace_id": entry.WorkspaceID,
		"entry_id":     entryID,
		"message_id":   entry.MessageID,
	})
	return nil
}

func (m *Manager) observe(ctx context.Context, operation string, err error, fields map[string]any) {
	if m == nil || m.Observer == nil {
		return
	}
	m.Observer.ObserveOperation(ctx, m.now(), operation, err, fields)
}

func (m *Manager) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}
