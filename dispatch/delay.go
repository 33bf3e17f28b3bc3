package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inbox/core"
)

// DelayedScheduler runs rule actions after their configured delay on
// in-process cancellable timers. Scheduling never blocks evaluation of
// other messages; timers are cancelled when the owning rule is disabled or
// the message is deleted before firing.
type DelayedScheduler struct {
	mu     sync.Mutex
	timers map[string]*delayedAction
	closed bool
}

type delayedAction struct {
	timer     *time.Timer
	messageID string
	ruleID    string
}

// FireFunc executes the delayed action when the timer elapses.
type FireFunc func(ctx context.Context, msg core.Message, match core.MatchedRule)

func NewDelayedScheduler() *DelayedScheduler {
	return &DelayedScheduler{timers: map[string]*delayedAction{}}
}

// Schedule arms a timer for the (message, rule) pair. A zero or negative
// delay fires synchronously on a fresh goroutine.
func (s *DelayedScheduler) Schedule(msg core.Message, match core.MatchedRule, delay time.Duration, fire FireFunc) {
	if s == nil || fire == nil {
		return
	}
	key := delayKey(msg.ID, match.Rule.ID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
		delete(s.timers, key)
	}
	action := &delayedAction{messageID: msg.ID, ruleID: match.Rule.ID}
	action.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, armed := s.timers[key]
		delete(s.timers, key)
		s.mu.Unlock()
		if !armed {
			return
		}
		fire(context.Background(), msg, match)
	})
	s.timers[key] = action
	s.mu.Unlock()

	if delay <= 0 {
		// AfterFunc with non-positive delay fires immediately; nothing
		// else to do, the map entry guards double firing.
		return
	}
}

// CancelRule stops every pending timer owned by a rule (rule disabled).
func (s *DelayedScheduler) CancelRule(ruleID string) int {
	return s.cancel(func(action *delayedAction) bool {
		return action.ruleID == strings.TrimSpace(ruleID)
	})
}

// CancelMessage stops every pending timer for a message (message deleted).
func (s *DelayedScheduler) CancelMessage(messageID string) int {
	return s.cancel(func(action *delayedAction) bool {
		return action.messageID == strings.TrimSpace(messageID)
	})
}

// Close cancels all pending timers; the scheduler accepts no further work.
func (s *DelayedScheduler) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for key, action := range s.timers {
		action.timer.Stop()
		delete(s.timers, key)
	}
}

// Pending reports the number of armed timers.
func (s *DelayedScheduler) Pending() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *DelayedScheduler) cancel(match func(*delayedAction) bool) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := 0
	for key, action := range s.timers {
		if match(action) {
			action.timer.Stop()
			delete(s.timers, key)
			cancelled++
		}
	}
	return cancelled
}

func delayKey(messageID string, ruleID string) string {
	return strings.TrimSpace(messageID) + "::" + strings.TrimSpace(ruleID)
}
