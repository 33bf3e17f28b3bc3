// Package rules implements the automation-rule evaluation engine. Evaluate
// is a pure mapping from (message, rule snapshot) to matches; callers fetch
// the snapshot immediately before evaluation and supply any stateful inputs
// (prior-reply knowledge) up front, so the engine can run fully in parallel
// across messages and workspaces.
package rules

import (
	"sort"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

type SkipReason string

const (
	SkipReasonDisabled          SkipReason = "disabled"
	SkipReasonWorkspaceMismatch SkipReason = "workspace_mismatch"
	SkipReasonAgentMismatch     SkipReason = "agent_mismatch"
	SkipReasonTriggerUnmatched  SkipReason = "trigger_unmatched"
	SkipReasonPlatformExcluded  SkipReason = "platform_excluded"
	SkipReasonKeywordsUnmatched SkipReason = "keywords_unmatched"
	SkipReasonAutoSkipReplies   SkipReason = "auto_skip_replies"
	SkipReasonDeferredTrigger   SkipReason = "deferred_trigger"
	SkipReasonConfigInvalid     SkipReason = "config_invalid"
)

type SkippedRule struct {
	RuleID string
	Reason SkipReason
}

// Evaluation carries the full match set plus per-rule skip diagnostics for
// logging. Matching is not first-match-wins: every passing rule fires.
type Evaluation struct {
	Matches []core.MatchedRule
	Skipped []SkippedRule
}

// Options supplies the stateful inputs resolved by the caller before
// evaluation.
type Options struct {
	// PriorReplyInConversation reports whether a rule already produced a
	// successful reply for the message's conversation; rules with
	// auto_skip_replies are excluded when true.
	PriorReplyInConversation bool
}

// Evaluate returns all rules matching the message, ordered by rule creation
// time ascending. Malformed rules are skipped, never fatal.
func Evaluate(msg core.Message, snapshot []core.AutomationRule, options Options) Evaluation {
	ordered := make([]core.AutomationRule, len(snapshot))
	copy(ordered, snapshot)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	result := Evaluation{}
	for _, rule := range ordered {
		if reason, skipped := evaluateRule(msg, rule, options); skipped {
			result.Skipped = append(result.Skipped, SkippedRule{RuleID: rule.ID, Reason: reason})
			continue
		}
		result.Matches = append(result.Matches, core.MatchedRule{
			Rule:      rule,
			MatchedOn: matchDescription(msg, rule),
		})
	}
	return result
}

func evaluateRule(msg core.Message, rule core.AutomationRule, options Options) (SkipReason, bool) {
	if !rule.TriggerSupported() || !rule.ActionSupported() {
		return SkipReasonConfigInvalid, true
	}
	if !rule.Enabled {
		return SkipReasonDisabled, true
	}
	if strings.TrimSpace(rule.WorkspaceID) != strings.TrimSpace(msg.WorkspaceID) {
		return SkipReasonWorkspaceMismatch, true
	}
	if agentID := strings.TrimSpace(msg.AgentID); agentID != "" && strings.TrimSpace(rule.AgentID) != agentID {
		return SkipReasonAgentMismatch, true
	}

	switch rule.TriggerType {
	case core.TriggerTypeComment:
		if msg.Type != core.MessageTypeComment {
			return SkipReasonTriggerUnmatched, true
		}
	case core.TriggerTypeKeyword:
		// Keyword triggers apply to every message type.
	case core.TriggerTypeTime, core.TriggerTypeManual:
		// Recognized but never matched on the synchronous path; a
		// scheduler or operator collaborator fires these.
		return SkipReasonDeferredTrigger, true
	}

	if !platformMatches(msg.Channel, rule.TriggerPlatforms) {
		return SkipReasonPlatformExcluded, true
	}
	if !keywordsMatch(msg.Text, rule.TriggerWords) {
		return SkipReasonKeywordsUnmatched, true
	}
	if rule.AutoSkipReplies && options.PriorReplyInConversation {
		return SkipReasonAutoSkipReplies, true
	}
	return "", false
}

// platformMatches treats an empty platform list as all platforms.
func platformMatches(channel core.Channel, platforms []core.Channel) bool {
	if len(platforms) == 0 {
		return true
	}
	for _, platform := range platforms {
		if platform == channel {
			return true
		}
	}
	return false
}

// keywordsMatch reports true when the word list is empty or any word is a
// case-insensitive substring of the text.
func keywordsMatch(text string, words []string) bool {
	if len(words) == 0 {
		return true
	}
	lowered := strings.ToLower(text)
	for _, word := range words {
		trimmed := strings.ToLower(strings.TrimSpace(word))
		if trimmed == "" {
			continue
		}
		if strings.Contains(lowered, trimmed) {
			return true
		}
	}
	return false
}

func matchDescription(msg core.Message, rule core.AutomationRule) string {
	if rule.TriggerType == core.TriggerTypeComment {
		return "comment"
	}
	lowered := strings.ToLower(msg.Text)
	for _, word := range rule.TriggerWords {
		trimmed := strings.ToLower(strings.TrimSpace(word))
		if trimmed != "" && strings.Contains(lowered, trimmed) {
			return "keyword:" + trimmed
		}
	}
	return "keyword"
}
