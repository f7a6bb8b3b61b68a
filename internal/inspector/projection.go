// Package inspector derives the message-scoped read-only views shown in
// the inspector pane. Everything here is a pure function of the selected
// message and the current guardrails config; nothing mutates the stores.
package inspector

import (
	"github.com/jask/railchat/internal/guardrails"
	"github.com/jask/railchat/internal/session"
)

// Select resolves the selected message id against the current message
// list, nil when the id matches nothing.
func Select(messageID string, msgs []session.Message) *session.Message {
	if messageID == "" {
		return nil
	}
	for i := range msgs {
		if msgs[i].ID == messageID {
			return &msgs[i]
		}
	}
	return nil
}

// ToolCalls returns the selected message's tool calls, empty if none.
func ToolCalls(m *session.Message) []session.ToolCall {
	if m == nil {
		return nil
	}
	return m.ToolCalls
}

// RailEvents returns the selected message's rail events, empty if none.
func RailEvents(m *session.Message) []session.RailEvent {
	if m == nil {
		return nil
	}
	return m.RailEvents
}

// Rails partitions the toggle set of the *current* configuration, not the
// configuration active when the selected message was sent. That staleness
// is a deliberate tradeoff.
func Rails(cfg guardrails.Config) (active, inactive []guardrails.RailKey) {
	return cfg.Partition()
}

// Generated returns the selected message's generated-rails record, nil if
// the turn produced none.
func Generated(m *session.Message) *session.GeneratedRails {
	if m == nil {
		return nil
	}
	return m.GeneratedRails
}

// NewRuleIDs returns the rule_ids first introduced by the selected turn,
// the set used to highlight new rules against the full active set.
func NewRuleIDs(g *session.GeneratedRails) map[string]bool {
	if g == nil || len(g.NewRules) == 0 {
		return nil
	}
	out := make(map[string]bool, len(g.NewRules))
	for _, r := range g.NewRules {
		out[r.RuleID] = true
	}
	return out
}
