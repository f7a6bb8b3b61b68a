// Package session owns the conversation sessions and their ordered
// message lists, persisting both through the kv store.
package session

import "time"

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Status is the lifecycle state of a message. sending is the only
// non-terminal state: once a message leaves it, its status never changes
// again.
type Status string

const (
	StatusSending     Status = "sending"
	StatusOK          Status = "ok"
	StatusRefused     Status = "refused"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
	StatusBlocked     Status = "blocked"
	StatusRegenerated Status = "regenerated"
)

// Terminal reports whether st is a terminal status.
func (st Status) Terminal() bool {
	return st != StatusSending
}

// Session is one user-visible conversation thread.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// Message is a single turn in a session. Audit fields (RailEvents,
// ToolCalls, GeneratedRails) are produced by the backend and stored
// verbatim.
type Message struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"sessionId"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	Status         Status          `json:"status"`
	TraceID        string          `json:"traceId,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	RailEvents     []RailEvent     `json:"railEvents,omitempty"`
	ToolCalls      []ToolCall      `json:"toolCalls,omitempty"`
	GeneratedRails *GeneratedRails `json:"generatedRails,omitempty"`
}

// RailEvent is an immutable audit record for one guardrail firing.
// Field spelling follows the backend wire format.
type RailEvent struct {
	RailName string         `json:"railName"`
	Stage    string         `json:"stage"`    // input | execution | output
	Severity string         `json:"severity"` // info | warn | block
	Reason   string         `json:"reason"`
	Details  map[string]any `json:"details,omitempty"`
}

// ToolCall records one agent tool invocation during a turn.
type ToolCall struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Status    string         `json:"status"` // ok | error
	LatencyMs int64          `json:"latencyMs,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// RuleDetail is one dynamically generated guardrail rule.
type RuleDetail struct {
	RuleID      string `json:"rule_id"`
	Domain      string `json:"domain"`
	RuleType    string `json:"rule_type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// GeneratedRails is the session-scoped rule set active at one turn.
// Rules is the full active set; NewRules the subset first introduced by
// this turn (a subset of Rules by rule_id).
type GeneratedRails struct {
	ProfileID string       `json:"profileId"`
	Summary   string       `json:"summary"`
	Config    string       `json:"config,omitempty"`
	Rules     []RuleDetail `json:"rules,omitempty"`
	NewRules  []RuleDetail `json:"new_rules,omitempty"`
}
