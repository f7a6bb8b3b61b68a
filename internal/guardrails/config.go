// Package guardrails owns the client-side guardrails configuration: the
// master enable switch, monitor-only mode, and the fixed set of rail
// toggles sent with every chat request.
package guardrails

// RailKey names one guardrail toggle. The set is closed: exactly 13 keys
// across four categories. Unknown keys loaded from storage are dropped;
// missing keys are filled from defaults.
type RailKey string

const (
	// Input stage
	RailInputPII       RailKey = "input.pii"
	RailInputSafety    RailKey = "input.safety"
	RailInputJailbreak RailKey = "input.jailbreak"
	RailInputTopics    RailKey = "input.topics"

	// Execution stage
	RailExecToolPolicy RailKey = "execution.tool_policy"
	RailExecRateLimit  RailKey = "execution.rate_limit"
	RailExecWorkspace  RailKey = "execution.workspace"
	RailExecEgress     RailKey = "execution.egress"

	// Output stage
	RailOutputSafety    RailKey = "output.safety"
	RailOutputPII       RailKey = "output.pii"
	RailOutputGrounding RailKey = "output.grounding"
	RailOutputFormat    RailKey = "output.format"

	// Advanced
	RailHallucinationJudge RailKey = "advanced.hallucination_judge"
)

// AllRailKeys returns the closed key set in stable display order.
func AllRailKeys() []RailKey {
	return []RailKey{
		RailInputPII, RailInputSafety, RailInputJailbreak, RailInputTopics,
		RailExecToolPolicy, RailExecRateLimit, RailExecWorkspace, RailExecEgress,
		RailOutputSafety, RailOutputPII, RailOutputGrounding, RailOutputFormat,
		RailHallucinationJudge,
	}
}

// Category returns the key's category prefix (input, execution, output,
// advanced).
func (k RailKey) Category() string {
	for i := 0; i < len(k); i++ {
		if k[i] == '.' {
			return string(k[:i])
		}
	}
	return string(k)
}

// Config is the guardrails configuration shaping outgoing requests.
// MonitorOnly is only meaningful while Enabled is true.
type Config struct {
	Enabled     bool             `json:"enabled"`
	MonitorOnly bool             `json:"monitorOnly"`
	Toggles     map[RailKey]bool `json:"toggles"`
}

// DefaultConfig returns the built-in default: guardrails enabled,
// blocking mode, every rail on except the hallucination judge.
func DefaultConfig() Config {
	toggles := make(map[RailKey]bool, 13)
	for _, k := range AllRailKeys() {
		toggles[k] = k != RailHallucinationJudge
	}
	return Config{Enabled: true, Toggles: toggles}
}

// merge lays loaded over defaults field-by-field: unknown toggle keys are
// discarded, missing ones keep their default. The loaded key set is never
// trusted.
func merge(loaded Config) Config {
	out := DefaultConfig()
	out.Enabled = loaded.Enabled
	out.MonitorOnly = loaded.MonitorOnly
	for k, v := range loaded.Toggles {
		if _, known := out.Toggles[k]; known {
			out.Toggles[k] = v
		}
	}
	return out
}

// clone deep-copies c so stored state is never aliased by callers.
func clone(c Config) Config {
	toggles := make(map[RailKey]bool, len(c.Toggles))
	for k, v := range c.Toggles {
		toggles[k] = v
	}
	return Config{Enabled: c.Enabled, MonitorOnly: c.MonitorOnly, Toggles: toggles}
}

// WireToggles returns the toggle map keyed by plain strings in sorted
// order-independent form, as sent on the wire.
func (c Config) WireToggles() map[string]bool {
	out := make(map[string]bool, len(c.Toggles))
	for k, v := range c.Toggles {
		out[string(k)] = v
	}
	return out
}

// Partition splits the toggle set into active and inactive keys, each in
// display order. Used by the inspector's rails facet.
func (c Config) Partition() (active, inactive []RailKey) {
	for _, k := range AllRailKeys() {
		if c.Toggles[k] {
			active = append(active, k)
		} else {
			inactive = append(inactive, k)
		}
	}
	return active, inactive
}
