package guardrails

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/jask/railchat/internal/kv"
)

// Store holds the live guardrails configuration. Every mutation replaces
// the in-memory config with a fresh copy and persists the whole object
// synchronously; persistence failures are logged and absorbed.
type Store struct {
	mu    sync.Mutex
	store kv.Store
	log   *zap.Logger
	cfg   Config
}

// NewStore builds a Store starting from the built-in defaults. Call Load
// to merge persisted state in.
func NewStore(store kv.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{store: store, log: log, cfg: DefaultConfig()}
}

// Load merges the persisted config over the defaults. A missing key or
// malformed value leaves the defaults in place; this is never fatal.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.store.Get(kv.KeyGuardrails)
	if err != nil {
		s.log.Warn("guardrails config read failed", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	var loaded Config
	if err := json.Unmarshal(raw, &loaded); err != nil {
		s.log.Warn("guardrails config malformed, using defaults", zap.Error(err))
		return
	}
	s.cfg = merge(loaded)
}

// Snapshot returns a copy of the current config.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.cfg)
}

// SetEnabled flips the master switch.
func (s *Store) SetEnabled(enabled bool) {
	s.mutate(func(c *Config) { c.Enabled = enabled })
}

// SetMonitorOnly flips monitor-only mode.
func (s *Store) SetMonitorOnly(monitorOnly bool) {
	s.mutate(func(c *Config) { c.MonitorOnly = monitorOnly })
}

// SetRail sets one toggle. Keys outside the fixed enumeration are
// rejected so the map never grows past the 13 known keys.
func (s *Store) SetRail(key RailKey, on bool) {
	s.mutate(func(c *Config) {
		if _, known := c.Toggles[key]; known {
			c.Toggles[key] = on
		}
	})
}

// ToggleRail inverts one toggle.
func (s *Store) ToggleRail(key RailKey) {
	s.mutate(func(c *Config) {
		if v, known := c.Toggles[key]; known {
			c.Toggles[key] = !v
		}
	})
}

// Reset restores the built-in default config and persists it.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = DefaultConfig()
	s.persistLocked()
}

func (s *Store) mutate(apply func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := clone(s.cfg)
	apply(&next)
	s.cfg = next
	s.persistLocked()
}

func (s *Store) persistLocked() {
	raw, err := json.Marshal(s.cfg)
	if err != nil {
		s.log.Warn("guardrails config marshal failed", zap.Error(err))
		return
	}
	if err := s.store.Set(kv.KeyGuardrails, raw); err != nil {
		s.log.Warn("guardrails config write failed", zap.Error(err))
	}
}
