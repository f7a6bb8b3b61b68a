// railchat is a terminal client for the guardrails agent backend: every
// turn is sent with the local guardrails configuration and comes back with
// an audit trail the inspector pane can drill into.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jask/railchat/internal/api"
	"github.com/jask/railchat/internal/chat"
	"github.com/jask/railchat/internal/config"
	"github.com/jask/railchat/internal/guardrails"
	"github.com/jask/railchat/internal/kv"
	"github.com/jask/railchat/internal/logging"
	"github.com/jask/railchat/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "railchat: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Data.Dir, cfg.Log.Enabled, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "railchat: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	store := openStore(cfg, log)
	defer store.Close()

	sessions := session.NewStore(store, log)
	sessions.LoadSessions()
	sessions.EnsureSession()

	rails := guardrails.NewStore(store, log)
	rails.Load()

	client := api.NewClient(cfg.Backend.URL, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)
	orch := chat.New(sessions, rails, client, cfg.Backend.AgentProfile, log)

	log.Info("railchat starting",
		zap.String("backend", cfg.Backend.URL),
		zap.String("profile", cfg.Backend.AgentProfile))

	m := newModel(cfg, log, sessions, rails, client, orch)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "railchat: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the on-disk kv store, falling back to an in-memory one
// so a broken data dir degrades to a non-persistent session instead of a
// refusal to start.
func openStore(cfg config.Config, log *zap.Logger) kv.Store {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		log.Warn("data dir unavailable, running without persistence", zap.Error(err))
		return kv.NewMemStore()
	}
	path := filepath.Join(cfg.Data.Dir, "railchat.db")
	store, err := kv.OpenSQLite(path)
	if err != nil {
		log.Warn("kv store unavailable, running without persistence", zap.String("path", path), zap.Error(err))
		return kv.NewMemStore()
	}
	return store
}
