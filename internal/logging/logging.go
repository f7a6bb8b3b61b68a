// Package logging builds the file-backed logger. The TUI owns the
// terminal, so log output goes to a JSON-lines file under the data dir.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing to <dir>/railchat.log at the given level
// ("debug", "info", "warn", "error"). When enabled is false it returns a
// no-op logger; a logger must never be nil for callers.
func New(dir string, enabled bool, level string) (*zap.Logger, error) {
	if !enabled {
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{filepath.Join(dir, "railchat.log")}
	cfg.ErrorOutputPaths = cfg.OutputPaths

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log, nil
}
