// Package corelog wraps go.uber.org/zap the way the rest of this codebase's
// lineage wraps it: a package-level sugared logger, safe to call before
// Initialize, with per-component tagging via Named.
package corelog

import (
	"os"

	"go.uber.org/zap"
)

// Logger is the process-wide logger. Safe to use before Initialize: it
// starts as a no-op sink so components constructed during wiring never
// nil-panic on a log call.
var Logger = zap.NewNop().Sugar()

// Initialize configures the global logger. jsonOutput selects a
// production JSON encoder (for supervised/headless runs); otherwise a
// human console encoder is used.
func Initialize(jsonOutput bool) error {
	var zl *zap.Logger
	var err error

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zl, err = cfg.Build()
	} else {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.OutputPaths = []string{"stdout"}
		zl, err = cfg.Build()
	}
	if err != nil {
		return err
	}
	Logger = zl.Sugar()
	return nil
}

// For exercises a per-component sub-logger, matching the component tag
// every log line in this repo is expected to carry.
func For(component string) *zap.SugaredLogger {
	return Logger.With("component", component)
}

// MustInitialize calls Initialize and exits the process on failure, for a
// caller that has no way left to handle the error.
func MustInitialize(jsonOutput bool) {
	if err := Initialize(jsonOutput); err != nil {
		os.Stderr.WriteString("corelog: " + err.Error() + "\n")
		os.Exit(1)
	}
}
