// Command warden is the hook-driven policy and memory-lifecycle engine.
// The host agent invokes "warden hook <event>" once per lifecycle event;
// the remaining subcommands are operator tooling over the same state.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:           "warden",
		Short:         "Policy and memory lifecycle engine for agent hook events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newHookCmd(),
		newPruneCmd(),
		newReportCmd(),
		newWatchCmd(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// mustBuildLogger builds the engine logger. Everything goes to stderr:
// stdout is reserved for decision documents the host parses.
func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
