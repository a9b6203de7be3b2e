package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgeworks/warden/internal/compliance"
	"github.com/forgeworks/warden/internal/config"
	"github.com/forgeworks/warden/internal/diag"
	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
	"github.com/forgeworks/warden/internal/memory"
	"github.com/forgeworks/warden/internal/policy"
	"github.com/forgeworks/warden/internal/telemetry"
)

func newHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hook [event]",
		Short: "Process one hook event from stdin and write the decision to stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventName := ""
			if len(args) == 1 {
				eventName = args[0]
			}
			os.Exit(runHook(eventName))
			return nil
		},
	}
}

// runHook is the whole lifetime of one hook process. Every failure path
// before dispatch exits 0: a broken guard must never block the agent.
func runHook(eventName string) int {
	ev, err := hookio.DecodeEvent(os.Stdin, eventName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warden: %v\n", err)
		return hookio.ExitAllow
	}
	projectRoot := ev.CWD
	if projectRoot == "" {
		projectRoot, _ = os.Getwd()
		ev.CWD = projectRoot
	}

	cfg, err := config.Load(projectRoot)
	logger := mustBuildLogger(cfg.LogLevel).With(
		zap.String("invocation_id", uuid.NewString()),
		zap.String("event", ev.Name),
		zap.String("session_id", ev.SessionID),
	)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	if err != nil {
		logger.Warn("config overrides ignored", zap.Error(err))
	}

	rules, err := dispatch.LoadManifest(filepath.Join(cfg.RuntimeDir(), "manifest.yml"))
	if err != nil {
		logger.Error("manifest rejected, engine disabled for this event", zap.Error(err))
		return hookio.ExitAllow
	}

	buffer := diag.New(cfg.RuntimeDir(), logger,
		diag.WithCapacity(cfg.BufferCapacity),
		diag.WithLockWait(cfg.BufferLockWait),
	)

	handlers, cleanup := buildHandlers(cfg, buffer, logger)
	defer cleanup()

	d := dispatch.NewDispatcher(rules, handlers, cfg.HandlerTimeout, buffer, logger)
	decision := d.Dispatch(context.Background(), ev)
	if err := decision.Write(os.Stdout); err != nil {
		logger.Error("decision write failed", zap.Error(err))
		return hookio.ExitAllow
	}
	return decision.ExitCode()
}

// buildHandlers constructs the full handler set; the manifest decides which
// of them run for a given event. The returned cleanup flushes sinks.
func buildHandlers(cfg *config.Config, buffer *diag.Buffer, logger *zap.Logger) ([]dispatch.Handler, func()) {
	if err := os.MkdirAll(cfg.RuntimeDir(), 0o755); err != nil {
		logger.Warn("runtime dir", zap.Error(err))
	}

	// Fleet sink — ClickHouse when configured, logger otherwise.
	var sink telemetry.EventSink
	if cfg.ClickHouseDSN != "" {
		chSink, err := telemetry.NewClickHouseSink(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log sink", zap.Error(err))
			sink = telemetry.NewLogSink(logger)
		} else {
			sink = chSink
		}
	} else {
		sink = telemetry.NewLogSink(logger)
	}

	var store *telemetry.Store
	if s, err := telemetry.OpenStore(filepath.Join(cfg.RuntimeDir(), "sessions.db")); err != nil {
		logger.Warn("session store unavailable", zap.Error(err))
	} else {
		store = s
	}

	handlers := []dispatch.Handler{
		policy.NewSandboxGuard(),
		policy.NewPromptScanner(),
		policy.NewDependencyGuard(cfg.DenyListPath),
		policy.NewVCSGuard(cfg.ProtectedBranches, nil),
		policy.NewPrecommitGate(cfg.OutputDir, cfg.MemoryDir, nil),
		memory.NewFreshnessGate(cfg.MemoryDir),
		memory.NewQualityGate(cfg.MemoryDir, cfg.LineCeilings),
		memory.NewPollinator(cfg.MemoryDir, cfg.BufferLockWait),
		memory.NewPruner(cfg.MemoryDir, cfg.LineCeilings, cfg.BufferLockWait, logger),
		compliance.NewFrontmatterValidator(cfg.ContextDir),
		compliance.NewStepChecker(cfg.MemoryDir, cfg.ContextDir, cfg.OutputDir),
		compliance.NewChainRecorder(cfg.RuntimeDir(), cfg.BufferLockWait),
		compliance.NewSessionCleaner(cfg.RuntimeDir()),
		compliance.NewDriftDetector(cfg.ConflictTablePath),
		compliance.NewOutputScorer(cfg.OutputDir),
		compliance.NewAgentConfigValidator(cfg.ProjectRoot, cfg.AgentsDir, cfg.ContextDir),
		compliance.NewStructureValidator(cfg.ProjectRoot, cfg.RuntimeDir(), cfg.MemoryDir, cfg.ContextDir, cfg.AgentsDir),
		telemetry.NewHealthEmitter(buffer),
		telemetry.NewContextUsageReporter(cfg.MemoryDir, cfg.ContextDir),
		telemetry.NewSessionAggregator(cfg.RuntimeDir(), cfg.MemoryDir, cfg.ContextDir, store, sink, buffer),
	}

	cleanup := func() {
		sink.Close()
		if store != nil {
			store.Close() //nolint:errcheck // best-effort close
		}
	}
	return handlers, cleanup
}
