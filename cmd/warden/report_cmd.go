package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgeworks/warden/internal/compliance"
	"github.com/forgeworks/warden/internal/config"
	"github.com/forgeworks/warden/internal/telemetry"
)

func newReportCmd() *cobra.Command {
	var (
		limit   int
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize recent sessions and the current command chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectRoot, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := config.Load(projectRoot)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warden: %v\n", err)
			}
			logger := mustBuildLogger(cfg.LogLevel)
			defer logger.Sync() //nolint:errcheck // best-effort flush

			if archive {
				archiver := telemetry.NewArchiver(cfg.OutputDir, logger)
				moved, err := archiver.Archive(projectRoot)
				if err != nil {
					return err
				}
				cmd.Printf("archived %d file(s)\n", len(moved))
				for _, path := range moved {
					cmd.Printf("  %s\n", path)
				}
			}

			chain, err := compliance.LoadChainState(cfg.RuntimeDir())
			if err == nil && chain.SessionID != "" {
				cmd.Printf("active session %s: %d command(s)\n", chain.SessionID, len(chain.CommandHistory))
				for _, entry := range chain.CommandHistory {
					cmd.Printf("  %s  %s\n", entry.Timestamp.Format("15:04:05"), entry.Command)
				}
			}

			store, err := telemetry.OpenStore(filepath.Join(cfg.RuntimeDir(), "sessions.db"))
			if err != nil {
				cmd.Println("no session history recorded yet")
				return nil
			}
			defer store.Close()
			records, err := store.RecentSessions(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				cmd.Println("no session history recorded yet")
				return nil
			}
			for _, r := range records {
				tools := make([]string, 0, len(r.ToolCounts))
				for name, count := range r.ToolCounts {
					tools = append(tools, fmt.Sprintf("%s=%d", name, count))
				}
				cmd.Printf("%s  %s  tools[%s] memory %dr/%dw context %d diagnostics %d\n",
					r.EndedAt.Format("2006-01-02 15:04"), r.SessionID,
					strings.Join(tools, " "), r.MemoryReads, r.MemoryWrites,
					r.ContextLoads, r.Diagnostics)
				if len(r.Skills) > 0 {
					cmd.Printf("  skills: %s\n", strings.Join(r.Skills, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of sessions to show")
	cmd.Flags().BoolVar(&archive, "archive", false, "archive old generated output before reporting")
	return cmd
}
