package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgeworks/warden/internal/config"
	"github.com/forgeworks/warden/internal/memory"
)

func newPruneCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Trim over-ceiling memory files now instead of waiting for session end",
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

			pruner := memory.NewPruner(cfg.MemoryDir, cfg.LineCeilings, cfg.BufferLockWait, logger)
			if dryRun {
				return pruneDryRun(cmd, filepath.Join(projectRoot, cfg.MemoryDir), cfg.LineCeilings)
			}
			results, err := pruner.PruneTree(filepath.Join(projectRoot, cfg.MemoryDir))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				cmd.Println("nothing to prune")
				return nil
			}
			for _, r := range results {
				cmd.Printf("%s: %d -> %d lines (%d pruned)\n",
					memory.Rel(r.Path, projectRoot), r.Before, r.After, r.Pruned)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without writing")
	return cmd
}

func pruneDryRun(cmd *cobra.Command, root string, ceilings map[string]int) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		cmd.Println("nothing to prune")
		return nil
	}
	found := false
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".md" || memory.IsOperational(path) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		lines := countLines(string(raw))
		if ceiling := memory.LineCeiling(path, ceilings); lines > ceiling {
			cmd.Printf("%s: %d lines, ceiling %d\n", path, lines, ceiling)
			found = true
		}
		return nil
	})
	if !found {
		cmd.Println("nothing to prune")
	}
	return err
}

func countLines(content string) int {
	n := 1
	for _, r := range content {
		if r == '\n' {
			n++
		}
	}
	if len(content) > 0 && content[len(content)-1] == '\n' {
		n--
	}
	return n
}
