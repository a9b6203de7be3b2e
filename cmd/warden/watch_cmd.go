package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgeworks/warden/internal/config"
	"github.com/forgeworks/warden/internal/memory"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the memory tree, report freshness problems and prune over-ceiling files live",
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

			return runWatch(cmd, projectRoot, cfg, logger)
		},
	}
}

func runWatch(cmd *cobra.Command, projectRoot string, cfg *config.Config, logger *zap.Logger) error {
	memoryRoot := filepath.Join(projectRoot, cfg.MemoryDir)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watchTree(watcher, memoryRoot); err != nil {
		return fmt.Errorf("watch %s: %w", memoryRoot, err)
	}
	cmd.Printf("watching %s\n", memoryRoot)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, ev.Name); err != nil {
						logger.Warn("watch subtree", zap.String("dir", ev.Name), zap.Error(err))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reportFile(cmd, ev.Name, projectRoot, cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		case sig := <-sigCh:
			logger.Info("stopping watch", zap.String("signal", sig.String()))
			return nil
		}
	}
}

// watchTree registers a directory and all its subdirectories.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

func reportFile(cmd *cobra.Command, path, projectRoot string, cfg *config.Config) {
	if !strings.HasSuffix(path, ".md") || memory.IsOperational(path) {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	rel := memory.Rel(path, projectRoot)
	content := string(raw)

	firstLine := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		firstLine = content[:i]
	}
	switch state, lastUpdated := memory.ClassifyFirstLine(firstLine, time.Now()); state {
	case memory.StateFresh:
	case memory.StateGhost:
		cmd.Printf("%s  %s: ghost (no Last Updated marker)\n", time.Now().Format("15:04:05"), rel)
	default:
		cmd.Printf("%s  %s: %s (last updated %s)\n",
			time.Now().Format("15:04:05"), rel, state, lastUpdated.Format("2006-01-02"))
	}

	lines := strings.Count(strings.TrimRight(content, "\n"), "\n") + 1
	if ceiling := memory.LineCeiling(path, cfg.LineCeilings); lines > ceiling {
		pruned, count := memory.PruneContent(content, ceiling, time.Now())
		if err := memory.WriteFileAtomic(path, []byte(pruned), 0o644); err != nil {
			cmd.Printf("%s  %s: %d lines, over the %d-line ceiling (prune failed: %v)\n",
				time.Now().Format("15:04:05"), rel, lines, ceiling, err)
			return
		}
		cmd.Printf("%s  %s: %d lines, over the %d-line ceiling; pruned %d\n",
			time.Now().Format("15:04:05"), rel, lines, ceiling, count)
	}
}
