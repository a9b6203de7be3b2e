package memory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
	"github.com/forgeworks/warden/internal/lockfile"
)

// PruneResult records one file the pruner touched.
type PruneResult struct {
	Path   string
	Before int
	After  int
	Pruned int
}

// PruneContent enforces the line ceiling on a memory file's content: the
// first HeaderLines lines are kept byte for byte, a prune notice takes one
// line, and the newest tail fills the rest so the result sits exactly at
// the ceiling. Content at or under the ceiling is returned unchanged, which
// makes pruning idempotent.
func PruneContent(content string, ceiling int, now time.Time) (string, int) {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) <= ceiling {
		return content, 0
	}
	header := lines[:HeaderLines]
	tailLen := ceiling - HeaderLines - 1
	pruned := len(lines) - HeaderLines - tailLen
	notice := fmt.Sprintf("<!-- %d lines pruned %s -->", pruned, now.Format(markerLayout))
	out := make([]string, 0, ceiling)
	out = append(out, header...)
	out = append(out, notice)
	out = append(out, lines[len(lines)-tailLen:]...)
	return strings.Join(out, "\n") + "\n", pruned
}

// Pruner trims over-ceiling memory files at session end.
type Pruner struct {
	memoryDir string
	ceilings  map[string]int
	lockWait  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewPruner(memoryDir string, ceilings map[string]int, lockWait time.Duration, logger *zap.Logger) *Pruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{memoryDir: memoryDir, ceilings: ceilings, lockWait: lockWait, logger: logger, now: time.Now}
}

func (p *Pruner) Name() string { return "memory_prune" }

func (p *Pruner) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	results, err := p.PruneTree(filepath.Join(ev.CWD, p.memoryDir))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return dispatch.Allow(), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Memory pruning: %d file(s) trimmed to their line ceilings:\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "  - %s: %d -> %d lines\n", Rel(r.Path, ev.CWD), r.Before, r.After)
	}
	return dispatch.AdviseResult(strings.TrimRight(b.String(), "\n")), nil
}

// PruneTree walks the memory directory and trims every over-ceiling file.
// A missing directory is not an error; per-file failures are logged and
// skipped so one bad file never blocks the sweep.
func (p *Pruner) PruneTree(root string) ([]PruneResult, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	release, err := lockfile.Acquire(filepath.Join(root, ".prune.lock"), p.lockWait)
	if err != nil {
		return nil, fmt.Errorf("prune: %w", err)
	}
	defer release()

	var results []PruneResult
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") || IsOperational(path) {
			return nil
		}
		r, perr := p.pruneFile(path)
		if perr != nil {
			p.logger.Warn("prune skipped file", zap.String("path", path), zap.Error(perr))
			return nil
		}
		if r.Pruned > 0 {
			results = append(results, r)
		}
		return nil
	})
	return results, err
}

func (p *Pruner) pruneFile(path string) (PruneResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PruneResult{}, err
	}
	ceiling := LineCeiling(path, p.ceilings)
	before := strings.Count(strings.TrimRight(string(raw), "\n"), "\n") + 1
	trimmed, pruned := PruneContent(string(raw), ceiling, p.now())
	if pruned == 0 {
		return PruneResult{Path: path, Before: before, After: before}, nil
	}
	if err := WriteFileAtomic(path, []byte(trimmed), 0o644); err != nil {
		return PruneResult{}, err
	}
	return PruneResult{Path: path, Before: before, After: ceiling, Pruned: pruned}, nil
}
