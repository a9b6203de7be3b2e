// Package diag implements the shared diagnostic buffer: a capped,
// append-only log on disk that every handler reports warnings into and the
// telemetry aggregator drains at session boundaries. Because handlers run
// as independent short-lived processes across concurrent sessions, the
// buffer is an arena-style file resource guarded by an advisory lock, not
// an in-memory singleton.
package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/forgeworks/warden/internal/lockfile"
)

// Severity levels for buffered entries.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

const (
	bufferFile = "health_buffer"
	lockFile   = "health_buffer.lock"

	// DefaultCapacity is the retention cap; the oldest entries are evicted
	// first once the buffer is full.
	DefaultCapacity = 200

	// DefaultLockWait bounds how long an append may stall a handler.
	DefaultLockWait = 500 * time.Millisecond
)

// Entry is one diagnostic record.
type Entry struct {
	Timestamp time.Time
	Source    string
	Severity  string
	Message   string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s %s %s",
		e.Timestamp.UTC().Format(time.RFC3339), e.Source, e.Severity, e.Message)
}

// Buffer is a handle to the on-disk diagnostic buffer of one runtime
// directory. Handles are cheap; all state lives in the files.
type Buffer struct {
	path     string
	lockPath string
	capacity int
	lockWait time.Duration
	logger   *zap.Logger
}

// Option configures a Buffer handle.
type Option func(*Buffer)

// WithCapacity overrides the retention cap.
func WithCapacity(n int) Option {
	return func(b *Buffer) { b.capacity = n }
}

// WithLockWait overrides the lock wait budget.
func WithLockWait(d time.Duration) Option {
	return func(b *Buffer) { b.lockWait = d }
}

// New returns a buffer handle rooted at the given runtime directory
// (created on first append if missing).
func New(runtimeDir string, logger *zap.Logger, opts ...Option) *Buffer {
	b := &Buffer{
		path:     filepath.Join(runtimeDir, bufferFile),
		lockPath: filepath.Join(runtimeDir, lockFile),
		capacity: DefaultCapacity,
		lockWait: DefaultLockWait,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append writes one entry, evicting the oldest lines beyond capacity.
// It never blocks beyond the lock wait budget: on lock timeout the entry
// is dropped and a best-effort notice is logged instead of stalling the
// caller. The returned error is informational only — callers proceed
// regardless.
func (b *Buffer) Append(source, severity, message string) error {
	if message == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("diag: create runtime dir: %w", err)
	}

	release, err := lockfile.Acquire(b.lockPath, b.lockWait)
	if err != nil {
		b.logger.Warn("diagnostic buffer lock unavailable, dropping entry",
			zap.String("source", source),
			zap.String("message", message),
			zap.Error(err),
		)
		return err
	}
	defer release()

	entry := Entry{Timestamp: time.Now(), Source: source, Severity: severity, Message: message}
	lines := readLines(b.path)
	lines = append(lines, entry.String())
	if len(lines) > b.capacity {
		lines = lines[len(lines)-b.capacity:]
	}
	return writeLinesAtomic(b.path, lines)
}

// Drain atomically reads all entries and clears the buffer. A drain that
// cannot take the lock returns no entries rather than blocking.
func (b *Buffer) Drain() ([]Entry, error) {
	release, err := lockfile.Acquire(b.lockPath, b.lockWait)
	if err != nil {
		b.logger.Warn("diagnostic buffer lock unavailable, skipping drain", zap.Error(err))
		return nil, err
	}
	defer release()

	lines := readLines(b.path)
	if len(lines) == 0 {
		return nil, nil
	}
	if err := writeLinesAtomic(b.path, nil); err != nil {
		return nil, fmt.Errorf("diag: clear buffer: %w", err)
	}

	entries := make([]Entry, 0, len(lines))
	for _, l := range lines {
		entries = append(entries, parseLine(l))
	}
	return entries, nil
}

// Len reports the current entry count without clearing.
func (b *Buffer) Len() int {
	return len(readLines(b.path))
}

func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func writeLinesAtomic(path string, lines []string) error {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".buffer-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// parseLine is forgiving: lines that predate the engine or were written by
// other tooling are kept with their raw text as the message.
func parseLine(line string) Entry {
	e := Entry{Message: line, Severity: SeverityWarning, Timestamp: time.Now()}
	if !strings.HasPrefix(line, "[") {
		return e
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return e
	}
	ts, err := time.Parse(time.RFC3339, line[1:end])
	if err != nil {
		return e
	}
	e.Timestamp = ts
	rest := strings.TrimSpace(line[end+1:])
	parts := strings.SplitN(rest, " ", 3)
	if len(parts) == 3 {
		e.Source, e.Severity, e.Message = parts[0], parts[1], parts[2]
	} else {
		e.Message = rest
	}
	return e
}
