package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
	"github.com/forgeworks/warden/internal/lockfile"
	"github.com/forgeworks/warden/internal/memory"
)

const chainStateFile = "chain_state.json"

// ChainState is the per-session command history persisted under the
// runtime directory so successive hook processes share it.
type ChainState struct {
	SessionID      string         `json:"sessionId"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	CommandHistory []CommandEntry `json:"commandHistory"`
}

// CommandEntry records one completed task in the session.
type CommandEntry struct {
	Command     string    `json:"command"`
	TaskID      string    `json:"taskId,omitempty"`
	TaskSubject string    `json:"taskSubject,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChainRecorder appends completed tasks to the session chain state,
// resetting the history when a new session begins.
type ChainRecorder struct {
	runtimeDir string
	lockWait   time.Duration
	now        func() time.Time
}

func NewChainRecorder(runtimeDir string, lockWait time.Duration) *ChainRecorder {
	return &ChainRecorder{runtimeDir: runtimeDir, lockWait: lockWait, now: time.Now}
}

func (r *ChainRecorder) Name() string { return "chain_state" }

func (r *ChainRecorder) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	if ev.SessionID == "" {
		return dispatch.Allow(), nil
	}
	if err := os.MkdirAll(r.runtimeDir, 0o755); err != nil {
		return nil, fmt.Errorf("chain state: %w", err)
	}
	path := filepath.Join(r.runtimeDir, chainStateFile)
	release, err := lockfile.Acquire(path+".lock", r.lockWait)
	if err != nil {
		return nil, fmt.Errorf("chain state: %w", err)
	}
	defer release()

	state := r.load(path)
	if state.SessionID != ev.SessionID {
		state = &ChainState{SessionID: ev.SessionID}
	}
	// Hosts may redeliver a completion event; replays of the same task
	// must not grow the history.
	if n := len(state.CommandHistory); n > 0 && ev.TaskID != "" && state.CommandHistory[n-1].TaskID == ev.TaskID {
		return dispatch.Allow(), nil
	}
	state.UpdatedAt = r.now()
	state.CommandHistory = append(state.CommandHistory, CommandEntry{
		Command:     commandName(ev.TaskSubject),
		TaskID:      ev.TaskID,
		TaskSubject: ev.TaskSubject,
		Timestamp:   r.now(),
	})

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("chain state: %w", err)
	}
	if err := memory.WriteFileAtomic(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("chain state: %w", err)
	}
	return dispatch.Allow(), nil
}

func (r *ChainRecorder) load(path string) *ChainState {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &ChainState{}
	}
	var state ChainState
	if err := json.Unmarshal(raw, &state); err != nil {
		return &ChainState{} // corrupt state is discarded, not fatal
	}
	return &state
}

// LoadChainState reads the current chain state for reporting. A missing
// file yields an empty state.
func LoadChainState(runtimeDir string) (*ChainState, error) {
	raw, err := os.ReadFile(filepath.Join(runtimeDir, chainStateFile))
	if os.IsNotExist(err) {
		return &ChainState{}, nil
	}
	if err != nil {
		return nil, err
	}
	var state ChainState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("chain state: %w", err)
	}
	return &state, nil
}

// commandName derives the slash-command name from a task subject, or
// "task" for free-form work.
func commandName(subject string) string {
	subject = strings.TrimSpace(subject)
	if !strings.HasPrefix(subject, "/") {
		return "task"
	}
	name := strings.Fields(subject)[0]
	return strings.TrimPrefix(name, "/")
}

// SessionCleaner clears per-session shared state when the session ends so
// the next session starts from a clean slate.
type SessionCleaner struct {
	runtimeDir string
}

func NewSessionCleaner(runtimeDir string) *SessionCleaner {
	return &SessionCleaner{runtimeDir: runtimeDir}
}

func (c *SessionCleaner) Name() string { return "session_cleanup" }

func (c *SessionCleaner) Handle(_ context.Context, _ *hookio.Event) (*dispatch.Result, error) {
	for _, name := range []string{chainStateFile, chainStateFile + ".lock"} {
		if err := os.Remove(filepath.Join(c.runtimeDir, name)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("session cleanup: %w", err)
		}
	}
	return dispatch.Allow(), nil
}
