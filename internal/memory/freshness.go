package memory

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/forgeworks/warden/internal/dispatch"
	"github.com/forgeworks/warden/internal/hookio"
)

// State classifies a memory file by the age of its freshness marker.
type State string

const (
	StateFresh State = "fresh" // 0-30 days
	StateAging State = "aging" // 31-90 days
	StateStale State = "stale" // 91+ days
	StateGhost State = "ghost" // no parseable marker
)

const (
	freshMaxDays = 30
	agingMaxDays = 90
)

// Classify buckets a marker date by calendar-day age relative to now. A
// file exactly at a boundary keeps the milder state.
func Classify(lastUpdated, now time.Time) State {
	days := int(now.Sub(lastUpdated).Hours() / 24)
	switch {
	case days <= freshMaxDays:
		return StateFresh
	case days <= agingMaxDays:
		return StateAging
	default:
		return StateStale
	}
}

// ClassifyFirstLine classifies a file from its first line: ghost when no
// marker parses, the age bucket otherwise. The marker date is returned for
// the non-ghost states.
func ClassifyFirstLine(firstLine string, now time.Time) (State, time.Time) {
	lastUpdated, ok := ParseMarker(firstLine)
	if !ok {
		return StateGhost, time.Time{}
	}
	return Classify(lastUpdated, now), lastUpdated
}

// FreshnessGate blocks reads of stale or unmarked memory files so the
// agent refreshes them before trusting their content.
type FreshnessGate struct {
	memoryDir string
	now       func() time.Time
}

func NewFreshnessGate(memoryDir string) *FreshnessGate {
	return &FreshnessGate{memoryDir: memoryDir, now: time.Now}
}

func (g *FreshnessGate) Name() string { return "freshness" }

func (g *FreshnessGate) Handle(_ context.Context, ev *hookio.Event) (*dispatch.Result, error) {
	path := ev.ToolInput.FilePath
	if ev.ToolName != "Read" || !IsMemoryPath(path, ev.CWD, g.memoryDir) || IsOperational(path) {
		return dispatch.Allow(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return dispatch.Allow(), nil // let the tool surface its own error
	}
	firstLine, _, _ := cutLine(string(content))
	now := g.now()
	state, lastUpdated := ClassifyFirstLine(firstLine, now)
	switch state {
	case StateGhost:
		return dispatch.DenyResult(fmt.Sprintf(
			"Memory freshness: %s has no Last Updated marker; add \"%s\" as the first line before relying on it",
			Rel(path, ev.CWD), Marker(now))), nil
	case StateStale:
		return dispatch.DenyResult(fmt.Sprintf(
			"Memory freshness: %s was last updated %s (stale, >90 days); verify its claims against the codebase and refresh the marker before use",
			Rel(path, ev.CWD), lastUpdated.Format(markerLayout))), nil
	case StateAging:
		return dispatch.AdviseResult(fmt.Sprintf(
			"Memory freshness: %s was last updated %s (aging); treat details with care and refresh when convenient",
			Rel(path, ev.CWD), lastUpdated.Format(markerLayout))), nil
	default:
		return dispatch.Allow(), nil
	}
}

// cutLine splits content at the first newline.
func cutLine(content string) (first, rest string, hadNewline bool) {
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			return content[:i], content[i+1:], true
		}
	}
	return content, "", false
}
