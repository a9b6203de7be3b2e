// Package memory implements the lifecycle of the agent's persistent
// markdown memory: freshness classification, the post-write quality gate,
// cross-skill insight pollination and line-ceiling pruning.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MarkerPrefix opens the first-line freshness marker every memory file
// carries: <!-- Last Updated: YYYY-MM-DD -->.
const (
	MarkerPrefix = "<!-- Last Updated: "
	MarkerSuffix = " -->"
	markerLayout = "2006-01-02"
)

// Default per-category line ceilings. HeaderLines of a pruned file are
// preserved byte for byte.
const (
	CeilingProjectOverview = 200
	CeilingReviewHistory   = 300
	CeilingDefault         = 500
	HeaderLines            = 5
)

// Operational files are lifecycle bookkeeping, not memory content; the
// freshness and ceiling rules do not apply to them.
var operationalFiles = map[string]struct{}{
	"index.md":            {},
	"lifecycle.md":        {},
	"quality_guidance.md": {},
	"sync_log.md":         {},
}

// IsMemoryPath reports whether path is a markdown file under the project's
// memory directory.
func IsMemoryPath(path, projectRoot, memoryDir string) bool {
	if !strings.HasSuffix(path, ".md") {
		return false
	}
	rel := Rel(path, projectRoot)
	return rel == memoryDir || strings.HasPrefix(rel, memoryDir+"/")
}

// IsOperational reports whether the file is lifecycle bookkeeping exempt
// from freshness and ceiling rules.
func IsOperational(path string) bool {
	_, ok := operationalFiles[filepath.Base(path)]
	return ok
}

// Rel renders path relative to the project root with forward slashes, or
// returns the cleaned input when it does not sit under the root.
func Rel(path, projectRoot string) string {
	if projectRoot != "" {
		if rel, err := filepath.Rel(projectRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// LineCeiling returns the pruning ceiling for a memory file: named
// categories first, overrides winning over the built-in table, and the
// default ceiling otherwise.
func LineCeiling(path string, overrides map[string]int) int {
	category := strings.TrimSuffix(filepath.Base(path), ".md")
	if v, ok := overrides[category]; ok && v > HeaderLines {
		return v
	}
	switch category {
	case "project_overview":
		return CeilingProjectOverview
	case "review_history":
		return CeilingReviewHistory
	}
	if v, ok := overrides["default"]; ok && v > HeaderLines {
		return v
	}
	return CeilingDefault
}

// ParseMarker extracts the last-updated date from a file's first line.
func ParseMarker(firstLine string) (time.Time, bool) {
	line := strings.TrimSpace(firstLine)
	if !strings.HasPrefix(line, MarkerPrefix) || !strings.HasSuffix(line, MarkerSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(line, MarkerPrefix), MarkerSuffix)
	t, err := time.Parse(markerLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Marker renders the first-line freshness marker for a date.
func Marker(t time.Time) string {
	return MarkerPrefix + t.Format(markerLayout) + MarkerSuffix
}

// InjectMarker sets the freshness marker on content to the given date,
// replacing an existing first-line marker or prepending a new one. The
// second return reports whether content changed.
func InjectMarker(content string, t time.Time) (string, bool) {
	marker := Marker(t)
	lines := strings.SplitN(content, "\n", 2)
	if _, ok := ParseMarker(lines[0]); ok {
		if strings.TrimSpace(lines[0]) == marker {
			return content, false
		}
		if len(lines) == 1 {
			return marker, true
		}
		return marker + "\n" + lines[1], true
	}
	return marker + "\n" + content, true
}

// WriteFileAtomic writes data via a temp file in the target directory and
// renames it into place, so readers never observe a torn file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("atomic write %s: %w", path, err)
	}
	return nil
}
