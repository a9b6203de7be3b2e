package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	archiveDirName      = "archive"
	archiveManifestName = "manifest.md"
	archiveAfter        = 7 * 24 * time.Hour
)

// Archiver moves generated documents that have sat untouched in the output
// directory into a month-bucketed archive tree, and keeps the manifest
// current. Per-file failures are logged and skipped.
type Archiver struct {
	outputDir string
	logger    *zap.Logger
	now       func() time.Time
}

func NewArchiver(outputDir string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{outputDir: outputDir, logger: logger, now: time.Now}
}

// Archive sweeps projectRoot/<outputDir> and returns the project-relative
// paths of the files it moved. A missing output directory is not an error.
func (a *Archiver) Archive(projectRoot string) ([]string, error) {
	root := filepath.Join(projectRoot, a.outputDir)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	cutoff := a.now().Add(-archiveAfter)
	var moved []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") || entry.Name() == archiveManifestName {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		bucket := filepath.Join(root, archiveDirName, info.ModTime().Format("2006-01"))
		if err := os.MkdirAll(bucket, 0o755); err != nil {
			a.logger.Warn("archive bucket", zap.String("bucket", bucket), zap.Error(err))
			continue
		}
		src := filepath.Join(root, entry.Name())
		dst := filepath.Join(bucket, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			a.logger.Warn("archive move", zap.String("file", src), zap.Error(err))
			continue
		}
		rel, _ := filepath.Rel(projectRoot, dst)
		moved = append(moved, filepath.ToSlash(rel))
	}
	if len(moved) > 0 {
		if err := a.writeManifest(root); err != nil {
			a.logger.Warn("archive manifest", zap.Error(err))
		}
	}
	return moved, nil
}

// writeManifest regenerates the archive manifest listing every archived
// document by month bucket.
func (a *Archiver) writeManifest(outputRoot string) error {
	archiveRoot := filepath.Join(outputRoot, archiveDirName)
	buckets, err := os.ReadDir(archiveRoot)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Archived Output\n\nRegenerated %s.\n", a.now().Format("2006-01-02"))
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name() > buckets[j].Name() })
	for _, bucket := range buckets {
		if !bucket.IsDir() {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", bucket.Name())
		files, err := os.ReadDir(filepath.Join(archiveRoot, bucket.Name()))
		if err != nil {
			continue
		}
		for _, file := range files {
			fmt.Fprintf(&b, "- %s/%s\n", bucket.Name(), file.Name())
		}
	}
	return os.WriteFile(filepath.Join(outputRoot, archiveManifestName), []byte(b.String()), 0o644)
}
