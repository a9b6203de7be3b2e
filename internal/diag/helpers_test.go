package diag

import (
	"path/filepath"
	"time"

	"github.com/forgeworks/warden/internal/lockfile"
)

// acquireForTest takes the buffer lock of a runtime dir directly so tests
// can simulate a concurrent holder.
func acquireForTest(runtimeDir string) (func(), error) {
	return lockfile.Acquire(filepath.Join(runtimeDir, lockFile), time.Second)
}
