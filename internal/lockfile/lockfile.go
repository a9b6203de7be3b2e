// Package lockfile provides the cross-process advisory lock discipline
// shared by every on-disk resource (diagnostic buffer, memory files,
// chain state). A lock is an O_EXCL-created file next to the resource;
// acquisition waits a bounded time and then fails so callers can fall
// back to drop-and-log instead of stalling an interactive session.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrTimeout is returned when the lock cannot be acquired within the wait
// budget. Callers must treat this as a soft failure.
var ErrTimeout = errors.New("lockfile: wait budget exceeded")

const (
	pollInterval = 10 * time.Millisecond

	// staleAfter guards against locks orphaned by a killed handler.
	// Handlers have a 5s budget, so anything older is abandoned.
	staleAfter = 10 * time.Second
)

// Acquire takes the lock at path, waiting up to wait. On success it returns
// a release function; the caller must invoke it exactly once.
func Acquire(path string, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lockfile: %w", err)
		}

		if st, serr := os.Stat(path); serr == nil && time.Since(st.ModTime()) > staleAfter {
			// Orphaned lock from a killed process; take it over.
			os.Remove(path)
			continue
		}

		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}
