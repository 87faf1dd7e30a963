package flagstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrLockHeld is returned when the inter-process lock could not be acquired
// within the bounded retry budget.
var ErrLockHeld = errors.New("flagstore: lock held")

const (
	lockRetries   = 10
	lockBaseDelay = 25 * time.Millisecond
	lockMaxDelay  = 400 * time.Millisecond

	// lockStaleAfter is the staleness ceiling: a lock file older than this is
	// presumed abandoned by a crashed holder and reclaimed. Two writers that
	// both observe a stale lock can race on the reclaim; the window is narrow
	// enough for a single-host deployment but this is not a fencing lock.
	lockStaleAfter = 10 * time.Second
)

// fileLock is a sibling ".lock" file created with O_EXCL. It coordinates
// read-modify-write cycles across process instances sharing the record file.
type fileLock struct {
	path string
}

// acquire takes the lock with bounded exponential backoff. Stale locks are
// reclaimed after lockStaleAfter.
func (l *fileLock) acquire() error {
	delay := lockBaseDelay
	for attempt := 0; attempt < lockRetries; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano))
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("flagstore: create lock %s: %w", l.path, err)
		}

		if st, serr := os.Stat(l.path); serr == nil && time.Since(st.ModTime()) > lockStaleAfter {
			slog.Warn("flagstore: reclaiming stale lock", "path", l.path, "age", time.Since(st.ModTime()))
			os.Remove(l.path)
			continue
		}

		time.Sleep(delay)
		delay *= 2
		if delay > lockMaxDelay {
			delay = lockMaxDelay
		}
	}
	return ErrLockHeld
}

func (l *fileLock) release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("flagstore: release lock", "path", l.path, "error", err)
	}
}
