package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	homedir "github.com/mitchellh/go-homedir"
)

const (
	lockFileSuffix = ".lock"
	lockRetryDelay = 250 * time.Millisecond
)

// SnapshotLock serializes writers of the plan snapshot database. The holder
// writes its pid and what it is writing into the lock file, so a waiting
// process can name the run it is queued behind.
type SnapshotLock struct {
	lock    *flock.Flock
	path    string
	purpose string
}

// NewSnapshotLock creates the lock guarding dbPath. purpose describes the
// write, e.g. "plans for shop.example.com/akk".
func NewSnapshotLock(dbPath, purpose string) (*SnapshotLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute db path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &SnapshotLock{
		lock:    flock.New(lockPath),
		path:    lockPath,
		purpose: purpose,
	}, nil
}

// Lock acquires the lock, waiting for the current holder until ctx is done.
func (l *SnapshotLock) Lock(ctx context.Context) error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		holder := l.Holder()
		Log.Warnf("Waiting for another planscope process to finish writing %s", holder)
		if _, err := l.lock.TryLockContext(ctx, lockRetryDelay); err != nil {
			return fmt.Errorf("waiting for %s: %w", holder, err)
		}
	}

	record := strconv.Itoa(os.Getpid()) + " " + l.purpose + "\n"
	if err := os.WriteFile(l.path, []byte(record), 0o644); err != nil {
		Log.Debugf("could not record lock holder in %s: %v", l.path, err)
	}
	return nil
}

// Holder describes the process that last took the lock, or "plan snapshots"
// when the lock file carries no record.
func (l *SnapshotLock) Holder() string {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return "plan snapshots"
	}
	pid, purpose, ok := strings.Cut(strings.TrimSpace(string(b)), " ")
	if !ok || purpose == "" {
		return "plan snapshots"
	}
	return purpose + " (pid " + pid + ")"
}

// Unlock clears the holder record and releases the lock.
func (l *SnapshotLock) Unlock() error {
	if l.lock.Locked() {
		_ = os.Truncate(l.path, 0)
	}
	if err := l.lock.Unlock(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the database path, expanding a leading ~. An empty
// path means the default location under the user's config directory.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "planscope", "planscope.sqlite"), nil
	}
	expanded, err := homedir.Expand(dbPath)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}
