package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
)

// SourceLock is a file lock that keeps a single stock or reconcile run per
// source across processes.
type SourceLock struct {
	lock *flock.Flock
	path string
}

// NewSourceLock creates the lock for source next to the database file. For
// PostgreSQL DSNs the lock lives in the temp directory.
func NewSourceLock(dsn, source string) (*SourceLock, error) {
	name := strings.ToLower(source)
	if name == "" {
		name = "all"
	}
	var base string
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		base = filepath.Join(os.TempDir(), "stockfinder")
	} else {
		absPath, err := GetAbsDBPath(dsn)
		if err != nil {
			return nil, fmt.Errorf("could not get absolute db path: %w", err)
		}
		base = absPath
	}
	lockPath := base + "." + name + lockFileSuffix
	return &SourceLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Path returns the lock file path.
func (l *SourceLock) Path() string { return l.path }

// Lock acquires the lock, waiting if necessary.
// It will log a message if it has to wait.
func (l *SourceLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		Log.Warnf("Another stockfinder process holds %s, waiting for it to finish...", l.path)
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// TryLock acquires the lock only if it is free.
func (l *SourceLock) TryLock() (bool, error) {
	return l.lock.TryLock()
}

// Unlock releases the lock.
func (l *SourceLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the database path.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "stockfinder", "stockfinder.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
