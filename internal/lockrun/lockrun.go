// Package lockrun serializes scan processes with a file-based advisory lock.
// Two scanners sharing one installation would race on working directories
// and on batch writes, so the second process must bow out immediately
// instead of queueing behind the first.
package lockrun

import (
	"fmt"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another scan process already holds the lock.
var ErrHeld = fmt.Errorf("another scan process holds the lock")

// Lock is a held advisory lock. Release it when the scan loop finishes.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock at path without blocking. A lock held elsewhere
// returns ErrHeld so cron-style schedulers can overlap harmlessly.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", path, ErrHeld)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
