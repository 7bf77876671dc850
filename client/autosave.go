package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AutoSave debounces persistence of the open document: each Notify
// resets a quiet-period timer, and the save runs once the edits stop
// for the configured debounce. SaveNow bypasses the timer for explicit
// saves. Automatic save failures are logged and retried on the next
// edit; only explicit saves report errors to the caller.
type AutoSave struct {
	save     func(ctx context.Context) error
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

func NewAutoSave(debounce time.Duration, save func(ctx context.Context) error) *AutoSave {
	return &AutoSave{save: save, debounce: debounce}
}

// Notify marks the document dirty and (re)starts the debounce timer.
// A burst of edits results in a single save once the burst ends.
func (a *AutoSave) Notify() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.debounce, a.fire)
}

func (a *AutoSave) fire() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.mu.Unlock()

	if err := a.save(context.Background()); err != nil {
		logrus.WithError(err).Warn("Automatic save failed")
	}
}

// SaveNow saves immediately, cancelling any pending debounce so the
// same state is not written twice.
func (a *AutoSave) SaveNow(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	return a.save(ctx)
}

// Close cancels any pending save. It does not flush; callers that want
// a final write call SaveNow first.
func (a *AutoSave) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}
