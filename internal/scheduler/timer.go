// Package scheduler provides the timing capabilities of Warmline: one-shot
// deferred continuations for paced sends, and cron-based maintenance jobs.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Timer schedules one-shot deferred continuations. The warming orchestrator
// depends on this interface rather than wall-clock sleeps so tests can drive
// time manually.
type Timer interface {
	// After schedules fn to run once after delay and returns a cancel id.
	After(delay time.Duration, fn func()) (string, error)

	// Cancel cancels a scheduled function. Cancelling an unknown or already
	// fired id is a no-op.
	Cancel(id string) error

	// StopAll cancels every outstanding scheduled function.
	StopAll()
}

// SimpleTimer implements Timer with time.AfterFunc.
type SimpleTimer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	nextID int64
}

// NewSimpleTimer creates an empty SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{timers: make(map[string]*time.Timer)}
}

// After schedules fn to run once after delay.
func (t *SimpleTimer) After(delay time.Duration, fn func()) (string, error) {
	t.mu.Lock()
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)
	t.mu.Unlock()

	timer := time.AfterFunc(delay, func() {
		fn()
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
	})

	t.mu.Lock()
	t.timers[id] = timer
	t.mu.Unlock()

	slog.Debug("timer scheduled", "id", id, "delay", delay)
	return id, nil
}

// Cancel stops a scheduled timer by id.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
		slog.Debug("timer cancelled", "id", id)
	}
	return nil
}

// StopAll cancels every outstanding timer.
func (t *SimpleTimer) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	slog.Debug("all timers stopped")
}

// Active returns the number of outstanding timers.
func (t *SimpleTimer) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
