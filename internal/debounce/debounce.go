package debounce

import (
	"sync"
	"time"
)

// Debouncer runs at most one pending function per key. Scheduling a key that
// already has a pending timer resets the delay (debounce, not throttle).
type Debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func New() *Debouncer {
	return &Debouncer{timers: make(map[string]*time.Timer)}
}

// Schedule arranges fn to run after delay, replacing any pending run for the
// same key. A zero delay still goes through the timer so fn never runs on the
// caller's goroutine.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// Cancel stops and forgets any pending run for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
}

// CancelAll stops every pending timer.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}

// Pending returns the number of keys with a scheduled run.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
