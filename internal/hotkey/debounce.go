package hotkey

import (
	"sync"
	"time"
)

// Debouncer suppresses repeated triggers within a fixed window.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval, now: time.Now}
}

// Allow records a trigger and reports whether it should fire. A trigger is
// rejected when less than the window has elapsed since the last accepted one.
func (d *Debouncer) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.interval {
		return false
	}
	d.last = now
	return true
}
