package engine

import (
	"sync"
	"time"
)

const defaultDebounce = 3 * time.Second

// Debouncer coalesces bursts of triggers into one call of fn.
// Every Trigger restarts the quiet window.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64 // Bumped on every Trigger/Stop so a stale timer does nothing
}

// NewDebouncer creates a Debouncer. A zero window uses 3s.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	if window <= 0 {
		window = defaultDebounce
	}
	return &Debouncer{window: window, fn: fn}
}

// Trigger (re)starts the quiet window
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Stop cancels a pending call
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a call is waiting for the window to close
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
