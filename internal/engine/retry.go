package engine

import (
	"context"
	"sync"
	"time"
)

const defaultRetryInterval = 10 * time.Second

// RetryPolicy counts down to the next automatic attempt after a failed cycle.
// Only one countdown runs at a time; scheduling a new one replaces it.
type RetryPolicy struct {
	interval    time.Duration
	maxAttempts int // 0 = unbounded

	mu       sync.Mutex
	attempts int
	cancel   context.CancelFunc
}

// NewRetryPolicy creates a policy with a fixed interval
func NewRetryPolicy(interval time.Duration, maxAttempts int) *RetryPolicy {
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	return &RetryPolicy{interval: interval, maxAttempts: maxAttempts}
}

// Schedule records a failure and starts a countdown. tick receives the
// remaining whole seconds (immediately, then on every second); fire runs
// once the interval elapses unless Stop is called first. It returns the
// failure count and false when the attempt budget is spent, in which case
// nothing is scheduled.
func (p *RetryPolicy) Schedule(tick func(remaining int), fire func()) (int, bool) {
	p.mu.Lock()
	p.attempts++
	attempts := p.attempts
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.maxAttempts > 0 && attempts > p.maxAttempts {
		p.mu.Unlock()
		return attempts, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.countdown(ctx, tick, fire)
	return attempts, true
}

func (p *RetryPolicy) countdown(ctx context.Context, tick func(int), fire func()) {
	deadline := time.Now().Add(p.interval)
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	ticker := time.NewTicker(min(time.Second, p.interval))
	defer ticker.Stop()

	if tick != nil {
		tick(ceilSeconds(p.interval))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.mu.Lock()
			// Lost a race with Stop or a newer Schedule
			if ctx.Err() != nil {
				p.mu.Unlock()
				return
			}
			p.cancel = nil
			p.mu.Unlock()
			fire()
			return
		case now := <-ticker.C:
			if tick != nil && ctx.Err() == nil {
				tick(ceilSeconds(deadline.Sub(now)))
			}
		}
	}
}

// Stop cancels a pending countdown. The failure count is kept.
func (p *RetryPolicy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Reset cancels any countdown and forgets past failures
func (p *RetryPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.attempts = 0
}

// Pending reports whether a countdown is running
func (p *RetryPolicy) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *RetryPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
