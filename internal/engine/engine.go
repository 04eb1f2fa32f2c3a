// Package engine keeps the local content cache in step with the backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/fetcher"
)

// Options configures an Engine. Backend, Notifier, Meta and Blobs are required.
type Options struct {
	Backend  domain.Backend
	Notifier domain.Notifier
	Meta     domain.MetadataStore
	Blobs    domain.BlobStore

	Debounce      time.Duration // Quiet window for push events (default 3s)
	RetryInterval time.Duration // Countdown after a failed cycle (default 10s)
	MaxRetries    int           // 0 = unbounded
	FetchTimeout  time.Duration // Per-item download bound (default 60s)
	FetchLimiter  *rate.Limiter // nil = unthrottled

	Logger *slog.Logger
}

// Engine runs sync cycles: authenticate, clear, download, persist.
// At most one cycle runs at a time.
type Engine struct {
	backend  domain.Backend
	notifier domain.Notifier
	meta     domain.MetadataStore
	blobs    domain.BlobStore
	fetcher  *fetcher.Fetcher
	logger   *slog.Logger

	retry    *RetryPolicy
	debounce *Debouncer

	// Background cycles (debounce, retry) run under this context
	ctx  context.Context
	stop context.CancelFunc

	cycleMu sync.Mutex     // Single-cycle guard
	workers sync.WaitGroup // Goroutines started by spawn

	mu          sync.Mutex // Protects fields below
	password    string     // Established password, empty when unauthenticated
	cancelCycle context.CancelFunc
	closed      bool
	state       domain.State
	observers   []domain.StateObserver

	notifyMu sync.Mutex // Serializes observer delivery
}

// New creates an Engine
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())

	e := &Engine{
		backend:  opts.Backend,
		notifier: opts.Notifier,
		meta:     opts.Meta,
		blobs:    opts.Blobs,
		fetcher:  fetcher.New(opts.Backend, opts.Blobs, opts.FetchTimeout, opts.FetchLimiter, logger),
		logger:   logger,
		retry:    NewRetryPolicy(opts.RetryInterval, opts.MaxRetries),
		ctx:      ctx,
		stop:     stop,
	}
	e.debounce = NewDebouncer(opts.Debounce, e.onDebounced)
	return e
}

// Start restores the device from the cached summary and subscribes to push
// events. An offline backend does not stop the cached set from playing.
// An empty or unfinished content set is resynced in the background.
func (e *Engine) Start(ctx context.Context) error {
	summary, ok, err := e.meta.GetSummary()
	if err != nil {
		return fmt.Errorf("failed to read cached summary: %w", err)
	}
	if !ok || summary.Password == "" {
		e.logger.Info("no cached device, waiting for login")
		e.setState(func(s *domain.State) { s.Status = domain.StatusUnauthenticated })
		return nil
	}

	e.mu.Lock()
	e.password = summary.Password
	e.mu.Unlock()

	e.setState(func(s *domain.State) {
		s.Status = domain.StatusIdle
		s.Authenticated = true
	})
	e.logger.Info("restored cached device", "device", summary.ID, "organization", summary.Organization)

	if err := e.notifier.Connect(summary.Password, e.HandleEvent); err != nil {
		e.logger.Warn("notifier connect failed", "error", err)
	}

	resync, err := e.needsResync()
	if err != nil {
		return err
	}
	if resync {
		e.logger.Info("cached content set is empty or unfinished, resyncing")
		e.spawn(func() { e.background("startup") })
	}
	return nil
}

// needsResync reports whether the cache holds no content or a generation
// that was cut off before its summary was written
func (e *Engine) needsResync() (bool, error) {
	incomplete, err := e.meta.Incomplete()
	if err != nil {
		return false, fmt.Errorf("failed to read cache state: %w", err)
	}
	if incomplete {
		return true, nil
	}
	items, err := e.meta.GetAllContentItems()
	if err != nil {
		return false, fmt.Errorf("failed to read cached content: %w", err)
	}
	return len(items) == 0, nil
}

// Login runs a cycle for password and waits for it.
// ErrAuthFailed leaves the cache untouched. Before any password was
// established a network failure is returned as ErrServerOffline; afterwards
// cycle failures also put the engine into the degraded state.
func (e *Engine) Login(ctx context.Context, password string) error {
	if password == "" {
		return domain.ErrAuthFailed
	}
	return e.runCycle(ctx, password, "login")
}

// RetryNow cancels a pending countdown and runs a cycle immediately
func (e *Engine) RetryNow(ctx context.Context) error {
	password := e.currentPassword()
	if password == "" {
		return domain.ErrNotAuthenticated
	}
	e.retry.Stop()
	return e.runCycle(ctx, password, "retry")
}

// Logout forgets the device and clears both stores
func (e *Engine) Logout() error {
	return e.reset("logout")
}

// HandleEvent routes a push event. Content changes are debounced;
// device deletion resets the engine on its own goroutine.
func (e *Engine) HandleEvent(ev domain.Event) {
	switch ev.Kind {
	case domain.EventContentChanged:
		if e.currentPassword() == "" {
			return
		}
		e.logger.Debug("content change event", "event", ev.Name)
		e.debounce.Trigger()
	case domain.EventDeviceDeleted:
		e.logger.Warn("device deleted by backend")
		// reset disconnects the notifier, which waits for this handler to return
		e.spawn(func() {
			if err := e.reset("device deleted"); err != nil {
				e.logger.Error("failed to clear cache after device deletion", "error", err)
			}
		})
	default:
		e.logger.Debug("ignoring unknown event", "event", ev.Name)
	}
}

// State returns the current snapshot
func (e *Engine) State() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// AddObserver registers o for every subsequent state change
func (e *Engine) AddObserver(o domain.StateObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Close stops timers, cancels a running cycle and disconnects the notifier.
// The cache is kept.
func (e *Engine) Close() {
	e.debounce.Stop()
	e.retry.Stop()
	e.stop()

	e.mu.Lock()
	e.closed = true
	if e.cancelCycle != nil {
		e.cancelCycle()
	}
	e.mu.Unlock()
	e.workers.Wait()

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()
	e.notifier.Disconnect()
}

// spawn runs fn on a goroutine that Close waits for
func (e *Engine) spawn(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		fn()
	}()
}

func (e *Engine) currentPassword() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.password
}

// onDebounced runs after a burst of content events settles
func (e *Engine) onDebounced() {
	e.background("event")
}

// onRetry runs when the degraded countdown expires
func (e *Engine) onRetry() {
	e.background("retry")
}

func (e *Engine) background(trigger string) {
	password := e.currentPassword()
	if password == "" {
		return
	}
	err := e.runCycle(e.ctx, password, trigger)
	switch {
	case errors.Is(err, domain.ErrCycleInProgress):
		e.logger.Info("cycle already running, trigger ignored", "trigger", trigger)
	case err != nil:
		e.logger.Warn("background cycle failed", "trigger", trigger, "error", err)
	}
}

// reset is the terminal path shared by logout and device deletion.
// The running cycle is cancelled and waited for so that nothing it
// writes survives the clear.
func (e *Engine) reset(reason string) error {
	e.debounce.Stop()
	e.retry.Stop()

	e.mu.Lock()
	if e.cancelCycle != nil {
		e.cancelCycle()
	}
	e.mu.Unlock()

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.notifier.Disconnect()
	err := errors.Join(e.meta.Clear(), e.blobs.Clear())

	e.mu.Lock()
	e.password = ""
	e.mu.Unlock()
	e.retry.Reset()

	e.logger.Info("device reset", "reason", reason)
	e.setState(func(s *domain.State) {
		*s = domain.State{Status: domain.StatusUnauthenticated}
		if err != nil {
			s.LastError = err.Error()
		}
	})
	return err
}

// runCycle performs one full sync for password
func (e *Engine) runCycle(ctx context.Context, password, trigger string) error {
	if !e.cycleMu.TryLock() {
		return domain.ErrCycleInProgress
	}
	defer e.cycleMu.Unlock()

	// A fresh cycle supersedes both pending triggers
	e.retry.Stop()
	e.debounce.Stop()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	established := e.password != ""
	e.cancelCycle = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancelCycle = nil
		e.mu.Unlock()
	}()

	cycleID := uuid.NewString()
	logger := e.logger.With("cycle", cycleID)
	logger.Info("sync cycle started", "trigger", trigger, "password_set", established)

	e.setState(func(s *domain.State) {
		s.Status = domain.StatusSyncing
		s.CycleID = cycleID
		s.Progress = 0
		s.RetryIn = 0
	})

	result, err := e.sync(cctx, logger, cycleID, password)
	if err != nil {
		return e.fail(ctx, cctx, logger, err, established)
	}

	e.mu.Lock()
	e.password = password
	e.mu.Unlock()
	e.retry.Reset()

	e.setState(func(s *domain.State) {
		s.Status = domain.StatusIdle
		s.Authenticated = true
		s.Progress = 100
		s.Attempts = 0
		s.LastError = ""
		s.Result = result
	})
	logger.Info("sync cycle complete", "total", result.Total, "cached", result.Cached, "failed", result.Failed)

	if err := e.notifier.Connect(password, e.HandleEvent); err != nil {
		logger.Warn("notifier connect failed", "error", err)
	}
	return nil
}

// sync does the work of a cycle. The summary is written last so that its
// presence marks a completed generation.
func (e *Engine) sync(ctx context.Context, logger *slog.Logger, cycleID, password string) (*domain.SyncResult, error) {
	resp, err := e.backend.Authenticate(ctx, password)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Old generation goes before the first new blob arrives
	if err := e.meta.ClearContent(); err != nil {
		return nil, err
	}
	if err := e.blobs.Clear(); err != nil {
		return nil, err
	}

	items := make(map[string]domain.ContentItem, len(resp.Content))
	reqs := make([]fetcher.Request, 0, len(resp.Content))
	for _, item := range resp.Content {
		item.LocalBlobHandle = nil
		items[item.Key] = item
		reqs = append(reqs, fetcher.Request{Key: item.Key, URL: item.RemoteURL})
	}

	result := &domain.SyncResult{CycleID: cycleID, Total: len(reqs)}
	err = e.fetcher.Fetch(ctx, reqs, func(res fetcher.Result) error {
		item := items[res.Key]
		if res.Err == nil {
			handle := res.Key
			item.LocalBlobHandle = &handle
			result.Cached++
		} else {
			result.Failed++
		}
		if err := e.meta.PutContentItem(res.Key, item); err != nil {
			return err
		}
		logger.Debug("content item stored", "key", res.Key, "cached", res.Err == nil, "progress", res.Percent)
		e.setState(func(s *domain.State) {
			if res.Percent > s.Progress {
				s.Progress = res.Percent
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary := resp.Summary
	if summary.Password == "" {
		summary.Password = password
	}
	if err := e.meta.PutSummary(summary); err != nil {
		return nil, err
	}
	return result, nil
}

// fail records a failed cycle and decides whether to schedule a retry
func (e *Engine) fail(parent, cctx context.Context, logger *slog.Logger, err error, established bool) error {
	// Cancelled by reset or Close: whoever cancelled owns the state
	if cctx.Err() != nil && parent.Err() == nil {
		logger.Info("sync cycle cancelled")
		return context.Canceled
	}

	var storeErr *domain.StoreError
	switch {
	case errors.Is(err, domain.ErrAuthFailed):
		logger.Warn("sync cycle rejected", "error", err)
		e.setState(func(s *domain.State) {
			s.Status = statusAtRest(s.Authenticated)
			s.Progress = 0
			s.LastError = err.Error()
		})
		return err
	case errors.As(err, &storeErr):
		logger.Error("sync cycle failed", "error", err)
	default:
		logger.Warn("sync cycle failed", "error", err)
	}

	if !established || parent.Err() != nil {
		e.setState(func(s *domain.State) {
			s.Status = statusAtRest(s.Authenticated)
			s.Progress = 0
			s.LastError = err.Error()
		})
		return err
	}

	e.enterDegraded(logger, err)
	return err
}

func (e *Engine) enterDegraded(logger *slog.Logger, cause error) {
	e.setState(func(s *domain.State) {
		s.Status = domain.StatusDegraded
		s.Progress = 0
		s.RetryIn = ceilSeconds(e.retry.interval)
		s.LastError = cause.Error()
	})

	attempts, scheduled := e.retry.Schedule(func(remaining int) {
		e.setState(func(s *domain.State) {
			if s.Status == domain.StatusDegraded {
				s.RetryIn = remaining
			}
		})
	}, e.onRetry)

	logger.Info("entering degraded state", "attempts", attempts, "retry_scheduled", scheduled)
	e.setState(func(s *domain.State) {
		s.Attempts = attempts
		if !scheduled {
			s.RetryIn = 0
		}
	})
}

func statusAtRest(authenticated bool) domain.Status {
	if authenticated {
		return domain.StatusIdle
	}
	return domain.StatusUnauthenticated
}

// setState applies fn and delivers the resulting snapshot to observers in order
func (e *Engine) setState(fn func(s *domain.State)) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	fn(&e.state)
	snapshot := e.state
	observers := append([]domain.StateObserver(nil), e.observers...)
	e.mu.Unlock()

	for _, o := range observers {
		o.OnState(snapshot)
	}
}
