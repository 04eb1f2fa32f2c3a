package domain

// Status is the engine's coarse state
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusIdle
	StatusSyncing
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSyncing:
		return "syncing"
	case StatusDegraded:
		return "degraded"
	default:
		return "unauthenticated"
	}
}

// State is a snapshot of what the renderer needs to show about syncing
type State struct {
	Status        Status
	Authenticated bool
	CycleID       string // Current or last cycle
	Progress      int    // 0-100 during a cycle
	RetryIn       int    // Whole seconds until the next automatic attempt (degraded only)
	Attempts      int    // Failed attempts since the last success
	LastError     string
	Result        *SyncResult // Last successful cycle
}

// Syncing reports whether a cycle is running
func (s State) Syncing() bool {
	return s.Status == StatusSyncing
}

// Degraded reports whether the engine is counting down to a retry
func (s State) Degraded() bool {
	return s.Status == StatusDegraded
}

// StateObserver receives state snapshots on every change
type StateObserver interface {
	OnState(state State)
}

// NoOpObserver discards state updates (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnState(State) {}
