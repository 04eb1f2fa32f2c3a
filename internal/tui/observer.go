package tui

import "github.com/mmcdole/marquee/internal/domain"

// ChannelObserver adapts domain.StateObserver to a channel for Bubble Tea.
type ChannelObserver struct {
	ch chan<- domain.State
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- domain.State) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnState sends the snapshot to the channel (non-blocking if full).
// Dropped snapshots are harmless: the next one supersedes them.
func (o *ChannelObserver) OnState(state domain.State) {
	select {
	case o.ch <- state:
	default: // Non-blocking if channel full
	}
}
