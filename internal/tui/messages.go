package tui

import (
	"time"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/view"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// StateMsg carries an engine snapshot
type StateMsg struct {
	State domain.State
}

// ContentLoadedMsg carries the cached device and its materialized list
type ContentLoadedMsg struct {
	Summary  *domain.DeviceSummary
	Playlist view.Playlist
}

// LoginResultMsg reports the end of a login cycle
type LoginResultMsg struct {
	Err error
}

// CommandDoneMsg reports the end of a retry or logout
type CommandDoneMsg struct {
	Command string
	Err     error
}

// TickMsg drives the retry countdown and schedule refresh
type TickMsg time.Time
