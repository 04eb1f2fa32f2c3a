package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/view"
)

// Controller is the part of the sync engine the dashboard drives
type Controller interface {
	Login(ctx context.Context, password string) error
	Logout() error
	RetryNow(ctx context.Context) error
	State() domain.State
}

// LoginCmd runs a login cycle
func LoginCmd(c Controller, password string) tea.Cmd {
	return func() tea.Msg {
		return LoginResultMsg{Err: c.Login(context.Background(), password)}
	}
}

// RetryCmd runs a cycle immediately
func RetryCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		return CommandDoneMsg{Command: "retry", Err: c.RetryNow(context.Background())}
	}
}

// LogoutCmd clears the device
func LogoutCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		return CommandDoneMsg{Command: "logout", Err: c.Logout()}
	}
}

// LoadContentCmd reads the cache
func LoadContentCmd(q *view.Queries) tea.Cmd {
	return func() tea.Msg {
		summary, _, err := q.Summary()
		if err != nil {
			return ErrMsg{Err: err, Context: "loading summary"}
		}
		p, err := q.Playlist()
		if err != nil {
			return ErrMsg{Err: err, Context: "loading content"}
		}
		return ContentLoadedMsg{Summary: summary, Playlist: p}
	}
}

// WaitForState blocks until the engine publishes a snapshot
func WaitForState(ch <-chan domain.State) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return nil
		}
		return StateMsg{State: state}
	}
}

// TickCmd fires once per second
func TickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
