package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// handleKeyMsg handles keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.Mode {
	case ModeLogin:
		return m.handleLoginKey(msg)
	case ModeFilter:
		return m.handleFilterKey(msg)
	case ModeConfirmLogout:
		switch {
		case key.Matches(msg, Keys.Confirm):
			m.Mode = ModeDashboard
			return m, LogoutCmd(m.Controller)
		case key.Matches(msg, Keys.Deny):
			m.Mode = ModeDashboard
		}
		return m, nil
	}

	m.StatusMsg = ""

	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, Keys.Up):
		m.List.MoveCursor(-1)
	case key.Matches(msg, Keys.Down):
		m.List.MoveCursor(1)
	case key.Matches(msg, Keys.PageUp):
		m.List.MoveCursor(-m.List.PageSize())
	case key.Matches(msg, Keys.PageDown):
		m.List.MoveCursor(m.List.PageSize())

	case key.Matches(msg, Keys.Escape):
		m.List.SetFilter("")
	case key.Matches(msg, Keys.Filter):
		m.Mode = ModeFilter

	case key.Matches(msg, Keys.Login):
		m.showLogin()
		return m, nil

	case key.Matches(msg, Keys.Retry):
		if !m.Engine.Degraded() {
			m.setStatus("Nothing to retry", false)
			return m, nil
		}
		m.setStatus("Retrying...", false)
		return m, RetryCmd(m.Controller)

	case key.Matches(msg, Keys.Refresh):
		if !m.Engine.Authenticated {
			return m, nil
		}
		if m.Engine.Syncing() {
			m.setStatus("Sync already running", false)
			return m, nil
		}
		m.setStatus("Resyncing...", false)
		return m, RetryCmd(m.Controller)

	case key.Matches(msg, Keys.Logout):
		m.Mode = ModeConfirmLogout
	}

	return m, nil
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		// Without a device there is nothing to go back to
		if m.Engine.Authenticated {
			m.InputModal.Hide()
			m.Mode = ModeDashboard
		}
		return m, nil
	}
	if m.LoggingIn {
		return m, nil
	}

	var cmd tea.Cmd
	var submitted bool
	m.InputModal, cmd, submitted = m.InputModal.Update(msg)
	if !submitted {
		return m, cmd
	}

	password := strings.TrimSpace(m.InputModal.Value())
	if password == "" {
		m.InputModal.SetMessage("Password is required")
		return m, nil
	}
	m.LoggingIn = true
	m.InputModal.SetMessage("Authenticating...")
	return m, LoginCmd(m.Controller, password)
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	query := m.List.FilterQuery()

	switch msg.Type {
	case tea.KeyEsc:
		m.List.SetFilter("")
		m.Mode = ModeDashboard
	case tea.KeyEnter:
		m.Mode = ModeDashboard
	case tea.KeyBackspace:
		if query != "" {
			runes := []rune(query)
			m.List.SetFilter(string(runes[:len(runes)-1]))
		}
	case tea.KeyUp:
		m.List.MoveCursor(-1)
	case tea.KeyDown:
		m.List.MoveCursor(1)
	case tea.KeyRunes, tea.KeySpace:
		m.List.SetFilter(query + string(msg.Runes))
	}
	return m, nil
}
