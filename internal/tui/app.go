package tui

import (
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/tui/components"
	"github.com/mmcdole/marquee/internal/tui/styles"
	"github.com/mmcdole/marquee/internal/view"
)

// Mode is what the dashboard is currently asking of the operator
type Mode int

const (
	ModeDashboard Mode = iota
	ModeLogin
	ModeFilter
	ModeConfirmLogout
)

// Rows taken by header, status line, list border and footer
const ChromeHeight = 8

// Model is the main Bubble Tea model for the operator dashboard
type Model struct {
	Mode  Mode
	Ready bool

	// Services
	Controller Controller
	Queries    *view.Queries
	states     <-chan domain.State

	// UI Components
	List       components.ContentList
	InputModal components.InputModal
	Progress   progress.Model

	// Data
	Engine   domain.State
	Summary  *domain.DeviceSummary
	Playlist view.Playlist

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg    string
	StatusIsErr  bool
	LoggingIn    bool
	SpinnerFrame int
}

// NewModel creates the dashboard. states receives engine snapshots from a ChannelObserver.
func NewModel(controller Controller, queries *view.Queries, states <-chan domain.State) Model {
	m := Model{
		Mode:       ModeDashboard,
		Controller: controller,
		Queries:    queries,
		states:     states,
		List:       components.NewContentList(),
		InputModal: components.NewInputModal(),
		Progress: progress.New(
			progress.WithSolidFill(string(styles.Amber)),
			progress.WithoutPercentage(),
		),
		Engine: controller.State(),
	}
	if !m.Engine.Authenticated {
		m.showLogin()
	}
	return m
}

// Init loads the cache and starts listening for engine snapshots
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		LoadContentCmd(m.Queries),
		WaitForState(m.states),
		TickCmd(),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case StateMsg:
		prev := m.Engine
		m.Engine = msg.State
		cmds := []tea.Cmd{WaitForState(m.states)}
		if prev.Status != msg.State.Status || prev.CycleID != msg.State.CycleID {
			cmds = append(cmds, LoadContentCmd(m.Queries))
		}
		m.syncLoginPrompt(prev)
		return m, tea.Batch(cmds...)

	case TickMsg:
		m.SpinnerFrame++
		// Snapshots can be dropped by the observer; polling keeps the countdown current
		prev := m.Engine
		m.Engine = m.Controller.State()
		m.syncLoginPrompt(prev)
		cmds := []tea.Cmd{TickCmd()}
		if next := m.Playlist.NextRefresh; next != nil && !time.Time(msg).Before(*next) {
			cmds = append(cmds, LoadContentCmd(m.Queries))
		}
		return m, tea.Batch(cmds...)

	case ContentLoadedMsg:
		m.Summary = msg.Summary
		m.Playlist = msg.Playlist
		m.List.SetItems(msg.Playlist.Items)
		return m, nil

	case LoginResultMsg:
		m.LoggingIn = false
		if msg.Err != nil {
			slog.Warn("login failed", "error", msg.Err)
			m.InputModal.SetMessage(loginErrorText(msg.Err))
			return m, nil
		}
		m.InputModal.Hide()
		m.Mode = ModeDashboard
		m.setStatus("Logged in", false)
		return m, LoadContentCmd(m.Queries)

	case CommandDoneMsg:
		if msg.Err != nil {
			m.setStatus(msg.Command+": "+msg.Err.Error(), true)
			return m, nil
		}
		if msg.Command == "logout" {
			m.Summary = nil
			m.Playlist = view.Playlist{}
			m.List.SetItems(nil)
			m.List.SetFilter("")
			m.Engine = m.Controller.State()
			m.showLogin()
			return m, nil
		}
		return m, LoadContentCmd(m.Queries)

	case ErrMsg:
		slog.Error("dashboard error", "error", msg.Err, "context", msg.Context)
		m.setStatus(msg.Error(), true)
		return m, nil
	}

	return m, nil
}

func (m *Model) showLogin() {
	m.Mode = ModeLogin
	m.InputModal.Show("Device password", "password", true)
}

// syncLoginPrompt asks for a password when the device was logged out remotely
func (m *Model) syncLoginPrompt(prev domain.State) {
	if prev.Authenticated && !m.Engine.Authenticated && m.Mode != ModeLogin {
		m.Summary = nil
		m.Playlist = view.Playlist{}
		m.List.SetItems(nil)
		m.showLogin()
	}
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.StatusMsg = msg
	m.StatusIsErr = isErr
}

func (m *Model) updateLayout() {
	m.List.SetSize(m.Width-4, max(m.Height-ChromeHeight, 1))
	m.Progress.Width = max(m.Width/3, 10)
}

func loginErrorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthFailed):
		return "Password rejected"
	case errors.Is(err, domain.ErrServerOffline):
		return "Server offline, try again later"
	case errors.Is(err, domain.ErrCycleInProgress):
		return "A sync is already running"
	default:
		return err.Error()
	}
}
