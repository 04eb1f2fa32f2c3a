package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/tui/styles"
)

// View renders the dashboard
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	if m.Mode == ModeConfirmLogout {
		return m.renderLogoutConfirmation()
	}

	listStyle := styles.InactiveBorder
	if m.Mode == ModeFilter {
		listStyle = styles.ActiveBorder
	}

	view := lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.renderStatusLine(),
		listStyle.Width(max(m.Width-2, 1)).Render(m.List.View()),
		m.renderFooter(),
	)

	if m.InputModal.IsVisible() {
		view = lipgloss.Place(m.Width, m.Height,
			lipgloss.Center, lipgloss.Center,
			m.InputModal.View())
	}

	return view
}

// renderHeader shows the device and a status badge
func (m Model) renderHeader() string {
	title := styles.TitleStyle.Render("marquee")
	badge := RenderBadge(m.Engine.Status)

	device := styles.DimStyle.Render("no device")
	var details string
	if m.Summary != nil {
		device = styles.AccentStyle.Render(m.Summary.Description)
		parts := []string{m.Summary.Organization, m.Summary.BusinessUnit, m.Summary.Area, m.Summary.Orientation()}
		details = styles.SubtitleStyle.Render(strings.Join(nonEmpty(parts), " · "))
	}

	left := title + "  " + device
	gap := max(m.Width-lipgloss.Width(left)-lipgloss.Width(badge), 1)
	top := left + strings.Repeat(" ", gap) + badge

	return lipgloss.JoinVertical(lipgloss.Left, top, details, "")
}

// renderStatusLine shows progress, the retry countdown or the last result
func (m Model) renderStatusLine() string {
	s := m.Engine
	switch s.Status {
	case domain.StatusSyncing:
		return fmt.Sprintf("%s %s %s",
			RenderSpinner(m.SpinnerFrame),
			m.Progress.ViewAs(float64(s.Progress)/100),
			styles.DimStyle.Render(fmt.Sprintf("%3d%%", s.Progress)))

	case domain.StatusDegraded:
		line := fmt.Sprintf("Offline, retrying in %ds", s.RetryIn)
		if s.Attempts > 0 {
			line += fmt.Sprintf(" (attempt %d)", s.Attempts+1)
		}
		if s.LastError != "" {
			line += ": " + s.LastError
		}
		return styles.ErrorStyle.Render(line) + "  " +
			styles.HelpKeyStyle.Render("r") + " " + styles.HelpDescStyle.Render("retry now")

	case domain.StatusIdle:
		if s.Result != nil {
			line := fmt.Sprintf("%d items, %d cached", s.Result.Total, s.Result.Cached)
			if s.Result.Failed > 0 {
				line += fmt.Sprintf(", %d failed", s.Result.Failed)
			}
			return styles.SuccessStyle.Render(line)
		}
		return styles.DimStyle.Render(fmt.Sprintf("%d scheduled", m.List.Len()))

	default:
		return styles.DimStyle.Render("Not logged in")
	}
}

// renderFooter renders a single-line minimal footer
func (m Model) renderFooter() string {
	if m.Mode == ModeFilter {
		return styles.AccentStyle.Render("/") + m.List.FilterQuery() + styles.DimStyle.Render("▏")
	}

	var left string
	if m.StatusMsg != "" {
		if m.StatusIsErr {
			left = styles.ErrorStyle.Render(m.StatusMsg)
		} else {
			left = styles.DimStyle.Render(m.StatusMsg)
		}
	} else if q := m.List.FilterQuery(); q != "" {
		left = styles.DimStyle.Render(fmt.Sprintf("filter: %s (%d)", q, m.List.Len()))
	} else if next := m.Playlist.NextRefresh; next != nil {
		left = styles.DimStyle.Render("next change " + next.Local().Format("15:04"))
	}

	help := renderHelp([][2]string{
		{"/", "filter"},
		{"R", "resync"},
		{"l", "login"},
		{"L", "logout"},
		{"q", "quit"},
	})

	gap := max(m.Width-lipgloss.Width(left)-lipgloss.Width(help), 1)
	return left + strings.Repeat(" ", gap) + help
}

func (m Model) renderLogoutConfirmation() string {
	modal := `
              Log Out?

  This forgets the device password
  and clears all cached content.

        [Y] Yes      [N] No
`

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(modal))
}

// RenderBadge renders the engine status as a colored badge
func RenderBadge(status domain.Status) string {
	label := strings.ToUpper(status.String())
	switch status {
	case domain.StatusIdle:
		return styles.IdleBadgeStyle.Render(label)
	case domain.StatusSyncing:
		return styles.SyncBadgeStyle.Render(label)
	case domain.StatusDegraded:
		return styles.DegradedBadgeStyle.Render(label)
	default:
		return styles.DimBadgeStyle.Render(label)
	}
}

// RenderSpinner returns a spinner frame
func RenderSpinner(frame int) string {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return styles.AccentStyle.Render(frames[frame%len(frames)])
}

func renderHelp(bindings [][2]string) string {
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		parts[i] = styles.HelpKeyStyle.Render(b[0]) + " " + styles.HelpDescStyle.Render(b[1])
	}
	return strings.Join(parts, "  ")
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
