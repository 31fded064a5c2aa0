package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader renders the logo, the navigation trail and activity.
func (m Model) renderHeader() string {
	styles := m.styles()
	bar := newSurfaceBar(m.theme.Surface)

	titles := make([]string, 0, len(m.stack))
	for _, s := range m.stack {
		titles = append(titles, s.title())
	}
	trail := strings.Join(titles, " › ")
	if m.width < LayoutCompactWidth {
		trail = m.top().title()
	}

	parts := []string{
		bar.text("deckhand", styles.Logo),
		bar.text(trail, styles.Text),
	}
	if m.top().loading() {
		parts = append(parts, bar.text(m.spinner.View(), styles.AccentText))
	}
	if m.expired != nil {
		parts = append(parts, bar.text("● SESSION EXPIRED", styles.DangerText))
	}

	return styles.Header.Width(m.width).Render(bar.join(parts, 2))
}

// renderCommandBar renders the command hints of the current screen.
func (m Model) renderCommandBar() string {
	styles := m.styles()
	bar := newSurfaceBar(m.theme.Surface)

	hints := m.top().hints(&m)
	segments := make([]string, 0, len(hints)+1)
	for _, h := range hints {
		segments = append(segments, bar.hint(h.key, h.desc, styles))
	}

	// Theme indicator
	segments = append(segments, bar.hint("T", m.theme.Name, styles))

	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Width(m.width).
		Padding(0, 1).
		Render(bar.join(segments, 2))
}

// renderStatusLine renders the expiry banner or the dismissible notice.
func (m Model) renderStatusLine() string {
	styles := m.styles()
	if m.expired != nil {
		return styles.Banner.Width(m.width).Render("Session expired. Sign in again to continue.")
	}
	if m.notice == "" {
		return ""
	}
	text := truncate(m.notice, m.width-4)
	if m.noticeErr {
		return styles.DangerText.Padding(0, 1).Render(text) + styles.FaintText.Render("  esc")
	}
	return styles.InfoText.Padding(0, 1).Render(text)
}
