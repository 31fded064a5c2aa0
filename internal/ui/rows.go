package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
)

// rowMark flags a row in the first column.
type rowMark int

const (
	markNone rowMark = iota
	markArmed
	markDragged
)

// songRow renders a song list row width cells wide.
func (m *Model) songRow(s library.Song, width int, compact bool, mark rowMark) string {
	st := m.styles()
	right := m.statusCell(s, compact)

	prefix := "  "
	switch mark {
	case markArmed:
		prefix = st.DangerText.Render("x ")
	case markDragged:
		prefix = st.AccentText.Render("> ")
	}

	name := s.Title
	if !compact && s.Artist != "" {
		name += " · " + s.Artist
	}
	leftW := width - 2 - lipgloss.Width(right) - 1
	left := padRight(truncate(name, leftW), leftW)
	if mark == markArmed {
		left = st.DangerText.Render(left)
	}
	return prefix + left + " " + right
}

// statusCell renders a job status: a bar while active, a badge otherwise.
func (m *Model) statusCell(s library.Song, compact bool) string {
	st := m.styles()
	status, known := s.Status()
	if !known {
		return st.FaintText.Render("·")
	}
	if pct, ok := status.Percent(); ok {
		color := lipgloss.NewStyle().Foreground(lipgloss.Color(st.StatusColor(status.State)))
		text := fmt.Sprintf("%3d%%", pct)
		if compact {
			return color.Render(text)
		}
		return m.progress.ViewAs(float64(pct)/100) + " " + color.Render(text)
	}
	if compact {
		return st.StatusStyle(status.State).Render(shortState(status.State))
	}
	label := status.Label()
	if label == "" {
		label = "no match"
	}
	return st.StatusStyle(status.State).Render(truncate(label, 24))
}

func shortState(s jobstatus.State) string {
	switch s {
	case jobstatus.StatePending:
		return "pend"
	case jobstatus.StateCompleted:
		return "done"
	case jobstatus.StateFailed:
		return "fail"
	case jobstatus.StateNone:
		return "none"
	}
	return string(s)
}

// playlistRow renders a playlist list row.
func (m *Model) playlistRow(p library.Playlist, width int, compact bool, armed bool) string {
	st := m.styles()
	count := fmt.Sprintf("%d songs", p.SongCount)
	if compact {
		count = fmt.Sprintf("%d", p.SongCount)
	}
	prefix := "  "
	if armed {
		prefix = st.DangerText.Render("x ")
	}
	leftW := width - 2 - len(count) - 1
	left := padRight(truncate(p.Name, leftW), leftW)
	if armed {
		left = st.DangerText.Render(left)
	}
	return prefix + left + " " + st.MutedText.Render(count)
}

// pageFooter describes the position of a paginated list.
func pageFooter(index, totalPages, total int, compact bool) string {
	if totalPages <= 0 {
		return ""
	}
	if compact {
		return fmt.Sprintf("%d/%d", index+1, totalPages)
	}
	return fmt.Sprintf("page %d of %d · %d songs", index+1, totalPages, total)
}

// clampCursor keeps a cursor inside a list of n rows.
func clampCursor(cursor, n int) int {
	if n <= 0 {
		return 0
	}
	return min(max(cursor, 0), n-1)
}
