package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/deckhand/internal/prefs"
)

// LayoutCompactWidth is the terminal width below which the auto layout
// stacks panes.
const LayoutCompactWidth = 100

// pane is one list or document of a screen, already rendered row by row.
type pane struct {
	title   string
	rows    []string
	cursor  int // -1 when the pane has no selection
	focused bool
	footer  string
	empty   string // shown when rows is empty
	raw     string // pre-rendered content; rows are ignored when set
}

// layout arranges the panes of the current screen.
type layout interface {
	name() string
	// compact reports whether screens should abbreviate rows.
	compact() bool
	render(panes []pane, width, height int, st Styles) string
}

// chooseLayout resolves the layout preference against the terminal width.
func chooseLayout(pref string, width int) layout {
	switch pref {
	case prefs.LayoutWide:
		return wideLayout{}
	case prefs.LayoutCompact:
		return compactLayout{}
	}
	if width < LayoutCompactWidth {
		return compactLayout{}
	}
	return wideLayout{}
}

// nextLayout cycles auto → wide → compact → auto.
func nextLayout(pref string) string {
	switch pref {
	case prefs.LayoutAuto, "":
		return prefs.LayoutWide
	case prefs.LayoutWide:
		return prefs.LayoutCompact
	default:
		return prefs.LayoutAuto
	}
}

// wideLayout renders panes side by side.
type wideLayout struct{}

func (wideLayout) name() string  { return prefs.LayoutWide }
func (wideLayout) compact() bool { return false }

func (wideLayout) render(panes []pane, width, height int, st Styles) string {
	if len(panes) == 0 {
		return ""
	}
	cols := make([]string, 0, len(panes))
	remaining := width
	for i, p := range panes {
		w := remaining / (len(panes) - i)
		remaining -= w
		cols = append(cols, renderPane(p, w, height, st))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

// compactLayout stacks panes; the focused pane gets the spare rows.
type compactLayout struct{}

func (compactLayout) name() string  { return prefs.LayoutCompact }
func (compactLayout) compact() bool { return true }

func (compactLayout) render(panes []pane, width, height int, st Styles) string {
	if len(panes) == 0 {
		return ""
	}
	heights := make([]int, len(panes))
	base := height / len(panes)
	for i := range heights {
		heights[i] = base
	}
	spare := height - base*len(panes)
	for i, p := range panes {
		if p.focused {
			heights[i] += spare
			spare = 0
		}
	}
	heights[0] += spare

	rows := make([]string, 0, len(panes))
	for i, p := range panes {
		rows = append(rows, renderPane(p, width, heights[i], st))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderPane draws a bordered pane of exactly width x height cells. Rows
// scroll so the cursor stays visible.
func renderPane(p pane, width, height int, st Styles) string {
	innerW := max(width-2, 1)
	innerH := max(height-2, 1)

	box := st.Pane
	if p.focused {
		box = st.FocusedPane
	}
	box = box.Width(innerW).Height(innerH)

	lines := make([]string, 0, innerH)
	titleStyle := st.MutedText.Bold(true)
	if p.focused {
		titleStyle = st.AccentText.Bold(true)
	}
	lines = append(lines, titleStyle.Render(truncate(p.title, innerW)))
	bodyH := innerH - 1
	if p.footer != "" {
		bodyH--
	}

	switch {
	case p.raw != "":
		raw := strings.Split(p.raw, "\n")
		if len(raw) > bodyH {
			raw = raw[:max(bodyH, 0)]
		}
		lines = append(lines, raw...)
	case len(p.rows) == 0:
		if p.empty != "" {
			lines = append(lines, st.FaintText.Render(truncate(p.empty, innerW)))
		}
	default:
		start, end := window(len(p.rows), p.cursor, bodyH)
		for i := start; i < end; i++ {
			row := p.rows[i]
			if i == p.cursor && p.focused {
				row = st.Selected.Width(innerW).Render(row)
			}
			lines = append(lines, row)
		}
	}

	if p.footer != "" {
		for len(lines) < innerH-1 {
			lines = append(lines, "")
		}
		lines = append(lines, st.FaintText.Render(truncate(p.footer, innerW)))
	}
	return box.Render(strings.Join(lines, "\n"))
}

// window returns the [start, end) range of n rows to show in height lines
// with cursor visible.
func window(n, cursor, height int) (int, int) {
	if height <= 0 {
		return 0, 0
	}
	if n <= height {
		return 0, n
	}
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	end := min(start+height, n)
	return start, end
}

// rowWidth is the inner width available to rows when a screen shows count
// panes.
func rowWidth(width, count int, compact bool) int {
	if count < 1 {
		count = 1
	}
	if !compact {
		width /= count
	}
	return max(width-2, 8)
}
