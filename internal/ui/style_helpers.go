package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// surfaceBar renders the header and command bar segments on the theme's
// surface color. Every space is painted too: lipgloss resets the background
// between styled runs, which leaves unpainted gaps in a bar built from
// several styles.
type surfaceBar struct {
	bg    lipgloss.Color
	fill  lipgloss.Style
	space string
}

func newSurfaceBar(surface string) surfaceBar {
	bg := lipgloss.Color(surface)
	fill := lipgloss.NewStyle().Background(bg)
	return surfaceBar{bg: bg, fill: fill, space: fill.Render(" ")}
}

// text renders value in style over the surface, word by word.
func (b surfaceBar) text(value string, style lipgloss.Style) string {
	if value == "" {
		return ""
	}
	style = style.Background(b.bg)
	if !strings.Contains(value, " ") {
		return style.Render(value)
	}
	words := strings.Split(value, " ")
	for i, w := range words {
		if w != "" {
			words[i] = style.Render(w)
		}
	}
	return strings.Join(words, b.space)
}

// gap returns n painted spaces.
func (b surfaceBar) gap(n int) string {
	if n <= 0 {
		return ""
	}
	return b.fill.Render(strings.Repeat(" ", n))
}

// hint renders one "key:desc" command bar entry.
func (b surfaceBar) hint(key, desc string, styles Styles) string {
	return b.text(key, styles.AccentText) + b.fill.Render(":") + b.text(desc, styles.MutedText)
}

// join joins segments with n painted spaces between them.
func (b surfaceBar) join(segments []string, n int) string {
	kept := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, b.gap(n))
}
