package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/deckhand/internal/logtail"
)

const logTailLines = 500

// logsScreen shows the tail of the client log file.
type logsScreen struct {
	path     string
	lines    []string
	min      logtail.Level
	loaded   bool
	viewport viewport.Model
}

func newLogsScreen(m *Model) *logsScreen {
	s := &logsScreen{
		path:     m.opts.LogFile,
		min:      logtail.LevelDebug,
		viewport: viewport.New(0, 0),
	}
	s.resize(m.width, m.height)
	return s
}

func (s *logsScreen) title() string { return "Logs" }

func (s *logsScreen) open(*Model) tea.Cmd {
	return s.read()
}

func (s *logsScreen) resume(*Model) tea.Cmd {
	return s.read()
}

func (s *logsScreen) read() tea.Cmd {
	path := s.path
	return func() tea.Msg {
		lines, err := logtail.Read(path, logTailLines)
		return logsMsg{lines: lines, err: err}
	}
}

// resize fits the viewport into a single pane below the header.
func (s *logsScreen) resize(width, height int) {
	s.viewport.Width = max(width-2, 1)
	s.viewport.Height = max(height-6, 1)
}

func (s *logsScreen) receive(m *Model, msg tea.Msg) tea.Cmd {
	l, ok := msg.(logsMsg)
	if !ok {
		return nil
	}
	s.loaded = true
	if l.err != nil {
		m.setError(l.err)
		return nil
	}
	s.lines = l.lines
	s.render(m)
	s.viewport.GotoBottom()
	return nil
}

func (s *logsScreen) render(m *Model) {
	lines := m.theme.LogPalette().ColorizeLines(logtail.Filter(s.lines, s.min))
	s.viewport.SetContent(strings.Join(lines, "\n"))
}

func (s *logsScreen) update(m *Model, msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.LogLevel):
		s.min = nextLevel(s.min)
		s.render(m)
		m.setNotice("showing " + s.min.String() + " and above")
		return nil
	case key.Matches(msg, m.keys.Refresh):
		return s.read()
	}
	var cmd tea.Cmd
	s.viewport, cmd = s.viewport.Update(msg)
	return cmd
}

// nextLevel cycles debug → info → warn → error → debug.
func nextLevel(l logtail.Level) logtail.Level {
	if l >= logtail.LevelError || l < logtail.LevelDebug {
		return logtail.LevelDebug
	}
	return l + 1
}

func (s *logsScreen) panes(m *Model, compact bool) []pane {
	title := "Logs · " + s.min.String() + "+"
	if !compact {
		title += " · " + truncateMiddle(s.path, 60)
	}
	p := pane{title: title, cursor: -1, focused: true}
	switch {
	case !s.loaded:
		p.empty = "loading..."
	case len(s.lines) == 0:
		p.empty = "log file is empty"
	default:
		p.raw = s.viewport.View()
	}
	return []pane{p}
}

func (s *logsScreen) hints(m *Model) []hint {
	k := m.keys
	return []hint{
		{key: "j/k", desc: "Scroll"}, bindingHint(k.LogLevel), bindingHint(k.Refresh),
		bindingHint(k.Back), bindingHint(k.Quit),
	}
}

func (s *logsScreen) background() {}

func (s *logsScreen) loading() bool {
	return !s.loaded
}

func (s *logsScreen) close() {}
