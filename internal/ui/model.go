package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/five82/deckhand/internal/guard"
	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/logging"
	"github.com/five82/deckhand/internal/prefs"
)

const (
	eventBuffer = 256

	// expiryGrace is how long the expiry banner stays up before the program
	// exits.
	expiryGrace = 1500 * time.Millisecond
)

// screen is one entry of the navigation stack.
type screen interface {
	title() string
	// open runs when the screen is pushed.
	open(m *Model) tea.Cmd
	// resume runs when the screen above it was popped.
	resume(m *Model) tea.Cmd
	update(m *Model, msg tea.KeyMsg) tea.Cmd
	panes(m *Model, compact bool) []pane
	hints(m *Model) []hint
	// background disarms the screen's guards.
	background()
	loading() bool
	close()
}

// inputScreen is implemented by screens that can capture every key.
type inputScreen interface {
	capturing() bool
}

// backScreen is implemented by screens that consume esc before being
// popped.
type backScreen interface {
	back(m *Model) bool
}

// receiver is implemented by screens that load screen specific results.
type receiver interface {
	receive(m *Model, msg tea.Msg) tea.Cmd
}

// resizer is implemented by screens holding sized components.
type resizer interface {
	resize(width, height int)
}

// statusScreen is implemented by screens that show job status outside their
// stores.
type statusScreen interface {
	applyStatus(id string, st jobstatus.Status)
}

// hint is a key:description segment of the command bar.
type hint struct {
	key, desc string
}

func bindingHint(b key.Binding) hint {
	h := b.Help()
	return hint{key: h.Key, desc: h.Desc}
}

// Model is the Bubble Tea model of the whole program.
type Model struct {
	ctx    context.Context
	opts   Options
	client library.Backend
	logger *log.Logger
	keys   keyMap
	theme  Theme
	prefs  prefs.Prefs
	events chan tea.Msg

	width, height int
	stack         []screen

	spinner  spinner.Model
	progress progress.Model

	notice    string
	noticeErr bool
	expired   error
}

// New builds the model with the library screen at the bottom of the stack.
func New(ctx context.Context, opts Options) Model {
	if opts.PageSize <= 0 {
		opts.PageSize = 15
	}
	if opts.ManagerPageSize <= 0 {
		opts.ManagerPageSize = 1000
	}
	logger := logging.Component(opts.Logger, "ui")
	if opts.Guard.Logger == nil {
		opts.Guard.Logger = opts.Logger
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:     ctx,
		opts:    opts,
		client:  opts.Client,
		logger:  logger,
		keys:    DefaultKeyMap(),
		theme:   GetTheme(opts.Prefs.Theme),
		prefs:   opts.Prefs,
		events:  make(chan tea.Msg, eventBuffer),
		spinner: sp,
	}
	m.progress = m.newProgress()
	m.spinner.Style = m.theme.Styles().AccentText

	if opts.Session != nil {
		events := m.events
		opts.Session.OnExpire(func(cause error) {
			send(ctx, events, expiredMsg{err: cause})
		})
	}

	m.stack = []screen{newLibraryScreen(&m)}
	return m
}

// Init loads the library screen and starts listening for events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForEvent(m.ctx, m.events),
		m.start(),
	)
}

// start opens the root screen.
func (m *Model) start() tea.Cmd {
	return m.stack[0].open(m)
}

func (m Model) top() screen {
	return m.stack[len(m.stack)-1]
}

// Update handles every message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		for _, s := range m.stack {
			if r, ok := s.(resizer); ok {
				r.resize(m.width, m.height)
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusMsg:
		for _, s := range m.stack {
			if ss, ok := s.(statusScreen); ok {
				ss.applyStatus(msg.id, msg.st)
			}
		}
		return m, waitForEvent(m.ctx, m.events)

	case guardMsg:
		return m, waitForEvent(m.ctx, m.events)

	case expiredMsg:
		m.expired = msg.err
		if m.expired == nil {
			m.expired = library.ErrSessionExpired
		}
		m.logger.Warn("session expired", "err", m.expired)
		m.teardown()
		return m, tea.Tick(expiryGrace, func(time.Time) tea.Msg { return tea.QuitMsg{} })

	case loadedMsg:
		if err := quiet(msg.err); err != nil {
			m.logger.Debug("load failed", "store", msg.store, "err", err)
			m.setError(err)
		}
		return m, nil

	case doneMsg:
		if msg.err != nil {
			m.logger.Debug("action failed", "err", msg.err)
			m.setError(msg.err)
			return m, nil
		}
		if msg.notice != "" {
			m.setNotice(msg.notice)
		}
		if msg.then != nil {
			return m, msg.then(&m)
		}
		return m, nil
	}

	// Screen specific results (detail payload, log tail) go to every screen
	// on the stack; a screen covered by another still owns its result.
	var cmds []tea.Cmd
	for _, s := range m.stack {
		if r, ok := s.(receiver); ok {
			cmds = append(cmds, r.receive(&m, msg))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.expired != nil {
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	top := m.top()
	if in, ok := top.(inputScreen); ok && in.capturing() {
		return m, top.update(&m, msg)
	}

	if !key.Matches(msg, m.keys.Delete) {
		top.background()
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		if b, ok := top.(backScreen); ok && b.back(&m) {
			return m, nil
		}
		if m.notice != "" {
			m.clearNotice()
			return m, nil
		}
		return m, m.pop()
	case key.Matches(msg, m.keys.CycleTheme):
		m.prefs.Theme = NextTheme(m.theme.Name)
		m.theme = GetTheme(m.prefs.Theme)
		m.progress = m.newProgress()
		m.spinner.Style = m.theme.Styles().AccentText
		return m, m.savePrefs()
	case key.Matches(msg, m.keys.Layout):
		m.prefs.Layout = nextLayout(m.prefs.Layout)
		m.setNotice("layout: " + m.prefs.Layout)
		return m, m.savePrefs()
	case key.Matches(msg, m.keys.Logs):
		if _, ok := top.(*logsScreen); ok {
			return m, nil
		}
		return m, m.push(newLogsScreen(&m))
	}

	m.clearNotice()
	return m, top.update(&m, msg)
}

// push opens s on top of the stack.
func (m *Model) push(s screen) tea.Cmd {
	m.top().background()
	m.stack = append(m.stack, s)
	return s.open(m)
}

// pop closes the top screen; the root screen stays.
func (m *Model) pop() tea.Cmd {
	if len(m.stack) <= 1 {
		return nil
	}
	n := len(m.stack)
	m.stack[n-1].close()
	m.stack = m.stack[:n-1]
	return m.top().resume(m)
}

// teardown closes every screen.
func (m *Model) teardown() {
	for i := len(m.stack) - 1; i >= 0; i-- {
		m.stack[i].close()
	}
}

// newWatcher builds a watcher whose updates reach the UI as statusMsg.
func (m *Model) newWatcher(ctx context.Context) Watcher {
	events := m.events
	return m.opts.NewWatcher(ctx, func(id string, st jobstatus.Status) {
		send(ctx, events, statusMsg{id: id, st: st})
	})
}

// guards builds a guard group that redraws on every phase change.
func (m *Model) guards() *guard.Group {
	g := guard.NewGroup(m.opts.Guard)
	events := m.events
	g.OnChange(func(string, guard.Phase) { post(events, guardMsg{}) })
	return g
}

// guarded drives the two-step confirmation of a destructive action: the
// first press arms synchronously, the confirming press runs the action off
// the UI goroutine.
func (m *Model) guarded(g *guard.Group, id, what string, action guard.Action, then func(m *Model) tea.Cmd) tea.Cmd {
	switch g.Phase(id) {
	case guard.Performing:
		m.setError(fmt.Errorf("%s: %w", what, guard.ErrBusy))
		return nil
	case guard.Idle:
		if _, err := g.Trigger(m.ctx, id, action); err != nil {
			m.setError(err)
			return nil
		}
		m.setNotice(fmt.Sprintf("press %s again to %s", m.keys.Delete.Help().Key, what))
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		outcome, err := g.Trigger(ctx, id, action)
		if outcome != guard.OutcomePerformed {
			return guardMsg{}
		}
		if err != nil {
			return doneMsg{err: fmt.Errorf("%s: %w", what, err)}
		}
		return doneMsg{notice: what + ": done", then: then}
	}
}

func (m *Model) savePrefs() tea.Cmd {
	path, p := m.opts.PrefsPath, m.prefs
	return func() tea.Msg {
		if err := prefs.Save(path, p); err != nil {
			return doneMsg{err: fmt.Errorf("save prefs: %w", err)}
		}
		return nil
	}
}

func (m *Model) setNotice(text string) {
	m.notice = text
	m.noticeErr = false
}

// setError shows err in the status line. Dropped results and expiry are not
// shown; expiry has its own banner.
func (m *Model) setError(err error) {
	err = quiet(err)
	if err == nil || errors.Is(err, library.ErrSessionExpired) {
		return
	}
	m.notice = err.Error()
	m.noticeErr = true
}

func (m *Model) clearNotice() {
	m.notice = ""
	m.noticeErr = false
}

func (m Model) styles() Styles {
	return m.theme.Styles()
}

func (m Model) newProgress() progress.Model {
	return progress.New(
		progress.WithSolidFill(m.styles().StatusColor(jobstatus.StateDownloading)),
		progress.WithoutPercentage(),
		progress.WithWidth(16),
	)
}

// View renders the program.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "loading..."
	}

	header := m.renderHeader()
	bar := m.renderCommandBar()
	status := m.renderStatusLine()

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(bar) - lipgloss.Height(status)
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	lay := chooseLayout(m.prefs.Layout, m.width)
	panes := m.top().panes(&m, lay.compact())
	body := lay.render(panes, m.width, bodyHeight, m.styles())

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status, bar)
}
