package ui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/state"
)

// statusMsg carries a status observed by a screen's watcher.
type statusMsg struct {
	id string
	st jobstatus.Status
}

// guardMsg asks for a redraw after a guard changed phase on its own
// (auto-disarm timer, group disarm).
type guardMsg struct{}

// expiredMsg reports that the backend rejected the session.
type expiredMsg struct {
	err error
}

// loadedMsg reports a finished store operation.
type loadedMsg struct {
	store string
	err   error
}

// doneMsg reports a finished action. then runs on the UI goroutine when err
// is nil.
type doneMsg struct {
	notice string
	err    error
	then   func(m *Model) tea.Cmd
}

// detailMsg carries the song detail payload and its resolved status.
type detailMsg struct {
	song  library.Song
	st    jobstatus.Status
	known bool
	err   error
}

// matchesMsg carries the match candidates of a song without a match.
type matchesMsg struct {
	id    string
	cands library.MatchCandidates
	err   error
}

// matchSavedMsg reports the outcome of choosing a match.
type matchSavedMsg struct {
	id    string
	title string
	err   error
}

// logsMsg carries the tail of the log file.
type logsMsg struct {
	lines []string
	err   error
}

// post delivers an event without blocking; used for redraw hints that may
// be dropped.
func post(ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	default:
	}
}

// send delivers an event, giving up when ctx ends.
func send(ctx context.Context, ch chan<- tea.Msg, msg tea.Msg) {
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

// waitForEvent returns the next event posted by pollers, guards or the
// session.
func waitForEvent(ctx context.Context, ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

// storeCmd runs op against a store off the UI goroutine.
func storeCmd(ctx context.Context, name string, op func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{store: name, err: op(ctx)}
	}
}

// refreshCmd reconciles lists after a mutation that already succeeded. A
// failure is reported as a refresh error; the mutation itself stands.
func refreshCmd(ctx context.Context, name string, op func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		err := quiet(op(ctx))
		if err != nil {
			err = fmt.Errorf("refresh %s: %w", name, err)
		}
		return loadedMsg{store: name, err: err}
	}
}

// quiet drops the errors a store returns for results nobody is waiting for.
func quiet(err error) error {
	if errors.Is(err, state.ErrStale) || errors.Is(err, state.ErrClosed) {
		return nil
	}
	return err
}
