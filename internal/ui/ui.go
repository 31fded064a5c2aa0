package ui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/five82/deckhand/internal/guard"
	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/prefs"
	"github.com/five82/deckhand/internal/session"
	"github.com/five82/deckhand/internal/state"
)

// Watcher keeps the job status of the songs a screen shows current. Each
// screen owns one and closes it when it is left.
type Watcher interface {
	Track(stores ...*state.PageStore[library.Song])
	Sync()
	Watch(ctx context.Context, song library.Song) (jobstatus.Status, error)
	Retry(ctx context.Context, spotifyID string, current jobstatus.Status) error
	Forget(spotifyID string)
	Close()
}

// Options configures the TUI.
type Options struct {
	Client          library.Backend
	Session         *session.Session
	Logger          *log.Logger
	PageSize        int
	ManagerPageSize int
	Guard           guard.Options
	LogFile         string
	Prefs           prefs.Prefs
	PrefsPath       string

	// NewWatcher builds the watcher of one screen. notify runs on poller
	// goroutines after the tracked stores were updated.
	NewWatcher func(ctx context.Context, notify func(spotifyID string, st jobstatus.Status)) Watcher
}

// Run starts the TUI and blocks until the user quits, ctx ends or the
// session expires. Expiry is returned wrapping library.ErrSessionExpired.
func Run(ctx context.Context, opts Options) error {
	if opts.Client == nil {
		return errors.New("ui: client is required")
	}
	if opts.NewWatcher == nil {
		return errors.New("ui: watcher factory is required")
	}

	m := New(ctx, opts)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := program.Run()

	if fm, ok := final.(Model); ok {
		fm.teardown()
		if fm.expired != nil {
			return fmt.Errorf("%w: %v", library.ErrSessionExpired, fm.expired)
		}
	} else {
		m.teardown()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
