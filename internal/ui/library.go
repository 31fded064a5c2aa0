package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/deckhand/internal/guard"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/state"
)

const (
	focusSaved = iota
	focusFresh
)

// libraryScreen lists saved songs page by page next to the unmatched new
// songs.
type libraryScreen struct {
	ctx    context.Context
	cancel context.CancelFunc
	client library.Backend

	saved   *state.PageStore[library.Song]
	fresh   *state.PageStore[library.Song]
	watcher Watcher
	guards  *guard.Group

	focus  int
	cursor [2]int
}

func newLibraryScreen(m *Model) *libraryScreen {
	ctx, cancel := context.WithCancel(m.ctx)
	filter, err := state.ParseFilter(m.prefs.SavedFilter)
	if err != nil {
		m.logger.Debug("ignoring saved filter", "err", err)
	}
	s := &libraryScreen{
		ctx:    ctx,
		cancel: cancel,
		client: m.client,
		saved: state.NewPageStore(state.SavedSongs(m.client, m.opts.PageSize),
			state.PageKey{Filter: filter}, state.Options{Name: "saved", Logger: m.opts.Logger}),
		fresh: state.NewPageStore(state.NewSongs(m.client),
			state.PageKey{}, state.Options{Name: "new", Logger: m.opts.Logger}),
		guards: m.guards(),
	}
	s.watcher = m.newWatcher(ctx)
	s.watcher.Track(s.saved, s.fresh)
	return s
}

func (s *libraryScreen) title() string { return "Library" }

func (s *libraryScreen) open(*Model) tea.Cmd {
	return s.reload()
}

func (s *libraryScreen) resume(*Model) tea.Cmd {
	return s.reload()
}

func (s *libraryScreen) reload() tea.Cmd {
	return tea.Batch(
		storeCmd(s.ctx, s.saved.Name(), s.synced(s.saved.Load)),
		storeCmd(s.ctx, s.fresh.Name(), s.synced(s.fresh.Load)),
	)
}

// synced follows the jobs of whatever op loaded.
func (s *libraryScreen) synced(op func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		err := op(ctx)
		s.watcher.Sync()
		return err
	}
}

// afterMutation refreshes both lists after a match was saved or deleted.
func (s *libraryScreen) afterMutation(ctx context.Context) error {
	errSaved := quiet(s.saved.AfterMutation(ctx))
	errFresh := quiet(s.fresh.AfterMutation(ctx))
	s.watcher.Sync()
	return errors.Join(errSaved, errFresh)
}

func (s *libraryScreen) store() *state.PageStore[library.Song] {
	if s.focus == focusFresh {
		return s.fresh
	}
	return s.saved
}

func (s *libraryScreen) selected() (library.Song, bool) {
	items := s.store().Snapshot().Items
	if len(items) == 0 {
		return library.Song{}, false
	}
	return items[clampCursor(s.cursor[s.focus], len(items))], true
}

func (s *libraryScreen) move(delta int) {
	n := len(s.store().Snapshot().Items)
	s.cursor[s.focus] = clampCursor(s.cursor[s.focus]+delta, n)
}

func (s *libraryScreen) update(m *Model, msg tea.KeyMsg) tea.Cmd {
	k := m.keys
	switch {
	case key.Matches(msg, k.Up):
		s.move(-1)
	case key.Matches(msg, k.Down):
		s.move(1)
	case key.Matches(msg, k.Focus):
		s.focus = 1 - s.focus
	case key.Matches(msg, k.NextPage):
		return s.page(s.saved.NextPage)
	case key.Matches(msg, k.PrevPage):
		return s.page(s.saved.PrevPage)
	case key.Matches(msg, k.CycleFilter):
		next := s.saved.Key().Filter.Next()
		s.cursor[focusSaved] = 0
		m.prefs.SavedFilter = next.Signature()
		m.setNotice("showing " + next.Label())
		return tea.Batch(
			storeCmd(s.ctx, s.saved.Name(), s.synced(func(ctx context.Context) error {
				return s.saved.SetFilter(ctx, next)
			})),
			m.savePrefs(),
		)
	case key.Matches(msg, k.Refresh):
		return s.reload()
	case key.Matches(msg, k.Manager):
		return m.push(newManagerScreen(m))
	case key.Matches(msg, k.Open):
		song, ok := s.selected()
		if !ok {
			return nil
		}
		return m.push(newDetailScreen(m, song, songHooks{deleted: s.matchDeleted, matched: s.matchSaved}))
	case key.Matches(msg, k.Delete):
		return s.deleteMatch(m)
	case key.Matches(msg, k.Retry):
		return s.retry(m)
	case key.Matches(msg, k.Check):
		return s.check(m)
	}
	return nil
}

func (s *libraryScreen) page(op func(context.Context) error) tea.Cmd {
	s.cursor[focusSaved] = 0
	ctx, name := s.ctx, s.saved.Name()
	load := s.synced(op)
	return func() tea.Msg {
		err := load(ctx)
		if errors.Is(err, state.ErrNoPage) {
			return doneMsg{notice: "no more pages"}
		}
		return loadedMsg{store: name, err: err}
	}
}

func (s *libraryScreen) deleteMatch(m *Model) tea.Cmd {
	if s.focus != focusSaved {
		m.setNotice("new songs have no match to delete")
		return nil
	}
	song, ok := s.selected()
	if !ok {
		return nil
	}
	id := song.SpotifyID
	action := func(ctx context.Context) error {
		return s.client.DeleteMatch(ctx, id)
	}
	return m.guarded(s.guards, id, fmt.Sprintf("delete match of %q", song.Title), action, func(*Model) tea.Cmd {
		s.guards.Remove(id)
		return s.matchDeleted(id)
	})
}

// matchSaved drops the song from the new songs at once, then reloads both
// lists: the song moves to the saved songs and its download is followed from
// there.
func (s *libraryScreen) matchSaved(id string) tea.Cmd {
	s.fresh.Drop(state.SongByID(id))
	s.cursor[focusFresh] = clampCursor(s.cursor[focusFresh], len(s.fresh.Snapshot().Items))
	return refreshCmd(s.ctx, "library", s.afterMutation)
}

// matchDeleted drops the song from the saved list at once, then reloads
// both lists: the song moves back to the new songs.
func (s *libraryScreen) matchDeleted(id string) tea.Cmd {
	s.watcher.Forget(id)
	s.saved.Drop(state.SongByID(id))
	s.cursor[focusSaved] = clampCursor(s.cursor[focusSaved], len(s.saved.Snapshot().Items))
	return refreshCmd(s.ctx, "library", s.afterMutation)
}

func (s *libraryScreen) retry(m *Model) tea.Cmd {
	song, ok := s.selected()
	if !ok {
		return nil
	}
	st, _ := song.Status()
	ctx, w := s.ctx, s.watcher
	return func() tea.Msg {
		if err := w.Retry(ctx, song.SpotifyID, st); err != nil {
			return doneMsg{err: fmt.Errorf("retry %q: %w", song.Title, err)}
		}
		return doneMsg{notice: fmt.Sprintf("retrying %q", song.Title)}
	}
}

func (s *libraryScreen) check(m *Model) tea.Cmd {
	if s.focus != focusFresh {
		m.setNotice("select a new song to check")
		return nil
	}
	song, ok := s.selected()
	if !ok {
		return nil
	}
	ctx := s.ctx
	return func() tea.Msg {
		res, err := s.client.CheckSong(ctx, song.SpotifyID)
		if err != nil {
			return doneMsg{err: err}
		}
		if !res.Deleted {
			return doneMsg{notice: fmt.Sprintf("%q is still in the source playlist", song.Title)}
		}
		if err := quiet(s.fresh.AfterMutation(ctx)); err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{notice: fmt.Sprintf("%q left the source playlist and was removed", song.Title)}
	}
}

func (s *libraryScreen) panes(m *Model, compact bool) []pane {
	width := rowWidth(m.width, 2, compact)

	saved := s.saved.Snapshot()
	savedPane := pane{
		title:   "Saved · " + saved.Key.Filter.Label(),
		cursor:  clampCursor(s.cursor[focusSaved], len(saved.Items)),
		focused: s.focus == focusSaved,
		footer:  pageFooter(saved.Key.Index, saved.TotalPages, saved.Total, compact),
		empty:   emptyText(saved.Loaded, saved.LastError, "no saved songs"),
	}
	if saved.IsOffline() {
		savedPane.title += " · offline"
	}
	for _, song := range saved.Items {
		mark := markNone
		if s.guards.Phase(song.SpotifyID) == guard.Armed {
			mark = markArmed
		}
		savedPane.rows = append(savedPane.rows, m.songRow(song, width, compact, mark))
	}

	fresh := s.fresh.Snapshot()
	freshPane := pane{
		title:   fmt.Sprintf("New · %d", len(fresh.Items)),
		cursor:  clampCursor(s.cursor[focusFresh], len(fresh.Items)),
		focused: s.focus == focusFresh,
		empty:   emptyText(fresh.Loaded, fresh.LastError, "no new songs"),
	}
	for _, song := range fresh.Items {
		freshPane.rows = append(freshPane.rows, m.songRow(song, width, compact, markNone))
	}
	return []pane{savedPane, freshPane}
}

// emptyText explains an empty list.
func emptyText(loaded bool, lastErr error, none string) string {
	switch {
	case lastErr != nil && !loaded:
		return "failed to load: " + lastErr.Error()
	case !loaded:
		return "loading..."
	default:
		return none
	}
}

func (s *libraryScreen) hints(m *Model) []hint {
	k := m.keys
	if s.focus == focusFresh {
		return []hint{
			bindingHint(k.Check), bindingHint(k.Refresh), bindingHint(k.Open),
			bindingHint(k.Focus), bindingHint(k.Manager), bindingHint(k.Logs), bindingHint(k.Quit),
		}
	}
	return []hint{
		{key: k.CycleFilter.Help().Key, desc: s.saved.Key().Filter.Label()},
		bindingHint(k.NextPage), bindingHint(k.PrevPage), bindingHint(k.Delete), bindingHint(k.Retry),
		bindingHint(k.Open), bindingHint(k.Focus), bindingHint(k.Manager), bindingHint(k.Logs), bindingHint(k.Quit),
	}
}

func (s *libraryScreen) background() {
	s.guards.Background()
}

func (s *libraryScreen) loading() bool {
	return s.saved.Snapshot().Loading || s.fresh.Snapshot().Loading
}

func (s *libraryScreen) close() {
	s.guards.Background()
	s.watcher.Close()
	s.saved.Close()
	s.fresh.Close()
	s.cancel()
}
