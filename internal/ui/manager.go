package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/deckhand/internal/dragdrop"
	"github.com/five82/deckhand/internal/guard"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/state"
)

const (
	focusSource = iota
	focusPlaylists
)

// errEmptyName rejects a blank playlist name before any request.
var errEmptyName = errors.New("playlist name is required")

// managerScreen assigns saved songs that are in no playlist yet to
// playlists.
type managerScreen struct {
	ctx    context.Context
	cancel context.CancelFunc
	client library.Backend

	source    *state.PageStore[library.Song]
	playlists *state.PageStore[library.Playlist]
	watcher   Watcher
	validator *dragdrop.Validator
	drag      *dragdrop.Drag
	guards    *guard.Group

	focus  int
	cursor [2]int

	input    textinput.Model
	creating bool
}

func newManagerScreen(m *Model) *managerScreen {
	ctx, cancel := context.WithCancel(m.ctx)
	s := &managerScreen{
		ctx:    ctx,
		cancel: cancel,
		client: m.client,
		source: state.NewPageStore(state.SavedSongs(m.client, m.opts.ManagerPageSize),
			state.PageKey{Filter: state.Filter{ExcludeInPlaylist: true}},
			state.Options{Name: "manager-source", Logger: m.opts.Logger}),
		playlists: state.NewPageStore(state.Playlists(m.client),
			state.PageKey{}, state.Options{Name: "playlists", Logger: m.opts.Logger}),
		guards: m.guards(),
	}
	s.validator = dragdrop.NewValidator(m.client, s.source, s.playlists, m.opts.Logger)
	s.watcher = m.newWatcher(ctx)
	s.watcher.Track(s.source)

	s.input = textinput.New()
	s.input.Prompt = "New playlist: "
	s.input.Placeholder = "name"
	s.input.CharLimit = 100
	s.input.Cursor.SetMode(cursor.CursorStatic)
	return s
}

func (s *managerScreen) title() string { return "Playlists" }

func (s *managerScreen) open(*Model) tea.Cmd {
	return s.reload()
}

func (s *managerScreen) resume(*Model) tea.Cmd {
	return s.reload()
}

func (s *managerScreen) reload() tea.Cmd {
	w := s.watcher
	return tea.Batch(
		storeCmd(s.ctx, s.source.Name(), func(ctx context.Context) error {
			err := s.source.Load(ctx)
			w.Sync()
			return err
		}),
		storeCmd(s.ctx, s.playlists.Name(), s.playlists.Load),
	)
}

func (s *managerScreen) capturing() bool {
	return s.creating
}

func (s *managerScreen) back(m *Model) bool {
	if s.drag == nil {
		return false
	}
	s.drag = nil
	m.setNotice("drag cancelled")
	return true
}

func (s *managerScreen) selectedSong() (library.Song, bool) {
	items := s.source.Snapshot().Items
	if len(items) == 0 {
		return library.Song{}, false
	}
	return items[clampCursor(s.cursor[focusSource], len(items))], true
}

func (s *managerScreen) selectedPlaylist() (library.Playlist, bool) {
	items := s.playlists.Snapshot().Items
	if len(items) == 0 {
		return library.Playlist{}, false
	}
	return items[clampCursor(s.cursor[focusPlaylists], len(items))], true
}

func (s *managerScreen) move(delta int) {
	var n int
	if s.focus == focusSource {
		n = len(s.source.Snapshot().Items)
	} else {
		n = len(s.playlists.Snapshot().Items)
	}
	s.cursor[s.focus] = clampCursor(s.cursor[s.focus]+delta, n)
}

func (s *managerScreen) update(m *Model, msg tea.KeyMsg) tea.Cmd {
	if s.creating {
		return s.updateInput(m, msg)
	}

	k := m.keys
	switch {
	case key.Matches(msg, k.Up):
		s.move(-1)
	case key.Matches(msg, k.Down):
		s.move(1)
	case key.Matches(msg, k.Focus):
		s.focus = 1 - s.focus
	case key.Matches(msg, k.Refresh):
		return s.reload()
	case key.Matches(msg, k.PickUp):
		return s.pickUp(m)
	case key.Matches(msg, k.Open):
		if s.focus != focusPlaylists {
			return nil
		}
		pl, ok := s.selectedPlaylist()
		if !ok {
			return nil
		}
		if s.drag != nil {
			return s.drop(pl)
		}
		return m.push(newPlaylistScreen(m, pl))
	case key.Matches(msg, k.Create):
		s.creating = true
		s.input.Reset()
		return s.input.Focus()
	case key.Matches(msg, k.Delete):
		return s.deletePlaylist(m)
	}
	return nil
}

func (s *managerScreen) updateInput(m *Model, msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyEsc:
		s.stopInput()
		m.clearNotice()
		return nil
	case tea.KeyEnter:
		name := strings.TrimSpace(s.input.Value())
		if name == "" {
			m.setError(errEmptyName)
			return nil
		}
		s.stopInput()
		m.clearNotice()
		return s.create(name)
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return cmd
}

func (s *managerScreen) stopInput() {
	s.creating = false
	s.input.Blur()
	s.input.Reset()
}

func (s *managerScreen) create(name string) tea.Cmd {
	ctx, client, lists := s.ctx, s.client, s.playlists
	return func() tea.Msg {
		pl, err := client.CreatePlaylist(ctx, name)
		if err != nil {
			return doneMsg{err: err}
		}
		if err := quiet(lists.Load(ctx)); err != nil {
			return doneMsg{err: err}
		}
		return doneMsg{notice: fmt.Sprintf("created %q", pl.Name)}
	}
}

func (s *managerScreen) pickUp(m *Model) tea.Cmd {
	if s.focus != focusSource {
		return nil
	}
	song, ok := s.selectedSong()
	if !ok {
		return nil
	}
	d, err := s.validator.Begin(song)
	if err != nil {
		m.setError(err)
		return nil
	}
	s.drag = d
	s.focus = focusPlaylists
	m.setNotice(fmt.Sprintf("picked up %q, press enter on a playlist", song.Title))
	return nil
}

func (s *managerScreen) drop(pl library.Playlist) tea.Cmd {
	ctx, v, d, w := s.ctx, s.validator, s.drag, s.watcher
	title := d.Song().Title
	return func() tea.Msg {
		if err := v.Drop(ctx, d, pl); err != nil {
			return doneMsg{err: err}
		}
		w.Sync()
		return doneMsg{
			notice: fmt.Sprintf("added %q to %q", title, pl.Name),
			then: func(*Model) tea.Cmd {
				if s.drag == d {
					s.drag = nil
				}
				return nil
			},
		}
	}
}

func (s *managerScreen) deletePlaylist(m *Model) tea.Cmd {
	if s.focus != focusPlaylists {
		m.setNotice("select a playlist to delete")
		return nil
	}
	pl, ok := s.selectedPlaylist()
	if !ok {
		return nil
	}
	id := strconv.FormatInt(pl.ID, 10)
	action := func(ctx context.Context) error {
		return s.client.DeletePlaylist(ctx, pl.ID)
	}
	return m.guarded(s.guards, id, fmt.Sprintf("delete playlist %q", pl.Name), action, func(*Model) tea.Cmd {
		s.guards.Remove(id)
		s.playlists.Drop(state.PlaylistByID(pl.ID))
		s.cursor[focusPlaylists] = clampCursor(s.cursor[focusPlaylists], len(s.playlists.Snapshot().Items))
		// Its songs may be assignable again.
		return refreshCmd(s.ctx, "playlists", func(ctx context.Context) error {
			err := errors.Join(quiet(s.playlists.AfterMutation(ctx)), quiet(s.source.AfterMutation(ctx)))
			s.watcher.Sync()
			return err
		})
	})
}

func (s *managerScreen) panes(m *Model, compact bool) []pane {
	width := rowWidth(m.width, 2, compact)

	dragged := ""
	if s.drag != nil {
		dragged = s.drag.Song().SpotifyID
	}

	src := s.source.Snapshot()
	srcPane := pane{
		title:   fmt.Sprintf("Not in a playlist · %d", src.Total),
		cursor:  clampCursor(s.cursor[focusSource], len(src.Items)),
		focused: s.focus == focusSource,
		empty:   emptyText(src.Loaded, src.LastError, "every saved song is in a playlist"),
	}
	for _, song := range src.Items {
		mark := markNone
		if song.SpotifyID == dragged {
			mark = markDragged
		}
		srcPane.rows = append(srcPane.rows, m.songRow(song, width, compact, mark))
	}

	lists := s.playlists.Snapshot()
	listPane := pane{
		title:   fmt.Sprintf("Playlists · %d", len(lists.Items)),
		cursor:  clampCursor(s.cursor[focusPlaylists], len(lists.Items)),
		focused: s.focus == focusPlaylists,
		empty:   emptyText(lists.Loaded, lists.LastError, "no playlists, press a to create one"),
	}
	for _, pl := range lists.Items {
		armed := s.guards.Phase(strconv.FormatInt(pl.ID, 10)) == guard.Armed
		listPane.rows = append(listPane.rows, m.playlistRow(pl, width, compact, armed))
	}
	switch {
	case s.creating:
		listPane.footer = s.input.View()
	case s.drag != nil:
		listPane.footer = "dragging " + s.drag.Song().Title
	}
	return []pane{srcPane, listPane}
}

func (s *managerScreen) hints(m *Model) []hint {
	k := m.keys
	if s.creating {
		return []hint{{key: "enter", desc: "Create"}, {key: "esc", desc: "Cancel"}}
	}
	open := bindingHint(k.Open)
	if s.drag != nil {
		open.desc = "Drop"
	}
	return []hint{
		bindingHint(k.PickUp), open, bindingHint(k.Create), bindingHint(k.Delete),
		bindingHint(k.Focus), bindingHint(k.Refresh), bindingHint(k.Back), bindingHint(k.Quit),
	}
}

func (s *managerScreen) background() {
	s.guards.Background()
}

func (s *managerScreen) loading() bool {
	return s.source.Snapshot().Loading || s.playlists.Snapshot().Loading
}

func (s *managerScreen) close() {
	s.guards.Background()
	s.watcher.Close()
	s.source.Close()
	s.playlists.Close()
	s.cancel()
}
