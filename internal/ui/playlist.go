package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/deckhand/internal/guard"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/state"
)

// playlistScreen lists the members of one playlist.
type playlistScreen struct {
	ctx    context.Context
	cancel context.CancelFunc
	client library.Backend

	playlist library.Playlist
	members  *state.PageStore[library.Song]
	guards   *guard.Group
	cursor   int
}

func newPlaylistScreen(m *Model, pl library.Playlist) *playlistScreen {
	ctx, cancel := context.WithCancel(m.ctx)
	return &playlistScreen{
		ctx:      ctx,
		cancel:   cancel,
		client:   m.client,
		playlist: pl,
		members: state.NewPageStore(state.PlaylistMembers(m.client, pl.ID),
			state.PageKey{}, state.Options{Name: fmt.Sprintf("playlist-%d", pl.ID), Logger: m.opts.Logger}),
		guards: m.guards(),
	}
}

func (s *playlistScreen) title() string { return truncate(s.playlist.Name, 32) }

func (s *playlistScreen) open(*Model) tea.Cmd {
	return storeCmd(s.ctx, s.members.Name(), s.members.Load)
}

func (s *playlistScreen) resume(*Model) tea.Cmd {
	return storeCmd(s.ctx, s.members.Name(), s.members.Load)
}

func (s *playlistScreen) update(m *Model, msg tea.KeyMsg) tea.Cmd {
	k := m.keys
	n := len(s.members.Snapshot().Items)
	switch {
	case key.Matches(msg, k.Up):
		s.cursor = clampCursor(s.cursor-1, n)
	case key.Matches(msg, k.Down):
		s.cursor = clampCursor(s.cursor+1, n)
	case key.Matches(msg, k.Refresh):
		return storeCmd(s.ctx, s.members.Name(), s.members.Load)
	case key.Matches(msg, k.Delete):
		return s.remove(m)
	}
	return nil
}

func (s *playlistScreen) remove(m *Model) tea.Cmd {
	items := s.members.Snapshot().Items
	if len(items) == 0 {
		return nil
	}
	song := items[clampCursor(s.cursor, len(items))]
	id, pl := song.SpotifyID, s.playlist
	action := func(ctx context.Context) error {
		return s.client.RemoveSongFromPlaylist(ctx, pl.ID, id)
	}
	what := fmt.Sprintf("remove %q from %q", song.Title, pl.Name)
	return m.guarded(s.guards, id, what, action, func(*Model) tea.Cmd {
		s.guards.Remove(id)
		s.members.Drop(state.SongByID(id))
		s.cursor = clampCursor(s.cursor, len(s.members.Snapshot().Items))
		return refreshCmd(s.ctx, s.members.Name(), s.members.AfterMutation)
	})
}

func (s *playlistScreen) panes(m *Model, compact bool) []pane {
	width := rowWidth(m.width, 1, compact)
	snap := s.members.Snapshot()
	p := pane{
		title:   fmt.Sprintf("%s · %d songs", s.playlist.Name, len(snap.Items)),
		cursor:  clampCursor(s.cursor, len(snap.Items)),
		focused: true,
		empty:   emptyText(snap.Loaded, snap.LastError, "this playlist is empty"),
	}
	if created := s.playlist.ParsedCreatedAt(); !created.IsZero() && !compact {
		p.footer = "created " + created.Format("2006-01-02")
	}
	for _, song := range snap.Items {
		mark := markNone
		if s.guards.Phase(song.SpotifyID) == guard.Armed {
			mark = markArmed
		}
		p.rows = append(p.rows, m.songRow(song, width, compact, mark))
	}
	return []pane{p}
}

func (s *playlistScreen) hints(m *Model) []hint {
	k := m.keys
	remove := bindingHint(k.Delete)
	remove.desc = "Remove"
	return []hint{
		remove, bindingHint(k.Refresh), bindingHint(k.Back), bindingHint(k.Logs), bindingHint(k.Quit),
	}
}

func (s *playlistScreen) background() {
	s.guards.Background()
}

func (s *playlistScreen) loading() bool {
	return s.members.Snapshot().Loading
}

func (s *playlistScreen) close() {
	s.guards.Background()
	s.members.Close()
	s.cancel()
}
