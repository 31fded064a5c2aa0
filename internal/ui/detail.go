package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/deckhand/internal/guard"
	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
)

// detailScreen shows one song and follows its job.
type detailScreen struct {
	ctx    context.Context
	cancel context.CancelFunc
	client library.Backend

	song    library.Song
	status  jobstatus.Status
	known   bool
	loaded  bool
	loadErr error

	watcher Watcher
	guards  *guard.Group
	hooks   songHooks

	// Match candidates, only for a song without a match.
	matches   []library.SoundCloudTrack
	searching bool
	searched  bool
	searchErr error
	noResults bool
	cursor    int
	saving    bool
}

// songHooks let the list a detail screen was opened from reconcile itself.
// Both run on the UI goroutine.
type songHooks struct {
	deleted func(id string) tea.Cmd
	matched func(id string) tea.Cmd
}

func newDetailScreen(m *Model, song library.Song, hooks songHooks) *detailScreen {
	ctx, cancel := context.WithCancel(m.ctx)
	s := &detailScreen{
		ctx:    ctx,
		cancel: cancel,
		client: m.client,
		song:   song,
		guards: m.guards(),
		hooks:  hooks,
	}
	s.status, s.known = song.Status()
	s.watcher = m.newWatcher(ctx)
	return s
}

func (s *detailScreen) title() string { return truncate(s.song.Title, 32) }

func (s *detailScreen) open(*Model) tea.Cmd {
	ctx, client, w, listed := s.ctx, s.client, s.watcher, s.song
	return func() tea.Msg {
		detail, err := client.FetchSong(ctx, listed.SpotifyID)
		if err != nil {
			return detailMsg{err: err}
		}
		// The detail payload carries no job fields.
		if st, ok := listed.Status(); ok {
			detail = detail.WithStatus(st)
		}
		st, err := w.Watch(ctx, detail)
		if err != nil {
			return detailMsg{song: detail, err: err}
		}
		return detailMsg{song: detail, st: st, known: true}
	}
}

func (s *detailScreen) resume(*Model) tea.Cmd { return nil }

func (s *detailScreen) receive(m *Model, msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case detailMsg:
		return s.received(m, msg)
	case matchesMsg:
		if msg.id != s.song.SpotifyID {
			return nil
		}
		s.searching, s.searched = false, true
		s.searchErr = msg.err
		s.matches = msg.cands.Matches
		s.noResults = msg.cands.SearchFailed
		s.cursor = clampCursor(s.cursor, len(s.matches))
		if msg.err != nil {
			m.setError(msg.err)
		}
	case matchSavedMsg:
		if msg.id != s.song.SpotifyID {
			return nil
		}
		s.saving = false
		if msg.err != nil {
			m.setError(msg.err)
			return nil
		}
		m.setNotice(fmt.Sprintf("match saved for %q, download queued", msg.title))
		if m.top() != screen(s) {
			return nil
		}
		cmd := m.pop()
		if s.hooks.matched != nil {
			cmd = tea.Batch(cmd, s.hooks.matched(msg.id))
		}
		return cmd
	}
	return nil
}

func (s *detailScreen) received(m *Model, d detailMsg) tea.Cmd {
	s.loaded = true
	if d.song.SpotifyID != "" && d.song.SpotifyID == s.song.SpotifyID {
		s.song = d.song
	}
	if d.err != nil {
		s.loadErr = d.err
		m.setError(d.err)
		return nil
	}
	if !s.known {
		s.status, s.known = d.st, d.known
	}
	if s.unmatched() && !s.searched {
		return s.search()
	}
	return nil
}

// unmatched reports whether the song has no match yet, so one can be
// chosen.
func (s *detailScreen) unmatched() bool {
	return s.known && s.status.State == jobstatus.StateNone
}

func (s *detailScreen) search() tea.Cmd {
	if s.searching {
		return nil
	}
	s.searching = true
	ctx, client, id := s.ctx, s.client, s.song.SpotifyID
	return func() tea.Msg {
		cands, err := client.FetchMatches(ctx, id)
		return matchesMsg{id: id, cands: cands, err: err}
	}
}

func (s *detailScreen) choose(m *Model) tea.Cmd {
	if !s.unmatched() || len(s.matches) == 0 || s.saving {
		return nil
	}
	s.saving = true
	track := s.matches[clampCursor(s.cursor, len(s.matches))]
	song := s.song
	ctx, client := s.ctx, s.client
	m.setNotice(fmt.Sprintf("saving %q as the match", track.Title))
	return func() tea.Msg {
		err := client.SaveMatch(ctx, song.SpotifyID, library.NewMatchRequest(song, track))
		return matchSavedMsg{id: song.SpotifyID, title: song.Title, err: err}
	}
}

func (s *detailScreen) applyStatus(id string, st jobstatus.Status) {
	if id == s.song.SpotifyID {
		s.status, s.known = st, true
	}
}

func (s *detailScreen) update(m *Model, msg tea.KeyMsg) tea.Cmd {
	k := m.keys
	switch {
	case key.Matches(msg, k.Up):
		s.cursor = clampCursor(s.cursor-1, len(s.matches))
	case key.Matches(msg, k.Down):
		s.cursor = clampCursor(s.cursor+1, len(s.matches))
	case key.Matches(msg, k.Choose):
		return s.choose(m)
	case key.Matches(msg, k.Refresh):
		if s.unmatched() {
			return s.search()
		}
	case key.Matches(msg, k.Retry):
		ctx, w, id, st, title := s.ctx, s.watcher, s.song.SpotifyID, s.status, s.song.Title
		return func() tea.Msg {
			if err := w.Retry(ctx, id, st); err != nil {
				return doneMsg{err: fmt.Errorf("retry %q: %w", title, err)}
			}
			return doneMsg{notice: fmt.Sprintf("retrying %q", title)}
		}
	case key.Matches(msg, k.Delete):
		if s.unmatched() {
			m.setNotice("this song has no match to delete")
			return nil
		}
		id := s.song.SpotifyID
		action := func(ctx context.Context) error {
			return s.client.DeleteMatch(ctx, id)
		}
		return m.guarded(s.guards, id, "delete match", action, func(m *Model) tea.Cmd {
			s.watcher.Forget(id)
			cmd := m.pop()
			if s.hooks.deleted != nil {
				cmd = tea.Batch(cmd, s.hooks.deleted(id))
			}
			return cmd
		})
	}
	return nil
}

func (s *detailScreen) panes(m *Model, compact bool) []pane {
	st := m.styles()
	width := rowWidth(m.width, 1, compact)
	label := func(name string) string {
		if compact {
			return ""
		}
		return st.MutedText.Render(padRight(name, 10))
	}

	song := s.song
	rows := []string{
		label("Artist") + st.Text.Render(truncate(song.Artist, width-10)),
	}
	if song.Album != nil {
		rows = append(rows, label("Album")+st.Text.Render(truncate(*song.Album, width-10)))
	}
	if song.ReleaseDate != nil {
		rows = append(rows, label("Released")+st.Text.Render(*song.ReleaseDate))
	}
	if song.DurationMS != nil {
		rows = append(rows, label("Length")+st.Text.Render(formatDuration(*song.DurationMS)))
	}
	if song.BPM != nil {
		rows = append(rows, label("BPM")+st.Text.Render(fmt.Sprintf("%.1f", *song.BPM)))
	}
	if song.Key != nil {
		rows = append(rows, label("Key")+st.Text.Render(*song.Key))
	}
	if saved := song.ParsedSavedAt(); !saved.IsZero() {
		rows = append(rows, label("Saved")+st.Text.Render(humanizeAge(saved, time.Now())))
	}

	rows = append(rows, "")
	switch {
	case !s.known && !s.loaded:
		rows = append(rows, st.FaintText.Render(m.spinner.View()+" resolving download status"))
	case !s.known:
		rows = append(rows, st.FaintText.Render("download status unknown"))
	default:
		rows = append(rows, s.statusLine(m, compact))
	}

	if s.guards.Phase(song.SpotifyID) == guard.Armed {
		rows = append(rows, "", st.DangerText.Render("press x again to delete the match"))
	}
	if s.loadErr != nil {
		rows = append(rows, "", st.DangerText.Render(truncate(s.loadErr.Error(), width)))
	}

	info := pane{title: song.Title, rows: rows, cursor: -1, focused: !s.unmatched()}
	if !s.unmatched() {
		return []pane{info}
	}
	return []pane{info, s.matchPane(m, compact)}
}

func (s *detailScreen) matchPane(m *Model, compact bool) pane {
	st := m.styles()
	width := rowWidth(m.width, 2, compact)
	p := pane{
		title:   fmt.Sprintf("Matches · %d", len(s.matches)),
		cursor:  clampCursor(s.cursor, len(s.matches)),
		focused: true,
	}
	switch {
	case s.searchErr != nil:
		p.empty = "search failed: " + s.searchErr.Error()
	case s.noResults:
		p.empty = "search failed, press R to try again"
	case !s.searched:
		p.empty = "searching..."
	default:
		p.empty = "no matches found"
	}
	for _, t := range s.matches {
		length := ""
		if t.DurationMS > 0 {
			length = "  " + formatDuration(t.DurationMS)
		}
		line := truncate(t.Title+" · "+t.Artist, width-len(length)-2)
		p.rows = append(p.rows, st.Text.Render(line)+st.MutedText.Render(length))
	}
	if s.saving {
		p.footer = "saving..."
	}
	return p
}

func (s *detailScreen) statusLine(m *Model, compact bool) string {
	st := m.styles()
	label := s.status.Label()
	if label == "" {
		label = "No match chosen"
	}
	badge := st.StatusStyle(s.status.State).Render(label)
	if pct, ok := s.status.Percent(); ok && !compact {
		return badge + "  " + m.progress.ViewAs(float64(pct)/100)
	}
	return badge
}

func (s *detailScreen) hints(m *Model) []hint {
	if s.unmatched() {
		return []hint{
			bindingHint(m.keys.Choose), {key: "j/k", desc: "Select"}, bindingHint(m.keys.Refresh),
			bindingHint(m.keys.Back), bindingHint(m.keys.Logs), bindingHint(m.keys.Quit),
		}
	}
	return []hint{
		bindingHint(m.keys.Retry), bindingHint(m.keys.Delete),
		bindingHint(m.keys.Back), bindingHint(m.keys.Logs), bindingHint(m.keys.Quit),
	}
}

func (s *detailScreen) background() {
	s.guards.Background()
}

func (s *detailScreen) loading() bool {
	return !s.loaded || s.searching || s.saving
}

func (s *detailScreen) close() {
	s.guards.Background()
	s.watcher.Close()
	s.cancel()
}
