package ui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/deckhand/internal/guard"
	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/logging"
	"github.com/five82/deckhand/internal/prefs"
	"github.com/five82/deckhand/internal/session"
	"github.com/five82/deckhand/internal/state"
	"github.com/five82/deckhand/internal/testutil"
)

// stubWatcher records what screens ask of their watcher without polling.
type stubWatcher struct {
	mu        sync.Mutex
	tracked   int
	forgotten []string
	closed    bool
}

func (w *stubWatcher) Track(stores ...*state.PageStore[library.Song]) {
	w.mu.Lock()
	w.tracked += len(stores)
	w.mu.Unlock()
}

func (w *stubWatcher) Sync() {}

func (w *stubWatcher) Watch(_ context.Context, song library.Song) (jobstatus.Status, error) {
	if st, ok := song.Status(); ok {
		return st, nil
	}
	return jobstatus.NewStatus(jobstatus.StateNone, 0), nil
}

func (w *stubWatcher) Retry(_ context.Context, _ string, current jobstatus.Status) error {
	_, err := current.Retry()
	return err
}

func (w *stubWatcher) Forget(id string) {
	w.mu.Lock()
	w.forgotten = append(w.forgotten, id)
	w.mu.Unlock()
}

func (w *stubWatcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (w *stubWatcher) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type harness struct {
	t         *testing.T
	backend   *testutil.Backend
	model     Model
	prefsPath string
	quit      bool

	mu       sync.Mutex
	watchers []*stubWatcher
}

func newHarness(t *testing.T, seed func(b *testutil.Backend)) *harness {
	t.Helper()
	backend := testutil.NewBackend(t)
	if seed != nil {
		seed(backend)
	}
	sess := session.New()
	client, err := library.NewClient(backend.URL(), sess)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dir := t.TempDir()
	h := &harness{t: t, backend: backend, prefsPath: filepath.Join(dir, "prefs.toml")}
	h.model = New(ctx, Options{
		Client:    client,
		Session:   sess,
		Logger:    logging.Discard(),
		PageSize:  15,
		Guard:     guard.Options{Timeout: time.Minute},
		LogFile:   filepath.Join(dir, "deckhand.log"),
		Prefs:     prefs.Default(),
		PrefsPath: h.prefsPath,
		NewWatcher: func(context.Context, func(string, jobstatus.Status)) Watcher {
			w := &stubWatcher{}
			h.mu.Lock()
			h.watchers = append(h.watchers, w)
			h.mu.Unlock()
			return w
		},
	})
	h.update(tea.WindowSizeMsg{Width: 120, Height: 40})
	h.run(h.model.start())
	return h
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	return cmd
}

// run executes cmd and every command its messages produce until none are
// left.
func (h *harness) run(cmd tea.Cmd) {
	h.t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 200 {
			h.t.Fatal("commands did not settle")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case tea.QuitMsg:
			h.quit = true
		default:
			queue = append(queue, h.update(msg))
		}
	}
}

func (h *harness) press(keys ...string) {
	h.t.Helper()
	for _, k := range keys {
		h.run(h.update(keyMsg(k)))
	}
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "space":
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func (h *harness) library() *libraryScreen {
	return h.model.stack[0].(*libraryScreen)
}

func (h *harness) manager() *managerScreen {
	h.t.Helper()
	s, ok := h.model.top().(*managerScreen)
	if !ok {
		h.t.Fatalf("top screen is %T, want *managerScreen", h.model.top())
	}
	return s
}

func (h *harness) watcher(i int) *stubWatcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.watchers[i]
}

func ids(songs []library.Song) []string {
	out := make([]string, 0, len(songs))
	for _, s := range songs {
		out = append(out, s.SpotifyID)
	}
	return out
}

func TestLibraryLoadsBothLists(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) {
		b.AddSongs("saved", 3)
		b.AddSong(testutil.Song{SpotifyID: "new-1", Title: "Fresh", Artist: "Someone"})
	})

	lib := h.library()
	if got := len(lib.saved.Snapshot().Items); got != 3 {
		t.Fatalf("saved rows = %d, want 3", got)
	}
	if got := ids(lib.fresh.Snapshot().Items); len(got) != 1 || got[0] != "new-1" {
		t.Fatalf("new rows = %v, want [new-1]", got)
	}
	if h.watcher(0).tracked != 2 {
		t.Fatalf("tracked stores = %d, want 2", h.watcher(0).tracked)
	}
	view := h.model.View()
	if !strings.Contains(view, "Song 0") || !strings.Contains(view, "Fresh") {
		t.Fatalf("view is missing rows:\n%s", view)
	}
}

func TestDeleteMatchNeedsSecondPress(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) { b.AddSongs("s", 2) })

	h.press("x")
	if n := h.backend.Count(testutil.RouteDeleteMatch); n != 0 {
		t.Fatalf("delete requests after first press = %d, want 0", n)
	}
	if !strings.Contains(h.model.notice, "again") {
		t.Fatalf("notice = %q, want confirmation prompt", h.model.notice)
	}

	h.press("x")
	if n := h.backend.Count(testutil.RouteDeleteMatch); n != 1 {
		t.Fatalf("delete requests = %d, want 1", n)
	}
	// Newest first: the cursor starts on s-1.
	if h.backend.IsSaved("s-1") {
		t.Fatal("s-1 still has a match")
	}
	lib := h.library()
	if got := ids(lib.saved.Snapshot().Items); len(got) != 1 || got[0] != "s-0" {
		t.Fatalf("saved rows = %v, want [s-0]", got)
	}
	if got := ids(lib.fresh.Snapshot().Items); len(got) != 1 || got[0] != "s-1" {
		t.Fatalf("new rows = %v, want [s-1]", got)
	}
	if f := h.watcher(0).forgotten; len(f) != 1 || f[0] != "s-1" {
		t.Fatalf("forgotten = %v, want [s-1]", f)
	}
}

func TestDeleteMatchStandsWhenRefreshFails(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) { b.AddSongs("s", 2) })

	h.press("x")
	h.backend.FailAlways(testutil.RouteSongs, 500, "boom")
	h.press("x")

	if n := h.backend.Count(testutil.RouteDeleteMatch); n != 1 {
		t.Fatalf("delete requests = %d, want 1", n)
	}
	if h.backend.IsSaved("s-1") {
		t.Fatal("s-1 still has a match")
	}
	lib := h.library()
	if got := ids(lib.saved.Snapshot().Items); len(got) != 1 || got[0] != "s-0" {
		t.Fatalf("saved rows = %v, want [s-0]", got)
	}
	if p := lib.guards.Phase("s-1"); p != guard.Idle {
		t.Fatalf("s-1 guard = %s, want idle", p)
	}
	if !h.model.noticeErr || !strings.Contains(h.model.notice, "refresh") {
		t.Fatalf("notice = %q (err %v), want a refresh error", h.model.notice, h.model.noticeErr)
	}
	if strings.Contains(h.model.notice, "delete match") {
		t.Fatalf("notice = %q reports the delete as failed", h.model.notice)
	}
}

func TestRemoveFromPlaylistStandsWhenRefreshFails(t *testing.T) {
	var playlist int64
	h := newHarness(t, func(b *testutil.Backend) {
		b.AddSongs("r", 2)
		playlist = b.AddPlaylist("Warmup", "r-0", "r-1")
	})

	h.press("m", "tab", "enter")
	top, ok := h.model.top().(*playlistScreen)
	if !ok {
		t.Fatalf("top screen is %T, want *playlistScreen", h.model.top())
	}
	before := len(top.members.Snapshot().Items)
	if before != 2 {
		t.Fatalf("members = %d, want 2", before)
	}

	h.press("x")
	h.backend.FailAlways(testutil.RoutePlaylistSongs, 500, "boom")
	h.press("x")

	if n := h.backend.Count(testutil.RouteRemoveSong); n != 1 {
		t.Fatalf("remove requests = %d, want 1", n)
	}
	if got := h.backend.Members(playlist); len(got) != 1 {
		t.Fatalf("backend members = %v, want one left", got)
	}
	if got := top.members.Snapshot().Items; len(got) != 1 {
		t.Fatalf("members = %v, want one left", ids(got))
	}
	if !h.model.noticeErr || !strings.Contains(h.model.notice, "refresh") {
		t.Fatalf("notice = %q (err %v), want a refresh error", h.model.notice, h.model.noticeErr)
	}
}

func TestDetailDeleteReturnsToLibrary(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) { b.AddSongs("s", 2) })

	h.press("enter")
	if _, ok := h.model.top().(*detailScreen); !ok {
		t.Fatalf("top screen is %T, want *detailScreen", h.model.top())
	}
	h.press("x", "x")

	if _, ok := h.model.top().(*libraryScreen); !ok {
		t.Fatalf("top screen is %T, want *libraryScreen", h.model.top())
	}
	if h.backend.IsSaved("s-1") {
		t.Fatal("s-1 still has a match")
	}
	lib := h.library()
	if got := ids(lib.saved.Snapshot().Items); len(got) != 1 || got[0] != "s-0" {
		t.Fatalf("saved rows = %v, want [s-0]", got)
	}
	if got := ids(lib.fresh.Snapshot().Items); len(got) != 1 || got[0] != "s-1" {
		t.Fatalf("new rows = %v, want [s-1]", got)
	}
	if !h.watcher(1).isClosed() {
		t.Fatal("detail watcher still open")
	}
}

func TestChooseMatchForNewSong(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) {
		b.AddSongs("s", 1)
		b.AddSong(testutil.Song{SpotifyID: "n-1", Title: "Fresh", Artist: "Someone"})
	})

	h.press("tab", "enter")
	detail, ok := h.model.top().(*detailScreen)
	if !ok {
		t.Fatalf("top screen is %T, want *detailScreen", h.model.top())
	}
	if got := len(detail.matches); got != 2 {
		t.Fatalf("candidates = %d, want 2", got)
	}
	if view := h.model.View(); !strings.Contains(view, "Fresh (take 2)") {
		t.Fatalf("view is missing candidates:\n%s", view)
	}

	h.press("j", "s")

	if got, want := h.backend.ChosenMatch("n-1"), testutil.MatchURL("n-1", 2); got != want {
		t.Fatalf("chosen match = %q, want %q", got, want)
	}
	if _, ok := h.model.top().(*libraryScreen); !ok {
		t.Fatalf("top screen is %T, want *libraryScreen", h.model.top())
	}
	lib := h.library()
	if got := ids(lib.saved.Snapshot().Items); len(got) != 2 || got[0] != "n-1" {
		t.Fatalf("saved rows = %v, want n-1 first", got)
	}
	if got := lib.fresh.Snapshot().Items; len(got) != 0 {
		t.Fatalf("new rows = %v, want none", ids(got))
	}
}

func TestChooseMatchNeedsCandidates(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) {
		b.AddSong(testutil.Song{SpotifyID: "n-1", Title: "Fresh"})
		b.FailSearch("n-1")
	})

	h.press("tab", "enter", "s")

	if n := h.backend.Count(testutil.RouteSaveMatch); n != 0 {
		t.Fatalf("save-match requests = %d, want 0", n)
	}
	if _, ok := h.model.top().(*detailScreen); !ok {
		t.Fatalf("top screen is %T, want *detailScreen", h.model.top())
	}
	if view := h.model.View(); !strings.Contains(view, "search failed") {
		t.Fatalf("view does not report the failed search:\n%s", view)
	}
}

func TestOtherKeyDisarmsDelete(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) { b.AddSongs("s", 2) })

	h.press("x", "j", "x")
	if n := h.backend.Count(testutil.RouteDeleteMatch); n != 0 {
		t.Fatalf("delete requests = %d, want 0", n)
	}
	if p := h.library().guards.Phase("s-1"); p != guard.Idle {
		t.Fatalf("s-1 guard = %s, want idle", p)
	}
	if p := h.library().guards.Phase("s-0"); p != guard.Armed {
		t.Fatalf("s-0 guard = %s, want armed", p)
	}
}

func TestRetryRejectsActiveJob(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) { b.AddSongs("s", 1) })

	h.press("r")
	if !h.model.noticeErr || !strings.Contains(h.model.notice, "retry") {
		t.Fatalf("notice = %q (err %v), want retry rejection", h.model.notice, h.model.noticeErr)
	}
	if n := h.backend.Count(testutil.RouteRetryDownload); n != 0 {
		t.Fatalf("retry requests = %d, want 0", n)
	}
}

func TestCycleFilterPersistsPreference(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) {
		b.AddSongs("s", 2)
		b.AddPlaylist("Warmup", "s-0")
	})

	h.press("f")
	key := h.library().saved.Key()
	if !key.Filter.ExcludeInPlaylist || key.Index != 0 {
		t.Fatalf("key = %+v, want exclude_in_playlist page 0", key)
	}
	if got := ids(h.library().saved.Snapshot().Items); len(got) != 1 || got[0] != "s-1" {
		t.Fatalf("saved rows = %v, want [s-1]", got)
	}
	saved, err := prefs.Load(h.prefsPath)
	if err != nil {
		t.Fatalf("prefs.Load returned error: %v", err)
	}
	if saved.SavedFilter != state.SignatureExcludeInPlaylist {
		t.Fatalf("saved filter = %q, want %q", saved.SavedFilter, state.SignatureExcludeInPlaylist)
	}
}

func TestCheckRemovesSongGoneFromSource(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) {
		b.AddSong(testutil.Song{SpotifyID: "gone", Title: "Gone"})
		b.SetInSource("gone", false)
	})

	h.press("tab", "c")
	if n := h.backend.Count(testutil.RouteCheckSong); n != 1 {
		t.Fatalf("check requests = %d, want 1", n)
	}
	if got := h.library().fresh.Snapshot().Items; len(got) != 0 {
		t.Fatalf("new rows = %v, want none", ids(got))
	}
}

func TestPickUpRejectsSongThatIsNotReady(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) {
		b.AddSong(testutil.Song{SpotifyID: "p-1", Title: "Pending", Saved: true, Status: "pending"})
		b.AddPlaylist("Warmup")
	})

	h.press("m", "space")
	mgr := h.manager()
	if mgr.drag != nil {
		t.Fatal("drag started for a pending song")
	}
	if !h.model.noticeErr || !strings.Contains(h.model.notice, "download has not started yet") {
		t.Fatalf("notice = %q, want the rejection reason", h.model.notice)
	}
	if n := h.backend.Count(testutil.RouteAddSong); n != 0 {
		t.Fatalf("add-song requests = %d, want 0", n)
	}
}

func TestDropAssignsReadySong(t *testing.T) {
	var playlist int64
	h := newHarness(t, func(b *testutil.Backend) {
		b.AddSongs("r", 1)
		playlist = b.AddPlaylist("Warmup")
	})

	h.press("m", "space")
	if h.manager().drag == nil {
		t.Fatal("drag did not start for a completed song")
	}
	h.press("enter")

	if got := h.backend.Members(playlist); len(got) != 1 || got[0] != "r-0" {
		t.Fatalf("members = %v, want [r-0]", got)
	}
	mgr := h.manager()
	if mgr.drag != nil {
		t.Fatal("drag still active after a successful drop")
	}
	if got := mgr.source.Snapshot().Items; len(got) != 0 {
		t.Fatalf("source rows = %v, want none", ids(got))
	}
	if got := mgr.playlists.Snapshot().Items; len(got) != 1 || got[0].SongCount != 1 {
		t.Fatalf("playlists = %+v, want one with a song", got)
	}
}

func TestCreatePlaylistRejectsEmptyName(t *testing.T) {
	h := newHarness(t, nil)

	h.press("m", "a", "enter")
	if n := h.backend.Count(testutil.RouteCreatePlaylist); n != 0 {
		t.Fatalf("create requests = %d, want 0", n)
	}
	if h.model.notice != errEmptyName.Error() {
		t.Fatalf("notice = %q, want %q", h.model.notice, errEmptyName.Error())
	}
	if !h.manager().creating {
		t.Fatal("input closed after a rejected name")
	}

	h.press("Warmup", "enter")
	if n := h.backend.Count(testutil.RouteCreatePlaylist); n != 1 {
		t.Fatalf("create requests = %d, want 1", n)
	}
	lists := h.manager().playlists.Snapshot().Items
	if len(lists) != 1 || lists[0].Name != "Warmup" {
		t.Fatalf("playlists = %+v, want Warmup", lists)
	}
}

func TestLeavingScreenClosesWatcher(t *testing.T) {
	h := newHarness(t, nil)

	h.press("m")
	mgr := h.manager()
	h.press("esc")

	if _, ok := h.model.top().(*libraryScreen); !ok {
		t.Fatalf("top screen is %T, want *libraryScreen", h.model.top())
	}
	if !h.watcher(1).isClosed() {
		t.Fatal("manager watcher still open")
	}
	if !mgr.source.Closed() || !mgr.playlists.Closed() {
		t.Fatal("manager stores still open")
	}
	if h.watcher(0).isClosed() {
		t.Fatal("library watcher closed")
	}
}

func TestSessionExpiryShowsBannerAndQuits(t *testing.T) {
	h := newHarness(t, func(b *testutil.Backend) { b.AddSongs("s", 1) })

	h.backend.Expire()
	h.press("R")

	deadline := time.After(2 * time.Second)
	for h.model.expired == nil {
		select {
		case msg := <-h.model.events:
			if _, ok := msg.(expiredMsg); ok {
				h.run(h.update(msg))
			}
		case <-deadline:
			t.Fatal("no expiry event")
		}
	}

	if !errors.Is(h.model.expired, library.ErrSessionExpired) {
		t.Fatalf("expired = %v, want ErrSessionExpired", h.model.expired)
	}
	if !h.quit {
		t.Fatal("program did not quit after expiry")
	}
	if view := h.model.View(); !strings.Contains(view, "Session expired") {
		t.Fatalf("view has no expiry banner:\n%s", view)
	}
	if !h.watcher(0).isClosed() {
		t.Fatal("library watcher still open after expiry")
	}
}
