package dragdrop

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/session"
	"github.com/five82/deckhand/internal/state"
	"github.com/five82/deckhand/internal/testutil"
)

type countingAssigner struct {
	calls int
}

func (a *countingAssigner) AddSongToPlaylist(context.Context, int64, string) error {
	a.calls++
	return nil
}

func songWith(st jobstatus.State, progress int) library.Song {
	return library.Song{SpotifyID: "s", Title: "Track"}.WithStatus(jobstatus.NewStatus(st, progress))
}

func TestCanDrag_OnlyCompleted(t *testing.T) {
	for _, st := range []jobstatus.State{
		jobstatus.StateNone, jobstatus.StatePending, jobstatus.StateDownloading,
		jobstatus.StateAnalyzing, jobstatus.StateCompleted, jobstatus.StateFailed,
	} {
		want := st == jobstatus.StateCompleted
		if got := CanDrag(songWith(st, 50)); got != want {
			t.Fatalf("CanDrag(%s) = %v, want %v", st, got, want)
		}
	}
	if CanDrag(library.Song{SpotifyID: "unknown"}) {
		t.Fatal("CanDrag should reject a song whose status is unknown")
	}
}

func TestCheck_ReasonsDistinguishStates(t *testing.T) {
	tests := []struct {
		song library.Song
		want string
	}{
		{songWith(jobstatus.StateNone, 0), "no match"},
		{songWith(jobstatus.StatePending, 0), "not started"},
		{songWith(jobstatus.StateDownloading, 40), "still downloading (40%)"},
		{songWith(jobstatus.StateDownloading, 85), "still converting (85%)"},
		{songWith(jobstatus.StateAnalyzing, 10), "still being analyzed (10%)"},
		{songWith(jobstatus.StateFailed, 0), "download failed"},
		{library.Song{SpotifyID: "s", Title: "Track"}, "unknown"},
	}
	for _, tt := range tests {
		err := Check(tt.song)
		if !errors.Is(err, ErrNotReady) {
			t.Fatalf("Check error = %v, want ErrNotReady", err)
		}
		var nr *NotReadyError
		if !errors.As(err, &nr) {
			t.Fatalf("Check error %T is not *NotReadyError", err)
		}
		if !strings.Contains(nr.Reason(), tt.want) {
			t.Fatalf("reason = %q, want it to contain %q", nr.Reason(), tt.want)
		}
		if !strings.Contains(err.Error(), `"Track"`) {
			t.Fatalf("error %q should name the song", err.Error())
		}
	}
}

func TestBegin_NonReadySongNeverReachesBackend(t *testing.T) {
	assigner := &countingAssigner{}
	v := NewValidator(assigner, nil, nil, nil)
	for _, st := range []jobstatus.State{jobstatus.StatePending, jobstatus.StateDownloading, jobstatus.StateAnalyzing, jobstatus.StateFailed} {
		d, err := v.Begin(songWith(st, 99))
		if d != nil || err == nil {
			t.Fatalf("Begin(%s) = %v, %v; want rejection", st, d, err)
		}
		if err := v.Drop(context.Background(), d, library.Playlist{ID: 1}); !errors.Is(err, ErrNoDrag) {
			t.Fatalf("Drop without drag = %v, want ErrNoDrag", err)
		}
	}
	if assigner.calls != 0 {
		t.Fatalf("add-to-playlist calls = %d, want 0", assigner.calls)
	}
}

type fixture struct {
	backend   *testutil.Backend
	client    *library.Client
	source    *state.PageStore[library.Song]
	playlists *state.PageStore[library.Playlist]
	plID      int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend := testutil.NewBackend(t)
	backend.AddSong(testutil.Song{SpotifyID: "ready", Title: "Ready", Saved: true, Status: "completed", Progress: 100})
	backend.AddSong(testutil.Song{SpotifyID: "other", Title: "Other", Saved: true, Status: "completed", Progress: 100})
	plID := backend.AddPlaylist("Warmup")

	client, err := library.NewClient(backend.URL(), session.New())
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	source := state.NewPageStore(state.SavedSongs(client, 1000), state.PageKey{Filter: state.Filter{ExcludeInPlaylist: true}}, state.Options{Name: "manager"})
	playlists := state.NewPageStore(state.Playlists(client), state.PageKey{}, state.Options{Name: "playlists"})
	ctx := context.Background()
	if err := source.Load(ctx); err != nil {
		t.Fatalf("source Load returned error: %v", err)
	}
	if err := playlists.Load(ctx); err != nil {
		t.Fatalf("playlists Load returned error: %v", err)
	}
	return fixture{backend: backend, client: client, source: source, playlists: playlists, plID: plID}
}

func (f fixture) song(t *testing.T, id string) library.Song {
	t.Helper()
	for _, s := range f.source.Snapshot().Items {
		if s.SpotifyID == id {
			return s
		}
	}
	t.Fatalf("song %s not in source", id)
	return library.Song{}
}

func sourceIDs(s *state.PageStore[library.Song]) []string {
	var out []string
	for _, song := range s.Snapshot().Items {
		out = append(out, song.SpotifyID)
	}
	return out
}

func TestDrop_ReconcilesSourceAndTarget(t *testing.T) {
	f := newFixture(t)
	v := NewValidator(f.client, f.source, f.playlists, nil)
	ctx := context.Background()

	d, err := v.Begin(f.song(t, "ready"))
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	pl := f.playlists.Snapshot().Items[0]
	if err := v.Drop(ctx, d, pl); err != nil {
		t.Fatalf("Drop returned error: %v", err)
	}

	if got := f.backend.Members(f.plID); !slices.Equal(got, []string{"ready"}) {
		t.Fatalf("members = %v, want [ready]", got)
	}
	if got := f.playlists.Snapshot().Items[0].SongCount; got != 1 {
		t.Fatalf("optimistic song count = %d, want 1", got)
	}
	if got := sourceIDs(f.source); slices.Contains(got, "ready") {
		t.Fatalf("source still lists the assigned song: %v", got)
	}
	if err := v.Drop(ctx, d, pl); !errors.Is(err, ErrNoDrag) {
		t.Fatalf("second Drop = %v, want ErrNoDrag", err)
	}
}

func TestDrop_FailureChangesNothingAndDragStaysValid(t *testing.T) {
	f := newFixture(t)
	v := NewValidator(f.client, f.source, f.playlists, nil)
	ctx := context.Background()

	d, err := v.Begin(f.song(t, "ready"))
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	pl := f.playlists.Snapshot().Items[0]
	loadsBefore := f.backend.Count(testutil.RouteSongs)

	f.backend.FailNext(testutil.RouteAddSong, http.StatusInternalServerError, "db locked")
	err = v.Drop(ctx, d, pl)
	if !errors.Is(err, library.ErrAPIRequest) {
		t.Fatalf("Drop error = %v, want ErrAPIRequest", err)
	}
	if got := f.playlists.Snapshot().Items[0].SongCount; got != 0 {
		t.Fatalf("song count after failure = %d, want 0", got)
	}
	if got := f.backend.Count(testutil.RouteSongs); got != loadsBefore {
		t.Fatalf("source reloaded %d times after failure, want 0", got-loadsBefore)
	}
	if got := sourceIDs(f.source); !slices.Contains(got, "ready") {
		t.Fatalf("source lost the song: %v", got)
	}

	if err := v.Drop(ctx, d, pl); err != nil {
		t.Fatalf("retrying the drop returned error: %v", err)
	}
	if got := f.playlists.Snapshot().Items[0].SongCount; got != 1 {
		t.Fatalf("song count = %d, want 1", got)
	}
}
