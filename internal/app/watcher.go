package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/logging"
	"github.com/five82/deckhand/internal/poller"
	"github.com/five82/deckhand/internal/state"
)

// Watcher keeps the song stores of one view in step with their download
// jobs. Every observed status is written into each tracked store holding the
// song and then passed to notify.
type Watcher struct {
	src    poller.StatusSource
	group  *poller.Group
	notify func(spotifyID string, st jobstatus.Status)
	logger *log.Logger

	mu     sync.Mutex
	stores []*state.PageStore[library.Song]
	closed bool
}

// NewWatcher creates a watcher whose pollers live until ctx ends or Close.
// notify may be nil; it runs on poller goroutines.
func NewWatcher(ctx context.Context, src poller.StatusSource, opts poller.Options, notify func(spotifyID string, st jobstatus.Status)) *Watcher {
	if ctx == nil {
		ctx = context.Background()
	}
	if notify == nil {
		notify = func(string, jobstatus.Status) {}
	}
	return &Watcher{
		src:    src,
		group:  poller.NewGroup(ctx, src, opts),
		notify: notify,
		logger: logging.Component(opts.Logger, "watcher"),
	}
}

// Track adds stores whose songs receive status updates.
func (w *Watcher) Track(stores ...*state.PageStore[library.Song]) {
	w.mu.Lock()
	w.stores = append(w.stores, stores...)
	w.mu.Unlock()
}

// Sync attaches a poller for every song with a known status in the tracked
// stores. Songs already followed keep their poller unless the store reports
// the job active again while the poller has gone quiet.
func (w *Watcher) Sync() {
	for _, song := range w.songs() {
		st, known := song.Status()
		if !known {
			continue
		}
		w.follow(song.SpotifyID, st)
	}
}

// Watch follows a single song, as the detail screen does. A song whose
// status is unknown is looked up once first.
func (w *Watcher) Watch(ctx context.Context, song library.Song) (jobstatus.Status, error) {
	st, known := song.Status()
	if !known {
		report, err := w.src.FetchDownloadStatus(ctx, song.SpotifyID)
		if err != nil {
			return st, fmt.Errorf("watch %s: %w", song.SpotifyID, err)
		}
		if st, err = report.JobStatus(); err != nil {
			return st, fmt.Errorf("watch %s: %w", song.SpotifyID, err)
		}
		w.apply(song.SpotifyID, st)
	}
	w.follow(song.SpotifyID, st)
	return st, nil
}

// Retry retries the failed job of spotifyID, attaching a poller first when
// none exists yet.
func (w *Watcher) Retry(ctx context.Context, spotifyID string, current jobstatus.Status) error {
	if _, ok := w.group.Get(spotifyID); !ok {
		w.group.Attach(spotifyID, current, w.onUpdate(spotifyID))
	}
	return w.group.Retry(ctx, spotifyID)
}

// Status returns the last status the poller of spotifyID reported.
func (w *Watcher) Status(spotifyID string) (jobstatus.Status, bool) {
	p, ok := w.group.Get(spotifyID)
	if !ok {
		return jobstatus.Status{}, false
	}
	return p.Status(), true
}

// Forget stops following spotifyID, typically after its match was deleted.
func (w *Watcher) Forget(spotifyID string) {
	w.group.Cancel(spotifyID)
}

// Active returns the number of running polling loops.
func (w *Watcher) Active() int {
	return w.group.Active()
}

// Close cancels every poller. Updates in flight are dropped.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.stores = nil
	w.mu.Unlock()
	w.group.CancelAll()
}

func (w *Watcher) follow(spotifyID string, st jobstatus.Status) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}
	if p, ok := w.group.Get(spotifyID); ok {
		if p.Running() || !st.State.IsActive() {
			return
		}
	}
	if p := w.group.Attach(spotifyID, st, w.onUpdate(spotifyID)); p.Running() {
		w.logger.Debug("following job", "song", spotifyID, "state", st.State)
	}
}

func (w *Watcher) onUpdate(spotifyID string) func(jobstatus.Status) {
	return func(st jobstatus.Status) {
		w.apply(spotifyID, st)
		w.notify(spotifyID, st)
	}
}

func (w *Watcher) apply(spotifyID string, st jobstatus.Status) {
	w.mu.Lock()
	stores := append([]*state.PageStore[library.Song](nil), w.stores...)
	w.mu.Unlock()
	for _, s := range stores {
		s.UpdateItem(state.SongByID(spotifyID), func(song library.Song) library.Song {
			return song.WithStatus(st)
		})
	}
}

func (w *Watcher) songs() []library.Song {
	w.mu.Lock()
	stores := append([]*state.PageStore[library.Song](nil), w.stores...)
	w.mu.Unlock()
	seen := make(map[string]struct{})
	var out []library.Song
	for _, s := range stores {
		for _, song := range s.Snapshot().Items {
			if _, ok := seen[song.SpotifyID]; ok {
				continue
			}
			seen[song.SpotifyID] = struct{}{}
			out = append(out, song)
		}
	}
	return out
}
