// Package dragdrop gates assigning a song to a playlist on the song's job
// being complete, and reconciles both lists after a successful drop.
package dragdrop

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/logging"
	"github.com/five82/deckhand/internal/state"
)

var (
	// ErrNotReady is matched by every *NotReadyError.
	ErrNotReady = errors.New("song is not ready")

	// ErrNoDrag is returned by Drop without an active drag.
	ErrNoDrag = errors.New("no drag in progress")
)

// NotReadyError explains why a song cannot be dragged.
type NotReadyError struct {
	SpotifyID string
	Title     string
	Status    jobstatus.Status
	Known     bool
}

func (e *NotReadyError) Error() string {
	name := e.Title
	if name == "" {
		name = e.SpotifyID
	}
	return fmt.Sprintf("%q cannot be added to a playlist: %s", name, e.Reason())
}

func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}

// Reason is the user-facing rejection text for the song's job state.
func (e *NotReadyError) Reason() string {
	if !e.Known {
		return "download status unknown"
	}
	st := e.Status
	switch st.State {
	case jobstatus.StateNone:
		return "no match has been chosen"
	case jobstatus.StatePending:
		return "download has not started yet"
	case jobstatus.StateDownloading:
		verb := "still downloading"
		if st.Progress >= 80 {
			verb = "still converting"
		}
		if st.Progress > 0 {
			return fmt.Sprintf("%s (%d%%)", verb, st.Progress)
		}
		return verb
	case jobstatus.StateAnalyzing:
		if st.Progress > 0 {
			return fmt.Sprintf("still being analyzed (%d%%)", st.Progress)
		}
		return "still being analyzed"
	case jobstatus.StateFailed:
		return "download failed, retry it first"
	default:
		return "not ready"
	}
}

// CanDrag reports whether song may start a drag: only completed jobs can.
func CanDrag(song library.Song) bool {
	return Check(song) == nil
}

// Check returns nil for a ready song and a *NotReadyError otherwise.
func Check(song library.Song) error {
	st, known := song.Status()
	if known && st.State == jobstatus.StateCompleted {
		return nil
	}
	return &NotReadyError{SpotifyID: song.SpotifyID, Title: song.Title, Status: st, Known: known}
}

// Assigner adds a song to a playlist on the backend.
type Assigner interface {
	AddSongToPlaylist(ctx context.Context, playlistID int64, spotifyID string) error
}

// Source is the list the song was dragged from.
type Source interface {
	AfterMutation(ctx context.Context) error
}

// Target is the playlist list, for the optimistic song count.
type Target interface {
	UpdateItem(match func(library.Playlist) bool, fn func(library.Playlist) library.Playlist) bool
}

// Drag is a drag in progress. Only Begin creates one, so holding a *Drag
// means the song was ready when it was picked up.
type Drag struct {
	song    library.Song
	dropped bool
}

// Song returns a copy of the dragged song.
func (d *Drag) Song() library.Song {
	return d.song.Clone()
}

// Validator runs drags for one view.
type Validator struct {
	assign    Assigner
	source    Source
	playlists Target
	logger    *log.Logger
}

// NewValidator wires a validator. source and playlists may be nil when the
// view has no such list.
func NewValidator(assign Assigner, source Source, playlists Target, logger *log.Logger) *Validator {
	return &Validator{
		assign:    assign,
		source:    source,
		playlists: playlists,
		logger:    logging.Component(logger, "dragdrop"),
	}
}

// Begin starts a drag for song, or returns why it cannot start.
func (v *Validator) Begin(song library.Song) (*Drag, error) {
	if err := Check(song); err != nil {
		v.logger.Debug("drag rejected", "song", song.SpotifyID, "err", err)
		return nil, err
	}
	return &Drag{song: song.Clone()}, nil
}

// Drop assigns the dragged song to playlist. On success the playlist's song
// count is bumped locally until the next playlist load, and the source list
// is reloaded since the song may no longer match its filter. On failure
// nothing local changes and the drag can be dropped again.
func (v *Validator) Drop(ctx context.Context, d *Drag, playlist library.Playlist) error {
	if d == nil || d.dropped {
		return ErrNoDrag
	}
	song := d.song
	if err := v.assign.AddSongToPlaylist(ctx, playlist.ID, song.SpotifyID); err != nil {
		return fmt.Errorf("add %q to %q: %w", song.Title, playlist.Name, err)
	}
	d.dropped = true
	v.logger.Debug("song assigned", "song", song.SpotifyID, "playlist", playlist.ID)

	if v.playlists != nil {
		v.playlists.UpdateItem(state.PlaylistByID(playlist.ID), func(p library.Playlist) library.Playlist {
			p.SongCount++
			return p
		})
	}
	if v.source != nil {
		err := v.source.AfterMutation(ctx)
		if err != nil && !errors.Is(err, state.ErrStale) && !errors.Is(err, state.ErrClosed) {
			return fmt.Errorf("refresh after adding %q: %w", song.Title, err)
		}
	}
	return nil
}
