package state

import (
	"context"

	"github.com/five82/deckhand/internal/library"
)

// SongLister is the backend surface the song fetchers use.
type SongLister interface {
	FetchSongs(ctx context.Context, query library.SongQuery) (library.SongPage, error)
	FetchNewSongs(ctx context.Context) ([]library.Song, error)
	FetchPlaylistSongs(ctx context.Context, playlistID int64) ([]library.Song, error)
}

// PlaylistLister is the backend surface the playlist fetcher uses.
type PlaylistLister interface {
	FetchPlaylists(ctx context.Context) ([]library.Playlist, error)
}

// SavedSongs fetches pages of saved songs of pageSize rows.
func SavedSongs(src SongLister, pageSize int) Fetcher[library.Song] {
	return func(ctx context.Context, key PageKey) (Page[library.Song], error) {
		f := key.Filter.Normalize()
		resp, err := src.FetchSongs(ctx, library.SongQuery{
			Page:              key.Index,
			PageSize:          pageSize,
			ExcludeInPlaylist: f.ExcludeInPlaylist,
			InPlaylist:        f.InPlaylist,
		})
		if err != nil {
			return Page[library.Song]{}, err
		}
		return Page[library.Song]{Items: resp.Songs, Total: resp.Total, TotalPages: resp.TotalPages}, nil
	}
}

// NewSongs fetches the unmatched catalog songs as a single page.
func NewSongs(src SongLister) Fetcher[library.Song] {
	return func(ctx context.Context, _ PageKey) (Page[library.Song], error) {
		songs, err := src.FetchNewSongs(ctx)
		if err != nil {
			return Page[library.Song]{}, err
		}
		return singlePage(songs), nil
	}
}

// PlaylistMembers fetches the songs of one playlist as a single page.
func PlaylistMembers(src SongLister, playlistID int64) Fetcher[library.Song] {
	return func(ctx context.Context, _ PageKey) (Page[library.Song], error) {
		songs, err := src.FetchPlaylistSongs(ctx, playlistID)
		if err != nil {
			return Page[library.Song]{}, err
		}
		return singlePage(songs), nil
	}
}

// Playlists fetches every playlist as a single page.
func Playlists(src PlaylistLister) Fetcher[library.Playlist] {
	return func(ctx context.Context, _ PageKey) (Page[library.Playlist], error) {
		lists, err := src.FetchPlaylists(ctx)
		if err != nil {
			return Page[library.Playlist]{}, err
		}
		return singlePage(lists), nil
	}
}

// SongByID matches a song row by spotify id.
func SongByID(spotifyID string) func(library.Song) bool {
	return func(s library.Song) bool { return s.SpotifyID == spotifyID }
}

// PlaylistByID matches a playlist row by id.
func PlaylistByID(id int64) func(library.Playlist) bool {
	return func(p library.Playlist) bool { return p.ID == id }
}

func singlePage[T any](items []T) Page[T] {
	pages := 1
	if len(items) == 0 {
		pages = 0
	}
	return Page[T]{Items: items, Total: len(items), TotalPages: pages}
}
