package library

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/five82/deckhand/internal/jobstatus"
)

const backendTimestampLayout = "2006-01-02 15:04:05"

// Song mirrors a song row as returned by the songs, song detail and playlist
// member endpoints. Optional fields are pointers: nil means the response did
// not carry the field, so the value is unknown.
type Song struct {
	ID          int64    `json:"id,omitempty"`
	SpotifyID   string   `json:"spotify_id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	Icon        string   `json:"icon,omitempty"`
	Album       *string  `json:"album,omitempty"`
	ReleaseDate *string  `json:"release_date,omitempty"`
	DurationMS  *int     `json:"duration_ms,omitempty"`
	IsSaved     *bool    `json:"is_saved,omitempty"`
	InPlaylist  *bool    `json:"in_playlist,omitempty"`
	BPM         *float64 `json:"bpm,omitempty"`
	Key         *string  `json:"key,omitempty"`
	Position    *int     `json:"position,omitempty"`
	SavedAt     string   `json:"saved_at,omitempty"`
	AddedAt     string   `json:"added_at,omitempty"`

	// Job is only meaningful when JobKnown is set; the songs endpoint sends
	// download_status, the detail endpoint does not.
	Job      jobstatus.State `json:"-"`
	JobKnown bool            `json:"-"`
	Progress int             `json:"-"`

	unrecognized string
}

// UnmarshalJSON keeps an absent download_status distinct from a null one.
func (s *Song) UnmarshalJSON(data []byte) error {
	type plain Song
	var raw struct {
		plain
		AlbumName      *string         `json:"album_name"`
		DownloadStatus json.RawMessage `json:"download_status"`
		Progress       *int            `json:"download_progress"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Song(raw.plain)
	if s.Album == nil && raw.AlbumName != nil {
		s.Album = raw.AlbumName
	}
	if len(raw.DownloadStatus) > 0 {
		var value *string
		if err := json.Unmarshal(raw.DownloadStatus, &value); err != nil {
			return fmt.Errorf("download_status: %w", err)
		}
		state := jobstatus.StateNone
		known := true
		if value != nil {
			parsed, err := jobstatus.Parse(*value)
			if err != nil {
				// The row stays usable; its job is unknown.
				s.unrecognized = *value
				known = false
			} else {
				state = parsed
			}
		}
		if known {
			s.Job = state
			s.JobKnown = true
		}
	}
	if raw.Progress != nil {
		s.Progress = *raw.Progress
	}
	return nil
}

// Status returns the job status and whether the response carried it.
func (s Song) Status() (jobstatus.Status, bool) {
	if !s.JobKnown {
		return jobstatus.Status{}, false
	}
	return jobstatus.NewStatus(s.Job, s.Progress), true
}

// UnrecognizedStatus returns the download_status value the client could not
// interpret, or "" when there was none.
func (s Song) UnrecognizedStatus() string {
	return s.unrecognized
}

// WithStatus returns a copy of s carrying st.
func (s Song) WithStatus(st jobstatus.Status) Song {
	out := s.Clone()
	out.Job = st.State
	out.JobKnown = true
	out.unrecognized = ""
	out.Progress = st.Progress
	return out
}

// Clone returns a deep copy so two stores never share pointer fields.
func (s Song) Clone() Song {
	out := s
	out.Album = clonePtr(s.Album)
	out.ReleaseDate = clonePtr(s.ReleaseDate)
	out.DurationMS = clonePtr(s.DurationMS)
	out.IsSaved = clonePtr(s.IsSaved)
	out.InPlaylist = clonePtr(s.InPlaylist)
	out.BPM = clonePtr(s.BPM)
	out.Key = clonePtr(s.Key)
	out.Position = clonePtr(s.Position)
	return out
}

// ParsedSavedAt returns SavedAt as time.Time when possible.
func (s Song) ParsedSavedAt() time.Time {
	return parseTime(s.SavedAt)
}

// ParsedAddedAt returns AddedAt as time.Time when possible.
func (s Song) ParsedAddedAt() time.Time {
	return parseTime(s.AddedAt)
}

// SongPage mirrors /songs.
type SongPage struct {
	Songs      []Song `json:"songs"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}

// Playlist mirrors a playlist row.
type Playlist struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SongCount int    `json:"song_count"`
	Icon      string `json:"icon,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Clone returns a copy; Playlist holds no references.
func (p Playlist) Clone() Playlist {
	return p
}

// ParsedCreatedAt returns CreatedAt as time.Time when possible.
func (p Playlist) ParsedCreatedAt() time.Time {
	return parseTime(p.CreatedAt)
}

// JobReport mirrors /download-status.
type JobReport struct {
	HasMatch         bool     `json:"has_match"`
	DownloadStatus   *string  `json:"download_status"`
	DownloadProgress int      `json:"download_progress"`
	BPM              *float64 `json:"bpm,omitempty"`
	Key              *string  `json:"key,omitempty"`
}

// JobStatus converts the report into a jobstatus.Status. A report without a
// match is StateNone.
func (r JobReport) JobStatus() (jobstatus.Status, error) {
	if !r.HasMatch || r.DownloadStatus == nil {
		return jobstatus.NewStatus(jobstatus.StateNone, 0), nil
	}
	state, err := jobstatus.Parse(*r.DownloadStatus)
	if err != nil {
		return jobstatus.Status{}, err
	}
	return jobstatus.NewStatus(state, r.DownloadProgress), nil
}

// SoundCloudTrack is the alternate-source candidate chosen for a song.
type SoundCloudTrack struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	URL        string `json:"url"`
	StreamURL  string `json:"stream_url,omitempty"`
	Icon       string `json:"icon,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
}

// MatchCandidates mirrors /soundcloud-matches. SearchFailed is set when the
// backend gave up searching; Matches is then empty.
type MatchCandidates struct {
	Matches      []SoundCloudTrack `json:"soundcloud_matches"`
	SearchFailed bool              `json:"soundcloud_error"`
}

// NewMatchRequest builds the save-match body for song and the chosen track.
func NewMatchRequest(song Song, track SoundCloudTrack) MatchRequest {
	return MatchRequest{
		SpotifyID:       song.SpotifyID,
		SpotifyTitle:    song.Title,
		SpotifyArtist:   song.Artist,
		SpotifyIcon:     song.Icon,
		SoundCloudMatch: track,
	}
}

// MatchRequest is the body of /save-match.
type MatchRequest struct {
	SpotifyID       string          `json:"spotify_id"`
	SpotifyTitle    string          `json:"spotify_title"`
	SpotifyArtist   string          `json:"spotify_artist"`
	SpotifyIcon     string          `json:"spotify_icon"`
	SoundCloudMatch SoundCloudTrack `json:"soundcloud_match"`
}

// CheckResult mirrors /check-song.
type CheckResult struct {
	Deleted bool   `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// SyncResult mirrors /rekordbox/sync.
type SyncResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	AddedPlaylists int    `json:"added_playlists"`
	AddedTracks    int    `json:"added_tracks"`
}

type csrfResponse struct {
	Detail    string `json:"detail"`
	CSRFToken string `json:"csrfToken"`
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(backendTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
