// Package testutil provides an in-memory fake of the music-library backend
// for tests. It serves the same routes as the real backend so the library
// client, pollers and stores can be exercised end to end.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Route names used for counters, failure injection and holds.
const (
	RouteCSRF           = "csrf"
	RouteSongs          = "songs"
	RouteNewSongs       = "new-songs"
	RouteSong           = "song"
	RouteDownloadStatus = "download-status"
	RouteRetryDownload  = "retry-download"
	RouteSaveMatch      = "save-match"
	RouteDeleteMatch    = "delete-match"
	RouteCheckSong      = "check-song"
	RoutePlaylists      = "playlists"
	RouteCreatePlaylist = "create-playlist"
	RouteDeletePlaylist = "delete-playlist"
	RoutePlaylistSongs  = "playlist-songs"
	RouteAddSong        = "add-song"
	RouteRemoveSong     = "remove-song"
	RouteRekordboxSync  = "rekordbox-sync"
	RouteMatches        = "soundcloud-matches"
)

// DefaultCSRFToken is the anti-forgery token handed out by the priming route.
const DefaultCSRFToken = "test-csrf-token"

const defaultPageSize = 15

// JobStep is one scripted answer of the download-status route.
type JobStep struct {
	Status   string
	Progress int
}

// Song seeds one song row. Saved songs appear under /songs/, the rest under
// /new-songs/. Status is the job status reported while no script is set; an
// empty Status with Saved means a pending job.
type Song struct {
	SpotifyID string
	Title     string
	Artist    string
	Album     string
	Saved     bool
	Status    string
	Progress  int
}

// Request records what the backend received.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type songRecord struct {
	Song
	id         int64
	savedAt    time.Time
	steps      []JobStep
	cursor     int
	retrySteps []JobStep
	inSource   bool
	matchURL   string
	noSearch   bool
}

type playlistRecord struct {
	id        int64
	name      string
	members   []string
	createdAt time.Time
}

type injectedFailure struct {
	status  int
	message string
	always  bool
}

// Backend is the fake server. Create it with NewBackend.
type Backend struct {
	server *httptest.Server

	mu         sync.Mutex
	songs      []*songRecord
	playlists  []*playlistRecord
	nextID     int64
	csrfToken  string
	csrfCookie bool
	expired    bool
	failures   map[string]injectedFailure
	holds      map[string]chan struct{}
	counts     map[string]int
	requests   map[string][]Request
}

// NewBackend starts a fake backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		csrfToken:  DefaultCSRFToken,
		csrfCookie: true,
		nextID:     1,
		failures:   make(map[string]injectedFailure),
		holds:      make(map[string]chan struct{}),
		counts:     make(map[string]int),
		requests:   make(map[string][]Request),
	}
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(func() {
		b.ReleaseAll()
		b.server.Close()
	})
	return b
}

// URL returns the base URL of the server.
func (b *Backend) URL() string {
	return b.server.URL
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/accounts/csrf/", b.handle(RouteCSRF, b.csrf))
	r.Route("/api/spotify", func(r chi.Router) {
		r.Get("/songs/", b.handle(RouteSongs, b.listSongs))
		r.Get("/new-songs/", b.handle(RouteNewSongs, b.listNewSongs))
		r.Get("/song/{id}/", b.handle(RouteSong, b.songDetail))
		r.Get("/download-status/{id}/", b.handle(RouteDownloadStatus, b.downloadStatus))
		r.Post("/retry-download/{id}/", b.handle(RouteRetryDownload, b.retryDownload))
		r.Get("/soundcloud-matches/{id}/", b.handle(RouteMatches, b.matches))
		r.Post("/save-match/{id}/", b.handle(RouteSaveMatch, b.saveMatch))
		r.Delete("/delete-match/{id}/", b.handle(RouteDeleteMatch, b.deleteMatch))
		r.Post("/check-song/{id}/", b.handle(RouteCheckSong, b.checkSong))
		r.Get("/playlists/", b.handle(RoutePlaylists, b.listPlaylists))
		r.Post("/playlists/create/", b.handle(RouteCreatePlaylist, b.createPlaylist))
		r.Delete("/playlists/{pid}/", b.handle(RouteDeletePlaylist, b.deletePlaylist))
		r.Get("/playlists/{pid}/songs/", b.handle(RoutePlaylistSongs, b.playlistSongs))
		r.Post("/playlists/{pid}/add-song/", b.handle(RouteAddSong, b.addSong))
		r.Delete("/playlists/{pid}/remove-song/{id}/", b.handle(RouteRemoveSong, b.removeSong))
		r.Post("/rekordbox/sync/", b.handle(RouteRekordboxSync, b.rekordboxSync))
	})
	return r
}

// handle wraps a route with recording, holds, expiry, CSRF enforcement and
// failure injection, in that order.
func (b *Backend) handle(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		b.mu.Lock()
		b.counts[route]++
		b.requests[route] = append(b.requests[route], Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		hold := b.holds[route]
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}

		b.mu.Lock()
		expired := b.expired
		token := b.csrfToken
		failure, failing := b.failures[route]
		if failing && !failure.always {
			delete(b.failures, route)
		}
		b.mu.Unlock()

		if expired {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		if r.Method != http.MethodGet && r.Header.Get("X-CSRFToken") != token {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed: CSRF token missing."})
			return
		}
		if failing {
			writeJSON(w, failure.status, map[string]string{"error": failure.message})
			return
		}
		next(w, r)
	}
}

// AddSong seeds a song and returns its numeric id. Songs are listed newest
// first, so later calls appear earlier in /songs/.
func (b *Backend) AddSong(s Song) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if s.Saved && s.Status == "" {
		s.Status = "pending"
	}
	rec := &songRecord{Song: s, id: id, inSource: true, savedAt: time.Unix(1_700_000_000+id, 0).UTC()}
	b.songs = append(b.songs, rec)
	return id
}

// AddSongs seeds n saved, completed songs with ids prefix-0 .. prefix-(n-1).
func (b *Backend) AddSongs(prefix string, n int) {
	for i := range n {
		b.AddSong(Song{
			SpotifyID: fmt.Sprintf("%s-%d", prefix, i),
			Title:     fmt.Sprintf("Song %d", i),
			Artist:    "Artist",
			Saved:     true,
			Status:    "completed",
			Progress:  100,
		})
	}
}

// ScriptJob makes the download-status route answer steps in order for id,
// repeating the last one.
func (b *Backend) ScriptJob(spotifyID string, steps ...JobStep) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.findSong(spotifyID); rec != nil {
		rec.steps = slices.Clone(steps)
		rec.cursor = 0
	}
}

// ScriptRetry sets the steps a successful retry switches the job to.
func (b *Backend) ScriptRetry(spotifyID string, steps ...JobStep) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.findSong(spotifyID); rec != nil {
		rec.retrySteps = slices.Clone(steps)
	}
}

// SetJob overrides the reported status of a job and drops any script.
func (b *Backend) SetJob(spotifyID, status string, progress int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.findSong(spotifyID); rec != nil {
		rec.Status = status
		rec.Progress = progress
		rec.steps = nil
		rec.cursor = 0
	}
}

// SetInSource controls whether check-song finds the song in the source
// playlist.
func (b *Backend) SetInSource(spotifyID string, in bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.findSong(spotifyID); rec != nil {
		rec.inSource = in
	}
}

// FailSearch makes the matches route report a failed search for a song.
func (b *Backend) FailSearch(spotifyID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.findSong(spotifyID); rec != nil {
		rec.noSearch = true
	}
}

// ChosenMatch returns the url of the match saved for a song.
func (b *Backend) ChosenMatch(spotifyID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec := b.findSong(spotifyID); rec != nil {
		return rec.matchURL
	}
	return ""
}

// HasSong reports whether the song row still exists.
func (b *Backend) HasSong(spotifyID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findSong(spotifyID) != nil
}

// IsSaved reports whether the song currently has a match.
func (b *Backend) IsSaved(spotifyID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.findSong(spotifyID)
	return rec != nil && rec.Saved
}

// AddPlaylist seeds a playlist and returns its id.
func (b *Backend) AddPlaylist(name string, members ...string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.playlists = append(b.playlists, &playlistRecord{
		id:        id,
		name:      name,
		members:   slices.Clone(members),
		createdAt: time.Unix(1_700_000_000+id, 0).UTC(),
	})
	return id
}

// Members returns the spotify ids assigned to a playlist.
func (b *Backend) Members(playlistID int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pl := b.findPlaylist(playlistID); pl != nil {
		return slices.Clone(pl.members)
	}
	return nil
}

// Expire makes every route answer 401.
func (b *Backend) Expire() {
	b.mu.Lock()
	b.expired = true
	b.mu.Unlock()
}

// DisableCSRFCookie makes the priming route return the token in the body
// only.
func (b *Backend) DisableCSRFCookie() {
	b.mu.Lock()
	b.csrfCookie = false
	b.mu.Unlock()
}

// FailNext makes the next request to route answer status.
func (b *Backend) FailNext(route string, status int, message string) {
	b.mu.Lock()
	b.failures[route] = injectedFailure{status: status, message: message}
	b.mu.Unlock()
}

// FailAlways makes every request to route answer status until Recover.
func (b *Backend) FailAlways(route string, status int, message string) {
	b.mu.Lock()
	b.failures[route] = injectedFailure{status: status, message: message, always: true}
	b.mu.Unlock()
}

// Recover clears injected failures for route.
func (b *Backend) Recover(route string) {
	b.mu.Lock()
	delete(b.failures, route)
	b.mu.Unlock()
}

// Hold parks requests to route until the returned release func is called.
// The request is counted when it arrives.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		owned := b.holds[route] == ch
		if owned {
			delete(b.holds, route)
		}
		b.mu.Unlock()
		if owned {
			close(ch)
		}
	}
}

// ReleaseAll releases every held route.
func (b *Backend) ReleaseAll() {
	b.mu.Lock()
	holds := b.holds
	b.holds = make(map[string]chan struct{})
	b.mu.Unlock()
	for _, ch := range holds {
		close(ch)
	}
}

// Count returns how many requests route received.
func (b *Backend) Count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[route]
}

// Requests returns the recorded requests for route.
func (b *Backend) Requests(route string) []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.requests[route])
}

// WaitForCount polls until route has received at least n requests or the
// timeout elapses.
func (b *Backend) WaitForCount(route string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.Count(route) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return b.Count(route) >= n
}

func (b *Backend) csrf(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	token := b.csrfToken
	cookie := b.csrfCookie
	b.mu.Unlock()
	if cookie {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: token, Path: "/"})
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "CSRF cookie set", "csrfToken": token})
}

func (b *Backend) listSongs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, err := strconv.Atoi(q.Get("page_size"))
	if err != nil || pageSize <= 0 {
		pageSize = defaultPageSize
	}
	inPlaylist := q.Get("in_playlist") == "true"
	exclude := q.Get("exclude_in_playlist") == "true"

	b.mu.Lock()
	var matched []map[string]any
	for i := len(b.songs) - 1; i >= 0; i-- {
		rec := b.songs[i]
		if !rec.Saved {
			continue
		}
		member := b.inPlaylist(rec.SpotifyID)
		switch {
		case inPlaylist && !member:
			continue
		case !inPlaylist && exclude && member:
			continue
		}
		matched = append(matched, b.songRow(rec, true))
	}
	b.mu.Unlock()

	total := len(matched)
	start := min(page*pageSize, total)
	end := min(start+pageSize, total)
	songs := matched[start:end]
	if songs == nil {
		songs = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"songs":       songs,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + pageSize - 1) / pageSize,
	})
}

func (b *Backend) listNewSongs(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	songs := []map[string]any{}
	for _, rec := range b.songs {
		if rec.Saved {
			continue
		}
		row := b.songRow(rec, false)
		row["added_at"] = rec.savedAt.Format(time.RFC3339)
		songs = append(songs, row)
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, songs)
}

func (b *Backend) songDetail(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	rec := b.findSong(chi.URLParam(r, "id"))
	var row map[string]any
	if rec != nil {
		row = b.songRow(rec, false)
		row["album"] = rec.Album
		row["release_date"] = "2024-01-01"
		row["duration_ms"] = 180000
	}
	b.mu.Unlock()
	if row == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Song not found"})
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (b *Backend) downloadStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	rec := b.findSong(chi.URLParam(r, "id"))
	if rec == nil {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Spotify song not found in database"})
		return
	}
	if !rec.Saved {
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"has_match":         false,
			"download_status":   nil,
			"download_progress": 0,
			"bpm":               nil,
			"key":               nil,
		})
		return
	}
	step := rec.current()
	if len(rec.steps) > 0 && rec.cursor < len(rec.steps)-1 {
		rec.cursor++
	}
	b.mu.Unlock()

	payload := map[string]any{
		"has_match":         true,
		"download_status":   step.Status,
		"download_progress": step.Progress,
		"bpm":               nil,
		"key":               nil,
	}
	if step.Status == "completed" {
		payload["bpm"] = 124.0
		payload["key"] = "8A"
	}
	writeJSON(w, http.StatusOK, payload)
}

func (b *Backend) retryDownload(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.findSong(chi.URLParam(r, "id"))
	switch {
	case rec == nil:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Spotify song not found in database"})
		return
	case !rec.Saved:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No SoundCloud match found"})
		return
	case rec.current().Status != "failed":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Download can only be retried when status is failed"})
		return
	}
	rec.Status = "pending"
	rec.Progress = 0
	rec.steps = slices.Clone(rec.retrySteps)
	rec.cursor = 0
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Download retry started"})
}

// matches answers two candidates for an unsaved song and the chosen match
// for a saved one.
func (b *Backend) matches(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.findSong(chi.URLParam(r, "id"))
	switch {
	case rec == nil:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Spotify song not found"})
		return
	case rec.noSearch:
		writeJSON(w, http.StatusOK, map[string]any{"soundcloud_matches": nil, "soundcloud_error": true})
		return
	}
	var tracks []map[string]any
	if rec.Saved && rec.matchURL != "" {
		tracks = append(tracks, matchRow(rec, 1, rec.matchURL))
	} else {
		for i := 1; i <= 2; i++ {
			tracks = append(tracks, matchRow(rec, i, MatchURL(rec.SpotifyID, i)))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"soundcloud_matches": tracks, "soundcloud_error": false})
}

// MatchURL is the url of the i-th (1-based) candidate the backend offers
// for a song.
func MatchURL(spotifyID string, i int) string {
	return fmt.Sprintf("https://soundcloud.com/fake/%s-%d", spotifyID, i)
}

func matchRow(rec *songRecord, i int, url string) map[string]any {
	return map[string]any{
		"id":          rec.id*10 + int64(i),
		"title":       fmt.Sprintf("%s (take %d)", rec.Title, i),
		"artist":      rec.Artist,
		"icon":        "",
		"duration_ms": 180000 + i*1000,
		"url":         url,
		"stream_url":  url + "/stream",
	}
}

func (b *Backend) saveMatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SpotifyTitle    string `json:"spotify_title"`
		SoundCloudMatch *struct {
			URL string `json:"url"`
		} `json:"soundcloud_match"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SoundCloudMatch == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing required data"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.findSong(chi.URLParam(r, "id"))
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Spotify song not found"})
		return
	}
	rec.Saved = true
	rec.Status = "pending"
	rec.Progress = 0
	rec.steps = nil
	rec.cursor = 0
	rec.matchURL = body.SoundCloudMatch.URL
	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (b *Backend) deleteMatch(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := chi.URLParam(r, "id")
	rec := b.findSong(id)
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Spotify song not found"})
		return
	}
	rec.Saved = false
	rec.matchURL = ""
	rec.Status = ""
	rec.Progress = 0
	rec.steps = nil
	for _, pl := range b.playlists {
		pl.members = slices.DeleteFunc(pl.members, func(m string) bool { return m == id })
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Match deleted"})
}

func (b *Backend) checkSong(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := chi.URLParam(r, "id")
	rec := b.findSong(id)
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Spotify song not found in database"})
		return
	}
	if rec.inSource {
		writeJSON(w, http.StatusOK, map[string]any{"exists": true, "message": "Song is still in the playlist"})
		return
	}
	b.songs = slices.DeleteFunc(b.songs, func(s *songRecord) bool { return s.SpotifyID == id })
	writeJSON(w, http.StatusOK, map[string]any{
		"exists":  false,
		"deleted": true,
		"message": "Song not found in playlist, removed from database",
	})
}

func (b *Backend) listPlaylists(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	out := []map[string]any{}
	for _, pl := range b.playlists {
		out = append(out, playlistRow(pl))
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createPlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Playlist name is required"})
		return
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	pl := &playlistRecord{id: id, name: body.Name, createdAt: time.Unix(1_700_000_000+id, 0).UTC()}
	b.playlists = append(b.playlists, pl)
	row := playlistRow(pl)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, row)
}

func (b *Backend) deletePlaylist(w http.ResponseWriter, r *http.Request) {
	pid, ok := playlistID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.playlists)
	b.playlists = slices.DeleteFunc(b.playlists, func(pl *playlistRecord) bool { return pl.id == pid })
	if len(b.playlists) == before {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Playlist not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) playlistSongs(w http.ResponseWriter, r *http.Request) {
	pid, ok := playlistID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	pl := b.findPlaylist(pid)
	if pl == nil {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Playlist not found"})
		return
	}
	out := []map[string]any{}
	for i, member := range pl.members {
		rec := b.findSong(member)
		if rec == nil {
			continue
		}
		out = append(out, map[string]any{
			"id":         rec.id,
			"spotify_id": rec.SpotifyID,
			"title":      rec.Title,
			"artist":     rec.Artist,
			"icon":       "",
			"position":   i,
			"bpm":        nil,
			"key":        nil,
		})
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) addSong(w http.ResponseWriter, r *http.Request) {
	pid, ok := playlistID(w, r)
	if !ok {
		return
	}
	var body struct {
		SpotifyID string `json:"spotify_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SpotifyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Spotify ID is required"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	pl := b.findPlaylist(pid)
	if pl == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Playlist not found"})
		return
	}
	if b.findSong(body.SpotifyID) == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Song not found"})
		return
	}
	if slices.Contains(pl.members, body.SpotifyID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Song already in playlist"})
		return
	}
	if b.inPlaylist(body.SpotifyID) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Song is already in another playlist"})
		return
	}
	pl.members = append(pl.members, body.SpotifyID)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (b *Backend) removeSong(w http.ResponseWriter, r *http.Request) {
	pid, ok := playlistID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	pl := b.findPlaylist(pid)
	if pl == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Playlist not found"})
		return
	}
	if !slices.Contains(pl.members, id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Song not in this playlist"})
		return
	}
	pl.members = slices.DeleteFunc(pl.members, func(m string) bool { return m == id })
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *Backend) rekordboxSync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DatabasePath string `json:"database_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DatabasePath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Database path is required"})
		return
	}
	switch strings.ToLower(path.Ext(body.DatabasePath)) {
	case ".xml":
	case ".db":
		writeJSON(w, http.StatusNotImplemented, map[string]any{
			"success": false,
			"message": "Direct database sync is not supported yet. Please export to rekordbox.xml.",
		})
		return
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unsupported file format. Please provide rekordbox.xml or master.db"})
		return
	}
	b.mu.Lock()
	playlists, tracks := len(b.playlists), 0
	for _, pl := range b.playlists {
		tracks += len(pl.members)
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"message":         fmt.Sprintf("Synced %d playlists", playlists),
		"added_playlists": playlists,
		"added_tracks":    tracks,
	})
}

func (b *Backend) findSong(spotifyID string) *songRecord {
	for _, rec := range b.songs {
		if rec.SpotifyID == spotifyID {
			return rec
		}
	}
	return nil
}

func (b *Backend) findPlaylist(id int64) *playlistRecord {
	for _, pl := range b.playlists {
		if pl.id == id {
			return pl
		}
	}
	return nil
}

func (b *Backend) inPlaylist(spotifyID string) bool {
	for _, pl := range b.playlists {
		if slices.Contains(pl.members, spotifyID) {
			return true
		}
	}
	return false
}

// songRow renders a song the way the list endpoints do. withJob adds the
// download_status fields the saved-songs list carries.
func (b *Backend) songRow(rec *songRecord, withJob bool) map[string]any {
	row := map[string]any{
		"id":          rec.id,
		"spotify_id":  rec.SpotifyID,
		"title":       rec.Title,
		"artist":      rec.Artist,
		"icon":        "",
		"is_saved":    rec.Saved,
		"in_playlist": b.inPlaylist(rec.SpotifyID),
		"saved_at":    rec.savedAt.Format(time.RFC3339),
	}
	if withJob {
		if rec.Saved {
			step := rec.current()
			row["download_status"] = step.Status
			row["download_progress"] = step.Progress
		} else {
			row["download_status"] = nil
		}
	}
	return row
}

func (rec *songRecord) current() JobStep {
	if len(rec.steps) > 0 {
		return rec.steps[min(rec.cursor, len(rec.steps)-1)]
	}
	return JobStep{Status: rec.Status, Progress: rec.Progress}
}

func playlistRow(pl *playlistRecord) map[string]any {
	return map[string]any{
		"id":         pl.id,
		"name":       pl.name,
		"song_count": len(pl.members),
		"created_at": pl.createdAt.Format(time.RFC3339),
	}
}

func playlistID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "pid"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Playlist not found"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
