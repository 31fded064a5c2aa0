package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/five82/deckhand/internal/logging"
	"github.com/five82/deckhand/internal/session"
)

// Backend is the subset of the backend contract the synchronization core
// consumes. *Client implements it; tests substitute fakes.
type Backend interface {
	FetchSongs(ctx context.Context, query SongQuery) (SongPage, error)
	FetchNewSongs(ctx context.Context) ([]Song, error)
	FetchSong(ctx context.Context, spotifyID string) (Song, error)
	FetchDownloadStatus(ctx context.Context, spotifyID string) (JobReport, error)
	RetryDownload(ctx context.Context, spotifyID string) error
	FetchMatches(ctx context.Context, spotifyID string) (MatchCandidates, error)
	SaveMatch(ctx context.Context, spotifyID string, req MatchRequest) error
	DeleteMatch(ctx context.Context, spotifyID string) error
	CheckSong(ctx context.Context, spotifyID string) (CheckResult, error)
	FetchPlaylists(ctx context.Context) ([]Playlist, error)
	CreatePlaylist(ctx context.Context, name string) (Playlist, error)
	DeletePlaylist(ctx context.Context, playlistID int64) error
	FetchPlaylistSongs(ctx context.Context, playlistID int64) ([]Song, error)
	AddSongToPlaylist(ctx context.Context, playlistID int64, spotifyID string) error
	RemoveSongFromPlaylist(ctx context.Context, playlistID int64, spotifyID string) error
	SyncRekordbox(ctx context.Context, databasePath string) (SyncResult, error)
}

// Ensure Client implements Backend at compile time.
var _ Backend = (*Client)(nil)

// Client talks to the library backend HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	session   *session.Session
	limiter   *rate.Limiter
	logger    *log.Logger

	primeMu sync.Mutex
}

const (
	defaultAPIBase   = "127.0.0.1:8000"
	defaultUserAgent = "deckhand/0.1"
	csrfCookieName   = "csrftoken"
	csrfHeaderName   = "X-CSRFToken"
	requestIDHeader  = "X-Request-ID"

	songsPrefix   = "/api/spotify"
	accountPrefix = "/api/accounts"
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default cookie-aware http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = logging.Component(l, "library")
	}
}

// WithRateLimit paces outgoing requests. Zero or negative disables pacing.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// NewClient builds a Client for apiBase (host:port or URL). A nil session
// gets a fresh one.
func NewClient(apiBase string, sess *session.Session, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(apiBase)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = session.New()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Jar: jar},
		userAgent: defaultUserAgent,
		session:   sess,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    logging.Component(nil, "library"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session the client reports expiry to.
func (c *Client) Session() *session.Session {
	return c.session
}

// SongQuery selects one page of saved songs.
type SongQuery struct {
	Page              int
	PageSize          int
	ExcludeInPlaylist bool
	InPlaylist        bool
}

func (q SongQuery) values() url.Values {
	values := url.Values{}
	values.Set("page", strconv.Itoa(max(q.Page, 0)))
	if q.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(q.PageSize))
	}
	// in_playlist wins when both toggles are set.
	switch {
	case q.InPlaylist:
		values.Set("in_playlist", "true")
	case q.ExcludeInPlaylist:
		values.Set("exclude_in_playlist", "true")
	}
	return values
}

// FetchSongs retrieves one page of saved songs.
func (c *Client) FetchSongs(ctx context.Context, query SongQuery) (SongPage, error) {
	rel := &url.URL{Path: songsPrefix + "/songs/", RawQuery: query.values().Encode()}
	var payload SongPage
	if err := c.doURL(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return SongPage{}, fmt.Errorf("fetch songs: %w", err)
	}
	c.noteUnrecognized(payload.Songs...)
	return payload, nil
}

// FetchNewSongs retrieves catalog songs that have no match yet.
func (c *Client) FetchNewSongs(ctx context.Context) ([]Song, error) {
	var payload []Song
	if err := c.do(ctx, http.MethodGet, songsPrefix+"/new-songs/", nil, &payload); err != nil {
		return nil, fmt.Errorf("fetch new songs: %w", err)
	}
	c.noteUnrecognized(payload...)
	return payload, nil
}

// FetchSong retrieves a single song's catalog detail.
func (c *Client) FetchSong(ctx context.Context, spotifyID string) (Song, error) {
	p, err := songPath("song", spotifyID)
	if err != nil {
		return Song{}, err
	}
	var payload Song
	if err := c.do(ctx, http.MethodGet, p, nil, &payload); err != nil {
		return Song{}, fmt.Errorf("fetch song %s: %w", spotifyID, err)
	}
	c.noteUnrecognized(payload)
	return payload, nil
}

// FetchDownloadStatus retrieves the job report for a song.
func (c *Client) FetchDownloadStatus(ctx context.Context, spotifyID string) (JobReport, error) {
	p, err := songPath("download-status", spotifyID)
	if err != nil {
		return JobReport{}, err
	}
	var payload JobReport
	if err := c.do(ctx, http.MethodGet, p, nil, &payload); err != nil {
		return JobReport{}, fmt.Errorf("fetch download status %s: %w", spotifyID, err)
	}
	return payload, nil
}

// RetryDownload restarts a failed job.
func (c *Client) RetryDownload(ctx context.Context, spotifyID string) error {
	p, err := songPath("retry-download", spotifyID)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, p, nil, nil); err != nil {
		return fmt.Errorf("retry download %s: %w", spotifyID, err)
	}
	return nil
}

// FetchMatches retrieves the alternate-source candidates for a song. A
// saved song answers with its chosen match only.
func (c *Client) FetchMatches(ctx context.Context, spotifyID string) (MatchCandidates, error) {
	p, err := songPath("soundcloud-matches", spotifyID)
	if err != nil {
		return MatchCandidates{}, err
	}
	var payload MatchCandidates
	if err := c.do(ctx, http.MethodGet, p, nil, &payload); err != nil {
		return MatchCandidates{}, fmt.Errorf("fetch matches %s: %w", spotifyID, err)
	}
	return payload, nil
}

// SaveMatch marks a song saved with the chosen alternate source and enqueues
// its job.
func (c *Client) SaveMatch(ctx context.Context, spotifyID string, req MatchRequest) error {
	p, err := songPath("save-match", spotifyID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.SoundCloudMatch.URL) == "" {
		return validationError("match url is required")
	}
	req.SpotifyID = spotifyID
	if err := c.do(ctx, http.MethodPost, p, req, nil); err != nil {
		return fmt.Errorf("save match %s: %w", spotifyID, err)
	}
	return nil
}

// DeleteMatch unmarks a saved song and cancels its job.
func (c *Client) DeleteMatch(ctx context.Context, spotifyID string) error {
	p, err := songPath("delete-match", spotifyID)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, p, nil, nil); err != nil {
		return fmt.Errorf("delete match %s: %w", spotifyID, err)
	}
	return nil
}

// CheckSong asks the backend whether a new song is still in the source
// playlist; the backend deletes it when it is not.
func (c *Client) CheckSong(ctx context.Context, spotifyID string) (CheckResult, error) {
	p, err := songPath("check-song", spotifyID)
	if err != nil {
		return CheckResult{}, err
	}
	var payload CheckResult
	if err := c.do(ctx, http.MethodPost, p, nil, &payload); err != nil {
		return CheckResult{}, fmt.Errorf("check song %s: %w", spotifyID, err)
	}
	return payload, nil
}

// FetchPlaylists retrieves every playlist.
func (c *Client) FetchPlaylists(ctx context.Context) ([]Playlist, error) {
	var payload []Playlist
	if err := c.do(ctx, http.MethodGet, songsPrefix+"/playlists/", nil, &payload); err != nil {
		return nil, fmt.Errorf("fetch playlists: %w", err)
	}
	return payload, nil
}

// CreatePlaylist creates a playlist. Blank names are rejected locally.
func (c *Client) CreatePlaylist(ctx context.Context, name string) (Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Playlist{}, validationError("playlist name is required")
	}
	body := map[string]string{"name": name}
	var payload Playlist
	if err := c.do(ctx, http.MethodPost, songsPrefix+"/playlists/create/", body, &payload); err != nil {
		return Playlist{}, fmt.Errorf("create playlist %q: %w", name, err)
	}
	return payload, nil
}

// DeletePlaylist removes a playlist.
func (c *Client) DeletePlaylist(ctx context.Context, playlistID int64) error {
	p, err := playlistPath(playlistID)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, p, nil, nil); err != nil {
		return fmt.Errorf("delete playlist %d: %w", playlistID, err)
	}
	return nil
}

// FetchPlaylistSongs retrieves the members of a playlist.
func (c *Client) FetchPlaylistSongs(ctx context.Context, playlistID int64) ([]Song, error) {
	p, err := playlistPath(playlistID, "songs")
	if err != nil {
		return nil, err
	}
	var payload []Song
	if err := c.do(ctx, http.MethodGet, p, nil, &payload); err != nil {
		return nil, fmt.Errorf("fetch playlist %d songs: %w", playlistID, err)
	}
	c.noteUnrecognized(payload...)
	return payload, nil
}

// AddSongToPlaylist assigns a song to a playlist.
func (c *Client) AddSongToPlaylist(ctx context.Context, playlistID int64, spotifyID string) error {
	if err := checkID(spotifyID); err != nil {
		return err
	}
	p, err := playlistPath(playlistID, "add-song")
	if err != nil {
		return err
	}
	body := map[string]string{"spotify_id": spotifyID}
	if err := c.do(ctx, http.MethodPost, p, body, nil); err != nil {
		return fmt.Errorf("add %s to playlist %d: %w", spotifyID, playlistID, err)
	}
	return nil
}

// RemoveSongFromPlaylist removes a member from a playlist.
func (c *Client) RemoveSongFromPlaylist(ctx context.Context, playlistID int64, spotifyID string) error {
	if err := checkID(spotifyID); err != nil {
		return err
	}
	p, err := playlistPath(playlistID, "remove-song", spotifyID)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, p, nil, nil); err != nil {
		return fmt.Errorf("remove %s from playlist %d: %w", spotifyID, playlistID, err)
	}
	return nil
}

// SyncRekordbox asks the backend to write every playlist into a Rekordbox
// XML collection export.
func (c *Client) SyncRekordbox(ctx context.Context, databasePath string) (SyncResult, error) {
	databasePath = strings.TrimSpace(databasePath)
	if databasePath == "" {
		return SyncResult{}, validationError("database path is required")
	}
	ext := strings.ToLower(path.Ext(databasePath))
	if ext != ".xml" && ext != ".db" {
		return SyncResult{}, validationError("unsupported export file %q: want rekordbox.xml or master.db", databasePath)
	}
	body := map[string]string{"database_path": databasePath}
	var payload SyncResult
	if err := c.do(ctx, http.MethodPost, songsPrefix+"/rekordbox/sync/", body, &payload); err != nil {
		return SyncResult{}, fmt.Errorf("sync rekordbox: %w", err)
	}
	return payload, nil
}

// noteUnrecognized logs rows whose job state this client does not know.
// Those rows are kept with an unknown status.
func (c *Client) noteUnrecognized(songs ...Song) {
	for _, s := range songs {
		if raw := s.UnrecognizedStatus(); raw != "" {
			c.logger.Warn("unrecognized download status", "song", s.SpotifyID, "status", raw)
		}
	}
}

// Prime obtains the anti-forgery token. Mutating calls prime lazily, so
// calling it directly is only needed to fail fast at startup.
func (c *Client) Prime(ctx context.Context) error {
	c.primeMu.Lock()
	defer c.primeMu.Unlock()
	return c.primeLocked(ctx)
}

func (c *Client) ensurePrimed(ctx context.Context) error {
	if _, ok := c.session.CSRFToken(); ok {
		return nil
	}
	c.primeMu.Lock()
	defer c.primeMu.Unlock()
	if _, ok := c.session.CSRFToken(); ok {
		return nil
	}
	return c.primeLocked(ctx)
}

func (c *Client) primeLocked(ctx context.Context) error {
	var payload csrfResponse
	rel := &url.URL{Path: accountPrefix + "/csrf/"}
	if err := c.doURL(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return fmt.Errorf("prime csrf: %w", err)
	}
	token := c.cookieToken()
	if token == "" {
		token = strings.TrimSpace(payload.CSRFToken)
	}
	if token == "" {
		return fmt.Errorf("prime csrf: %w: no token in cookie or body", ErrAPIRequest)
	}
	c.session.SetCSRFToken(token)
	return nil
}

func (c *Client) cookieToken() string {
	if c.http.Jar == nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, p string, body, dest any) error {
	rel := &url.URL{Path: p}
	return c.doURL(ctx, method, rel, body, dest)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if c.session.Expired() {
		return fmt.Errorf("%s %s: %w", method, rel.Path, ErrSessionExpired)
	}
	mutating := isMutating(method)
	if mutating {
		if err := c.ensurePrimed(ctx); err != nil {
			return err
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutating {
		if token, ok := c.session.CSRFToken(); ok {
			req.Header.Set(csrfHeaderName, token)
		}
		req.Header.Set("Referer", c.baseURL.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", rel.Path, "request_id", requestID, "err", err)
		return fmt.Errorf("execute request: %w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("request", "method", method, "path", rel.Path, "status", resp.StatusCode, "request_id", requestID)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			Method:  method,
			Path:    rel.Path,
			Status:  resp.StatusCode,
			Message: readErrorMessage(resp.Body),
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			c.logger.Warn("session expired", "method", method, "path", rel.Path, "status", resp.StatusCode)
			c.session.Expire(apiErr)
		}
		return apiErr
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return strings.TrimSpace(string(raw))
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func checkID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return validationError("song id is required")
	}
	if strings.ContainsAny(trimmed, "/?#") {
		return validationError("song id %q contains reserved characters", id)
	}
	return nil
}

func songPath(action, spotifyID string) (string, error) {
	if err := checkID(spotifyID); err != nil {
		return "", err
	}
	return songsPrefix + "/" + action + "/" + strings.TrimSpace(spotifyID) + "/", nil
}

func playlistPath(playlistID int64, parts ...string) (string, error) {
	if playlistID <= 0 {
		return "", validationError("playlist id must be positive")
	}
	p := songsPrefix + "/playlists/" + strconv.FormatInt(playlistID, 10) + "/"
	for _, part := range parts {
		p += part + "/"
	}
	return p, nil
}

func parseBaseURL(apiBase string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBase)
	if trimmed == "" {
		trimmed = defaultAPIBase
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_base %q: %w", apiBase, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
