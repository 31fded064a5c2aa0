// Package library provides an HTTP client for the music-library backend API.
//
// # Overview
//
// The client covers the song, job and playlist endpoints the synchronization
// core consumes, plus the new-song check and the Rekordbox export trigger. It
// handles JSON serialization, the anti-forgery handshake, request pacing and
// the mapping from HTTP status codes onto the package error sentinels.
//
// # Client Usage
//
//	sess := session.New()
//	sess.OnExpire(func(err error) { /* hand control to the session layer */ })
//
//	client, err := library.NewClient("127.0.0.1:8000", sess,
//		library.WithLogger(logger),
//		library.WithRateLimit(10),
//	)
//	if err != nil {
//		return err
//	}
//
//	page, err := client.FetchSongs(ctx, library.SongQuery{Page: 0, PageSize: 15})
//
// # API Endpoints
//
// Song routes are mounted under /api/spotify/ and the session routes under
// /api/accounts/. Every path carries a trailing slash.
//
//   - GET songs/, new-songs/, song/{id}/, download-status/{id}/
//   - POST retry-download/{id}/, save-match/{id}/, check-song/{id}/
//   - DELETE delete-match/{id}/
//   - GET playlists/, playlists/{id}/songs/
//   - POST playlists/create/, playlists/{id}/add-song/, rekordbox/sync/
//   - DELETE playlists/{id}/, playlists/{id}/remove-song/{sid}/
//   - GET /api/accounts/csrf/ (priming)
//
// # Anti-forgery Token
//
// The first mutating request triggers one priming call. The token is read
// from the csrftoken cookie, falling back to the csrfToken field of the
// response body, and stored in the injected session. Every mutating request
// carries it in the X-CSRFToken header.
//
// # Error Handling
//
// Non-2xx responses are returned as *APIError, which unwraps to one of the
// sentinels so callers can use errors.Is:
//
//   - 401, 403: ErrSessionExpired (the session is also marked expired)
//   - 400: ErrValidation
//   - 404: ErrNotFound
//   - anything else: ErrAPIRequest
//
// Network failures wrap ErrTransport. Input that cannot be valid (blank ids,
// blank playlist names, unsupported export files) fails with ErrValidation
// before any request is sent. Once the session has expired every call fails
// fast with ErrSessionExpired.
//
// # Optional Fields
//
// Song fields the backend may omit are pointers. An absent download_status is
// kept distinct from a null one: see Song.Status.
//
// # Thread Safety
//
// Client is safe for concurrent use. There is no client-side request timeout;
// callers bound requests through their context.
package library
