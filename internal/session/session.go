// Package session holds the per-session state the library client needs: the
// anti-forgery token and the expiry signal consumed by the outer session layer.
package session

import "sync"

// Session is safe for concurrent use. The zero value is ready to use.
type Session struct {
	mu        sync.Mutex
	csrfToken string
	expired   bool
	cause     error
	listeners []func(error)
}

// New returns an empty session.
func New() *Session {
	return &Session{}
}

// CSRFToken returns the anti-forgery token and whether one was obtained.
func (s *Session) CSRFToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken, s.csrfToken != ""
}

// SetCSRFToken records the token obtained by the priming call.
func (s *Session) SetCSRFToken(token string) {
	s.mu.Lock()
	s.csrfToken = token
	s.mu.Unlock()
}

// OnExpire registers fn to run once when the session expires. Registering
// after expiry runs fn immediately.
func (s *Session) OnExpire(fn func(error)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.expired {
		cause := s.cause
		s.mu.Unlock()
		fn(cause)
		return
	}
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Expire marks the session expired and notifies listeners. Later calls are
// no-ops until Reset.
func (s *Session) Expire(cause error) {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	s.cause = cause
	s.csrfToken = ""
	listeners := append(([]func(error))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cause)
	}
}

// Expired reports whether the backend rejected the session.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Cause returns the error that expired the session, if any.
func (s *Session) Cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Reset clears expiry and the token after the session layer signs in again.
// Listeners stay registered.
func (s *Session) Reset() {
	s.mu.Lock()
	s.expired = false
	s.cause = nil
	s.csrfToken = ""
	s.mu.Unlock()
}
