package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/deckhand/internal/logging"
)

var (
	// ErrStale is returned by a load whose result was discarded because the
	// key changed, or another load started, before it completed.
	ErrStale = errors.New("stale page discarded")

	// ErrClosed is returned once the owning view has been torn down.
	ErrClosed = errors.New("store closed")

	// ErrNoPage is returned by NextPage and PrevPage at the list bounds.
	ErrNoPage = errors.New("no such page")
)

// Entity is a list row. Clone must return a copy sharing no mutable state so
// two stores never alias the same row.
type Entity[T any] interface {
	Clone() T
}

// Page is one fetched page.
type Page[T any] struct {
	Items      []T
	Total      int
	TotalPages int
}

// Fetcher loads exactly the page identified by key.
type Fetcher[T any] func(ctx context.Context, key PageKey) (Page[T], error)

// Options names a store for logging.
type Options struct {
	Name   string
	Logger *log.Logger
}

// Snapshot is a copy of what a store holds for its current key.
type Snapshot[T any] struct {
	Key         PageKey
	Items       []T
	Total       int
	TotalPages  int
	Loaded      bool // a page fetched for Key is held
	Loading     bool
	LastUpdated time.Time
	LastError   error

	ConsecutiveFailures int
}

// Stale reports whether the key changed and its page has not arrived yet.
func (s Snapshot[T]) Stale() bool {
	return !s.Loaded
}

// HasNext reports whether a page follows the current one.
func (s Snapshot[T]) HasNext() bool {
	return s.Loaded && s.Key.Index+1 < s.TotalPages
}

// HasPrev reports whether a page precedes the current one.
func (s Snapshot[T]) HasPrev() bool {
	return s.Key.Index > 0
}

// IsOffline returns true when loads have failed repeatedly.
func (s Snapshot[T]) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// PageStore holds one page of a filtered, paginated collection. Every change
// of key loads; a held page is only exposed under the key it was fetched for.
type PageStore[T Entity[T]] struct {
	fetch  Fetcher[T]
	name   string
	logger *log.Logger

	mu          sync.RWMutex
	key         PageKey
	heldKey     PageKey
	held        bool
	items       []T
	total       int
	totalPages  int
	gen         uint64
	loading     bool
	closed      bool
	lastErr     error
	lastUpdated time.Time
	failures    int
}

// NewPageStore creates a store positioned at key. Nothing is fetched until a
// load.
func NewPageStore[T Entity[T]](fetch Fetcher[T], key PageKey, opts Options) *PageStore[T] {
	return &PageStore[T]{
		fetch:  fetch,
		name:   opts.Name,
		logger: logging.Component(opts.Logger, "state").With("store", opts.Name),
		key:    key.normalize(),
	}
}

// Name returns the store name.
func (s *PageStore[T]) Name() string {
	return s.name
}

// Key returns the current key.
func (s *PageStore[T]) Key() PageKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

// Load fetches the page for the current key. On success the held page is
// replaced wholesale; on failure it is kept and the error returned. A result
// that arrives after the key changed or a newer load started is dropped and
// ErrStale returned.
func (s *PageStore[T]) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	key := s.key
	s.loading = true
	s.mu.Unlock()

	page, err := s.fetch(ctx, key)
	return s.complete(gen, key, page, err)
}

func (s *PageStore[T]) complete(gen uint64, key PageKey, page Page[T], err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if gen != s.gen {
		s.logger.Debug("discarding stale page", "key", key.String())
		return ErrStale
	}
	s.loading = false
	s.lastUpdated = time.Now()
	if err != nil {
		s.lastErr = err
		s.failures++
		s.logger.Debug("page load failed", "key", key.String(), "err", err)
		return fmt.Errorf("load %s page %s: %w", s.name, key, err)
	}
	s.items = cloneItems(page.Items)
	s.heldKey = key
	s.held = true
	s.total = page.Total
	s.totalPages = page.TotalPages
	s.lastErr = nil
	s.failures = 0
	return nil
}

// SetFilter switches to f, resets to the first page and loads.
func (s *PageStore[T]) SetFilter(ctx context.Context, f Filter) error {
	s.mu.Lock()
	s.key = PageKey{Filter: f.Normalize(), Index: 0}
	s.mu.Unlock()
	return s.Load(ctx)
}

// SetPage switches to page index and loads.
func (s *PageStore[T]) SetPage(ctx context.Context, index int) error {
	s.mu.Lock()
	s.key = PageKey{Filter: s.key.Filter, Index: max(index, 0)}
	s.mu.Unlock()
	return s.Load(ctx)
}

// NextPage moves forward one page when the held page says one exists.
func (s *PageStore[T]) NextPage(ctx context.Context) error {
	s.mu.RLock()
	index := s.key.Index
	ok := s.held && s.heldKey == s.key && index+1 < s.totalPages
	s.mu.RUnlock()
	if !ok {
		return ErrNoPage
	}
	return s.SetPage(ctx, index+1)
}

// PrevPage moves back one page.
func (s *PageStore[T]) PrevPage(ctx context.Context) error {
	index := s.Key().Index
	if index == 0 {
		return ErrNoPage
	}
	return s.SetPage(ctx, index-1)
}

// AfterMutation reloads the current key after a change that may move rows in
// or out of it. When the page fell off the end (its index is now at or past
// the total), the index is stepped back by one and loaded once more.
func (s *PageStore[T]) AfterMutation(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	clamp := s.held && s.heldKey == s.key && s.key.Index > 0 && s.key.Index >= s.totalPages
	if clamp {
		s.logger.Debug("page out of range after mutation", "key", s.key.String(), "total_pages", s.totalPages)
		s.key.Index--
	}
	s.mu.Unlock()

	if !clamp {
		return nil
	}
	return s.Load(ctx)
}

// Drop removes held rows matching match and returns how many were removed.
func (s *PageStore[T]) Drop(match func(T) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	removed := 0
	for _, item := range s.items {
		if match(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	clear(s.items[len(kept):])
	s.items = kept
	return removed
}

// UpdateItem replaces held rows matching match with fn(row) and reports
// whether any matched.
func (s *PageStore[T]) UpdateItem(match func(T) bool, fn func(T) T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i, item := range s.items {
		if match(item) {
			s.items[i] = fn(item.Clone())
			found = true
		}
	}
	return found
}

// Close ignores every pending and future completion.
func (s *PageStore[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.gen++
	s.loading = false
	s.mu.Unlock()
}

// Closed reports whether Close was called.
func (s *PageStore[T]) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Snapshot returns a copy of the store. Items are only present when the held
// page belongs to the current key.
func (s *PageStore[T]) Snapshot() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot[T]{
		Key:                 s.key,
		Loaded:              s.held && s.heldKey == s.key,
		Loading:             s.loading,
		LastUpdated:         s.lastUpdated,
		ConsecutiveFailures: s.failures,
	}
	if snap.Loaded {
		snap.Items = cloneItems(s.items)
		snap.Total = s.total
		snap.TotalPages = s.totalPages
	}
	if s.lastErr != nil {
		snap.LastError = fmt.Errorf("%w", s.lastErr)
	}
	return snap
}

func cloneItems[T Entity[T]](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	dup := make([]T, len(items))
	for i, item := range items {
		dup[i] = item.Clone()
	}
	return dup
}
