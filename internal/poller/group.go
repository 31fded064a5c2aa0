package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/five82/deckhand/internal/jobstatus"
)

// ErrUnknownJob is returned by Group.Retry for a job with no poller.
var ErrUnknownJob = errors.New("no poller for job")

// Group owns the pollers of one view. CancelAll is the view teardown.
type Group struct {
	src  StatusSource
	opts Options
	ctx  context.Context

	mu      sync.Mutex
	pollers map[string]*Poller
}

// NewGroup creates an empty group. ctx bounds every loop the group starts.
func NewGroup(ctx context.Context, src StatusSource, opts Options) *Group {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Group{src: src, opts: opts, ctx: ctx, pollers: make(map[string]*Poller)}
}

// Attach creates the poller for spotifyID, replacing (and cancelling) any
// previous one, and starts it when the initial status is active. Terminal
// jobs are kept so Retry can find them.
func (g *Group) Attach(spotifyID string, initial jobstatus.Status, onUpdate func(jobstatus.Status)) *Poller {
	p := New(g.src, spotifyID, initial, onUpdate, g.opts)
	g.mu.Lock()
	prev := g.pollers[spotifyID]
	g.pollers[spotifyID] = p
	g.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	p.Start(g.ctx)
	return p
}

// Ensure attaches a poller unless one already exists for spotifyID.
func (g *Group) Ensure(spotifyID string, initial jobstatus.Status, onUpdate func(jobstatus.Status)) *Poller {
	if p, ok := g.Get(spotifyID); ok {
		return p
	}
	return g.Attach(spotifyID, initial, onUpdate)
}

// Get returns the poller of spotifyID.
func (g *Group) Get(spotifyID string) (*Poller, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pollers[spotifyID]
	return p, ok
}

// Retry retries the job of spotifyID through its poller.
func (g *Group) Retry(ctx context.Context, spotifyID string) error {
	p, ok := g.Get(spotifyID)
	if !ok {
		return fmt.Errorf("retry %s: %w", spotifyID, ErrUnknownJob)
	}
	return p.Retry(ctx)
}

// Cancel stops and forgets the poller of spotifyID.
func (g *Group) Cancel(spotifyID string) {
	g.mu.Lock()
	p := g.pollers[spotifyID]
	delete(g.pollers, spotifyID)
	g.mu.Unlock()
	if p != nil {
		p.Cancel()
	}
}

// CancelAll stops and forgets every poller.
func (g *Group) CancelAll() {
	g.mu.Lock()
	pollers := g.pollers
	g.pollers = make(map[string]*Poller)
	g.mu.Unlock()
	for _, p := range pollers {
		p.Cancel()
	}
}

// Len returns the number of attached pollers.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pollers)
}

// Active returns the number of pollers with a running loop.
func (g *Group) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.pollers {
		if p.Running() {
			n++
		}
	}
	return n
}
