// Package guard implements the two-step confirmation that wraps every
// irreversible action: the first trigger arms, the second performs.
package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/deckhand/internal/logging"
)

// DefaultTimeout is how long a guard stays armed without a confirming
// trigger.
const DefaultTimeout = 4 * time.Second

// ErrBusy is returned when triggering a guard whose action is running.
var ErrBusy = errors.New("action already in progress")

// Phase is the guard state.
type Phase int

const (
	Idle Phase = iota
	Armed
	Performing
)

func (p Phase) String() string {
	switch p {
	case Armed:
		return "armed"
	case Performing:
		return "performing"
	default:
		return "idle"
	}
}

// Outcome tells the caller what a trigger did.
type Outcome int

const (
	// OutcomeNone means nothing happened (busy).
	OutcomeNone Outcome = iota
	// OutcomeArmed means the guard armed; no action ran.
	OutcomeArmed
	// OutcomePerformed means the action ran; check the error.
	OutcomePerformed
)

// Action is the destructive call a guard wraps.
type Action func(ctx context.Context) error

// Options tunes a guard.
type Options struct {
	Timeout time.Duration
	Logger  *log.Logger
}

// Guard is safe for concurrent use.
type Guard struct {
	key     string
	timeout time.Duration
	logger  *log.Logger
	group   *Group

	mu       sync.Mutex
	phase    Phase
	gen      uint64
	timer    *time.Timer
	onChange func(Phase)
}

// New returns an idle guard.
func New(opts Options) *Guard {
	return newGuard("", opts, nil)
}

func newGuard(key string, opts Options, group *Group) *Guard {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{
		key:     key,
		timeout: timeout,
		logger:  logging.Component(opts.Logger, "guard").With("key", key),
		group:   group,
	}
}

// Key returns the entity key the guard was created for within a group.
func (g *Guard) Key() string {
	return g.key
}

// Phase returns the current phase.
func (g *Guard) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// OnChange registers fn to run after every phase change, including the
// timer-driven disarm. fn runs without the guard lock held.
func (g *Guard) OnChange(fn func(Phase)) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

// Trigger advances the guard. From idle it arms and returns OutcomeArmed.
// From armed it runs action once and returns to idle whatever the result;
// the action's error is returned with OutcomePerformed. While the action runs
// further triggers return ErrBusy.
func (g *Guard) Trigger(ctx context.Context, action Action) (Outcome, error) {
	g.mu.Lock()
	switch g.phase {
	case Performing:
		g.mu.Unlock()
		return OutcomeNone, ErrBusy

	case Idle:
		g.phase = Armed
		g.gen++
		gen := g.gen
		g.timer = time.AfterFunc(g.timeout, func() { g.expire(gen) })
		fn := g.onChange
		g.mu.Unlock()

		g.logger.Debug("armed")
		if g.group != nil {
			g.group.armed(g)
		}
		notify(fn, Armed)
		return OutcomeArmed, nil
	}

	g.phase = Performing
	g.gen++
	g.stopTimerLocked()
	fn := g.onChange
	g.mu.Unlock()
	notify(fn, Performing)

	err := action(ctx)

	g.mu.Lock()
	g.phase = Idle
	fn = g.onChange
	g.mu.Unlock()
	if err != nil {
		g.logger.Debug("action failed", "err", err)
	} else {
		g.logger.Debug("action performed")
	}
	notify(fn, Idle)
	return OutcomePerformed, err
}

// Disarm returns an armed guard to idle without running the action and
// reports whether it was armed. It is the background-interaction signal.
func (g *Guard) Disarm() bool {
	g.mu.Lock()
	if g.phase != Armed {
		g.mu.Unlock()
		return false
	}
	g.phase = Idle
	g.gen++
	g.stopTimerLocked()
	fn := g.onChange
	g.mu.Unlock()

	g.logger.Debug("disarmed")
	notify(fn, Idle)
	return true
}

func (g *Guard) expire(gen uint64) {
	g.mu.Lock()
	if g.phase != Armed || g.gen != gen {
		g.mu.Unlock()
		return
	}
	g.phase = Idle
	g.gen++
	g.timer = nil
	fn := g.onChange
	g.mu.Unlock()

	g.logger.Debug("disarmed after timeout", "timeout", g.timeout)
	notify(fn, Idle)
}

func (g *Guard) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func notify(fn func(Phase), p Phase) {
	if fn != nil {
		fn(p)
	}
}
