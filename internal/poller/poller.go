// Package poller follows a song's download job until it reaches a terminal
// state, reporting every observed status to a callback.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/logging"
)

// DefaultInterval is the pause between the completion of one status fetch and
// the issue of the next.
const DefaultInterval = time.Second

// StatusSource is the part of the backend a poller needs.
type StatusSource interface {
	FetchDownloadStatus(ctx context.Context, spotifyID string) (library.JobReport, error)
	RetryDownload(ctx context.Context, spotifyID string) error
}

// Options tunes a poller.
type Options struct {
	Interval time.Duration
	Logger   *log.Logger
}

func (o Options) interval() time.Duration {
	if o.Interval <= 0 {
		return DefaultInterval
	}
	return o.Interval
}

// Poller owns the polling loop of one job. At most one loop runs at a time,
// so ticks for a job never overlap.
//
// onUpdate runs on the loop goroutine (or the goroutine calling Retry). It
// may call Cancel but must not call Retry.
type Poller struct {
	src      StatusSource
	id       string
	onUpdate func(jobstatus.Status)
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	status  jobstatus.Status
	gen     uint64
	base    context.Context
	cancel  context.CancelFunc
	running bool
	done    chan struct{}

	// deliverMu serialises callbacks so a stale delivery cannot interleave
	// with a newer one.
	deliverMu sync.Mutex
}

// New creates a poller for the job of spotifyID. Nothing happens until Start.
func New(src StatusSource, spotifyID string, initial jobstatus.Status, onUpdate func(jobstatus.Status), opts Options) *Poller {
	if onUpdate == nil {
		onUpdate = func(jobstatus.Status) {}
	}
	return &Poller{
		src:      src,
		id:       spotifyID,
		onUpdate: onUpdate,
		interval: opts.interval(),
		logger:   logging.Component(opts.Logger, "poller").With("job", spotifyID, "handle", uuid.NewString()[:8]),
		status:   jobstatus.NewStatus(initial.State, initial.Progress),
		base:     context.Background(),
	}
}

// ID returns the spotify id of the job.
func (p *Poller) ID() string {
	return p.id
}

// Status returns the last reported status.
func (p *Poller) Status() jobstatus.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Running reports whether a polling loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start begins polling when the current status is active and reports whether
// it did. A terminal or absent job issues no request; the caller renders the
// status it already has. ctx bounds every loop this poller starts, including
// the one a later Retry starts.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx != nil {
		p.base = ctx
	}
	if !p.status.State.IsActive() {
		return false
	}
	if p.running {
		return true
	}
	p.startLocked()
	return true
}

// Cancel stops polling. A response still in flight when Cancel returns is
// dropped without reaching onUpdate. A delivery that had already passed that
// check may still finish, so onUpdate can run once more, concurrently with or
// just after Cancel; callers that tear down state onUpdate touches must
// tolerate that one late call. Cancel does not wait for it, so it is safe to
// call from onUpdate.
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.stopLocked()
}

// Wait blocks until the current loop, if any, has exited.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Retry restarts a failed job. The pending status is reported before the
// request is sent. When the backend accepts, polling restarts; when it
// refuses, failed is reported again and the error returned. Retrying from any
// other state returns jobstatus.ErrIllegalRetry without a request.
func (p *Poller) Retry(ctx context.Context) error {
	p.mu.Lock()
	next, err := p.status.Retry()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("retry %s: %w", p.id, err)
	}
	p.gen++
	p.stopLocked()
	gen := p.gen
	p.status = next
	p.mu.Unlock()

	p.deliver(gen, next, false)

	p.logger.Debug("retry requested")
	if err := p.src.RetryDownload(ctx, p.id); err != nil {
		failed := jobstatus.NewStatus(jobstatus.StateFailed, 0)
		p.mu.Lock()
		live := p.gen == gen
		if live {
			p.status = failed
		}
		p.mu.Unlock()
		if live {
			p.deliver(gen, failed, false)
		}
		p.logger.Warn("retry rejected", "err", err)
		return fmt.Errorf("retry %s: %w", p.id, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		// Cancelled while the request was in flight.
		return nil
	}
	p.startLocked()
	return nil
}

func (p *Poller) startLocked() {
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(p.base)
	done := make(chan struct{})
	p.cancel = cancel
	p.running = true
	p.done = done
	go p.run(ctx, gen, done)
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.running = false
}

func (p *Poller) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	p.logger.Debug("polling started", "interval", p.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		report, err := p.src.FetchDownloadStatus(ctx, p.id)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, library.ErrSessionExpired) {
				p.logger.Debug("polling stopped: session expired")
				p.finish(gen)
				return
			}
			p.logger.Debug("status fetch failed", "err", err)
		} else {
			st, convErr := report.JobStatus()
			if convErr != nil {
				p.logger.Debug("status fetch returned unknown state", "err", convErr)
			} else {
				final := !st.State.IsActive()
				if !p.deliver(gen, st, final) {
					return
				}
				if final {
					p.logger.Debug("polling finished", "state", st.State)
					return
				}
			}
		}

		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// deliver records st and invokes onUpdate when gen is still current. final
// marks the loop stopped once onUpdate returns, so Running stays true until
// observers have seen the terminal status.
func (p *Poller) deliver(gen uint64, st jobstatus.Status, final bool) bool {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return false
	}
	p.status = st
	p.mu.Unlock()

	p.onUpdate(st)
	if final {
		p.finish(gen)
	}
	return true
}

func (p *Poller) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.stopLocked()
	}
}
