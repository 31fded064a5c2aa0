package poller

import (
	"context"
	"errors"
	"testing"

	"github.com/five82/deckhand/internal/jobstatus"
)

func TestGroup_AttachKeepsTerminalJobsForRetry(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{step("completed", 100)}}
	g := NewGroup(context.Background(), src, fastOptions())
	t.Cleanup(g.CancelAll)

	p := g.Attach("done", jobstatus.NewStatus(jobstatus.StateFailed, 0), nil)
	if p.Running() {
		t.Fatal("failed job should not poll")
	}
	if g.Len() != 1 {
		t.Fatalf("Len = %d, want 1", g.Len())
	}

	if err := g.Retry(context.Background(), "done"); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	p.Wait()
	if p.Status().State != jobstatus.StateCompleted {
		t.Fatalf("status = %s, want completed", p.Status().State)
	}
}

func TestGroup_RetryUnknownJob(t *testing.T) {
	g := NewGroup(context.Background(), &scriptedSource{}, fastOptions())
	if err := g.Retry(context.Background(), "ghost"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("error = %v, want ErrUnknownJob", err)
	}
}

func TestGroup_AttachReplacesAndCancelAllStops(t *testing.T) {
	src := &scriptedSource{
		results: []fetchResult{step("downloading", 5)},
		block:   make(chan struct{}),
	}
	g := NewGroup(context.Background(), src, fastOptions())

	rec := &recorder{}
	first := g.Attach("job", jobstatus.NewStatus(jobstatus.StatePending, 0), rec.record)
	waitFor(t, func() bool { return src.Calls() >= 1 })

	second := g.Attach("job", jobstatus.NewStatus(jobstatus.StatePending, 0), rec.record)
	if first.Running() {
		t.Fatal("replaced poller still running")
	}
	if got, _ := g.Get("job"); got != second {
		t.Fatal("Get should return the replacement")
	}
	if g.Ensure("job", jobstatus.Status{}, nil) != second {
		t.Fatal("Ensure should keep the existing poller")
	}

	g.CancelAll()
	close(src.block)
	first.Wait()
	second.Wait()

	if g.Len() != 0 || g.Active() != 0 {
		t.Fatalf("Len/Active = %d/%d after CancelAll", g.Len(), g.Active())
	}
	if got := rec.Updates(); len(got) != 0 {
		t.Fatalf("updates after teardown = %+v, want none", got)
	}
}
