package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/five82/deckhand/internal/jobstatus"
	"github.com/five82/deckhand/internal/library"
	"github.com/five82/deckhand/internal/session"
	"github.com/five82/deckhand/internal/testutil"
)

type fetchResult struct {
	report library.JobReport
	err    error
}

type scriptedSource struct {
	mu         sync.Mutex
	results    []fetchResult
	calls      int
	retryCalls int
	retryErr   error
	block      chan struct{}
}

func (s *scriptedSource) FetchDownloadStatus(_ context.Context, _ string) (library.JobReport, error) {
	s.mu.Lock()
	s.calls++
	res := s.results[min(s.calls, len(s.results))-1]
	block := s.block
	s.mu.Unlock()
	if block != nil {
		// Ignores ctx so the response arrives after cancellation.
		<-block
	}
	return res.report, res.err
}

func (s *scriptedSource) RetryDownload(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCalls++
	return s.retryErr
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func step(state string, progress int) fetchResult {
	return fetchResult{report: library.JobReport{HasMatch: true, DownloadStatus: &state, DownloadProgress: progress}}
}

type recorder struct {
	mu      sync.Mutex
	updates []jobstatus.Status
}

func (r *recorder) record(st jobstatus.Status) {
	r.mu.Lock()
	r.updates = append(r.updates, st)
	r.mu.Unlock()
}

func (r *recorder) Updates() []jobstatus.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobstatus.Status(nil), r.updates...)
}

func fastOptions() Options {
	return Options{Interval: time.Millisecond}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPoller_StopsAfterTerminalState(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{
		step("downloading", 40),
		step("downloading", 90),
		step("completed", 100),
	}}
	rec := &recorder{}
	p := New(src, "job", jobstatus.NewStatus(jobstatus.StatePending, 0), rec.record, fastOptions())

	if !p.Start(context.Background()) {
		t.Fatal("Start returned false for a pending job")
	}
	p.Wait()
	time.Sleep(20 * time.Millisecond)

	if got := src.Calls(); got != 3 {
		t.Fatalf("poll ticks = %d, want 3", got)
	}
	want := []jobstatus.Status{
		{State: jobstatus.StateDownloading, Progress: 40},
		{State: jobstatus.StateDownloading, Progress: 90},
		{State: jobstatus.StateCompleted, Progress: 100},
	}
	got := rec.Updates()
	if len(got) != len(want) {
		t.Fatalf("updates = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("update %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if p.Running() {
		t.Fatal("poller still running after completed")
	}
}

func TestPoller_TerminalInitialStateIssuesNoRequest(t *testing.T) {
	for _, state := range []jobstatus.State{jobstatus.StateCompleted, jobstatus.StateFailed, jobstatus.StateNone} {
		t.Run(string(state), func(t *testing.T) {
			src := &scriptedSource{results: []fetchResult{step("downloading", 1)}}
			p := New(src, "job", jobstatus.NewStatus(state, 0), nil, fastOptions())
			if p.Start(context.Background()) {
				t.Fatal("Start returned true for a non-active job")
			}
			time.Sleep(10 * time.Millisecond)
			if got := src.Calls(); got != 0 {
				t.Fatalf("requests = %d, want 0", got)
			}
		})
	}
}

func TestPoller_CancelDiscardsInFlightResponse(t *testing.T) {
	src := &scriptedSource{
		results: []fetchResult{step("completed", 100)},
		block:   make(chan struct{}),
	}
	rec := &recorder{}
	p := New(src, "job", jobstatus.NewStatus(jobstatus.StateDownloading, 10), rec.record, fastOptions())
	p.Start(context.Background())
	waitFor(t, func() bool { return src.Calls() == 1 })

	p.Cancel()
	close(src.block)
	p.Wait()

	if got := rec.Updates(); len(got) != 0 {
		t.Fatalf("updates after cancel = %+v, want none", got)
	}
	if st := p.Status(); st.State != jobstatus.StateDownloading {
		t.Fatalf("status = %s, want the pre-cancel downloading", st.State)
	}
}

func TestPoller_TransientErrorsAreSwallowed(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{
		{err: fmt.Errorf("fetch: %w", library.ErrTransport)},
		{err: &library.APIError{Status: 502}},
		step("completed", 100),
	}}
	rec := &recorder{}
	p := New(src, "job", jobstatus.NewStatus(jobstatus.StatePending, 0), rec.record, fastOptions())
	p.Start(context.Background())
	p.Wait()

	if got := src.Calls(); got != 3 {
		t.Fatalf("poll ticks = %d, want 3", got)
	}
	got := rec.Updates()
	if len(got) != 1 || got[0].State != jobstatus.StateCompleted {
		t.Fatalf("updates = %+v, want only completed", got)
	}
}

func TestPoller_SessionExpiryStopsPolling(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{
		{err: fmt.Errorf("fetch: %w", library.ErrSessionExpired)},
		step("completed", 100),
	}}
	rec := &recorder{}
	p := New(src, "job", jobstatus.NewStatus(jobstatus.StatePending, 0), rec.record, fastOptions())
	p.Start(context.Background())
	p.Wait()
	time.Sleep(10 * time.Millisecond)

	if got := src.Calls(); got != 1 {
		t.Fatalf("poll ticks = %d, want 1", got)
	}
	if len(rec.Updates()) != 0 || p.Running() {
		t.Fatal("poller should stop silently on session expiry")
	}
}

func TestPoller_NoMatchReportsNoneAndStops(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{{report: library.JobReport{HasMatch: false}}}}
	rec := &recorder{}
	p := New(src, "job", jobstatus.NewStatus(jobstatus.StatePending, 0), rec.record, fastOptions())
	p.Start(context.Background())
	p.Wait()

	got := rec.Updates()
	if len(got) != 1 || got[0].State != jobstatus.StateNone {
		t.Fatalf("updates = %+v, want none", got)
	}
}

func TestPoller_CancelFromCallback(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{step("downloading", 10), step("downloading", 20)}}
	var p *Poller
	p = New(src, "job", jobstatus.NewStatus(jobstatus.StatePending, 0), func(jobstatus.Status) {
		p.Cancel()
	}, fastOptions())
	p.Start(context.Background())
	p.Wait()
	time.Sleep(10 * time.Millisecond)

	if got := src.Calls(); got != 1 {
		t.Fatalf("poll ticks = %d, want 1", got)
	}
}

func TestPoller_RetryRejectedUnlessFailed(t *testing.T) {
	for _, state := range []jobstatus.State{
		jobstatus.StateNone, jobstatus.StatePending, jobstatus.StateDownloading,
		jobstatus.StateAnalyzing, jobstatus.StateCompleted,
	} {
		t.Run(string(state), func(t *testing.T) {
			src := &scriptedSource{results: []fetchResult{step("completed", 100)}}
			rec := &recorder{}
			p := New(src, "job", jobstatus.NewStatus(state, 0), rec.record, fastOptions())

			err := p.Retry(context.Background())
			if !errors.Is(err, jobstatus.ErrIllegalRetry) {
				t.Fatalf("Retry error = %v, want ErrIllegalRetry", err)
			}
			if src.retryCalls != 0 || len(rec.Updates()) != 0 {
				t.Fatal("illegal retry must not touch the backend or report")
			}
		})
	}
}

func TestPoller_FailedRetryRevertsToFailed(t *testing.T) {
	backendErr := &library.APIError{Status: 500, Message: "worker down"}
	src := &scriptedSource{results: []fetchResult{step("pending", 0)}, retryErr: backendErr}
	rec := &recorder{}
	p := New(src, "job", jobstatus.NewStatus(jobstatus.StateFailed, 0), rec.record, fastOptions())

	err := p.Retry(context.Background())
	if !errors.Is(err, library.ErrAPIRequest) {
		t.Fatalf("Retry error = %v, want the backend error", err)
	}
	got := rec.Updates()
	if len(got) != 2 || got[0].State != jobstatus.StatePending || got[1].State != jobstatus.StateFailed {
		t.Fatalf("updates = %+v, want pending then failed", got)
	}
	if p.Status().State != jobstatus.StateFailed {
		t.Fatalf("status = %s, want failed", p.Status().State)
	}
	if p.Running() || src.Calls() != 0 {
		t.Fatal("failed retry must not start polling")
	}
}

func TestPoller_SuccessfulRetryRestartsPolling(t *testing.T) {
	src := &scriptedSource{results: []fetchResult{step("downloading", 50), step("completed", 100)}}
	rec := &recorder{}
	p := New(src, "job", jobstatus.NewStatus(jobstatus.StateFailed, 0), rec.record, fastOptions())

	if err := p.Retry(context.Background()); err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	p.Wait()

	got := rec.Updates()
	wantStates := []jobstatus.State{jobstatus.StatePending, jobstatus.StateDownloading, jobstatus.StateCompleted}
	if len(got) != len(wantStates) {
		t.Fatalf("updates = %+v, want %v", got, wantStates)
	}
	for i, want := range wantStates {
		if got[i].State != want {
			t.Fatalf("update %d = %s, want %s", i, got[i].State, want)
		}
	}
	if got[0].Progress != 0 {
		t.Fatalf("optimistic progress = %d, want 0", got[0].Progress)
	}
	if src.retryCalls != 1 {
		t.Fatalf("retry calls = %d, want 1", src.retryCalls)
	}
}

func TestPoller_AgainstBackend(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AddSong(testutil.Song{SpotifyID: "job", Saved: true, Status: "pending"})
	backend.ScriptJob("job",
		testutil.JobStep{Status: "downloading", Progress: 40},
		testutil.JobStep{Status: "downloading", Progress: 90},
		testutil.JobStep{Status: "completed", Progress: 100},
	)
	client, err := library.NewClient(backend.URL(), session.New())
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	rec := &recorder{}
	p := New(client, "job", jobstatus.NewStatus(jobstatus.StatePending, 0), rec.record, fastOptions())
	p.Start(context.Background())
	p.Wait()
	time.Sleep(20 * time.Millisecond)

	if got := backend.Count(testutil.RouteDownloadStatus); got != 3 {
		t.Fatalf("download-status requests = %d, want 3", got)
	}
	if got := rec.Updates(); len(got) != 3 || got[2].Label() != "Download and analysis completed" {
		t.Fatalf("updates = %+v", got)
	}
}

func TestPoller_FailedRetryAgainstBackend(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.AddSong(testutil.Song{SpotifyID: "job", Saved: true, Status: "failed"})
	backend.FailNext(testutil.RouteRetryDownload, 500, "queue unavailable")
	client, err := library.NewClient(backend.URL(), session.New())
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	p := New(client, "job", jobstatus.NewStatus(jobstatus.StateFailed, 0), nil, fastOptions())
	if err := p.Retry(context.Background()); err == nil {
		t.Fatal("Retry returned nil, want the server error")
	}
	if p.Status().State != jobstatus.StateFailed {
		t.Fatalf("status = %s, want failed", p.Status().State)
	}
	if got := backend.Count(testutil.RouteDownloadStatus); got != 0 {
		t.Fatalf("download-status requests = %d, want 0", got)
	}
}
