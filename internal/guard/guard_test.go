package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type counter struct {
	calls atomic.Int32
	err   error
}

func (c *counter) action(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestGuard_Sequences(t *testing.T) {
	tests := []struct {
		name      string
		steps     []string // "click" or "background"
		wantCalls int32
		wantPhase Phase
	}{
		{name: "click click", steps: []string{"click", "click"}, wantCalls: 1, wantPhase: Idle},
		{name: "click background click", steps: []string{"click", "background", "click"}, wantCalls: 0, wantPhase: Armed},
		{name: "single click", steps: []string{"click"}, wantCalls: 0, wantPhase: Armed},
		{name: "background only", steps: []string{"background"}, wantCalls: 0, wantPhase: Idle},
		{name: "four clicks", steps: []string{"click", "click", "click", "click"}, wantCalls: 2, wantPhase: Idle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Options{Timeout: time.Minute})
			c := &counter{}
			for _, step := range tt.steps {
				switch step {
				case "click":
					if _, err := g.Trigger(context.Background(), c.action); err != nil {
						t.Fatalf("Trigger returned error: %v", err)
					}
				case "background":
					g.Disarm()
				}
			}
			if got := c.calls.Load(); got != tt.wantCalls {
				t.Fatalf("destructive calls = %d, want %d", got, tt.wantCalls)
			}
			if got := g.Phase(); got != tt.wantPhase {
				t.Fatalf("phase = %s, want %s", got, tt.wantPhase)
			}
			g.Disarm()
		})
	}
}

func TestGuard_OutcomesAndFailureReturnsToIdle(t *testing.T) {
	g := New(Options{Timeout: time.Minute})
	boom := errors.New("boom")
	c := &counter{err: boom}
	ctx := context.Background()

	outcome, err := g.Trigger(ctx, c.action)
	if outcome != OutcomeArmed || err != nil {
		t.Fatalf("first trigger = %v, %v; want armed", outcome, err)
	}
	outcome, err = g.Trigger(ctx, c.action)
	if outcome != OutcomePerformed || !errors.Is(err, boom) {
		t.Fatalf("second trigger = %v, %v; want performed with boom", outcome, err)
	}
	if g.Phase() != Idle {
		t.Fatalf("phase after failure = %s, want idle", g.Phase())
	}

	outcome, _ = g.Trigger(ctx, c.action)
	if outcome != OutcomeArmed || c.calls.Load() != 1 {
		t.Fatal("after a failure the user must re-arm")
	}
	g.Disarm()
}

func TestGuard_AutoDisarmAfterTimeout(t *testing.T) {
	g := New(Options{Timeout: 10 * time.Millisecond})
	changes := make(chan Phase, 4)
	g.OnChange(func(p Phase) { changes <- p })
	c := &counter{}

	if _, err := g.Trigger(context.Background(), c.action); err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	if p := <-changes; p != Armed {
		t.Fatalf("first change = %s, want armed", p)
	}
	select {
	case p := <-changes:
		if p != Idle {
			t.Fatalf("timer change = %s, want idle", p)
		}
	case <-time.After(time.Second):
		t.Fatal("guard did not auto-disarm")
	}

	if _, err := g.Trigger(context.Background(), c.action); err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	if c.calls.Load() != 0 {
		t.Fatal("trigger after timeout must re-arm, not perform")
	}
	g.Disarm()
}

func TestGuard_DisarmedTimerDoesNotTouchNewArm(t *testing.T) {
	g := New(Options{Timeout: 40 * time.Millisecond})
	c := &counter{}
	ctx := context.Background()

	_, _ = g.Trigger(ctx, c.action)
	time.Sleep(20 * time.Millisecond)
	g.Disarm()
	_, _ = g.Trigger(ctx, c.action)
	time.Sleep(30 * time.Millisecond)

	if g.Phase() != Armed {
		t.Fatalf("phase = %s, want armed (first timer must not disarm the second arm)", g.Phase())
	}
	g.Disarm()
}

func TestGuard_TriggerWhilePerformingIsBusy(t *testing.T) {
	g := New(Options{Timeout: time.Minute})
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	slow := func(context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}
	ctx := context.Background()
	_, _ = g.Trigger(ctx, slow)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = g.Trigger(ctx, slow)
	}()
	<-started

	if g.Phase() != Performing {
		t.Fatalf("phase = %s, want performing", g.Phase())
	}
	if _, err := g.Trigger(ctx, slow); !errors.Is(err, ErrBusy) {
		t.Fatalf("trigger while performing = %v, want ErrBusy", err)
	}
	if g.Disarm() {
		t.Fatal("Disarm should not interrupt a running action")
	}
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestGroup_OnlyOneArmed(t *testing.T) {
	gr := NewGroup(Options{Timeout: time.Minute})
	var mu sync.Mutex
	var events []string
	gr.OnChange(func(key string, p Phase) {
		mu.Lock()
		events = append(events, key+":"+p.String())
		mu.Unlock()
	})
	c := &counter{}
	ctx := context.Background()

	_, _ = gr.Trigger(ctx, "a", c.action)
	_, _ = gr.Trigger(ctx, "b", c.action)

	if gr.Phase("a") != Idle || gr.Phase("b") != Armed {
		t.Fatalf("phases a=%s b=%s, want idle/armed", gr.Phase("a"), gr.Phase("b"))
	}
	if key, ok := gr.Armed(); !ok || key != "b" {
		t.Fatalf("Armed = %q/%v, want b", key, ok)
	}

	// The first guard's arm was cleared: its next trigger arms again.
	_, _ = gr.Trigger(ctx, "a", c.action)
	if c.calls.Load() != 0 {
		t.Fatal("re-triggering a disarmed guard must not perform")
	}

	if !gr.Background() {
		t.Fatal("Background should report the armed guard")
	}
	if _, ok := gr.Armed(); ok {
		t.Fatal("Background should disarm every guard")
	}
	if gr.Phase("missing") != Idle {
		t.Fatal("unknown keys are idle")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a:armed", "a:idle", "b:armed", "b:idle", "a:armed", "a:idle"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestGroup_RemoveForgetsGuard(t *testing.T) {
	gr := NewGroup(Options{Timeout: time.Minute})
	first := gr.Guard("a")
	_, _ = first.Trigger(context.Background(), func(context.Context) error { return nil })
	gr.Remove("a")

	if first.Phase() != Idle {
		t.Fatal("Remove should disarm")
	}
	if gr.Guard("a") == first {
		t.Fatal("Remove should forget the guard")
	}
}
