package guard

import (
	"context"
	"sync"
)

// Group holds the guards of one list. At most one of them is armed: arming
// a guard disarms the rest.
type Group struct {
	opts Options

	mu       sync.Mutex
	guards   map[string]*Guard
	onChange func(key string, p Phase)
}

// NewGroup returns an empty group whose guards share opts.
func NewGroup(opts Options) *Group {
	return &Group{opts: opts, guards: make(map[string]*Guard)}
}

// OnChange registers fn for phase changes of every guard in the group,
// current and future.
func (gr *Group) OnChange(fn func(key string, p Phase)) {
	gr.mu.Lock()
	gr.onChange = fn
	guards := make([]*Guard, 0, len(gr.guards))
	for _, g := range gr.guards {
		guards = append(guards, g)
	}
	gr.mu.Unlock()
	for _, g := range guards {
		gr.bind(g, fn)
	}
}

// Guard returns the guard for key, creating it on first use.
func (gr *Group) Guard(key string) *Guard {
	gr.mu.Lock()
	g, ok := gr.guards[key]
	if !ok {
		g = newGuard(key, gr.opts, gr)
		gr.guards[key] = g
	}
	fn := gr.onChange
	gr.mu.Unlock()
	if !ok {
		gr.bind(g, fn)
	}
	return g
}

// Trigger triggers the guard for key.
func (gr *Group) Trigger(ctx context.Context, key string, action Action) (Outcome, error) {
	return gr.Guard(key).Trigger(ctx, action)
}

// Phase returns the phase of key's guard; keys without a guard are idle.
func (gr *Group) Phase(key string) Phase {
	gr.mu.Lock()
	g, ok := gr.guards[key]
	gr.mu.Unlock()
	if !ok {
		return Idle
	}
	return g.Phase()
}

// Armed returns the key of the armed guard, if any.
func (gr *Group) Armed() (string, bool) {
	for _, g := range gr.snapshot() {
		if g.Phase() == Armed {
			return g.key, true
		}
	}
	return "", false
}

// Background disarms every guard and reports whether any was armed.
func (gr *Group) Background() bool {
	disarmed := false
	for _, g := range gr.snapshot() {
		if g.Disarm() {
			disarmed = true
		}
	}
	return disarmed
}

// Remove disarms and forgets key's guard, typically after its entity was
// deleted.
func (gr *Group) Remove(key string) {
	gr.mu.Lock()
	g := gr.guards[key]
	delete(gr.guards, key)
	gr.mu.Unlock()
	if g != nil {
		g.Disarm()
	}
}

func (gr *Group) armed(armed *Guard) {
	for _, g := range gr.snapshot() {
		if g != armed {
			g.Disarm()
		}
	}
}

func (gr *Group) snapshot() []*Guard {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	out := make([]*Guard, 0, len(gr.guards))
	for _, g := range gr.guards {
		out = append(out, g)
	}
	return out
}

func (gr *Group) bind(g *Guard, fn func(string, Phase)) {
	if fn == nil {
		g.OnChange(nil)
		return
	}
	key := g.key
	g.OnChange(func(p Phase) { fn(key, p) })
}
