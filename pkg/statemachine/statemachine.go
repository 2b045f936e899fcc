package statemachine

import "sync"

// Table is an immutable-after-setup transition table for string-like states
// and events. It answers "may an entity in state S receive event E, and
// where does it go" without holding any entity state itself, so one table
// can validate transitions for many persisted records.
type Table[S ~string, E ~string] struct {
	mu          sync.RWMutex
	transitions map[S]map[E]S
	terminal    map[S]struct{}
}

// New returns an empty table.
func New[S ~string, E ~string]() *Table[S, E] {
	return &Table[S, E]{
		transitions: make(map[S]map[E]S),
		terminal:    make(map[S]struct{}),
	}
}

// Allow registers event moving from every state in from to state to.
func (t *Table[S, E]) Allow(event E, to S, from ...S) *Table[S, E] {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range from {
		if t.transitions[f] == nil {
			t.transitions[f] = make(map[E]S)
		}
		t.transitions[f][event] = to
	}
	return t
}

// Terminal marks states that accept no further events.
func (t *Table[S, E]) Terminal(states ...S) *Table[S, E] {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range states {
		t.terminal[s] = struct{}{}
	}
	return t
}

// Next returns the target state for event fired in from.
func (t *Table[S, E]) Next(from S, event E) (S, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.terminal[from]; ok {
		return from, NewErrNoTransitionAvailable(string(from), string(event))
	}
	to, ok := t.transitions[from][event]
	if !ok {
		return from, NewErrNoTransitionAvailable(string(from), string(event))
	}
	return to, nil
}

// Can reports whether event is accepted in from.
func (t *Table[S, E]) Can(from S, event E) bool {
	_, err := t.Next(from, event)
	return err == nil
}

// Sources lists the states that accept event. The order is unspecified.
func (t *Table[S, E]) Sources(event E) []S {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []S
	for from, events := range t.transitions {
		if _, ok := events[event]; ok {
			out = append(out, from)
		}
	}
	return out
}

// IsTerminal reports whether s was marked terminal.
func (t *Table[S, E]) IsTerminal(s S) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.terminal[s]
	return ok
}
