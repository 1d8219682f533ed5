// Package state enforces the allowed transitions of a lifecycle, such as a
// client's login progress or the server's run status.
//
// Both lifecycles in this module only move forward, so besides the plain
// edge table the package offers NewForward, which rejects any table with a
// backward edge, and Reached for "at this step or later" checks.
package state

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is wrapped by every rejected transition.
var ErrInvalidTransition = errors.New("invalid state transition")

type State interface {
	comparable
	fmt.Stringer
}

// Ordered is a state whose numeric value is its position in the lifecycle.
type Ordered interface {
	State
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Transition is one allowed edge.
type Transition[S State] struct {
	From S
	To   S
	Name string // Used in logs.
}

// AnyTo returns an edge named name from every state in from to to.
func AnyTo[S State](to S, name string, from ...S) []Transition[S] {
	out := make([]Transition[S], 0, len(from))
	for _, f := range from {
		out = append(out, Transition[S]{From: f, To: to, Name: name})
	}
	return out
}

// Machine holds the current state and rejects edges not in its table.
type Machine[S State] struct {
	mu      sync.RWMutex
	current S

	// next maps a state to the states reachable from it and the edge name.
	next     map[S]map[S]string
	onChange func(from, to S, name string)
}

// New creates a machine at initial. on, if set, runs under the machine
// lock after every accepted transition.
func New[S State](initial S, transitions []Transition[S], on func(from, to S, name string)) *Machine[S] {
	next := make(map[S]map[S]string)
	for _, t := range transitions {
		out := next[t.From]
		if out == nil {
			out = make(map[S]string)
			next[t.From] = out
		}
		out[t.To] = t.Name
	}
	return &Machine[S]{current: initial, next: next, onChange: on}
}

// NewForward is New for a lifecycle that never moves back. It panics if an
// edge does not lead to a later state, since the table is a constant of the
// caller.
func NewForward[S Ordered](initial S, transitions []Transition[S], on func(from, to S, name string)) *Machine[S] {
	if err := CheckForward(transitions); err != nil {
		panic(err)
	}
	return New(initial, transitions, on)
}

// CheckForward returns an error naming the first edge that does not move to
// a later state.
func CheckForward[S Ordered](transitions []Transition[S]) error {
	for _, t := range transitions {
		if t.To <= t.From {
			return fmt.Errorf("state: edge %q %s -> %s does not move forward", t.Name, t.From, t.To)
		}
	}
	return nil
}

// Reached reports whether m is at s or any later state.
func Reached[S Ordered](m *Machine[S], s S) bool {
	return m.Current() >= s
}

// CanTransitionTo reports whether to is reachable from the current state.
func (m *Machine[S]) CanTransitionTo(to S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.next[m.current][to]
	return ok
}

// TransitionTo moves to to, or returns an error wrapping
// ErrInvalidTransition.
func (m *Machine[S]) TransitionTo(to S) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.current
	name, ok := m.next[from][to]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.current = to
	if m.onChange != nil {
		m.onChange(from, to, name)
	}
	return nil
}

// MustTransitionTo is TransitionTo for edges whose rejection is a bug.
func (m *Machine[S]) MustTransitionTo(to S) {
	if err := m.TransitionTo(to); err != nil {
		panic(err)
	}
}

// Current returns the current state.
func (m *Machine[S]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}
