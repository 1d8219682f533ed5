package state

import (
	"errors"
	"sync"
	"testing"
)

type phase int

const (
	phaseIdle phase = iota
	phaseDialing
	phaseOpen
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseDialing:
		return "dialing"
	case phaseOpen:
		return "open"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func phaseTable() []Transition[phase] {
	t := []Transition[phase]{
		{From: phaseIdle, To: phaseDialing, Name: "dial"},
		{From: phaseDialing, To: phaseOpen, Name: "open"},
	}
	return append(t, AnyTo(phaseClosed, "close", phaseIdle, phaseDialing, phaseOpen)...)
}

func TestMachine(t *testing.T) {
	tests := []struct {
		name    string
		initial phase
		to      phase
		wantErr bool
	}{
		{"idle -> dialing", phaseIdle, phaseDialing, false},
		{"dialing -> open", phaseDialing, phaseOpen, false},
		{"open -> closed", phaseOpen, phaseClosed, false},
		{"idle -> closed", phaseIdle, phaseClosed, false},
		{"idle -> open skips dialing", phaseIdle, phaseOpen, true},
		{"closed -> idle goes backward", phaseClosed, phaseIdle, true},
		{"closed -> closed", phaseClosed, phaseClosed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.initial, phaseTable(), nil)
			if got := m.CanTransitionTo(tt.to); got == tt.wantErr {
				t.Errorf("CanTransitionTo = %v", got)
			}
			err := m.TransitionTo(tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				if m.Current() != tt.initial {
					t.Fatalf("state moved to %v on rejected transition", m.Current())
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if m.Current() != tt.to {
				t.Fatalf("Current = %v, want %v", m.Current(), tt.to)
			}
		})
	}
}

func TestMachineOnChange(t *testing.T) {
	var got []string
	m := New(phaseIdle, phaseTable(), func(from, to phase, name string) {
		got = append(got, from.String()+">"+to.String()+":"+name)
	})
	m.MustTransitionTo(phaseDialing)
	m.MustTransitionTo(phaseOpen)
	_ = m.TransitionTo(phaseIdle)
	m.MustTransitionTo(phaseClosed)

	want := []string{"idle>dialing:dial", "dialing>open:open", "open>closed:close"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMustTransitionToPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New(phaseClosed, phaseTable(), nil).MustTransitionTo(phaseOpen)
}

func TestMachineConcurrentClose(t *testing.T) {
	m := New(phaseOpen, phaseTable(), nil)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.TransitionTo(phaseClosed) == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if won != 1 {
		t.Fatalf("%d goroutines closed the machine, want 1", won)
	}
}

func TestCheckForward(t *testing.T) {
	if err := CheckForward(phaseTable()); err != nil {
		t.Fatalf("forward table rejected: %v", err)
	}
	back := append(phaseTable(), Transition[phase]{From: phaseClosed, To: phaseIdle, Name: "reopen"})
	if err := CheckForward(back); err == nil {
		t.Fatal("backward edge accepted")
	}
	self := []Transition[phase]{{From: phaseOpen, To: phaseOpen, Name: "stay"}}
	if err := CheckForward(self); err == nil {
		t.Fatal("self edge accepted")
	}
}

func TestNewForwardPanicsOnBackwardEdge(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewForward(phaseIdle, []Transition[phase]{{From: phaseOpen, To: phaseDialing, Name: "redial"}}, nil)
}

func TestReached(t *testing.T) {
	m := NewForward(phaseIdle, phaseTable(), nil)
	if Reached(m, phaseOpen) {
		t.Fatal("idle reported as open")
	}
	m.MustTransitionTo(phaseDialing)
	m.MustTransitionTo(phaseOpen)
	if !Reached(m, phaseOpen) || !Reached(m, phaseDialing) {
		t.Fatal("open not reported as reached")
	}
	if Reached(m, phaseClosed) {
		t.Fatal("open reported as closed")
	}
}
