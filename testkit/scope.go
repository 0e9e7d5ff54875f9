package testkit

import (
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle state of a class scope.
type State int

const (
	// Uninitialized means BeforeAll has not completed successfully.
	Uninitialized State = iota
	// Started means the harness is running and available to tests.
	Started
	// Stopped means AfterAll has run. It is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Scope is the window from before the first test of one test class to after the last one.
// It is created by Extension.NewScope and passed to every lifecycle callback for that class.
type Scope[H Harness] struct {
	id        uuid.UUID
	class     interface{}
	className string
	store     contextStore[H]
	state     State
	lock      sync.Mutex

	// held for the whole of BeforeAll or AfterAll, so that transitions do not interleave
	transition sync.Mutex
}

// ID uniquely identifies this scope, for logging.
func (s *Scope[H]) ID() uuid.UUID { return s.id }

// Class returns the test class instance that this scope was created for.
func (s *Scope[H]) Class() interface{} { return s.class }

// ClassName returns the name of the test class's type.
func (s *Scope[H]) ClassName() string { return s.className }

// State returns the current lifecycle state.
func (s *Scope[H]) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

func (s *Scope[H]) setState(state State) {
	s.lock.Lock()
	s.state = state
	s.lock.Unlock()
}

// Harness returns the started harness for this scope. It returns a *ResolutionError if the
// scope is not in the Started state.
func (s *Scope[H]) Harness() (H, error) {
	var zero H
	if state := s.State(); state != Started {
		return zero, &ResolutionError{
			Parameter: Parameter{Type: harnessType[H](), Owner: s.className},
			Reason:    "class scope is " + state.String(),
		}
	}
	h, ok := s.store.get()
	if !ok {
		return zero, &ResolutionError{
			Parameter: Parameter{Type: harnessType[H](), Owner: s.className},
			Reason:    "no testkit is stored for the class scope",
		}
	}
	return h, nil
}
