package testkit

import "sync"

// contextStore holds the harness for one class scope, so that it can be handed from the
// BeforeAll callback to the parameter resolver and to AfterAll. Each scope owns its own
// store; there is nothing global to leak between classes running in parallel.
type contextStore[H Harness] struct {
	harness H
	bound   bool
	lock    sync.RWMutex
}

func (s *contextStore[H]) put(h H) {
	s.lock.Lock()
	s.harness = h
	s.bound = true
	s.lock.Unlock()
}

func (s *contextStore[H]) get() (H, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.harness, s.bound
}

// remove drops the stored reference and returns it, so that a stopped harness is not kept
// alive by the scope.
func (s *contextStore[H]) remove() (H, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	h, ok := s.harness, s.bound
	var zero H
	s.harness = zero
	s.bound = false
	return h, ok
}
