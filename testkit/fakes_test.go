package testkit

import (
	"fmt"
	"sync"
)

// eventLog records lifecycle calls in the order they happen.
type eventLog struct {
	events []string
	lock   sync.Mutex
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.lock.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.lock.Unlock()
}

func (l *eventLog) all() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(event string) int {
	n := 0
	for _, e := range l.all() {
		if e == event {
			n++
		}
	}
	return n
}

type fakeHarness struct {
	descriptor string
	log        *eventLog
	startErr   error
	stopErr    error
}

func (h *fakeHarness) Start() error {
	h.log.add("start %s", h.descriptor)
	return h.startErr
}

func (h *fakeHarness) Stop() error {
	h.log.add("stop %s", h.descriptor)
	return h.stopErr
}

type fakeFactory struct {
	log          *eventLog
	constructErr error
	startErr     error
	stopErr      error
	built        []*fakeHarness
	lock         sync.Mutex
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{log: &eventLog{}}
}

func (f *fakeFactory) construct(descriptor string) (*fakeHarness, error) {
	f.log.add("construct %s", descriptor)
	if f.constructErr != nil {
		return nil, f.constructErr
	}
	h := &fakeHarness{descriptor: descriptor, log: f.log, startErr: f.startErr, stopErr: f.stopErr}
	f.lock.Lock()
	f.built = append(f.built, h)
	f.lock.Unlock()
	return h, nil
}

func (f *fakeFactory) harnesses() []*fakeHarness {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]*fakeHarness(nil), f.built...)
}
