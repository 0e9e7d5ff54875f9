package harness

import (
	"sort"
	"sync"
)

// MessageSortingQueue delivers messages on C in the order of their counters, starting at 1.
// The test service may send callbacks concurrently, so they can arrive out of order; a message
// whose predecessors have not yet arrived is held until they do.
type MessageSortingQueue struct {
	C           chan []byte
	done        chan struct{}
	doneOnce    sync.Once
	lastCounter int
	deferred    []deferredMessage
	closed      bool
	lock        sync.Mutex
}

type deferredMessage struct {
	counter int
	message []byte
}

// NewMessageSortingQueue creates a MessageSortingQueue whose channel has the given buffer size.
func NewMessageSortingQueue(channelSize int) *MessageSortingQueue {
	return &MessageSortingQueue{C: make(chan []byte, channelSize), done: make(chan struct{})}
}

// Accept adds a message with the given counter. Messages with a counter that was already
// delivered are dropped. If C is full, Accept waits for the reader or for Close.
func (q *MessageSortingQueue) Accept(counter int, message []byte) {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.closed || counter <= q.lastCounter {
		return
	}
	if counter > q.lastCounter+1 {
		q.deferred = append(q.deferred, deferredMessage{counter: counter, message: message})
		sort.Slice(q.deferred, func(i, j int) bool { return q.deferred[i].counter < q.deferred[j].counter })
		return
	}
	q.lastCounter = counter
	if !q.send(message) {
		return
	}
	for len(q.deferred) > 0 {
		next := q.deferred[0]
		if next.counter != q.lastCounter+1 {
			break
		}
		q.deferred = q.deferred[1:]
		q.lastCounter++
		if !q.send(next.message) {
			return
		}
	}
}

func (q *MessageSortingQueue) send(message []byte) bool {
	select {
	case q.C <- message:
		return true
	case <-q.done:
		return false
	}
}

// Deferred returns the messages that are waiting for an earlier counter.
func (q *MessageSortingQueue) Deferred() [][]byte {
	q.lock.Lock()
	ret := make([][]byte, 0, len(q.deferred))
	for _, d := range q.deferred {
		ret = append(ret, d.message)
	}
	q.lock.Unlock()
	return ret
}

// Close closes the channel. Messages accepted afterward are discarded, and so is anything
// that Accept is still waiting to deliver.
func (q *MessageSortingQueue) Close() {
	q.doneOnce.Do(func() { close(q.done) })
	q.lock.Lock()
	defer q.lock.Unlock()
	if !q.closed {
		q.closed = true
		close(q.C)
	}
}
