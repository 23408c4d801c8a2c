// Package event carries value updates from the network channels and
// local writers to listener callbacks through a single ordered queue,
// decoupling socket I/O from application processing.
package event

import (
	"sync"
	"time"
)

// Control identifies a queue sentinel that triggers a supervisor
// action instead of a listener notification.
type Control int

const (
	controlNone Control = iota

	// ControlTerminate makes the dispatcher exit its loop.
	ControlTerminate

	// ControlReload asks the supervisor to reload its consumers.
	ControlReload

	// ControlStop asks the supervisor to shut down gracefully.
	ControlStop
)

func (c Control) String() string {
	switch c {
	case ControlTerminate:
		return "terminate"
	case ControlReload:
		return "reload"
	case ControlStop:
		return "stop"
	}
	return "none"
}

// Update is the unit of work flowing through the queue. Cascade=false
// updates store the value only; cascade=true updates additionally
// notify listeners.
type Update struct {
	Path      string
	Value     any
	Cascade   bool
	Timestamp time.Time
}

// Event is either a value update or a control sentinel.
type Event struct {
	Update  *Update
	Control Control
}

// Queue is an unbounded FIFO with a blocking pop. Producers never
// block: the network channels must not stall on a slow consumer, and
// a bounded pipe could deadlock when a listener callback itself
// pushes an update.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an event. Pushing to a closed queue is a no-op.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, e)
	q.cond.Signal()
}

// PushUpdate is shorthand for pushing a value update stamped now.
func (q *Queue) PushUpdate(path string, value any, cascade bool) {
	q.Push(Event{Update: &Update{
		Path:      path,
		Value:     value,
		Cascade:   cascade,
		Timestamp: time.Now(),
	}})
}

// PushControl pushes a control sentinel. Sentinels also serve to
// unblock a Pop so the consumer can exit.
func (q *Queue) PushControl(c Control) {
	q.Push(Event{Control: c})
}

// Pop removes and returns the oldest event, blocking while the queue
// is empty. It returns ok=false once the queue is closed and drained.
func (q *Queue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Event{}, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes blocked consumers. Queued
// events remain poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
