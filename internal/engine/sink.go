package engine

import "sync"

// Sink receives a session's ordered event stream: optionally a started
// event, zero or more chunks, and exactly one terminal event. Deliver is
// always called from a single goroutine dedicated to the sink, never from
// a pump goroutine, so implementations may hand events to UI state without
// further locking as long as they do not block forever.
type Sink interface {
	Deliver(Event)
}

// sinkQueue decouples event production from sink delivery. Pushes never
// block the pumps; a dedicated goroutine drains the queue in order. Close
// lets the drainer finish any pending events before it exits.
type sinkQueue struct {
	sink Sink

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool
}

func newSinkQueue(sink Sink) *sinkQueue {
	q := &sinkQueue{sink: sink}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

func (q *sinkQueue) push(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.pending = append(q.pending, ev)
	q.cond.Signal()
}

func (q *sinkQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Signal()
}

func (q *sinkQueue) run() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, ev := range batch {
			q.sink.Deliver(ev)
		}
	}
}
