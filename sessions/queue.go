package sessions

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// Queue is an unbounded FIFO of outbound messages for a single observer.  The
// fan-out side never blocks on it; the transport draining it with Next is
// responsible for any back-pressure.
type Queue struct {
	// mutex covers all of the fields below
	m      sync.Mutex
	items  *queue.Queue
	closed bool

	// ready holds at most one wakeup for a blocked Next
	ready chan struct{}
}

func newQueue() *Queue {
	return &Queue{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

func (q *Queue) push(msg []byte) error {
	q.m.Lock()
	if q.closed {
		q.m.Unlock()
		return ErrQueueClosed
	}
	q.items.Add(msg)
	q.m.Unlock()
	q.wake()
	return nil
}

func (q *Queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Next returns the oldest pending message, blocking until one is available.
// Messages pushed before Close are still returned; once the queue is closed and
// drained Next returns ErrQueueClosed.
func (q *Queue) Next(ctx context.Context) ([]byte, error) {
	for {
		q.m.Lock()
		if q.items.Length() > 0 {
			msg := q.items.Remove().([]byte)
			q.m.Unlock()
			return msg, nil
		}
		closed := q.closed
		q.m.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.m.Lock()
	defer q.m.Unlock()
	return q.items.Length()
}

// Close stops the queue from accepting messages.  It is idempotent.
func (q *Queue) Close() {
	q.m.Lock()
	q.closed = true
	q.m.Unlock()
	q.wake()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.m.Lock()
	defer q.m.Unlock()
	return q.closed
}
