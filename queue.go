package framesock

import "sync"

// readyQueue hands connections between the acceptor and the workers.
// A connection is in the queue or owned by exactly one worker, never both.
type readyQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Conn
	head   int
	closed bool
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends c and wakes one waiting worker. It reports false once the
// queue is closed.
func (q *readyQueue) push(c *Conn) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, c)
	q.cond.Signal()
	return true
}

// pop blocks until a connection is available or the queue is closed.
func (q *readyQueue) pop() (*Conn, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}

	c := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return c, true
}

func (q *readyQueue) len() int {
	return len(q.items) - q.head
}

// Len returns the number of queued connections.
func (q *readyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

// close wakes all waiters and returns the connections still queued.
func (q *readyQueue) close() []*Conn {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	rest := append([]*Conn(nil), q.items[q.head:]...)
	q.items = nil
	q.head = 0
	q.cond.Broadcast()
	return rest
}
