package dispatch

import (
	"sync"

	"github.com/alfredjeanlab/chattobot/internal/metrics"
	"github.com/alfredjeanlab/chattobot/internal/model"
)

// item is one unit of work for the engine: either a live event or a
// connection-ready marker.
type item struct {
	ready bool
	event model.Event
}

// inbox is an unbounded FIFO. Pushes never block, so the connection's read
// loop is never held up by a slow handler.
type inbox struct {
	mu     sync.Mutex
	items  []item
	notify chan struct{}
	closed bool
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (q *inbox) push(it item) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, it)
	n := len(q.items)
	q.mu.Unlock()
	metrics.InboxDepth.Set(float64(n))

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *inbox) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items[0] = item{}
	q.items = q.items[1:]
	metrics.InboxDepth.Set(float64(len(q.items)))
	return it, true
}

// close stops accepting items and returns how many were left unprocessed.
func (q *inbox) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	n := len(q.items)
	q.items = nil
	metrics.InboxDepth.Set(0)
	return n
}

func (q *inbox) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
