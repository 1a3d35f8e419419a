package client

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// QueuedAction is an outbound action buffered while no connection is
// available. It is owned exclusively by the Queue from enqueue until
// flush or teardown.
type QueuedAction struct {
	Type       string
	Payload    json.RawMessage
	EnqueuedAt time.Time
}

// Queue is the ordered buffer of not-yet-sent actions. It is
// unbounded: queuing indefinitely while offline is the accepted
// tradeoff, with a high-water warning so runaway growth is visible.
type Queue struct {
	mu        sync.Mutex
	items     []QueuedAction
	highWater int
	logger    *slog.Logger
}

// NewQueue creates an empty queue. highWater of 0 disables the growth
// warning.
func NewQueue(logger *slog.Logger, highWater int) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{highWater: highWater, logger: logger}
}

// Enqueue appends an action. There is no capacity bound.
func (q *Queue) Enqueue(a QueuedAction) {
	q.mu.Lock()
	q.items = append(q.items, a)
	n := len(q.items)
	q.mu.Unlock()

	if q.highWater > 0 && n == q.highWater {
		q.logger.Warn("outbound queue reached high-water mark", "depth", n)
	}
}

// Len returns the number of buffered actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush transmits every buffered action through send, in enqueue
// order, and clears the queue. If send fails the failed action and
// everything behind it stay buffered, preserving order for the next
// flush. Returns the number of actions sent.
func (q *Queue) Flush(send func(QueuedAction) error) (int, error) {
	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	for i, a := range pending {
		if err := send(a); err != nil {
			q.mu.Lock()
			// Anything enqueued during the flush goes behind the
			// unsent remainder.
			q.items = append(pending[i:len(pending):len(pending)], q.items...)
			q.mu.Unlock()
			return i, err
		}
	}
	return len(pending), nil
}

// Drain discards and returns all buffered actions. Used at teardown.
func (q *Queue) Drain() []QueuedAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
