package websocket

import (
	"sync"

	"liveclass/pkg/types"
)

// sendQueue is the bounded outbound queue owned by each connection. Pushes
// never block: when the queue is full the oldest non-essential envelope
// (anything except JOIN/LEAVE/SIGNAL) is dropped to make room, and if the
// queue is still full the push fails with types.ErrQueueOverflow so the
// caller can apply the slow-consumer policy. Backpressure is absorbed here,
// never propagated to the publisher.
type sendQueue struct {
	mu       sync.Mutex
	items    []*types.Envelope
	capacity int
	closed   bool
	dropped  uint64

	// notify wakes the single writer goroutine; capacity 1 so repeated
	// pushes coalesce into one wakeup.
	notify chan struct{}
}

func newSendQueue(capacity int) *sendQueue {
	return &sendQueue{
		items:    make([]*types.Envelope, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push appends an envelope, applying the overflow drop policy.
func (q *sendQueue) push(env *types.Envelope) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrConnectionClosed
	}

	if len(q.items) >= q.capacity {
		if !q.dropOldestNonEssentialLocked() {
			q.mu.Unlock()
			return types.ErrQueueOverflow
		}
	}

	q.items = append(q.items, env)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// dropOldestNonEssentialLocked removes the first queued envelope whose kind
// is droppable. Returns false when every queued envelope is essential.
func (q *sendQueue) dropOldestNonEssentialLocked() bool {
	for i, item := range q.items {
		if !types.IsEssentialKind(item.Kind) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.dropped++
			return true
		}
	}
	return false
}

// popAll drains the queue, preserving order.
func (q *sendQueue) popAll() []*types.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	batch := q.items
	q.items = make([]*types.Envelope, 0, q.capacity)
	return batch
}

// close rejects further pushes. Queued envelopes are abandoned; an in-flight
// publish to a closing connection is dropped, never retried.
func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
}

// droppedCount returns how many envelopes were discarded by the overflow
// policy, for logging.
func (q *sendQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
