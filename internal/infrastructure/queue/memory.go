package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue for development and tests
type MemoryQueue struct {
	mu      sync.Mutex
	ready   []*Message
	delayed []delayedMessage
}

type delayedMessage struct {
	msg     *Message
	readyAt time.Time
}

// NewMemoryQueue creates an empty in-process queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Publish enqueues a message for immediate delivery
func (q *MemoryQueue) Publish(_ context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, msg)
	return nil
}

// PublishDelayed enqueues a message that becomes ready after the delay
func (q *MemoryQueue) PublishDelayed(_ context.Context, msg *Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedMessage{msg: msg, readyAt: time.Now().Add(delay)})
	return nil
}

// Dequeue pops the next ready message, promoting due delayed messages first
func (q *MemoryQueue) Dequeue(_ context.Context) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	remaining := q.delayed[:0]
	for _, d := range q.delayed {
		if d.readyAt.After(now) {
			remaining = append(remaining, d)
			continue
		}
		q.ready = append(q.ready, d.msg)
	}
	q.delayed = remaining

	if len(q.ready) == 0 {
		return nil, ErrEmpty
	}
	msg := q.ready[0]
	q.ready = q.ready[1:]
	return msg, nil
}

// Len returns the number of ready and delayed messages
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.delayed)
}

// Ensure MemoryQueue implements Queue
var _ Queue = (*MemoryQueue)(nil)
