package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ordersync/backend/internal/domain/sync"
)

// ErrEmpty indicates the queue holds no ready message.
var ErrEmpty = errors.New("queue: empty")

// Message is one order submission task.
type Message struct {
	ID      uuid.UUID    `json:"id"`
	OrderID string       `json:"order_id"`
	StoreID int64        `json:"store_id"`
	Variant sync.Variant `json:"variant"`
	// RawOrder carries the source order body when the task originated from
	// a webhook delivery. Poll-sweep tasks leave it empty and the worker
	// fetches the order itself.
	RawOrder   json.RawMessage `json:"raw_order,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewMessage creates a submission task for an order.
func NewMessage(orderID string, storeID int64, variant sync.Variant, rawOrder json.RawMessage) *Message {
	return &Message{
		ID:         uuid.New(),
		OrderID:    orderID,
		StoreID:    storeID,
		Variant:    variant,
		RawOrder:   rawOrder,
		EnqueuedAt: time.Now(),
	}
}

// Queue is a work queue of submission tasks with delayed redelivery.
type Queue interface {
	// Publish enqueues a message for immediate delivery.
	Publish(ctx context.Context, msg *Message) error

	// PublishDelayed enqueues a message that becomes ready after the delay.
	PublishDelayed(ctx context.Context, msg *Message, delay time.Duration) error

	// Dequeue pops the next ready message, or returns ErrEmpty.
	Dequeue(ctx context.Context) (*Message, error)
}
