package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Handler processes one message. A returned error redelivers the message
// after the consumer's redeliver delay.
type Handler func(ctx context.Context, msg *Message) error

// Consumer drains the work queue one message at a time. The fixed consume
// delay between messages keeps pressure off the upstream APIs; dequeue
// failures back off exponentially so a redis outage does not spin the loop.
type Consumer struct {
	queue          Queue
	handler        Handler
	logger         *zap.Logger
	consumeDelay   time.Duration
	redeliverDelay time.Duration

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewConsumer creates a consumer for the queue
func NewConsumer(q Queue, handler Handler, logger *zap.Logger, consumeDelay, redeliverDelay time.Duration) *Consumer {
	return &Consumer{
		queue:          q,
		handler:        handler,
		logger:         logger.Named("queue-consumer"),
		consumeDelay:   consumeDelay,
		redeliverDelay: redeliverDelay,
	}
}

// Start begins draining the queue in the background
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("consumer already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true

	c.wg.Add(1)
	go c.run(runCtx)

	c.logger.Info("consumer started",
		zap.Duration("consume_delay", c.consumeDelay),
		zap.Duration("redeliver_delay", c.redeliverDelay))
	return nil
}

// Stop halts the consumer and waits for the in-flight message to finish
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.started = false
	c.logger.Info("consumer stopped")
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	idleBackoff := backoff.NewExponentialBackOff()
	idleBackoff.InitialInterval = c.consumeDelay
	idleBackoff.MaxInterval = time.Minute
	idleBackoff.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := c.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrEmpty) {
				// quiet queue, ease off
				if !sleep(ctx, idleBackoff.NextBackOff()) {
					return
				}
				continue
			}
			c.logger.Error("dequeue failed", zap.Error(err))
			if !sleep(ctx, idleBackoff.NextBackOff()) {
				return
			}
			continue
		}
		idleBackoff.Reset()

		// fixed pacing between messages
		if !sleep(ctx, c.consumeDelay) {
			// redeliver rather than drop the popped message on shutdown
			c.redeliver(msg)
			return
		}

		if err := c.handler(ctx, msg); err != nil {
			c.logger.Warn("message handling failed, scheduling redelivery",
				zap.String("order_id", msg.OrderID),
				zap.Int64("store_id", msg.StoreID),
				zap.Error(err))
			c.redeliver(msg)
		}
	}
}

func (c *Consumer) redeliver(msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.queue.PublishDelayed(ctx, msg, c.redeliverDelay); err != nil {
		c.logger.Error("redelivery publish failed",
			zap.String("order_id", msg.OrderID),
			zap.Error(err))
	}
}

// sleep waits for d or until the context ends. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
