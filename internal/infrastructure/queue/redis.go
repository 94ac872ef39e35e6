package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	readyKey   = "ordersync:queue:ready"
	delayedKey = "ordersync:queue:delayed"

	// promoteBatch bounds how many due delayed messages one Dequeue call
	// moves to the ready list.
	promoteBatch = 64
)

// RedisQueue is a Queue backed by a redis list plus a sorted set for
// delayed messages
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a queue on an existing redis client
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Publish enqueues a message for immediate delivery
func (q *RedisQueue) Publish(ctx context.Context, msg *Message) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return q.client.LPush(ctx, readyKey, encoded).Err()
}

// PublishDelayed enqueues a message that becomes ready after the delay
func (q *RedisQueue) PublishDelayed(ctx context.Context, msg *Message, delay time.Duration) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return q.client.ZAdd(ctx, delayedKey, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: encoded,
	}).Err()
}

// Dequeue pops the next ready message, promoting due delayed messages first
func (q *RedisQueue) Dequeue(ctx context.Context) (*Message, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	raw, err := q.client.RPop(ctx, readyKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// promoteDue moves delayed messages whose time has come onto the ready list
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		removed, err := q.client.ZRem(ctx, delayedKey, member).Result()
		if err != nil {
			return err
		}
		// another worker promoted it first
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, readyKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Ensure RedisQueue implements Queue
var _ Queue = (*RedisQueue)(nil)
