package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Delivery is one received message. Tag identifies it for logs; raw is the
// exact list element, which Ack and Nack need to find it again.
type Delivery struct {
	Tag         string
	Body        []byte
	PublishedAt time.Time

	raw string
}

type envelope struct {
	Tag         string    `json:"tag"`
	Body        []byte    `json:"body"`
	PublishedAt time.Time `json:"publishedAt"`
}

type Queue struct {
	client      redis.Cmdable
	name        string
	consumer    string
	ready       string
	processing  string
	pollTimeout time.Duration
}

func newQueue(client redis.Cmdable, prefix, name, consumer string, pollTimeout time.Duration) *Queue {
	if pollTimeout <= 0 {
		pollTimeout = 2 * time.Second
	}
	ready, processing := keys(prefix, name, consumer)
	return &Queue{
		client:      client,
		name:        name,
		consumer:    consumer,
		ready:       ready,
		processing:  processing,
		pollTimeout: pollTimeout,
	}
}

func keys(prefix, name, consumer string) (ready, processing string) {
	ready = prefix + ":" + name
	processing = ready + ":processing:" + consumer
	return ready, processing
}

func (q *Queue) Name() string { return q.name }

// Publish appends body to the queue and returns the delivery tag assigned
// to it.
func (q *Queue) Publish(ctx context.Context, body []byte) (string, error) {
	raw, tag, err := encode(body, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, q.ready, raw).Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", q.name, err)
	}
	return tag, nil
}

// Receive waits up to the poll timeout for a message. It returns nil, nil
// when nothing arrived in time.
func (q *Queue) Receive(ctx context.Context) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", q.pollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", q.name, err)
	}
	return decode(raw), nil
}

// Ack removes the delivery for good.
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.processing, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", d.Tag, err)
	}
	return nil
}

// Nack puts the delivery back at the head of the queue so it is received
// again.
func (q *Queue) Nack(ctx context.Context, d *Delivery) error {
	_, err := q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processing, 1, d.raw)
		p.RPush(ctx, q.ready, d.raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("nack %s: %w", d.Tag, err)
	}
	return nil
}

// Recover moves deliveries left on this consumer's processing list back to
// the receiving end of the ready list and reports how many were moved. They
// are received again in their original order, ahead of anything published
// since.
//
// Recover must only run while this process holds the consumer's Lease;
// otherwise it would requeue another live process's in-flight deliveries.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		// The processing list holds the newest delivery on the left. Moving
		// newest first onto the right of ready leaves the oldest rightmost.
		err := q.client.LMove(ctx, q.processing, q.ready, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover %s: %w", q.name, err)
		}
		moved++
	}
}

// Depth is the number of messages waiting to be received.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.ready).Result()
}

func encode(body []byte, at time.Time) (raw, tag string, err error) {
	tag = uuid.NewString()
	b, err := json.Marshal(envelope{Tag: tag, Body: body, PublishedAt: at})
	if err != nil {
		return "", "", err
	}
	return string(b), tag, nil
}

// decode never fails: an element that is not an envelope becomes a
// delivery with no body, which the consumer acknowledges and drops.
func decode(raw string) *Delivery {
	var e envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return &Delivery{raw: raw}
	}
	return &Delivery{Tag: e.Tag, Body: e.Body, PublishedAt: e.PublishedAt, raw: raw}
}
