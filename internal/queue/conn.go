// Package queue implements a durable work queue with explicit acknowledgement
// on top of Redis lists.
//
// Published messages wait on a ready list. Receive atomically moves one
// message onto a processing list owned by the consumer; Ack removes it from
// there and Nack moves it back to the ready list. A consumer that dies with
// unacknowledged deliveries leaves them on its processing list, and Recover
// hands them back on the next start.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("queue connection is not open")

// Conn owns the Redis client shared by every queue opened from it. It is
// created explicitly and passed to whoever needs a queue.
type Conn struct {
	url string
	log *zap.Logger

	// MaxConnectWait bounds how long Open keeps retrying the first ping.
	MaxConnectWait time.Duration

	mu     sync.Mutex
	client *redis.Client
}

func NewConn(url string, log *zap.Logger) *Conn {
	return &Conn{url: url, log: log, MaxConnectWait: 30 * time.Second}
}

// Open connects to Redis, retrying the initial ping with exponential
// backoff. Calling Open on an open connection is a no-op.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	opts, err := redis.ParseURL(c.url)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = c.MaxConnectWait

	ping := func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			c.log.Warn("redis ping failed", zap.String("addr", opts.Addr), zap.Error(err))
			return err
		}
		return nil
	}

	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis: %w", err)
	}

	c.log.Info("queue connection established", zap.String("addr", opts.Addr))
	c.client = client
	return nil
}

// Close releases the client. Queues opened from this connection stop
// working afterwards.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.log.Info("queue connection closed")
	return err
}

// Ping checks the open connection. It reports ErrClosed before Open.
func (c *Conn) Ping(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil {
		return ErrClosed
	}
	return client.Ping(ctx).Err()
}

// Queue opens the named queue. consumer identifies the processing list this
// process owns; it must be stable across restarts for Recover to work.
func (c *Conn) Queue(prefix, name, consumer string, pollTimeout time.Duration) (*Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, ErrClosed
	}
	return newQueue(c.client, prefix, name, consumer, pollTimeout), nil
}
