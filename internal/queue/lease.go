package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrConsumerBusy means another live process holds the consumer name.
	ErrConsumerBusy = errors.New("consumer name is held by another process")

	// ErrLeaseLost means the lease expired and may now belong to someone else.
	ErrLeaseLost = errors.New("consumer lease lost")
)

var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// Lease is exclusive ownership of a consumer's processing list. Two
// processes started with the same consumer name would otherwise share one
// processing list, and each one's Recover would requeue the other's
// in-flight deliveries.
type Lease struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

// Lease claims the processing list for this process for ttl. It fails with
// ErrConsumerBusy while another holder's lease is live.
func (q *Queue) Lease(ctx context.Context, ttl time.Duration) (*Lease, error) {
	host, _ := os.Hostname()
	l := &Lease{
		client: q.client,
		key:    q.processing + ":lease",
		token:  fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString()),
		ttl:    ttl,
	}

	ok, err := q.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lease consumer %s: %w", q.consumer, err)
	}
	if !ok {
		holder, _ := q.client.Get(ctx, l.key).Result()
		return nil, fmt.Errorf("%w: %s is held by %s", ErrConsumerBusy, q.consumer, holder)
	}
	return l, nil
}

// Renew extends the lease by its ttl.
func (l *Lease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release gives the lease up if this process still holds it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Keep renews the lease every third of its ttl until ctx is done. It
// returns ErrLeaseLost as soon as a renewal finds the lease gone; transient
// Redis errors are logged and retried on the next tick.
func (l *Lease) Keep(ctx context.Context, log *zap.Logger) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := l.Renew(ctx)
			if errors.Is(err, ErrLeaseLost) {
				return err
			}
			if err != nil && ctx.Err() == nil {
				log.Warn("lease renewal failed", zap.String("key", l.key), zap.Error(err))
			}
		}
	}
}
