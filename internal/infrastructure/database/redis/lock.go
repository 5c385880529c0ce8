package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Locker hands out single-owner mutexes keyed by name. A held lock expires
// after its TTL so a crashed owner cannot block a contract forever.
type Locker struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	retryDelay time.Duration
	retryCount int
	newToken   func() string
}

type LockOption func(*Locker)

// WithRetry makes Acquire poll count times, delay apart, before giving up.
func WithRetry(count int, delay time.Duration) LockOption {
	return func(l *Locker) {
		l.retryCount = count
		l.retryDelay = delay
	}
}

// WithLockPrefix overrides the key prefix.
func WithLockPrefix(prefix string) LockOption {
	return func(l *Locker) { l.prefix = prefix }
}

// NewLocker builds a Locker. By default Acquire tries once.
func NewLocker(client *Client, log logging.Logger, opts ...LockOption) *Locker {
	if log == nil {
		log = logging.NewNopLogger()
	}
	l := &Locker{
		client:     client,
		logger:     log.Named("lock"),
		prefix:     DefaultPrefix + "lock:",
		retryDelay: 100 * time.Millisecond,
		retryCount: 1,
		newToken:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.retryCount < 1 {
		l.retryCount = 1
	}
	return l
}

// Acquire takes the named lock and returns its release function.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := l.prefix + name
	token := l.newToken()

	for i := 0; i < l.retryCount; i++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
		}
		if ok {
			return func(ctx context.Context) error { return l.release(ctx, key, token) }, nil
		}
		if i == l.retryCount-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
	l.logger.Debug("lock busy", logging.String("key", key))
	return nil, ErrLockNotAcquired.WithDetail(name)
}

func (l *Locker) release(ctx context.Context, key, token string) error {
	res, err := unlockScript.Run(ctx, l.client.Underlying(), []string{key}, token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if res == 0 {
		return ErrLockNotHeld.WithDetail(key)
	}
	return nil
}
