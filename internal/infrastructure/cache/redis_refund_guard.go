package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockKeyPrefix   = "billing:refund:lock:"
	defaultLockTTL         = 10 * time.Second
	defaultLockRetryPeriod = 50 * time.Millisecond
)

// ErrGuardBusy is returned when the lock for a scope could not be taken
// before the wait budget ran out
var ErrGuardBusy = billing.ErrGuardBusy

// unlockScript deletes the lock only if it still holds our token, so a lock
// that expired and was taken by another instance is left alone
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRefundGuard serializes refunds per scope across instances with a
// Redis lock (SET NX PX + compare-and-delete).
type RedisRefundGuard struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	retry     time.Duration
	maxWait   time.Duration
	logger    *zap.Logger
}

// RedisRefundGuardOption configures a RedisRefundGuard
type RedisRefundGuardOption func(*RedisRefundGuard)

// WithLockTTL sets how long a lock lives if its holder never releases it
func WithLockTTL(ttl time.Duration) RedisRefundGuardOption {
	return func(g *RedisRefundGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithRetryInterval sets the pause between acquisition attempts
func WithRetryInterval(d time.Duration) RedisRefundGuardOption {
	return func(g *RedisRefundGuard) {
		if d > 0 {
			g.retry = d
		}
	}
}

// WithMaxWait bounds how long Guard waits for a held lock
func WithMaxWait(d time.Duration) RedisRefundGuardOption {
	return func(g *RedisRefundGuard) {
		if d > 0 {
			g.maxWait = d
		}
	}
}

// WithKeyPrefix sets the Redis key prefix of the locks
func WithKeyPrefix(prefix string) RedisRefundGuardOption {
	return func(g *RedisRefundGuard) {
		if prefix != "" {
			g.keyPrefix = prefix
		}
	}
}

// WithGuardLogger sets the logger
func WithGuardLogger(logger *zap.Logger) RedisRefundGuardOption {
	return func(g *RedisRefundGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewRedisRefundGuard connects to Redis and creates a guard
func NewRedisRefundGuard(cfg config.RedisConfig, opts ...RedisRefundGuardOption) (*RedisRefundGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if cfg.LockTTL > 0 {
		opts = append([]RedisRefundGuardOption{WithLockTTL(cfg.LockTTL)}, opts...)
	}
	return NewRedisRefundGuardWithClient(client, opts...), nil
}

// NewRedisRefundGuardWithClient creates a guard on an existing client.
// This is useful for testing or when sharing a client across components.
func NewRedisRefundGuardWithClient(client *redis.Client, opts ...RedisRefundGuardOption) *RedisRefundGuard {
	g := &RedisRefundGuard{
		client:    client,
		keyPrefix: defaultLockKeyPrefix,
		ttl:       defaultLockTTL,
		retry:     defaultLockRetryPeriod,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxWait == 0 {
		g.maxWait = g.ttl
	}
	return g
}

// Guard takes the lock for key, runs fn and releases the lock. Waiting
// stops when ctx is done or after one lock TTL, whichever comes first.
func (g *RedisRefundGuard) Guard(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lockKey := g.keyPrefix + key
	token := uuid.NewString()

	if err := g.lock(ctx, lockKey, token); err != nil {
		return err
	}
	defer g.unlock(lockKey, token)

	return fn(ctx)
}

func (g *RedisRefundGuard) lock(ctx context.Context, lockKey, token string) error {
	deadline := time.Now().Add(g.maxWait)
	for {
		ok, err := g.client.SetNX(ctx, lockKey, token, g.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire refund lock %s: %w", lockKey, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrGuardBusy, lockKey)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.retry):
		}
	}
}

// unlock uses its own context so a cancelled request still frees the lock
func (g *RedisRefundGuard) unlock(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	released, err := unlockScript.Run(ctx, g.client, []string{lockKey}, token).Int()
	switch {
	case err != nil:
		g.logger.Warn("Failed to release refund lock, it expires on its own",
			zap.String("key", lockKey),
			zap.Duration("ttl", g.ttl),
			zap.Error(err))
	case released == 0:
		g.logger.Warn("Refund lock expired before release", zap.String("key", lockKey))
	}
}

// Close closes the Redis client
func (g *RedisRefundGuard) Close() error {
	return g.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (g *RedisRefundGuard) GetClient() *redis.Client {
	return g.client
}

// Ensure RedisRefundGuard implements billing.RefundGuard
var _ billing.RefundGuard = (*RedisRefundGuard)(nil)
