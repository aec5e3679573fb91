package cache

import (
	"fmt"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/infrastructure/config"
	"go.uber.org/zap"
)

// RefundGuardFactory creates the refund guard named by configuration
type RefundGuardFactory struct {
	redisConfig           config.RedisConfig
	databaseGuard         billing.RefundGuard
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// RefundGuardFactoryOption is a functional option for configuring the factory
type RefundGuardFactoryOption func(*RefundGuardFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) RefundGuardFactoryOption {
	return func(f *RefundGuardFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-process guard
// when Redis is unavailable. Default is true (allow fallback).
func WithInMemoryFallback(allow bool) RefundGuardFactoryOption {
	return func(f *RefundGuardFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithDatabaseGuard supplies the guard used for the advisory setting
func WithDatabaseGuard(guard billing.RefundGuard) RefundGuardFactoryOption {
	return func(f *RefundGuardFactory) {
		f.databaseGuard = guard
	}
}

// NewRefundGuardFactory creates a new factory
func NewRefundGuardFactory(cfg config.RedisConfig, opts ...RefundGuardFactoryOption) *RefundGuardFactory {
	f := &RefundGuardFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create returns the guard for kind. The returned close function releases
// whatever connection the guard holds and is never nil.
func (f *RefundGuardFactory) Create(kind string) (billing.RefundGuard, func() error, error) {
	noop := func() error { return nil }

	switch kind {
	case config.RefundGuardNone:
		f.logger.Warn("Refund guard disabled, concurrent refunds on one scope are not serialized")
		return billing.NoopRefundGuard{}, noop, nil
	case config.RefundGuardMemory, "":
		f.logger.Info("Using in-process refund guard")
		return NewLocalRefundGuard(), noop, nil
	case config.RefundGuardAdvisory:
		if f.databaseGuard == nil {
			return nil, noop, fmt.Errorf("refund guard %q needs a database guard", kind)
		}
		f.logger.Info("Using database advisory-lock refund guard")
		return f.databaseGuard, noop, nil
	case config.RefundGuardRedis:
		guard, err := NewRedisRefundGuard(f.redisConfig, WithGuardLogger(f.logger))
		if err == nil {
			f.logger.Info("Using Redis refund guard", zap.String("addr", f.redisConfig.Addr()))
			return guard, guard.Close, nil
		}
		if !f.allowInMemoryFallback {
			return nil, noop, fmt.Errorf("Redis required for refund guard but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-process refund guard. "+
			"Refunds are only serialized within this instance.",
			zap.Error(err),
		)
		return NewLocalRefundGuard(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown refund guard %q", kind)
	}
}
