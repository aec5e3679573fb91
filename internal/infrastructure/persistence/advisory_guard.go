package persistence

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/erp/backoffice/internal/domain/billing"
	"gorm.io/gorm"
)

// AdvisoryRefundGuard serializes refunds per scope with a Postgres
// transaction-level advisory lock. The lock is held by the guard's own
// transaction and released when fn returns and the transaction ends.
type AdvisoryRefundGuard struct {
	db *gorm.DB
}

// NewAdvisoryRefundGuard creates a new AdvisoryRefundGuard
func NewAdvisoryRefundGuard(db *gorm.DB) *AdvisoryRefundGuard {
	return &AdvisoryRefundGuard{db: db}
}

// Guard runs fn while holding the advisory lock for key
func (g *AdvisoryRefundGuard) Guard(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", advisoryLockID(key)).Error; err != nil {
			return fmt.Errorf("acquire advisory lock %s: %w", key, err)
		}
		return fn(ctx)
	})
}

// advisoryLockID maps a guard key onto the bigint key space of pg_advisory locks
func advisoryLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("refund:" + key))
	return int64(h.Sum64())
}

// Ensure AdvisoryRefundGuard implements billing.RefundGuard
var _ billing.RefundGuard = (*AdvisoryRefundGuard)(nil)
