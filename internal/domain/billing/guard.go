package billing

import (
	"context"
	"errors"
)

// ErrGuardBusy is returned by a RefundGuard that gave up waiting for the
// key. Nothing was written; the refund can be retried.
var ErrGuardBusy = errors.New("refund guard busy")

// RefundGuard serializes the net-paid check and the ledger insert of refunds
// against the same scope. fn runs while the guard for the key is held.
type RefundGuard interface {
	Guard(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// NoopRefundGuard runs fn directly. Two concurrent refunds on one scope can
// both pass the net-paid check; the next propagation reflects both entries.
type NoopRefundGuard struct{}

// Guard runs fn without any exclusion
func (NoopRefundGuard) Guard(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// GuardKey returns the key refunds on a scope are serialized by.
// Order-scoped refunds share one key across all invoices of the order.
func (s Scope) GuardKey() string {
	if s.OrderID != nil {
		return "order:" + s.OrderID.String()
	}
	if s.InvoiceID != nil {
		return "invoice:" + s.InvoiceID.String()
	}
	return ""
}
