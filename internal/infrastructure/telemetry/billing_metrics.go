package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Propagation outcomes
const (
	OutcomeOK      = "ok"
	OutcomeWarned  = "warned"
	OutcomeAborted = "aborted"
)

// BillingMetrics counts ledger writes, propagation runs and notifications.
type BillingMetrics struct {
	paymentsTotal       *Counter
	paymentAmountCents  *Counter
	propagationDuration *Histogram
	propagationWarnings *Counter
	reducedWrites       *Counter
	notificationsTotal  *Counter
}

// NewBillingMetrics creates the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		bm  BillingMetrics
		err error
	)
	if bm.paymentsTotal, err = NewCounter(meter,
		"backoffice_payments_total", "Ledger entries written", "{payments}"); err != nil {
		return nil, err
	}
	if bm.paymentAmountCents, err = NewCounter(meter,
		"backoffice_payment_amount_cents_total", "Absolute amount written to the ledger in cents", "{cents}"); err != nil {
		return nil, err
	}
	if bm.propagationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "backoffice_propagation_duration_seconds",
		Description: "Time spent bringing invoices and orders in line with the ledger",
		Unit:        "s",
		Boundaries:  PropagationDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if bm.propagationWarnings, err = NewCounter(meter,
		"backoffice_propagation_warnings_total", "Projection writes that failed after the ledger write", "{warnings}"); err != nil {
		return nil, err
	}
	if bm.reducedWrites, err = NewCounter(meter,
		"backoffice_reduced_writes_total", "Projection writes retried without optional columns", "{writes}"); err != nil {
		return nil, err
	}
	if bm.notificationsTotal, err = NewCounter(meter,
		"backoffice_notifications_total", "Payment notifications handed to the bus", "{notifications}"); err != nil {
		return nil, err
	}
	return &bm, nil
}

// RecordPayment counts one ledger entry. Refund amounts are counted by
// absolute value under payment_kind=refund.
func (bm *BillingMetrics) RecordPayment(ctx context.Context, method string, refund bool, amount decimal.Decimal) {
	kind := "payment"
	if refund {
		kind = "refund"
	}
	attrs := []attribute.KeyValue{AttrPaymentMethod.String(method), AttrPaymentKind.String(kind)}
	bm.paymentsTotal.Inc(ctx, attrs...)
	bm.paymentAmountCents.Add(ctx, amount.Abs().Shift(2).Round(0).IntPart(), attrs...)
}

// RecordPropagation records one propagation run.
func (bm *BillingMetrics) RecordPropagation(ctx context.Context, elapsed time.Duration, warnings, reduced int, aborted bool) {
	outcome := OutcomeOK
	switch {
	case aborted:
		outcome = OutcomeAborted
	case warnings > 0:
		outcome = OutcomeWarned
	}
	bm.propagationDuration.RecordDuration(ctx, elapsed, AttrOutcome.String(outcome))
	if warnings > 0 {
		bm.propagationWarnings.Add(ctx, int64(warnings))
	}
	if reduced > 0 {
		bm.reducedWrites.Add(ctx, int64(reduced))
	}
}

// RecordNotifications counts published notifications, split by delivery outcome.
func (bm *BillingMetrics) RecordNotifications(ctx context.Context, count int, err error) {
	outcome := "published"
	if err != nil {
		outcome = "failed"
	}
	bm.notificationsTotal.Add(ctx, int64(count), AttrOutcome.String(outcome))
}
