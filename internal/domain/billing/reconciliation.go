package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerSummary is the money picture of one scope, derived from the ledger
type LedgerSummary struct {
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
	NetPaid       decimal.Decimal `json:"net_paid"`
	Entries       int             `json:"entries"`
}

// HasActivity reports whether any money ever flowed through the scope
func (s LedgerSummary) HasActivity() bool {
	return s.TotalPaid.IsPositive() || s.TotalRefunded.IsPositive()
}

// Summarize folds ledger entries into totals. Completed entries add to
// TotalPaid, refunded entries add to TotalRefunded, everything else is
// ignored. NetPaid is floored at zero.
func Summarize(entries []Payment) LedgerSummary {
	summary := LedgerSummary{
		TotalPaid:     decimal.Zero,
		TotalRefunded: decimal.Zero,
		NetPaid:       decimal.Zero,
	}
	for i := range entries {
		switch entries[i].Status {
		case PaymentStatusCompleted:
			summary.TotalPaid = summary.TotalPaid.Add(entries[i].Amount)
		case PaymentStatusRefunded:
			summary.TotalRefunded = summary.TotalRefunded.Add(entries[i].Amount)
		default:
			continue
		}
		summary.Entries++
	}
	summary.NetPaid = decimal.Max(decimal.Zero, summary.TotalPaid.Sub(summary.TotalRefunded))
	return summary
}

// LedgerReader reads reconcilable ledger entries for a scope
type LedgerReader interface {
	FindByOrder(ctx context.Context, orderID uuid.UUID, statuses ...PaymentStatus) ([]Payment, error)
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID, statuses ...PaymentStatus) ([]Payment, error)
}

// ReconciliationService derives net paid figures straight from the ledger.
// Nothing is cached: every call reads the full set of entries again.
type ReconciliationService struct {
	ledger LedgerReader
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(ledger LedgerReader) *ReconciliationService {
	return &ReconciliationService{ledger: ledger}
}

// ComputeNetPaid summarizes the ledger for a scope. A scope naming an order
// is reconciled against the order ledger; otherwise the invoice ledger is used.
func (s *ReconciliationService) ComputeNetPaid(ctx context.Context, scope Scope) (LedgerSummary, error) {
	if err := scope.Validate(); err != nil {
		return LedgerSummary{}, err
	}
	if scope.HasOrder() {
		return s.ComputeNetPaidForOrder(ctx, *scope.OrderID)
	}
	return s.ComputeNetPaidForInvoice(ctx, *scope.InvoiceID)
}

// ComputeNetPaidForOrder summarizes every reconcilable entry of an order
func (s *ReconciliationService) ComputeNetPaidForOrder(ctx context.Context, orderID uuid.UUID) (LedgerSummary, error) {
	entries, err := s.ledger.FindByOrder(ctx, orderID, ReconcilableStatuses()...)
	if err != nil {
		return LedgerSummary{}, fmt.Errorf("read order ledger %s: %w", orderID, err)
	}
	return Summarize(entries), nil
}

// ComputeNetPaidForInvoice summarizes every reconcilable entry of an invoice
func (s *ReconciliationService) ComputeNetPaidForInvoice(ctx context.Context, invoiceID uuid.UUID) (LedgerSummary, error) {
	entries, err := s.ledger.FindByInvoice(ctx, invoiceID, ReconcilableStatuses()...)
	if err != nil {
		return LedgerSummary{}, fmt.Errorf("read invoice ledger %s: %w", invoiceID, err)
	}
	return Summarize(entries), nil
}
