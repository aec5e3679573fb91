package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrPaymentNotFound is returned when a refund names an unknown payment
var ErrPaymentNotFound = shared.NewDomainError("PAYMENT_NOT_FOUND", "Payment not found")

// RecordPaymentCommand carries a received payment
type RecordPaymentCommand struct {
	OrderID         *uuid.UUID
	InvoiceID       *uuid.UUID
	ClientID        uuid.UUID
	Amount          decimal.Decimal
	Method          billing.PaymentMethod
	Details         billing.MethodDetails
	PaymentDate     time.Time
	ReferenceNumber string
	TransactionID   string
	Notes           string
}

// RecordRefundCommand carries money returned. When PaymentID is set the
// refund targets that payment and inherits its scope; otherwise OrderID
// and/or InvoiceID name the scope.
type RecordRefundCommand struct {
	PaymentID       *uuid.UUID
	OrderID         *uuid.UUID
	InvoiceID       *uuid.UUID
	ClientID        uuid.UUID
	Amount          decimal.Decimal
	Method          billing.PaymentMethod
	ReferenceNumber string
	Reason          string
}

// PaymentRecorder is the only writer of ledger facts
type PaymentRecorder struct {
	payments       billing.PaymentRepository
	invoices       billing.InvoiceRepository
	orders         billing.OrderRepository
	reconciliation *billing.ReconciliationService
	guard          billing.RefundGuard
	logger         *zap.Logger
}

// PaymentRecorderConfig holds the collaborators of a PaymentRecorder
type PaymentRecorderConfig struct {
	Payments billing.PaymentRepository
	Invoices billing.InvoiceRepository
	Orders   billing.OrderRepository
	Guard    billing.RefundGuard
	Logger   *zap.Logger
}

// NewPaymentRecorder creates a new PaymentRecorder
func NewPaymentRecorder(cfg PaymentRecorderConfig) *PaymentRecorder {
	guard := cfg.Guard
	if guard == nil {
		guard = billing.NoopRefundGuard{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentRecorder{
		payments:       cfg.Payments,
		invoices:       cfg.Invoices,
		orders:         cfg.Orders,
		reconciliation: billing.NewReconciliationService(cfg.Payments),
		guard:          guard,
		logger:         logger,
	}
}

// Reconciliation returns the reconciliation service reading this recorder's ledger
func (r *PaymentRecorder) Reconciliation() *billing.ReconciliationService {
	return r.reconciliation
}

// RecordPayment validates a payment and appends it to the ledger as completed.
// Nothing but the ledger is written.
func (r *PaymentRecorder) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (*billing.Payment, error) {
	return r.record(ctx, cmd, false)
}

// record appends a payment. resolved skips the existence check for scopes
// the caller has just written itself.
func (r *PaymentRecorder) record(ctx context.Context, cmd RecordPaymentCommand, resolved bool) (*billing.Payment, error) {
	payment, err := billing.NewPayment(billing.NewPaymentInput{
		Scope:           billing.NewScope(cmd.OrderID, cmd.InvoiceID),
		ClientID:        cmd.ClientID,
		Amount:          cmd.Amount,
		Method:          cmd.Method,
		Details:         cmd.Details,
		PaymentDate:     cmd.PaymentDate,
		ReferenceNumber: cmd.ReferenceNumber,
		TransactionID:   cmd.TransactionID,
		Notes:           cmd.Notes,
	})
	if err != nil {
		return nil, err
	}

	if !resolved {
		scope, err := r.resolveScope(ctx, payment.Scope)
		if err != nil {
			return nil, err
		}
		payment.Scope = scope
	}

	if err := r.payments.Create(ctx, payment); err != nil {
		r.logger.Error("Failed to append payment to ledger",
			zap.String("payment_number", payment.PaymentNumber),
			zap.Stringer("scope", payment.Scope),
			zap.Error(err))
		return nil, &billing.PersistenceError{Op: "insert payment", Err: err}
	}

	r.logger.Info("Payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("payment_number", payment.PaymentNumber),
		zap.Stringer("scope", payment.Scope),
		zap.String("amount", payment.Amount.String()),
		zap.String("method", string(payment.Method)))
	return payment, nil
}

// RecordRefund appends a refund entry. Net paid is recomputed from the
// ledger at call time; an amount above it is rejected and nothing is written.
func (r *PaymentRecorder) RecordRefund(ctx context.Context, cmd RecordRefundCommand) (*billing.Payment, error) {
	input := billing.NewRefundInput{
		Scope:           billing.NewScope(cmd.OrderID, cmd.InvoiceID),
		ClientID:        cmd.ClientID,
		Amount:          cmd.Amount,
		Method:          cmd.Method,
		ReferenceNumber: cmd.ReferenceNumber,
		Reason:          cmd.Reason,
	}

	if cmd.PaymentID != nil {
		original, err := r.payments.FindByID(ctx, *cmd.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("load payment %s: %w", *cmd.PaymentID, err)
		}
		if original == nil {
			return nil, ErrPaymentNotFound
		}
		input.Original = original
	}

	refund, err := billing.NewRefund(input)
	if err != nil {
		return nil, err
	}
	if input.Original == nil {
		if refund.Scope, err = r.linkInvoiceOrder(ctx, refund.Scope); err != nil {
			return nil, err
		}
	}

	err = r.guard.Guard(ctx, refund.Scope.GuardKey(), func(ctx context.Context) error {
		summary, err := r.reconciliation.ComputeNetPaid(ctx, refund.Scope)
		if err != nil {
			return err
		}
		if refund.Amount.GreaterThan(summary.NetPaid) {
			return shared.NewDomainError(billing.CodeRefundExceedsNetPaid,
				fmt.Sprintf("Refund amount %s exceeds net paid %s", refund.Amount.StringFixed(2), summary.NetPaid.StringFixed(2)))
		}
		if err := r.payments.Create(ctx, refund); err != nil {
			return &billing.PersistenceError{Op: "insert refund", Err: err}
		}
		return nil
	})
	if err != nil {
		if billing.IsValidationError(err) {
			r.logger.Warn("Refund rejected",
				zap.Stringer("scope", refund.Scope),
				zap.String("amount", refund.Amount.String()),
				zap.Error(err))
		} else {
			r.logger.Error("Failed to record refund",
				zap.Stringer("scope", refund.Scope),
				zap.Error(err))
		}
		return nil, err
	}

	r.logger.Info("Refund recorded",
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_number", refund.PaymentNumber),
		zap.Stringer("scope", refund.Scope),
		zap.String("amount", refund.Amount.String()))
	return refund, nil
}

// resolveScope checks that every id in the scope names an existing record.
// An invoice linked to an order brings the order into the scope, so the
// entry lands in the ledger both projections reconcile against.
func (r *PaymentRecorder) resolveScope(ctx context.Context, scope billing.Scope) (billing.Scope, error) {
	if scope.OrderID != nil {
		order, err := r.orders.FindByID(ctx, *scope.OrderID)
		if err != nil {
			return scope, fmt.Errorf("load order %s: %w", *scope.OrderID, err)
		}
		if order == nil {
			return scope, shared.NewDomainError(billing.CodeScopeNotFound,
				fmt.Sprintf("Order %s does not exist", *scope.OrderID))
		}
	}
	if scope.InvoiceID != nil {
		invoice, err := r.invoices.FindByID(ctx, *scope.InvoiceID)
		if err != nil {
			return scope, fmt.Errorf("load invoice %s: %w", *scope.InvoiceID, err)
		}
		if invoice == nil {
			return scope, shared.NewDomainError(billing.CodeScopeNotFound,
				fmt.Sprintf("Invoice %s does not exist", *scope.InvoiceID))
		}
		if !scope.HasOrder() && invoice.OrderID != nil {
			scope = billing.NewScope(invoice.OrderID, scope.InvoiceID)
		}
	}
	return scope, nil
}

// linkInvoiceOrder adds the order of an order-linked invoice to an
// invoice-only scope
func (r *PaymentRecorder) linkInvoiceOrder(ctx context.Context, scope billing.Scope) (billing.Scope, error) {
	if scope.HasOrder() || !scope.HasInvoice() {
		return scope, nil
	}
	invoice, err := r.invoices.FindByID(ctx, *scope.InvoiceID)
	if err != nil {
		return scope, fmt.Errorf("load invoice %s: %w", *scope.InvoiceID, err)
	}
	if invoice == nil {
		return scope, shared.NewDomainError(billing.CodeScopeNotFound,
			fmt.Sprintf("Invoice %s does not exist", *scope.InvoiceID))
	}
	if invoice.OrderID != nil {
		scope = billing.NewScope(invoice.OrderID, scope.InvoiceID)
	}
	return scope, nil
}
