package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PropagateCommand names the scope to bring in line with the ledger.
// OrderNumber locates the order when the scope carries no order id.
// A valid PaymentMethod is written to the order along with its status.
// Invoice and Order, when set, are used instead of reading them back.
type PropagateCommand struct {
	Scope         billing.Scope
	OrderNumber   string
	PaymentMethod billing.PaymentMethod
	Invoice       *billing.Invoice
	Order         *billing.Order
}

// PropagationResult reports what propagation derived and wrote
type PropagationResult struct {
	Scope    billing.Scope                `json:"scope"`
	Summary  billing.LedgerSummary        `json:"summary"`
	Invoice  *billing.InvoiceProjection   `json:"invoice,omitempty"`
	Order    *billing.OrderProjection     `json:"order,omitempty"`
	Reduced  []billing.ProjectionTarget   `json:"reduced_writes,omitempty"`
	Warnings []billing.PropagationWarning `json:"warnings,omitempty"`
}

// HasWarnings reports whether any projection write failed
func (r *PropagationResult) HasWarnings() bool {
	return r != nil && len(r.Warnings) > 0
}

// Propagator writes ledger-derived statuses into invoices and orders.
// Projection failures never undo ledger writes: they come back as warnings.
type Propagator struct {
	reconciliation *billing.ReconciliationService
	invoices       billing.InvoiceRepository
	orders         billing.OrderRepository
	logger         *zap.Logger
}

// NewPropagator creates a new Propagator
func NewPropagator(
	reconciliation *billing.ReconciliationService,
	invoices billing.InvoiceRepository,
	orders billing.OrderRepository,
	logger *zap.Logger,
) *Propagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{
		reconciliation: reconciliation,
		invoices:       invoices,
		orders:         orders,
		logger:         logger,
	}
}

// Propagate recomputes the ledger summary of a scope and writes the derived
// fields of its invoice and order. An order-only scope also reaches the
// invoice billing that order. The returned error is only set when the
// scope is invalid or the ledger cannot be read; every projection failure is
// a warning in the result.
func (p *Propagator) Propagate(ctx context.Context, cmd PropagateCommand) (*PropagationResult, error) {
	scope := cmd.Scope
	result := &PropagationResult{}

	invoice := cmd.Invoice
	if invoice != nil {
		scope = billing.NewScope(scope.OrderID, &invoice.ID)
		if !scope.HasOrder() && invoice.OrderID != nil {
			scope = billing.NewScope(invoice.OrderID, &invoice.ID)
		}
	} else if scope.InvoiceID != nil {
		inv, err := p.invoices.FindByID(ctx, *scope.InvoiceID)
		switch {
		case err != nil:
			result.warn(billing.ProjectionTargetInvoice, *scope.InvoiceID, false, "invoice lookup failed", err)
		case inv == nil:
			result.warn(billing.ProjectionTargetInvoice, *scope.InvoiceID, false, "invoice not found", nil)
		default:
			invoice = inv
			if !scope.HasOrder() && inv.OrderID != nil {
				scope = billing.NewScope(inv.OrderID, scope.InvoiceID)
			}
		}
	}

	order := cmd.Order
	switch {
	case order != nil:
		scope = billing.NewScope(&order.ID, scope.InvoiceID)
	case scope.OrderID != nil:
		o, err := p.orders.FindByID(ctx, *scope.OrderID)
		switch {
		case err != nil:
			result.warn(billing.ProjectionTargetOrder, *scope.OrderID, false, "order lookup failed", err)
		case o == nil:
			result.warn(billing.ProjectionTargetOrder, *scope.OrderID, false, "order not found", nil)
		default:
			order = o
		}
	case cmd.OrderNumber != "":
		o, err := p.orders.FindByOrderNumber(ctx, cmd.OrderNumber)
		if err != nil {
			result.warn(billing.ProjectionTargetOrder, uuid.Nil, false, "order lookup by number failed", err)
		} else if o != nil {
			order = o
			scope = billing.NewScope(&o.ID, scope.InvoiceID)
		}
	}

	if invoice == nil && !scope.HasInvoice() && order != nil {
		inv, err := p.orderInvoice(ctx, order)
		switch {
		case err != nil:
			result.warn(billing.ProjectionTargetInvoice, uuid.Nil, false, "invoice lookup by order failed", err)
		case inv != nil:
			invoice = inv
			scope = billing.NewScope(&order.ID, &inv.ID)
		}
	}

	summary, err := p.reconciliation.ComputeNetPaid(ctx, scope)
	if err != nil {
		return nil, err
	}
	result.Scope = scope
	result.Summary = summary

	if invoice != nil {
		proj := invoice.ApplyLedger(summary)
		result.Invoice = &proj
		p.write(ctx, result, billing.ProjectionTargetInvoice, invoice.ID, proj.Payload(),
			func(ctx context.Context, fields billing.Fields) error {
				return p.invoices.UpdateFields(ctx, invoice.ID, fields)
			})
	}

	if order != nil {
		proj := order.ApplyLedger(summary, cmd.PaymentMethod)
		result.Order = &proj
		p.write(ctx, result, billing.ProjectionTargetOrder, order.ID, proj.Payload(),
			func(ctx context.Context, fields billing.Fields) error {
				return p.orders.UpdateFields(ctx, order.ID, fields)
			})
	}

	for _, w := range result.Warnings {
		p.logger.Warn("Propagation incomplete",
			zap.String("target", string(w.Target)),
			zap.String("id", w.ID.String()),
			zap.Bool("reduced_payload", w.Reduced),
			zap.String("message", w.Message),
			zap.Error(w.Err))
	}

	p.logger.Debug("Propagation finished",
		zap.Stringer("scope", scope),
		zap.String("net_paid", summary.NetPaid.String()),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

// orderInvoice finds the invoice billing an order, by order id first and
// then by order number. Returns nil, nil when the order has no invoice yet.
func (p *Propagator) orderInvoice(ctx context.Context, order *billing.Order) (*billing.Invoice, error) {
	inv, err := p.invoices.FindByOrderID(ctx, order.ID)
	if err != nil || inv != nil || order.OrderNumber == "" {
		return inv, err
	}
	inv, err = p.invoices.FindByOrderNumber(ctx, order.OrderNumber)
	if err != nil || inv == nil {
		return nil, err
	}
	if inv.OrderID != nil && *inv.OrderID != order.ID {
		return nil, nil
	}
	return inv, nil
}

// write applies the full payload and retries once with the minimal payload
// when storage rejects an unknown column. Any other failure is not retried.
func (p *Propagator) write(
	ctx context.Context,
	result *PropagationResult,
	target billing.ProjectionTarget,
	id uuid.UUID,
	payload billing.Payload,
	apply func(ctx context.Context, fields billing.Fields) error,
) {
	err := apply(ctx, payload.Full)
	if err == nil {
		return
	}
	if !billing.IsSchemaDrift(err) {
		result.warn(target, id, false, "projection write failed", err)
		return
	}

	var drift *billing.SchemaDriftError
	if errors.As(err, &drift) {
		p.logger.Info("Schema drift on projection write, retrying with minimal payload",
			zap.String("target", string(target)),
			zap.String("id", id.String()),
			zap.String("column", drift.Column))
	}

	if err := apply(ctx, payload.Minimal); err != nil {
		result.warn(target, id, true, "reduced projection write failed", err)
		return
	}
	result.Reduced = append(result.Reduced, target)
}

func (r *PropagationResult) warn(target billing.ProjectionTarget, id uuid.UUID, reduced bool, message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	r.Warnings = append(r.Warnings, billing.PropagationWarning{
		Target:  target,
		ID:      id,
		Reduced: reduced,
		Message: message,
		Err:     err,
	})
}
