package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrInvoiceNotFound is returned when an invoice edit names an unknown invoice
var ErrInvoiceNotFound = shared.NewDomainError("INVOICE_NOT_FOUND", "Invoice not found")

// SaleContext is the in-progress sale handed over by the caller when it is
// confirmed. Either OrderID or OrderNumber locates the order.
type SaleContext struct {
	OrderID        *uuid.UUID
	OrderNumber    string
	Client         billing.ClientSnapshot
	Items          []billing.LineItem
	TaxRate        decimal.Decimal
	DiscountAmount decimal.Decimal
	InvoiceNumber  string
	InvoiceDate    time.Time
	DueDate        *time.Time
	Notes          string
}

// SaleResult is the outcome of a confirmed sale
type SaleResult struct {
	Invoice     *billing.Invoice   `json:"invoice"`
	Payment     *billing.Payment   `json:"payment,omitempty"`
	Propagation *PropagationResult `json:"propagation,omitempty"`
}

// RefundResult is the outcome of a processed refund
type RefundResult struct {
	Refund      *billing.Payment   `json:"refund"`
	Propagation *PropagationResult `json:"propagation,omitempty"`
}

// PaymentResult is the outcome of a recorded payment
type PaymentResult struct {
	Payment     *billing.Payment   `json:"payment"`
	Propagation *PropagationResult `json:"propagation,omitempty"`
}

// InvoiceData is an invoice as edited by the caller. A nil ID creates a new
// invoice.
type InvoiceData struct {
	ID             *uuid.UUID
	InvoiceNumber  string
	OrderID        *uuid.UUID
	OrderNumber    string
	Client         billing.ClientSnapshot
	Items          []billing.LineItem
	TaxRate        decimal.Decimal
	DiscountAmount decimal.Decimal
	PaymentMethod  billing.PaymentMethod
	Settlement     billing.MethodDetails
	InvoiceDate    time.Time
	DueDate        *time.Time
	Notes          string
}

// SaveInvoiceResult is the outcome of a saved invoice
type SaveInvoiceResult struct {
	Invoice     *billing.Invoice   `json:"invoice"`
	Created     bool               `json:"created"`
	Propagation *PropagationResult `json:"propagation,omitempty"`
}

// SaleService drives the command surface: sale confirmation, refunds,
// invoice edits and explicit resyncs all end in a propagation.
type SaleService struct {
	recorder   *PaymentRecorder
	propagator *Propagator
	payments   billing.PaymentRepository
	invoices   billing.InvoiceRepository
	orders     billing.OrderRepository
	publisher  shared.EventPublisher
	metrics    *telemetry.BillingMetrics
	logger     *zap.Logger
}

// SaleServiceConfig holds the collaborators of a SaleService
type SaleServiceConfig struct {
	Payments  billing.PaymentRepository
	Invoices  billing.InvoiceRepository
	Orders    billing.OrderRepository
	Guard     billing.RefundGuard
	Publisher shared.EventPublisher
	Metrics   *telemetry.BillingMetrics // optional
	Logger    *zap.Logger
}

// NewSaleService creates a new SaleService
func NewSaleService(cfg SaleServiceConfig) *SaleService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := NewPaymentRecorder(PaymentRecorderConfig{
		Payments: cfg.Payments,
		Invoices: cfg.Invoices,
		Orders:   cfg.Orders,
		Guard:    cfg.Guard,
		Logger:   logger,
	})
	return &SaleService{
		recorder:   recorder,
		propagator: NewPropagator(recorder.Reconciliation(), cfg.Invoices, cfg.Orders, logger),
		payments:   cfg.Payments,
		invoices:   cfg.Invoices,
		orders:     cfg.Orders,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		logger:     logger,
	}
}

// ConfirmSale issues the invoice of a sale, records the payment when the
// method settles on the spot and propagates the ledger into the invoice and
// the order. A credit sale writes no ledger entry, so its invoice stays
// draft and its order pending until money is recorded.
func (s *SaleService) ConfirmSale(ctx context.Context, sale SaleContext, method billing.PaymentMethod, details billing.MethodDetails) (*SaleResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sale", "confirm",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentMethod, string(method)),
		telemetry.WithAttribute(telemetry.SpanAttrOrderNumber, sale.OrderNumber),
	)
	defer span.End()

	result, err := s.confirmSale(ctx, sale, method, details)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, result.Invoice.ID,
		telemetry.SpanAttrAmount, result.Invoice.TotalAmount,
	)
	if result.Payment != nil {
		s.recordPayment(ctx, result.Payment)
	}
	return result, nil
}

func (s *SaleService) confirmSale(ctx context.Context, sale SaleContext, method billing.PaymentMethod, details billing.MethodDetails) (*SaleResult, error) {
	if !method.IsValid() {
		return nil, shared.NewDomainError(billing.CodeInvalidPaymentMethod,
			fmt.Sprintf("Payment method %q is not supported", method))
	}
	if err := details.Validate(method); err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, sale.OrderID, sale.OrderNumber)
	if err != nil {
		return nil, err
	}

	invoice, err := billing.NewInvoice(billing.NewInvoiceInput{
		InvoiceNumber:  sale.InvoiceNumber,
		OrderID:        &order.ID,
		OrderNumber:    order.OrderNumber,
		Client:         sale.Client,
		Items:          sale.Items,
		TaxRate:        sale.TaxRate,
		DiscountAmount: sale.DiscountAmount,
		PaymentMethod:  method,
		Settlement:     details,
		InvoiceDate:    sale.InvoiceDate,
		DueDate:        sale.DueDate,
		Notes:          sale.Notes,
	})
	if err != nil {
		return nil, err
	}
	if invoice.Client.ClientID == uuid.Nil {
		invoice.Client.ClientID = order.ClientID
	}

	if err := s.insertInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	result := &SaleResult{Invoice: invoice}
	if method.SettlesImmediately() && invoice.TotalAmount.IsPositive() {
		payment, err := s.recorder.record(ctx, RecordPaymentCommand{
			OrderID:   &order.ID,
			InvoiceID: &invoice.ID,
			ClientID:  invoice.Client.ClientID,
			Amount:    invoice.TotalAmount,
			Method:    method,
			Details:   details,
			Notes:     fmt.Sprintf("Payment for invoice %s", invoice.InvoiceNumber),
		}, true)
		if err != nil {
			return nil, err
		}
		result.Payment = payment
	}

	propagation, ok := s.propagate(ctx, PropagateCommand{
		Scope:         invoice.Scope(),
		PaymentMethod: method,
		Invoice:       invoice,
		Order:         order,
	})
	if ok {
		s.notify(ctx, propagation, method)
	}
	result.Propagation = propagation

	s.logger.Info("Sale confirmed",
		zap.String("order_id", order.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("method", string(method)),
		zap.String("total", invoice.TotalAmount.String()))
	return result, nil
}

// ProcessRefund refunds part or all of a completed payment and propagates
// the new ledger state
func (s *SaleService) ProcessRefund(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, reason string) (*RefundResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "refund",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentID, paymentID),
		telemetry.WithAttribute(telemetry.SpanAttrAmount, amount),
	)
	defer span.End()

	refund, err := s.recorder.RecordRefund(ctx, RecordRefundCommand{
		PaymentID: &paymentID,
		Amount:    amount,
		Reason:    reason,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.recordPayment(ctx, refund)
	propagation, ok := s.propagate(ctx, PropagateCommand{Scope: refund.Scope})
	if ok {
		s.notify(ctx, propagation, refund.Method)
	}
	return &RefundResult{Refund: refund, Propagation: propagation}, nil
}

// RecordPayment appends a payment to the ledger and propagates it
func (s *SaleService) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentMethod, string(cmd.Method)),
		telemetry.WithAttribute(telemetry.SpanAttrAmount, cmd.Amount),
	)
	defer span.End()

	payment, err := s.recorder.RecordPayment(ctx, cmd)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.recordPayment(ctx, payment)
	propagation, _ := s.propagate(ctx, PropagateCommand{Scope: payment.Scope})
	return &PaymentResult{Payment: payment, Propagation: propagation}, nil
}

// SaveInvoice creates or edits an invoice and re-derives its settlement
// fields from the ledger. Caller-supplied paid or status values do not exist
// on InvoiceData: the ledger is their only source.
func (s *SaleService) SaveInvoice(ctx context.Context, data InvoiceData) (*SaveInvoiceResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "save")
	defer span.End()

	result, err := s.saveInvoice(ctx, data)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, result.Invoice.ID,
		"billing.invoice_created", result.Created,
	)
	return result, nil
}

func (s *SaleService) saveInvoice(ctx context.Context, data InvoiceData) (*SaveInvoiceResult, error) {
	if data.ID == nil {
		invoice, err := billing.NewInvoice(billing.NewInvoiceInput{
			InvoiceNumber:  data.InvoiceNumber,
			OrderID:        data.OrderID,
			OrderNumber:    data.OrderNumber,
			Client:         data.Client,
			Items:          data.Items,
			TaxRate:        data.TaxRate,
			DiscountAmount: data.DiscountAmount,
			PaymentMethod:  data.PaymentMethod,
			Settlement:     data.Settlement,
			InvoiceDate:    data.InvoiceDate,
			DueDate:        data.DueDate,
			Notes:          data.Notes,
		})
		if err != nil {
			return nil, err
		}
		if err := s.insertInvoice(ctx, invoice); err != nil {
			return nil, err
		}
		return &SaveInvoiceResult{
			Invoice:     invoice,
			Created:     true,
			Propagation: s.propagateInvoice(ctx, invoice),
		}, nil
	}

	invoice, err := s.invoices.FindByID(ctx, *data.ID)
	if err != nil {
		return nil, fmt.Errorf("load invoice %s: %w", *data.ID, err)
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}

	if err := invoice.Recompose(data.Items, data.TaxRate, data.DiscountAmount); err != nil {
		return nil, err
	}
	if data.Client.Name != "" {
		invoice.Client = data.Client
	}
	if data.PaymentMethod != "" {
		if !data.PaymentMethod.IsValid() {
			return nil, shared.NewDomainError(billing.CodeInvalidPaymentMethod,
				fmt.Sprintf("Payment method %q is not supported", data.PaymentMethod))
		}
		invoice.PaymentMethod = data.PaymentMethod
		invoice.Settlement = data.Settlement.ForMethod(data.PaymentMethod)
	}
	if data.DueDate != nil {
		invoice.DueDate = data.DueDate
	}
	invoice.Notes = data.Notes

	payload := invoice.ContentPayload()
	if err := s.writeInvoice(ctx, payload, func(ctx context.Context, fields billing.Fields) error {
		return s.invoices.UpdateFields(ctx, invoice.ID, fields)
	}); err != nil {
		return nil, fmt.Errorf("update invoice %s: %w", invoice.ID, err)
	}

	return &SaveInvoiceResult{
		Invoice:     invoice,
		Propagation: s.propagateInvoice(ctx, invoice),
	}, nil
}

// Resync re-runs propagation for a scope. It is how a projection left
// behind by a failed propagation catches up with the ledger.
func (s *SaleService) Resync(ctx context.Context, scope billing.Scope, orderNumber string) (*PropagationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "resync")
	defer span.End()

	start := time.Now()
	result, err := s.propagator.Propagate(ctx, PropagateCommand{Scope: scope, OrderNumber: orderNumber})
	s.observePropagation(ctx, start, result, err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// LedgerSummary returns the reconciled money picture of a scope
func (s *SaleService) LedgerSummary(ctx context.Context, scope billing.Scope) (billing.LedgerSummary, error) {
	return s.recorder.Reconciliation().ComputeNetPaid(ctx, scope)
}

// GetPayment returns one ledger entry
func (s *SaleService) GetPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// ListPayments lists ledger entries
func (s *SaleService) ListPayments(ctx context.Context, filter billing.PaymentFilter) (shared.Paginated[billing.Payment], error) {
	if filter.PageSize <= 0 {
		filter.Filter = shared.DefaultFilter()
	}
	payments, err := s.payments.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[billing.Payment]{}, err
	}
	total, err := s.payments.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[billing.Payment]{}, err
	}
	return shared.NewPaginated(payments, total, filter.Page, filter.PageSize), nil
}

// GetInvoice returns an invoice by id
func (s *SaleService) GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

// FindInvoiceForOrder returns the invoice of an order, looked up by order id
// first and by order number when the id yields nothing
func (s *SaleService) FindInvoiceForOrder(ctx context.Context, orderID *uuid.UUID, orderNumber string) (*billing.Invoice, error) {
	if orderID != nil {
		invoice, err := s.invoices.FindByOrderID(ctx, *orderID)
		if err != nil {
			return nil, err
		}
		if invoice != nil {
			return invoice, nil
		}
	}
	if orderNumber != "" {
		invoice, err := s.invoices.FindByOrderNumber(ctx, orderNumber)
		if err != nil {
			return nil, err
		}
		if invoice != nil {
			return invoice, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

func (s *SaleService) loadOrder(ctx context.Context, id *uuid.UUID, number string) (*billing.Order, error) {
	var (
		order *billing.Order
		err   error
	)
	switch {
	case id != nil:
		order, err = s.orders.FindByID(ctx, *id)
	case number != "":
		order, err = s.orders.FindByOrderNumber(ctx, number)
	default:
		return nil, shared.NewDomainError(billing.CodeInvalidScope, "Sale must reference an order")
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, shared.NewDomainError(billing.CodeScopeNotFound, "Order does not exist")
	}
	return order, nil
}

// insertInvoice writes a new invoice, dropping optional columns once if the
// deployed schema lacks them
func (s *SaleService) insertInvoice(ctx context.Context, invoice *billing.Invoice) error {
	err := s.writeInvoice(ctx, invoice.InsertPayload(), s.invoices.Insert)
	if err != nil {
		s.logger.Error("Failed to create invoice",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err))
		return fmt.Errorf("create invoice %s: %w", invoice.InvoiceNumber, err)
	}
	return nil
}

func (s *SaleService) writeInvoice(ctx context.Context, payload billing.Payload, apply func(ctx context.Context, fields billing.Fields) error) error {
	err := apply(ctx, payload.Full)
	if err == nil || !billing.IsSchemaDrift(err) {
		return err
	}
	s.logger.Info("Schema drift on invoice write, retrying without optional columns", zap.Error(err))
	return apply(ctx, payload.Minimal)
}

func (s *SaleService) propagateInvoice(ctx context.Context, invoice *billing.Invoice) *PropagationResult {
	result, _ := s.propagate(ctx, PropagateCommand{
		Scope:       invoice.Scope(),
		OrderNumber: invoice.OrderNumber,
		Invoice:     invoice,
	})
	return result
}

// propagate runs after a ledger or invoice write already succeeded, so a
// failure here is reported as a warning instead of an error. ok is false
// when the ledger could not be reconciled at all.
func (s *SaleService) propagate(ctx context.Context, cmd PropagateCommand) (result *PropagationResult, ok bool) {
	ctx, span := telemetry.StartSpan(ctx, "billing.propagate")
	defer span.End()

	start := time.Now()
	result, err := s.propagator.Propagate(ctx, cmd)
	s.observePropagation(ctx, start, result, err)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Propagation aborted, projection left behind the ledger",
			zap.Stringer("scope", cmd.Scope),
			zap.Error(err))
		result = &PropagationResult{Scope: cmd.Scope}
		target, id := billing.ProjectionTargetOrder, uuid.Nil
		switch {
		case cmd.Scope.InvoiceID != nil:
			target, id = billing.ProjectionTargetInvoice, *cmd.Scope.InvoiceID
		case cmd.Scope.OrderID != nil:
			id = *cmd.Scope.OrderID
		}
		result.warn(target, id, false, "ledger could not be reconciled", err)
		return result, false
	}
	return result, true
}

// notify publishes at most one notification of each type. Delivery errors
// are logged and dropped.
func (s *SaleService) notify(ctx context.Context, result *PropagationResult, method billing.PaymentMethod) {
	if s.publisher == nil {
		return
	}

	var events []shared.DomainEvent
	switch {
	case result.Invoice != nil:
		events = append(events, billing.NewPaymentUpdatedEvent(result.Scope, string(result.Invoice.Status), method))
	case result.Order != nil:
		events = append(events, billing.NewPaymentUpdatedEvent(result.Scope, string(result.Order.PaymentStatus), method))
	}
	if result.Order != nil {
		events = append(events, billing.NewOrderPaymentUpdatedEvent(result.Scope, result.Order.PaymentStatus, method))
	}
	if len(events) == 0 {
		return
	}

	err := s.publisher.Publish(ctx, events...)
	if s.metrics != nil {
		s.metrics.RecordNotifications(ctx, len(events), err)
	}
	if err != nil {
		s.logger.Warn("Failed to publish payment notifications",
			zap.Stringer("scope", result.Scope),
			zap.Error(err))
	}
}

func (s *SaleService) recordPayment(ctx context.Context, p *billing.Payment) {
	if s.metrics != nil {
		s.metrics.RecordPayment(ctx, string(p.Method), p.IsRefund(), p.Amount)
	}
}

func (s *SaleService) observePropagation(ctx context.Context, start time.Time, result *PropagationResult, err error) {
	var warnings, reduced int
	if result != nil {
		warnings, reduced = len(result.Warnings), len(result.Reduced)
	}
	telemetry.SetAttributes(trace.SpanFromContext(ctx),
		telemetry.SpanAttrWarnings, warnings,
		"billing.reduced_writes", reduced,
	)
	if s.metrics != nil {
		s.metrics.RecordPropagation(ctx, time.Since(start), warnings, reduced, err != nil)
	}
}
