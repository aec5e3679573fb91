package billing

import (
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
)

// Notification event types
const (
	EventTypePaymentUpdated      = "payment-updated"
	EventTypeOrderPaymentUpdated = "order-payment-updated"
)

// AggregateTypePayment is the aggregate type carried by payment notifications
const AggregateTypePayment = "Payment"

// PaymentNotification tells observers that the money picture of a scope
// changed. It is a hint to re-fetch, never the state itself.
type PaymentNotification struct {
	shared.BaseDomainEvent
	OrderID       *uuid.UUID    `json:"orderId,omitempty"`
	InvoiceID     *uuid.UUID    `json:"invoiceId,omitempty"`
	PaymentStatus string        `json:"paymentStatus"`
	PaymentMethod PaymentMethod `json:"paymentMethod,omitempty"`
}

// NewPaymentUpdatedEvent creates a payment-updated notification. The status
// is the invoice status when an invoice is in scope, else the order status.
func NewPaymentUpdatedEvent(scope Scope, status string, method PaymentMethod) *PaymentNotification {
	return newPaymentNotification(EventTypePaymentUpdated, scope, status, method)
}

// NewOrderPaymentUpdatedEvent creates an order-payment-updated notification
func NewOrderPaymentUpdatedEvent(scope Scope, status OrderPaymentStatus, method PaymentMethod) *PaymentNotification {
	return newPaymentNotification(EventTypeOrderPaymentUpdated, scope, string(status), method)
}

func newPaymentNotification(eventType string, scope Scope, status string, method PaymentMethod) *PaymentNotification {
	aggID := uuid.Nil
	switch {
	case scope.OrderID != nil:
		aggID = *scope.OrderID
	case scope.InvoiceID != nil:
		aggID = *scope.InvoiceID
	}
	return &PaymentNotification{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypePayment, aggID),
		OrderID:         scope.OrderID,
		InvoiceID:       scope.InvoiceID,
		PaymentStatus:   status,
		PaymentMethod:   method,
	}
}
