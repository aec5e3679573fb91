package billing

import "github.com/shopspring/decimal"

// InvoiceStatus represents the billing state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// OrderPaymentStatus represents how much of an order has been settled
type OrderPaymentStatus string

const (
	OrderPaymentStatusPending  OrderPaymentStatus = "pending"
	OrderPaymentStatusPartial  OrderPaymentStatus = "partial"
	OrderPaymentStatusPaid     OrderPaymentStatus = "paid"
	OrderPaymentStatusRefunded OrderPaymentStatus = "refunded"
)

// IsValid checks if the status is a valid OrderPaymentStatus
func (s OrderPaymentStatus) IsValid() bool {
	switch s {
	case OrderPaymentStatusPending, OrderPaymentStatusPartial, OrderPaymentStatusPaid, OrderPaymentStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of OrderPaymentStatus
func (s OrderPaymentStatus) String() string {
	return string(s)
}

// DeriveInvoiceStatus maps an invoice total and the net paid against it to
// a status: paid once fully covered, sent while partially covered, draft
// when nothing is paid. A zero total never derives paid on its own.
func DeriveInvoiceStatus(totalAmount, netPaid decimal.Decimal) InvoiceStatus {
	switch {
	case totalAmount.IsPositive() && netPaid.GreaterThanOrEqual(totalAmount):
		return InvoiceStatusPaid
	case netPaid.IsPositive():
		return InvoiceStatusSent
	default:
		return InvoiceStatusDraft
	}
}

// DeriveInvoiceStatusFor is DeriveInvoiceStatus for an existing invoice.
// A zero-total invoice already marked paid upstream keeps that status.
func DeriveInvoiceStatusFor(totalAmount, netPaid decimal.Decimal, current InvoiceStatus) InvoiceStatus {
	if totalAmount.IsZero() && current == InvoiceStatusPaid {
		return InvoiceStatusPaid
	}
	return DeriveInvoiceStatus(totalAmount, netPaid)
}

// InvoiceSettlement returns the paid and remaining amounts of an invoice:
// paid = min(total, netPaid), remaining = max(0, total - paid).
func InvoiceSettlement(totalAmount, netPaid decimal.Decimal) (paid, remaining decimal.Decimal) {
	paid = decimal.Min(totalAmount, decimal.Max(decimal.Zero, netPaid))
	if paid.IsNegative() {
		paid = decimal.Zero
	}
	remaining = decimal.Max(decimal.Zero, totalAmount.Sub(paid))
	return paid, remaining
}

// DeriveOrderPaymentStatus applies the order precedence, first match wins:
//  1. paid: orderTotal > 0 and netPaid >= orderTotal
//  2. partial: netPaid > 0
//  3. refunded: money came in and was fully returned
//  4. pending
func DeriveOrderPaymentStatus(orderTotal, totalPaid, totalRefunded, netPaid decimal.Decimal) OrderPaymentStatus {
	switch {
	case orderTotal.IsPositive() && netPaid.GreaterThanOrEqual(orderTotal):
		return OrderPaymentStatusPaid
	case netPaid.IsPositive():
		return OrderPaymentStatusPartial
	case totalRefunded.IsPositive() && totalPaid.IsPositive() && netPaid.IsZero():
		return OrderPaymentStatusRefunded
	default:
		return OrderPaymentStatusPending
	}
}

// DeriveOrderPaymentStatusFromSummary is DeriveOrderPaymentStatus fed by a ledger summary
func DeriveOrderPaymentStatusFromSummary(orderTotal decimal.Decimal, summary LedgerSummary) OrderPaymentStatus {
	return DeriveOrderPaymentStatus(orderTotal, summary.TotalPaid, summary.TotalRefunded, summary.NetPaid)
}
