package dto

import (
	"time"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MethodDetailsRequest carries the method-specific fields of a payment
type MethodDetailsRequest struct {
	BankName          string     `json:"bank_name" binding:"max=100"`
	CheckNumber       string     `json:"check_number" binding:"max=50"`
	CheckDate         *time.Time `json:"check_date"`
	CreditDueDate     *time.Time `json:"credit_due_date"`
	TransferReference string     `json:"transfer_reference" binding:"max=100"`
	TransferDate      *time.Time `json:"transfer_date"`
}

// ToDomain converts the request to billing.MethodDetails
func (r MethodDetailsRequest) ToDomain() billing.MethodDetails {
	return billing.MethodDetails{
		BankName:          r.BankName,
		CheckNumber:       r.CheckNumber,
		CheckDate:         r.CheckDate,
		CreditDueDate:     r.CreditDueDate,
		TransferReference: r.TransferReference,
		TransferDate:      r.TransferDate,
	}
}

// ClientRequest is the client snapshot printed on an invoice
type ClientRequest struct {
	ClientID uuid.UUID `json:"client_id"`
	Name     string    `json:"name" binding:"max=200"`
	Phone    string    `json:"phone" binding:"max=50"`
	Address  string    `json:"address"`
}

// ToDomain converts the request to billing.ClientSnapshot
func (r ClientRequest) ToDomain() billing.ClientSnapshot {
	return billing.ClientSnapshot{
		ClientID: r.ClientID,
		Name:     r.Name,
		Phone:    r.Phone,
		Address:  r.Address,
	}
}

// LineItemRequest is one billed line
type LineItemRequest struct {
	ProductID   *uuid.UUID      `json:"product_id"`
	Description string          `json:"description" binding:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// LineItemsToDomain converts request lines to billing.LineItem values
func LineItemsToDomain(items []LineItemRequest) []billing.LineItem {
	out := make([]billing.LineItem, len(items))
	for i, item := range items {
		out[i] = billing.LineItem{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}
	return out
}

// ConfirmSaleRequest confirms an in-progress sale: the invoice is issued
// and, unless the method is credit, the payment recorded.
type ConfirmSaleRequest struct {
	OrderID        *uuid.UUID           `json:"order_id"`
	OrderNumber    string               `json:"order_number" binding:"max=50"`
	Client         ClientRequest        `json:"client"`
	Items          []LineItemRequest    `json:"items" binding:"required,min=1,dive"`
	TaxRate        decimal.Decimal      `json:"tax_rate"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	InvoiceNumber  string               `json:"invoice_number" binding:"max=50"`
	InvoiceDate    *time.Time           `json:"invoice_date"`
	DueDate        *time.Time           `json:"due_date"`
	Notes          string               `json:"notes"`
	PaymentMethod  string               `json:"payment_method" binding:"required"`
	Details        MethodDetailsRequest `json:"details"`
}

// RecordPaymentRequest appends a received payment to the ledger
type RecordPaymentRequest struct {
	OrderID         *uuid.UUID           `json:"order_id"`
	InvoiceID       *uuid.UUID           `json:"invoice_id"`
	ClientID        uuid.UUID            `json:"client_id"`
	Amount          decimal.Decimal      `json:"amount"`
	PaymentMethod   string               `json:"payment_method" binding:"required"`
	Details         MethodDetailsRequest `json:"details"`
	PaymentDate     *time.Time           `json:"payment_date"`
	ReferenceNumber string               `json:"reference_number" binding:"max=100"`
	TransactionID   string               `json:"transaction_id" binding:"max=100"`
	Notes           string               `json:"notes"`
}

// RefundRequest refunds part or all of a completed payment
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"max=500"`
}

// SaveInvoiceRequest creates an invoice or edits the one named in the path.
// There is no paid amount or status field: both come from the ledger.
type SaveInvoiceRequest struct {
	InvoiceNumber  string               `json:"invoice_number" binding:"max=50"`
	OrderID        *uuid.UUID           `json:"order_id"`
	OrderNumber    string               `json:"order_number" binding:"max=50"`
	Client         ClientRequest        `json:"client"`
	Items          []LineItemRequest    `json:"items" binding:"dive"`
	TaxRate        decimal.Decimal      `json:"tax_rate"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	PaymentMethod  string               `json:"payment_method"`
	Settlement     MethodDetailsRequest `json:"settlement"`
	InvoiceDate    *time.Time           `json:"invoice_date"`
	DueDate        *time.Time           `json:"due_date"`
	Notes          string               `json:"notes"`
}

// ScopeQuery names an order and/or invoice in the query string
type ScopeQuery struct {
	OrderID     string `form:"order_id" binding:"omitempty,uuid"`
	InvoiceID   string `form:"invoice_id" binding:"omitempty,uuid"`
	OrderNumber string `form:"order_number" binding:"max=50"`
}

// Scope converts the query to a billing.Scope. Call after binding, which
// has already checked the ids.
func (q ScopeQuery) Scope() billing.Scope {
	return billing.NewScope(parseOptionalUUID(q.OrderID), parseOptionalUUID(q.InvoiceID))
}

// ResyncRequest asks for a propagation re-run
type ResyncRequest struct {
	OrderID     *uuid.UUID `json:"order_id"`
	InvoiceID   *uuid.UUID `json:"invoice_id"`
	OrderNumber string     `json:"order_number" binding:"max=50"`
}

// PaymentListRequest filters the ledger listing
type PaymentListRequest struct {
	ListRequest
	ScopeQuery
	ClientID string `form:"client_id" binding:"omitempty,uuid"`
	Status   string `form:"status" binding:"omitempty,oneof=pending completed failed refunded"`
	FromDate string `form:"from_date" binding:"omitempty,datetime=2006-01-02"`
	ToDate   string `form:"to_date" binding:"omitempty,datetime=2006-01-02"`
}

// ToFilter converts the request to a billing.PaymentFilter
func (r PaymentListRequest) ToFilter() billing.PaymentFilter {
	filter := billing.PaymentFilter{}
	filter.Page = r.Page
	filter.PageSize = r.PageSize
	filter.OrderBy = r.OrderBy
	filter.OrderDir = r.OrderDir

	scope := r.Scope()
	filter.OrderID = scope.OrderID
	filter.InvoiceID = scope.InvoiceID
	filter.ClientID = parseOptionalUUID(r.ClientID)
	if r.Status != "" {
		filter.Statuses = []billing.PaymentStatus{billing.PaymentStatus(r.Status)}
	}
	if from, err := time.Parse("2006-01-02", r.FromDate); err == nil {
		filter.FromDate = &from
	}
	if to, err := time.Parse("2006-01-02", r.ToDate); err == nil {
		end := to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.ToDate = &end
	}
	return filter
}

func parseOptionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
