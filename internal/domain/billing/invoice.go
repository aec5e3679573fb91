package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the currency every amount in this service is expressed in
const DefaultCurrency = "MAD"

var hundred = decimal.NewFromInt(100)

// LineItem is one billed line of an invoice
type LineItem struct {
	ProductID   *uuid.UUID      `json:"product_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Amount returns quantity x unit price
func (l LineItem) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// LineItems is a slice of LineItem that implements GORM Scanner/Valuer for JSONB storage
type LineItems []LineItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (l *LineItems) Scan(value any) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan LineItems: unsupported type")
	}

	if len(bytes) == 0 {
		*l = LineItems{}
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Totals holds the composed money figures of an invoice
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

// ComposeTotals aggregates line items into subtotal, tax and total:
//
//	subtotal = sum(quantity * unitPrice)
//	tax      = subtotal * taxRate / 100
//	total    = subtotal + tax - discount
//
// Quantities, prices, the tax rate and the discount must be non-negative.
// Line totals are filled in on the returned items.
func ComposeTotals(items []LineItem, taxRate, discount decimal.Decimal) (Totals, []LineItem, error) {
	if taxRate.IsNegative() {
		return Totals{}, nil, shared.NewDomainError(CodeInvalidAmount, "Tax rate cannot be negative")
	}
	if discount.IsNegative() {
		return Totals{}, nil, shared.NewDomainError(CodeInvalidAmount, "Discount cannot be negative")
	}

	composed := make([]LineItem, len(items))
	subtotal := decimal.Zero
	for i, item := range items {
		if item.Quantity.IsNegative() || item.UnitPrice.IsNegative() {
			return Totals{}, nil, shared.NewDomainError(CodeInvalidLineItem,
				fmt.Sprintf("Line %d has a negative quantity or unit price", i+1))
		}
		item.Total = item.Amount().Round(2)
		composed[i] = item
		subtotal = subtotal.Add(item.Amount())
	}

	subtotal = subtotal.Round(2)
	taxAmount := subtotal.Mul(taxRate).Div(hundred).Round(2)
	total := subtotal.Add(taxAmount).Sub(discount).Round(2)

	return Totals{
		Subtotal:       subtotal,
		TaxRate:        taxRate,
		TaxAmount:      taxAmount,
		DiscountAmount: discount,
		TotalAmount:    total,
	}, composed, nil
}

// ClientSnapshot freezes the client identity at invoicing time
type ClientSnapshot struct {
	ClientID uuid.UUID `json:"client_id"`
	Name     string    `json:"client_name"`
	Phone    string    `json:"client_phone,omitempty"`
	Address  string    `json:"client_address,omitempty"`
}

// Invoice is a billing document. PaidAmount, RemainingAmount and Status are
// projections of the ledger and are only written by propagation.
type Invoice struct {
	shared.BaseAggregateRoot
	Totals
	InvoiceNumber   string          `json:"invoice_number"`
	OrderID         *uuid.UUID      `json:"order_id,omitempty"`
	OrderNumber     string          `json:"order_number,omitempty"`
	Client          ClientSnapshot  `json:"client"`
	Items           []LineItem      `json:"items"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Status          InvoiceStatus   `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method,omitempty"`
	Settlement      MethodDetails   `json:"settlement"`
	InvoiceDate     time.Time       `json:"invoice_date"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	Currency        string          `json:"currency"`
	Notes           string          `json:"notes,omitempty"`
}

// NewInvoiceInput carries the data needed to issue an invoice
type NewInvoiceInput struct {
	InvoiceNumber  string
	OrderID        *uuid.UUID
	OrderNumber    string
	Client         ClientSnapshot
	Items          []LineItem
	TaxRate        decimal.Decimal
	DiscountAmount decimal.Decimal
	PaymentMethod  PaymentMethod
	Settlement     MethodDetails
	InvoiceDate    time.Time
	DueDate        *time.Time
	Notes          string
}

// NewInvoice composes a new invoice. Its derived fields start from an empty
// ledger: nothing paid, everything remaining, status draft.
func NewInvoice(in NewInvoiceInput) (*Invoice, error) {
	if strings.TrimSpace(in.Client.Name) == "" {
		return nil, shared.NewDomainError(CodeInvalidInvoice, "Client name is required")
	}
	if !hasBilledLine(in.Items) {
		return nil, shared.NewDomainError(CodeInvalidInvoice, "Invoice needs at least one line item")
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.IsValid() {
		return nil, shared.NewDomainError(CodeInvalidPaymentMethod,
			fmt.Sprintf("Payment method %q is not supported", in.PaymentMethod))
	}

	totals, items, err := ComposeTotals(in.Items, in.TaxRate, in.DiscountAmount)
	if err != nil {
		return nil, err
	}

	number := strings.TrimSpace(in.InvoiceNumber)
	if number == "" {
		number = NewPaymentNumber("INV")
	}
	invoiceDate := in.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now()
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     number,
		OrderID:           in.OrderID,
		OrderNumber:       in.OrderNumber,
		Client:            in.Client,
		Items:             items,
		Totals:            totals,
		PaymentMethod:     in.PaymentMethod,
		Settlement:        in.Settlement.ForMethod(in.PaymentMethod),
		InvoiceDate:       invoiceDate,
		DueDate:           in.DueDate,
		Currency:          DefaultCurrency,
		Notes:             in.Notes,
	}
	inv.ApplyLedger(LedgerSummary{})
	return inv, nil
}

func hasBilledLine(items []LineItem) bool {
	for _, item := range items {
		if strings.TrimSpace(item.Description) != "" {
			return true
		}
	}
	return false
}

// Recompose replaces the billed lines, tax rate and discount and recomputes
// the totals. Derived settlement fields are left for propagation.
func (i *Invoice) Recompose(items []LineItem, taxRate, discount decimal.Decimal) error {
	if !hasBilledLine(items) {
		return shared.NewDomainError(CodeInvalidInvoice, "Invoice needs at least one line item")
	}
	totals, composed, err := ComposeTotals(items, taxRate, discount)
	if err != nil {
		return err
	}
	i.Items = composed
	i.Totals = totals
	i.Touch()
	return nil
}

// Scope returns the ledger scope of the invoice
func (i *Invoice) Scope() Scope {
	return NewScope(i.OrderID, &i.ID)
}

// ApplyLedger derives paid, remaining and status from a ledger summary and
// returns the projection to persist
func (i *Invoice) ApplyLedger(summary LedgerSummary) InvoiceProjection {
	paid, remaining := InvoiceSettlement(i.TotalAmount, summary.NetPaid)
	i.PaidAmount = paid
	i.RemainingAmount = remaining
	i.Status = DeriveInvoiceStatusFor(i.TotalAmount, summary.NetPaid, i.Status)
	return InvoiceProjection{
		InvoiceID:       i.ID,
		Status:          i.Status,
		PaidAmount:      paid,
		RemainingAmount: remaining,
	}
}
