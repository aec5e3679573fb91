package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fields is a column-name keyed write payload handed to storage adapters
type Fields map[string]any

// Without returns a copy of the payload minus the given columns
func (f Fields) Without(columns ...string) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	for _, c := range columns {
		delete(out, c)
	}
	return out
}

// Only returns a copy of the payload restricted to the given columns
func (f Fields) Only(columns ...string) Fields {
	out := make(Fields, len(columns))
	for _, c := range columns {
		if v, ok := f[c]; ok {
			out[c] = v
		}
	}
	return out
}

// Payload pairs the write we want with the smallest write we can live with.
// Storage rejecting Full for an unknown column is retried once with Minimal.
type Payload struct {
	Full    Fields
	Minimal Fields
}

// Columns that some deployments lack. Minimal payloads never include them.
var (
	optionalInvoiceInsertColumns = []string{
		"items", "payment_method", "discount_amount", "created_at",
		"bank_name", "check_number", "check_date", "credit_due_date",
	}
)

// InvoiceProjection is the ledger-derived part of an invoice
type InvoiceProjection struct {
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	Status          InvoiceStatus   `json:"status"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// Payload builds the two-tier write. The minimal tier keeps only the status.
func (p InvoiceProjection) Payload() Payload {
	full := Fields{
		"status":           string(p.Status),
		"paid_amount":      p.PaidAmount,
		"remaining_amount": p.RemainingAmount,
		"updated_at":       time.Now(),
	}
	return Payload{Full: full, Minimal: full.Only("status")}
}

// OrderProjection is the ledger-derived part of an order
type OrderProjection struct {
	OrderID       uuid.UUID          `json:"order_id"`
	PaymentStatus OrderPaymentStatus `json:"payment_status"`
	PaymentMethod PaymentMethod      `json:"payment_method,omitempty"`
}

// Payload builds the two-tier write. The minimal tier keeps only payment_status.
func (p OrderProjection) Payload() Payload {
	full := Fields{
		"payment_status": string(p.PaymentStatus),
		"updated_at":     time.Now(),
	}
	if p.PaymentMethod != "" {
		full["payment_method"] = string(p.PaymentMethod)
	}
	return Payload{Full: full, Minimal: full.Only("payment_status")}
}

// InsertPayload builds the two-tier insert for a new invoice. The minimal tier
// drops line items, settlement details and other optional columns.
func (i *Invoice) InsertPayload() Payload {
	full := i.contentFields()
	full["id"] = i.ID
	full["status"] = string(i.Status)
	full["paid_amount"] = i.PaidAmount
	full["remaining_amount"] = i.RemainingAmount
	full["created_at"] = i.CreatedAt
	full["updated_at"] = i.UpdatedAt
	return Payload{Full: full, Minimal: full.Without(optionalInvoiceInsertColumns...)}
}

// ContentPayload builds the two-tier update for an edited invoice's composed
// content. Derived settlement fields are not part of it.
func (i *Invoice) ContentPayload() Payload {
	full := i.contentFields()
	full["updated_at"] = i.UpdatedAt
	return Payload{Full: full, Minimal: full.Without(optionalInvoiceInsertColumns...)}
}

func (i *Invoice) contentFields() Fields {
	f := Fields{
		"invoice_number":  i.InvoiceNumber,
		"client_id":       i.Client.ClientID,
		"client_name":     i.Client.Name,
		"client_phone":    i.Client.Phone,
		"client_address":  i.Client.Address,
		"items":           LineItems(i.Items),
		"subtotal":        i.Subtotal,
		"tax_rate":        i.TaxRate,
		"tax_amount":      i.TaxAmount,
		"discount_amount": i.DiscountAmount,
		"total_amount":    i.TotalAmount,
		"invoice_date":    i.InvoiceDate,
		"notes":           i.Notes,
		"currency":        i.Currency,
	}
	if i.OrderID != nil {
		f["order_id"] = *i.OrderID
		f["order_number"] = i.OrderNumber
	}
	if i.DueDate != nil {
		f["due_date"] = *i.DueDate
	}
	if i.PaymentMethod != "" {
		f["payment_method"] = string(i.PaymentMethod)
	}
	switch i.PaymentMethod {
	case PaymentMethodCheck:
		f["bank_name"] = i.Settlement.BankName
		f["check_number"] = i.Settlement.CheckNumber
		f["check_date"] = i.Settlement.CheckDate
	case PaymentMethodCredit:
		f["credit_due_date"] = i.Settlement.CreditDueDate
	}
	return f
}
