package billing

import (
	"strings"

	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
)

// Scope identifies the order and/or invoice a ledger entry or a derived
// computation is keyed to.
type Scope struct {
	OrderID   *uuid.UUID `json:"order_id,omitempty"`
	InvoiceID *uuid.UUID `json:"invoice_id,omitempty"`
}

// NewScope builds a scope from optional ids. Nil UUIDs are dropped.
func NewScope(orderID, invoiceID *uuid.UUID) Scope {
	s := Scope{}
	if orderID != nil && *orderID != uuid.Nil {
		id := *orderID
		s.OrderID = &id
	}
	if invoiceID != nil && *invoiceID != uuid.Nil {
		id := *invoiceID
		s.InvoiceID = &id
	}
	return s
}

// OrderScope returns a scope tied to a single order
func OrderScope(orderID uuid.UUID) Scope {
	return NewScope(&orderID, nil)
}

// InvoiceScope returns a scope tied to a single invoice
func InvoiceScope(invoiceID uuid.UUID) Scope {
	return NewScope(nil, &invoiceID)
}

// HasOrder reports whether the scope references an order
func (s Scope) HasOrder() bool {
	return s.OrderID != nil
}

// HasInvoice reports whether the scope references an invoice
func (s Scope) HasInvoice() bool {
	return s.InvoiceID != nil
}

// IsEmpty reports whether the scope references nothing
func (s Scope) IsEmpty() bool {
	return !s.HasOrder() && !s.HasInvoice()
}

// Validate rejects empty scopes
func (s Scope) Validate() error {
	if s.IsEmpty() {
		return shared.NewDomainError(CodeInvalidScope, "Payment must reference an order or an invoice")
	}
	return nil
}

// WithInvoice returns a copy of the scope linked to the given invoice
func (s Scope) WithInvoice(invoiceID uuid.UUID) Scope {
	return NewScope(s.OrderID, &invoiceID)
}

func (s Scope) String() string {
	parts := make([]string, 0, 2)
	if s.OrderID != nil {
		parts = append(parts, "order="+s.OrderID.String())
	}
	if s.InvoiceID != nil {
		parts = append(parts, "invoice="+s.InvoiceID.String())
	}
	if len(parts) == 0 {
		return "scope(empty)"
	}
	return "scope(" + strings.Join(parts, ",") + ")"
}
