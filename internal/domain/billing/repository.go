package billing

import (
	"context"
	"time"

	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
)

// PaymentFilter defines filtering options for ledger queries
type PaymentFilter struct {
	shared.Filter
	OrderID           *uuid.UUID      // Filter by order scope
	InvoiceID         *uuid.UUID      // Filter by invoice scope
	ClientID          *uuid.UUID      // Filter by client
	Statuses          []PaymentStatus // Filter by any of these statuses
	OriginalPaymentID *uuid.UUID      // Filter refunds of one payment
	FromDate          *time.Time      // Filter by payment date range start
	ToDate            *time.Time      // Filter by payment date range end
}

// ScopeChange is a scope that received ledger entries, with the time of its
// earliest entry in the queried window
type ScopeChange struct {
	Scope     Scope
	ChangedAt time.Time
}

// PaymentRepository is the ledger. Entries are append-only: there is no
// update or delete.
type PaymentRepository interface {
	LedgerReader

	// FindByID finds a ledger entry by ID. Returns nil, nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindAll lists ledger entries matching the filter
	FindAll(ctx context.Context, filter PaymentFilter) ([]Payment, error)

	// Count counts ledger entries matching the filter
	Count(ctx context.Context, filter PaymentFilter) (int64, error)

	// Create appends a new entry
	Create(ctx context.Context, payment *Payment) error
}

// InvoiceRepository reads invoices and applies column-level writes.
// Writes naming a column the schema lacks must fail with an error matching
// ErrUnknownField.
type InvoiceRepository interface {
	// FindByID finds an invoice by ID. Returns nil, nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByOrderID finds the most recent invoice of an order
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*Invoice, error)

	// FindByOrderNumber finds the most recent invoice carrying an order number
	FindByOrderNumber(ctx context.Context, orderNumber string) (*Invoice, error)

	// Insert writes a new invoice row from a column payload
	Insert(ctx context.Context, fields Fields) error

	// UpdateFields writes the given columns of one invoice
	UpdateFields(ctx context.Context, id uuid.UUID, fields Fields) error
}

// OrderRepository reads orders and writes their payment columns
type OrderRepository interface {
	// FindByID finds an order by ID. Returns nil, nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByOrderNumber finds an order by its business number
	FindByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)

	// UpdateFields writes the given columns of one order
	UpdateFields(ctx context.Context, id uuid.UUID, fields Fields) error
}
