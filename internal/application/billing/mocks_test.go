package billing

import (
	"context"
	"sync"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// In-memory ledger
// =============================================================================

// memoryLedger is an append-only PaymentRepository backed by a slice
type memoryLedger struct {
	mu        sync.Mutex
	entries   []billing.Payment
	createErr error
	readErr   error
}

func (l *memoryLedger) FindByOrder(_ context.Context, orderID uuid.UUID, statuses ...billing.PaymentStatus) ([]billing.Payment, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	return l.find(func(p billing.Payment) bool {
		return p.Scope.OrderID != nil && *p.Scope.OrderID == orderID
	}, statuses), nil
}

func (l *memoryLedger) FindByInvoice(_ context.Context, invoiceID uuid.UUID, statuses ...billing.PaymentStatus) ([]billing.Payment, error) {
	if l.readErr != nil {
		return nil, l.readErr
	}
	return l.find(func(p billing.Payment) bool {
		return p.Scope.InvoiceID != nil && *p.Scope.InvoiceID == invoiceID
	}, statuses), nil
}

func (l *memoryLedger) FindByID(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			p := l.entries[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (l *memoryLedger) FindAll(_ context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	return l.find(func(p billing.Payment) bool {
		if filter.OrderID != nil && (p.Scope.OrderID == nil || *p.Scope.OrderID != *filter.OrderID) {
			return false
		}
		if filter.InvoiceID != nil && (p.Scope.InvoiceID == nil || *p.Scope.InvoiceID != *filter.InvoiceID) {
			return false
		}
		return true
	}, filter.Statuses), nil
}

func (l *memoryLedger) Count(ctx context.Context, filter billing.PaymentFilter) (int64, error) {
	all, _ := l.FindAll(ctx, filter)
	return int64(len(all)), nil
}

func (l *memoryLedger) Create(_ context.Context, payment *billing.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return l.createErr
	}
	l.entries = append(l.entries, *payment)
	return nil
}

func (l *memoryLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *memoryLedger) find(match func(billing.Payment) bool, statuses []billing.PaymentStatus) []billing.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []billing.Payment
	for _, p := range l.entries {
		if !match(p) {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, p.Status) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func containsStatus(statuses []billing.PaymentStatus, s billing.PaymentStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// =============================================================================
// Mock repositories
// =============================================================================

// MockInvoiceRepository is a mock implementation of billing.InvoiceRepository
type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*billing.Invoice, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) Insert(ctx context.Context, fields billing.Fields) error {
	args := m.Called(ctx, fields)
	return args.Error(0)
}

func (m *MockInvoiceRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields billing.Fields) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

// MockOrderRepository is a mock implementation of billing.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*billing.Order, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields billing.Fields) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// hasKey matches a Fields payload carrying the given column
func hasKey(column string) interface{} {
	return mock.MatchedBy(func(f billing.Fields) bool {
		_, ok := f[column]
		return ok
	})
}

// lacksKey matches a Fields payload without the given column
func lacksKey(column string) interface{} {
	return mock.MatchedBy(func(f billing.Fields) bool {
		_, ok := f[column]
		return !ok
	})
}

// decimalIs reports whether a payload column holds the given amount
func decimalIs(f billing.Fields, column string, want int64) bool {
	d, ok := f[column].(decimal.Decimal)
	return ok && d.Equal(decimal.NewFromInt(want))
}

func driftErr(table, column string) error {
	return &billing.SchemaDriftError{Table: table, Column: column, Err: assertErr("column does not exist")}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
