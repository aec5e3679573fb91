package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM.
// The ledger is append-only: no update or delete is exposed.
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a ledger entry by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOrder returns every entry scoped to the order, optionally restricted
// to the given statuses, oldest first
func (r *GormPaymentRepository) FindByOrder(ctx context.Context, orderID uuid.UUID, statuses ...billing.PaymentStatus) ([]billing.Payment, error) {
	return r.findByScope(ctx, "order_id = ?", orderID, statuses)
}

// FindByInvoice returns every entry scoped to the invoice, optionally
// restricted to the given statuses, oldest first
func (r *GormPaymentRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID, statuses ...billing.PaymentStatus) ([]billing.Payment, error) {
	return r.findByScope(ctx, "invoice_id = ?", invoiceID, statuses)
}

func (r *GormPaymentRepository) findByScope(ctx context.Context, cond string, id uuid.UUID, statuses []billing.PaymentStatus) ([]billing.Payment, error) {
	query := r.db.WithContext(ctx).Where(cond, id)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var paymentModels []models.PaymentModel
	if err := query.Order("created_at ASC").Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	return toDomainPayments(paymentModels), nil
}

// FindAll lists ledger entries matching the filter
func (r *GormPaymentRepository) FindAll(ctx context.Context, filter billing.PaymentFilter) ([]billing.Payment, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentModel{}), filter)

	sortField := ValidateSortField(filter.OrderBy, PaymentSortFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)
	query = query.Order(sortField + " " + sortOrder)

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize).Offset(filter.Offset())
	}

	var paymentModels []models.PaymentModel
	if err := query.Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	return toDomainPayments(paymentModels), nil
}

// Count counts ledger entries matching the filter
func (r *GormPaymentRepository) Count(ctx context.Context, filter billing.PaymentFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.PaymentModel{}), filter).Count(&count).Error
	return count, err
}

// Create appends a new entry
func (r *GormPaymentRepository) Create(ctx context.Context, payment *billing.Payment) error {
	return r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error
}

// ChangedScopes lists the distinct scopes that received ledger entries at or
// after since, in the order they first changed.
func (r *GormPaymentRepository) ChangedScopes(ctx context.Context, since time.Time, limit int) ([]billing.ScopeChange, error) {
	var rows []struct {
		OrderID   *uuid.UUID
		InvoiceID *uuid.UUID
		ChangedAt ledgerTime
	}
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Select("order_id, invoice_id, MIN(created_at) AS changed_at").
		Where("created_at >= ?", since).
		Group("order_id, invoice_id").
		Order("changed_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	changes := make([]billing.ScopeChange, 0, len(rows))
	for _, row := range rows {
		scope := billing.NewScope(row.OrderID, row.InvoiceID)
		if scope.IsEmpty() {
			continue
		}
		changes = append(changes, billing.ScopeChange{Scope: scope, ChangedAt: row.ChangedAt.Time})
	}
	return changes, nil
}

// ledgerTime scans an aggregated timestamp. Postgres returns a time, SQLite
// returns the stored text since aggregates carry no declared type.
type ledgerTime struct {
	time.Time
}

func (t *ledgerTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", value)
	}
}

func (t *ledgerTime) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

func (r *GormPaymentRepository) applyFilter(query *gorm.DB, filter billing.PaymentFilter) *gorm.DB {
	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.OriginalPaymentID != nil {
		query = query.Where("original_payment_id = ?", *filter.OriginalPaymentID)
	}
	if filter.FromDate != nil {
		query = query.Where("payment_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("payment_date <= ?", *filter.ToDate)
	}
	return query
}

func toDomainPayments(paymentModels []models.PaymentModel) []billing.Payment {
	payments := make([]billing.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = *paymentModels[i].ToDomain()
	}
	return payments
}

// Ensure GormPaymentRepository implements billing.PaymentRepository
var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
