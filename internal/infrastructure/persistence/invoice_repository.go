package persistence

import (
	"context"
	"errors"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const invoicesTable = "invoices"

// GormInvoiceRepository implements billing.InvoiceRepository using GORM.
// Writes go through column maps so a payload naming a column the deployed
// schema lacks fails with a *billing.SchemaDriftError.
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByOrderID finds the most recent invoice of an order
func (r *GormInvoiceRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*billing.Invoice, error) {
	return r.first(r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at DESC"))
}

// FindByOrderNumber finds the most recent invoice carrying an order number
func (r *GormInvoiceRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*billing.Invoice, error) {
	return r.first(r.db.WithContext(ctx).Where("order_number = ?", orderNumber).Order("created_at DESC"))
}

func (r *GormInvoiceRepository) first(query *gorm.DB) (*billing.Invoice, error) {
	var model models.InvoiceModel
	if err := query.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Insert writes a new invoice row from a column payload
func (r *GormInvoiceRepository) Insert(ctx context.Context, fields billing.Fields) error {
	err := r.db.WithContext(ctx).Table(invoicesTable).Create(map[string]interface{}(fields)).Error
	return classifyWriteError(invoicesTable, err)
}

// UpdateFields writes the given columns of one invoice
func (r *GormInvoiceRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields billing.Fields) error {
	result := r.db.WithContext(ctx).Table(invoicesTable).
		Where("id = ?", id).
		Updates(map[string]interface{}(fields))
	if result.Error != nil {
		return classifyWriteError(invoicesTable, result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormInvoiceRepository implements billing.InvoiceRepository
var _ billing.InvoiceRepository = (*GormInvoiceRepository)(nil)
