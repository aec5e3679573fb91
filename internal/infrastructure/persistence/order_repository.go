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

const ordersTable = "orders"

// GormOrderRepository implements billing.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByOrderNumber finds an order by its business number
func (r *GormOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*billing.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("order_number = ?", orderNumber))
}

func (r *GormOrderRepository) first(query *gorm.DB) (*billing.Order, error) {
	var model models.OrderModel
	if err := query.Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdateFields writes the given columns of one order
func (r *GormOrderRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields billing.Fields) error {
	result := r.db.WithContext(ctx).Table(ordersTable).
		Where("id = ?", id).
		Updates(map[string]interface{}(fields))
	if result.Error != nil {
		return classifyWriteError(ordersTable, result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormOrderRepository implements billing.OrderRepository
var _ billing.OrderRepository = (*GormOrderRepository)(nil)
