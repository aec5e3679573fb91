package models

import (
	"time"

	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for a ledger entry.
type PaymentModel struct {
	BaseModel
	PaymentNumber     string                `gorm:"type:varchar(50);not null;uniqueIndex"`
	OrderID           *uuid.UUID            `gorm:"type:uuid;index"`
	InvoiceID         *uuid.UUID            `gorm:"type:uuid;index"`
	ClientID          uuid.UUID             `gorm:"type:uuid;index"`
	Amount            decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	PaymentMethod     billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	Status            billing.PaymentStatus `gorm:"type:varchar(20);not null;index"`
	PaymentDate       time.Time             `gorm:"not null;index"`
	BankName          string                `gorm:"type:varchar(100)"`
	CheckNumber       string                `gorm:"type:varchar(50)"`
	CheckDate         *time.Time
	CreditDueDate     *time.Time
	TransferReference string `gorm:"type:varchar(100)"`
	TransferDate      *time.Time
	ReferenceNumber   string     `gorm:"type:varchar(100)"`
	TransactionID     string     `gorm:"type:varchar(100)"`
	Notes             string     `gorm:"type:text"`
	OriginalPaymentID *uuid.UUID `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *billing.Payment {
	return &billing.Payment{
		BaseEntity:    m.BaseModel.ToDomain(),
		PaymentNumber: m.PaymentNumber,
		Scope:         billing.NewScope(m.OrderID, m.InvoiceID),
		ClientID:      m.ClientID,
		Amount:        m.Amount,
		Method:        m.PaymentMethod,
		Status:        m.Status,
		PaymentDate:   m.PaymentDate,
		Details: billing.MethodDetails{
			BankName:          m.BankName,
			CheckNumber:       m.CheckNumber,
			CheckDate:         m.CheckDate,
			CreditDueDate:     m.CreditDueDate,
			TransferReference: m.TransferReference,
			TransferDate:      m.TransferDate,
		},
		ReferenceNumber:   m.ReferenceNumber,
		TransactionID:     m.TransactionID,
		Notes:             m.Notes,
		OriginalPaymentID: m.OriginalPaymentID,
	}
}

// FromDomain populates the persistence model from a domain Payment.
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.PaymentNumber = p.PaymentNumber
	m.OrderID = p.Scope.OrderID
	m.InvoiceID = p.Scope.InvoiceID
	m.ClientID = p.ClientID
	m.Amount = p.Amount
	m.PaymentMethod = p.Method
	m.Status = p.Status
	m.PaymentDate = p.PaymentDate
	m.BankName = p.Details.BankName
	m.CheckNumber = p.Details.CheckNumber
	m.CheckDate = p.Details.CheckDate
	m.CreditDueDate = p.Details.CreditDueDate
	m.TransferReference = p.Details.TransferReference
	m.TransferDate = p.Details.TransferDate
	m.ReferenceNumber = p.ReferenceNumber
	m.TransactionID = p.TransactionID
	m.Notes = p.Notes
	m.OriginalPaymentID = p.OriginalPaymentID
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// InvoiceModel is the read model of the invoices table.
type InvoiceModel struct {
	BaseModel
	InvoiceNumber   string                `gorm:"type:varchar(50);not null;index"`
	OrderID         *uuid.UUID            `gorm:"type:uuid;index"`
	OrderNumber     string                `gorm:"type:varchar(50);index"`
	ClientID        uuid.UUID             `gorm:"type:uuid"`
	ClientName      string                `gorm:"type:varchar(200)"`
	ClientPhone     string                `gorm:"type:varchar(50)"`
	ClientAddress   string                `gorm:"type:text"`
	Items           billing.LineItems     `gorm:"type:jsonb;default:'[]'"`
	Subtotal        decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	TaxRate         decimal.Decimal       `gorm:"type:decimal(8,4);not null"`
	TaxAmount       decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	DiscountAmount  decimal.Decimal       `gorm:"type:decimal(18,4)"`
	TotalAmount     decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	PaidAmount      decimal.Decimal       `gorm:"type:decimal(18,4)"`
	RemainingAmount decimal.Decimal       `gorm:"type:decimal(18,4)"`
	Status          billing.InvoiceStatus `gorm:"type:varchar(20);not null;default:'draft'"`
	PaymentMethod   billing.PaymentMethod `gorm:"type:varchar(20)"`
	BankName        string                `gorm:"type:varchar(100)"`
	CheckNumber     string                `gorm:"type:varchar(50)"`
	CheckDate       *time.Time
	CreditDueDate   *time.Time
	InvoiceDate     time.Time
	DueDate         *time.Time
	Currency        string `gorm:"type:varchar(3)"`
	Notes           string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		BaseAggregateRoot: shared.BaseAggregateRoot{BaseEntity: m.BaseModel.ToDomain()},
		Totals: billing.Totals{
			Subtotal:       m.Subtotal,
			TaxRate:        m.TaxRate,
			TaxAmount:      m.TaxAmount,
			DiscountAmount: m.DiscountAmount,
			TotalAmount:    m.TotalAmount,
		},
		InvoiceNumber: m.InvoiceNumber,
		OrderID:       m.OrderID,
		OrderNumber:   m.OrderNumber,
		Client: billing.ClientSnapshot{
			ClientID: m.ClientID,
			Name:     m.ClientName,
			Phone:    m.ClientPhone,
			Address:  m.ClientAddress,
		},
		Items:           []billing.LineItem(m.Items),
		PaidAmount:      m.PaidAmount,
		RemainingAmount: m.RemainingAmount,
		Status:          m.Status,
		PaymentMethod:   m.PaymentMethod,
		Settlement: billing.MethodDetails{
			BankName:      m.BankName,
			CheckNumber:   m.CheckNumber,
			CheckDate:     m.CheckDate,
			CreditDueDate: m.CreditDueDate,
		},
		InvoiceDate: m.InvoiceDate,
		DueDate:     m.DueDate,
		Currency:    m.Currency,
		Notes:       m.Notes,
	}
}

// OrderModel is the read model of the orders table. Orders are created
// upstream; only payment_status and payment_method are written here.
type OrderModel struct {
	BaseModel
	OrderNumber   string                     `gorm:"type:varchar(50);not null;uniqueIndex"`
	ClientID      uuid.UUID                  `gorm:"type:uuid;index"`
	TotalAmount   decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	PaymentStatus billing.OrderPaymentStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	PaymentMethod billing.PaymentMethod      `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order.
func (m *OrderModel) ToDomain() *billing.Order {
	return &billing.Order{
		ID:            m.ID,
		OrderNumber:   m.OrderNumber,
		ClientID:      m.ClientID,
		TotalAmount:   m.TotalAmount,
		PaymentStatus: m.PaymentStatus,
		PaymentMethod: m.PaymentMethod,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Order.
func (m *OrderModel) FromDomain(o *billing.Order) {
	m.ID = o.ID
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt
	m.OrderNumber = o.OrderNumber
	m.ClientID = o.ClientID
	m.TotalAmount = o.TotalAmount
	m.PaymentStatus = o.PaymentStatus
	m.PaymentMethod = o.PaymentMethod
}
