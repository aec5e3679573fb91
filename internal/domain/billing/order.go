package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is the commercial transaction a sale starts from. Orders are created
// upstream; this service reads them and writes back the derived payment status.
type Order struct {
	ID            uuid.UUID          `json:"id"`
	OrderNumber   string             `json:"order_number"`
	ClientID      uuid.UUID          `json:"client_id"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	PaymentStatus OrderPaymentStatus `json:"payment_status"`
	PaymentMethod PaymentMethod      `json:"payment_method,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ApplyLedger derives the payment status from the order ledger and returns
// the projection to persist. A non-empty method is written along with it.
func (o *Order) ApplyLedger(summary LedgerSummary, method PaymentMethod) OrderProjection {
	o.PaymentStatus = DeriveOrderPaymentStatusFromSummary(o.TotalAmount, summary)
	proj := OrderProjection{
		OrderID:       o.ID,
		PaymentStatus: o.PaymentStatus,
	}
	if method.IsValid() {
		o.PaymentMethod = method
		proj.PaymentMethod = method
	}
	return proj
}
