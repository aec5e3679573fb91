package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod represents how money changed hands. Every method is recorded
// as an already-settled fact.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCredit       PaymentMethod = "credit"
	PaymentMethodOther        PaymentMethod = "other"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodBankTransfer,
		PaymentMethodCredit, PaymentMethodOther:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// SettlesImmediately reports whether confirming a sale with this method
// means the money was received on the spot. Credit defers settlement.
func (m PaymentMethod) SettlesImmediately() bool {
	return m.IsValid() && m != PaymentMethodCredit
}

// PaymentStatus represents the state of a ledger entry
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// Reconciles reports whether entries with this status move money.
// Pending and failed entries never contributed anything.
func (s PaymentStatus) Reconciles() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusRefunded
}

// ReconcilableStatuses lists the statuses read by the reconciliation engine
func ReconcilableStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusCompleted, PaymentStatusRefunded}
}

// MethodDetails holds the method-specific information captured with a payment
type MethodDetails struct {
	BankName          string     `json:"bank_name,omitempty"`
	CheckNumber       string     `json:"check_number,omitempty"`
	CheckDate         *time.Time `json:"check_date,omitempty"`
	CreditDueDate     *time.Time `json:"credit_due_date,omitempty"`
	TransferReference string     `json:"transfer_reference,omitempty"`
	TransferDate      *time.Time `json:"transfer_date,omitempty"`
}

// Validate checks that the details required by the method are present.
// Check needs bank, number and date; bank transfer needs bank, reference
// and date; credit needs a due date.
func (d MethodDetails) Validate(method PaymentMethod) error {
	var missing []string
	switch method {
	case PaymentMethodCheck:
		if strings.TrimSpace(d.BankName) == "" {
			missing = append(missing, "bank_name")
		}
		if strings.TrimSpace(d.CheckNumber) == "" {
			missing = append(missing, "check_number")
		}
		if d.CheckDate == nil || d.CheckDate.IsZero() {
			missing = append(missing, "check_date")
		}
	case PaymentMethodBankTransfer:
		if strings.TrimSpace(d.BankName) == "" {
			missing = append(missing, "bank_name")
		}
		if strings.TrimSpace(d.TransferReference) == "" {
			missing = append(missing, "transfer_reference")
		}
		if d.TransferDate == nil || d.TransferDate.IsZero() {
			missing = append(missing, "transfer_date")
		}
	case PaymentMethodCredit:
		if d.CreditDueDate == nil || d.CreditDueDate.IsZero() {
			missing = append(missing, "credit_due_date")
		}
	}
	if len(missing) > 0 {
		return shared.NewDomainError(CodeMissingMethodDetails,
			fmt.Sprintf("Payment method %s requires: %s", method, strings.Join(missing, ", ")))
	}
	return nil
}

// ForMethod drops details that do not belong to the given method
func (d MethodDetails) ForMethod(method PaymentMethod) MethodDetails {
	switch method {
	case PaymentMethodCheck:
		return MethodDetails{BankName: d.BankName, CheckNumber: d.CheckNumber, CheckDate: d.CheckDate}
	case PaymentMethodBankTransfer:
		return MethodDetails{BankName: d.BankName, TransferReference: d.TransferReference, TransferDate: d.TransferDate}
	case PaymentMethodCredit:
		return MethodDetails{CreditDueDate: d.CreditDueDate}
	}
	return MethodDetails{}
}

// Payment is a ledger fact. It is never mutated once written; corrections
// are made by appending a refund entry.
type Payment struct {
	shared.BaseEntity
	PaymentNumber     string          `json:"payment_number"`
	Scope             Scope           `json:"scope"`
	ClientID          uuid.UUID       `json:"client_id"`
	Amount            decimal.Decimal `json:"amount"`
	Method            PaymentMethod   `json:"payment_method"`
	Status            PaymentStatus   `json:"status"`
	PaymentDate       time.Time       `json:"payment_date"`
	Details           MethodDetails   `json:"details"`
	ReferenceNumber   string          `json:"reference_number,omitempty"`
	TransactionID     string          `json:"transaction_id,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	OriginalPaymentID *uuid.UUID      `json:"original_payment_id,omitempty"`
}

// NewPaymentInput carries the data needed to record a received payment
type NewPaymentInput struct {
	Scope           Scope
	ClientID        uuid.UUID
	Amount          decimal.Decimal
	Method          PaymentMethod
	Details         MethodDetails
	PaymentDate     time.Time
	ReferenceNumber string
	TransactionID   string
	Notes           string
}

// NewPayment validates the input and builds a completed ledger entry
func NewPayment(in NewPaymentInput) (*Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, shared.NewDomainError(CodeInvalidAmount, "Payment amount must be positive")
	}
	if !in.Method.IsValid() {
		return nil, shared.NewDomainError(CodeInvalidPaymentMethod,
			fmt.Sprintf("Payment method %q is not supported", in.Method))
	}
	if err := in.Scope.Validate(); err != nil {
		return nil, err
	}
	if err := in.Details.Validate(in.Method); err != nil {
		return nil, err
	}

	paymentDate := in.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	return &Payment{
		BaseEntity:      shared.NewBaseEntity(),
		PaymentNumber:   NewPaymentNumber("PAY"),
		Scope:           in.Scope,
		ClientID:        in.ClientID,
		Amount:          in.Amount,
		Method:          in.Method,
		Status:          PaymentStatusCompleted,
		PaymentDate:     paymentDate,
		Details:         in.Details.ForMethod(in.Method),
		ReferenceNumber: strings.TrimSpace(in.ReferenceNumber),
		TransactionID:   strings.TrimSpace(in.TransactionID),
		Notes:           in.Notes,
	}, nil
}

// NewRefundInput carries the data needed to record money returned
type NewRefundInput struct {
	Scope           Scope
	ClientID        uuid.UUID
	Amount          decimal.Decimal
	Method          PaymentMethod
	ReferenceNumber string
	Reason          string
	Original        *Payment
}

// NewRefund builds a refunded ledger entry. When an original payment is
// given, the refund inherits its scope, client, method and reference.
// Net-paid checks are the caller's job; this only validates shape.
func NewRefund(in NewRefundInput) (*Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, shared.NewDomainError(CodeInvalidAmount, "Refund amount must be positive")
	}

	refund := &Payment{
		BaseEntity:      shared.NewBaseEntity(),
		PaymentNumber:   NewPaymentNumber("REF"),
		Scope:           in.Scope,
		ClientID:        in.ClientID,
		Amount:          in.Amount,
		Method:          in.Method,
		Status:          PaymentStatusRefunded,
		PaymentDate:     time.Now(),
		ReferenceNumber: strings.TrimSpace(in.ReferenceNumber),
		Notes:           in.Reason,
	}

	if orig := in.Original; orig != nil {
		if orig.Status != PaymentStatusCompleted {
			return nil, shared.NewDomainError(CodeRefundNotAllowed,
				fmt.Sprintf("Only completed payments can be refunded, payment %s is %s", orig.PaymentNumber, orig.Status))
		}
		if in.Amount.GreaterThan(orig.Amount) {
			return nil, shared.NewDomainError(CodeRefundExceedsOriginal,
				fmt.Sprintf("Refund amount %s exceeds original payment amount %s", in.Amount.StringFixed(2), orig.Amount.StringFixed(2)))
		}
		origID := orig.ID
		refund.OriginalPaymentID = &origID
		refund.Scope = orig.Scope
		refund.ClientID = orig.ClientID
		refund.Method = orig.Method
		refund.ReferenceNumber = orig.Reference()
	}

	if !refund.Method.IsValid() {
		return nil, shared.NewDomainError(CodeInvalidPaymentMethod,
			fmt.Sprintf("Payment method %q is not supported", refund.Method))
	}
	if err := refund.Scope.Validate(); err != nil {
		return nil, err
	}
	return refund, nil
}

// Reference returns the reference number, falling back to the transaction id
func (p *Payment) Reference() string {
	if p.ReferenceNumber != "" {
		return p.ReferenceNumber
	}
	return p.TransactionID
}

// IsRefund reports whether the entry returns money
func (p *Payment) IsRefund() bool {
	return p.Status == PaymentStatusRefunded
}

// NewPaymentNumber generates a human-facing ledger number such as PAY-1718000000000-3f2a
func NewPaymentNumber(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), uuid.NewString()[:4])
}
