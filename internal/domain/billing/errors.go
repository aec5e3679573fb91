package billing

import (
	"errors"
	"fmt"

	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/google/uuid"
)

// Validation error codes. Every one of them is raised before the ledger is
// touched, so callers can retry after fixing the input.
const (
	CodeInvalidAmount         = "INVALID_AMOUNT"
	CodeInvalidPaymentMethod  = "INVALID_PAYMENT_METHOD"
	CodeMissingMethodDetails  = "MISSING_METHOD_DETAILS"
	CodeInvalidScope          = "INVALID_SCOPE"
	CodeScopeNotFound         = "SCOPE_NOT_FOUND"
	CodeRefundExceedsNetPaid  = "REFUND_EXCEEDS_NET_PAID"
	CodeRefundExceedsOriginal = "REFUND_EXCEEDS_ORIGINAL"
	CodeRefundNotAllowed      = "REFUND_NOT_ALLOWED"
	CodeInvalidLineItem       = "INVALID_LINE_ITEM"
	CodeInvalidInvoice        = "INVALID_INVOICE"
)

var validationCodes = map[string]struct{}{
	CodeInvalidAmount:         {},
	CodeInvalidPaymentMethod:  {},
	CodeMissingMethodDetails:  {},
	CodeInvalidScope:          {},
	CodeScopeNotFound:         {},
	CodeRefundExceedsNetPaid:  {},
	CodeRefundExceedsOriginal: {},
	CodeRefundNotAllowed:      {},
	CodeInvalidLineItem:       {},
	CodeInvalidInvoice:        {},
	shared.ErrValidation.Code: {},
}

// IsValidationError reports whether err is a billing validation failure
func IsValidationError(err error) bool {
	code := shared.ErrorCode(err)
	if code == "" {
		return false
	}
	_, ok := validationCodes[code]
	return ok
}

// ErrUnknownField is matched by every SchemaDriftError. Storage adapters
// must return it (wrapped) when a write names a column the deployed schema
// does not have; any other failure is treated as opaque.
var ErrUnknownField = errors.New("unrecognized field")

// SchemaDriftError reports a projection write rejected because the target
// table lacks one of the written columns.
type SchemaDriftError struct {
	Table  string
	Column string
	Err    error
}

func (e *SchemaDriftError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s: unrecognized field %q: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: unrecognized field: %v", e.Table, e.Err)
}

// Unwrap returns the driver error
func (e *SchemaDriftError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnknownField) hold for drift errors
func (e *SchemaDriftError) Is(target error) bool {
	return target == ErrUnknownField
}

// IsSchemaDrift reports whether err carries a SchemaDriftError
func IsSchemaDrift(err error) bool {
	return errors.Is(err, ErrUnknownField)
}

// PersistenceError wraps a failed ledger write. It is fatal for the
// operation that produced it: nothing was recorded.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err carries a PersistenceError
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// ProjectionTarget names the record a propagation write was aimed at
type ProjectionTarget string

const (
	ProjectionTargetInvoice ProjectionTarget = "invoice"
	ProjectionTargetOrder   ProjectionTarget = "order"
)

// PropagationWarning describes a projection write that failed after the
// ledger was already updated. The ledger stays correct; the projection
// catches up on the next successful propagation for the scope.
type PropagationWarning struct {
	Target  ProjectionTarget `json:"target"`
	ID      uuid.UUID        `json:"id"`
	Reduced bool             `json:"reduced_payload"`
	Message string           `json:"message"`
	Err     error            `json:"-"`
}

func (w PropagationWarning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Target, w.ID, w.Message)
}
