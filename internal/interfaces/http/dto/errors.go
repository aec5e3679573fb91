package dto

import (
	"net/http"

	"github.com/erp/backoffice/internal/domain/billing"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodePersistence is used when a ledger write failed and nothing was recorded
	ErrCodePersistence = "ERR_PERSISTENCE"
	// ErrCodeSchemaDrift is used when a write was rejected for a column the
	// deployed schema lacks, even after the reduced payload
	ErrCodeSchemaDrift = "ERR_SCHEMA_DRIFT"
)

// Input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// Resource error codes
const (
	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeRefundInProgress is used when another refund holds the guard
	// for the same payment
	ErrCodeRefundInProgress = "ERR_REFUND_IN_PROGRESS"
)

// Billing error codes
const (
	ErrCodeInvalidAmount         = "ERR_BILLING_INVALID_AMOUNT"
	ErrCodeInvalidPaymentMethod  = "ERR_BILLING_INVALID_PAYMENT_METHOD"
	ErrCodeMissingMethodDetails  = "ERR_BILLING_MISSING_METHOD_DETAILS"
	ErrCodeInvalidScope          = "ERR_BILLING_INVALID_SCOPE"
	ErrCodeInvalidLineItem       = "ERR_BILLING_INVALID_LINE_ITEM"
	ErrCodeInvalidInvoice        = "ERR_BILLING_INVALID_INVOICE"
	ErrCodeRefundExceedsNetPaid  = "ERR_BILLING_REFUND_EXCEEDS_NET_PAID"
	ErrCodeRefundExceedsOriginal = "ERR_BILLING_REFUND_EXCEEDS_ORIGINAL"
	ErrCodeRefundNotAllowed      = "ERR_BILLING_REFUND_NOT_ALLOWED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodePersistence: http.StatusInternalServerError,
	ErrCodeSchemaDrift: http.StatusInternalServerError,

	// Malformed input -> 400 Bad Request
	ErrCodeValidation:           http.StatusBadRequest,
	ErrCodeBadRequest:           http.StatusBadRequest,
	ErrCodeInvalidInput:         http.StatusBadRequest,
	ErrCodeInvalidJSON:          http.StatusBadRequest,
	ErrCodeInvalidAmount:        http.StatusBadRequest,
	ErrCodeInvalidPaymentMethod: http.StatusBadRequest,
	ErrCodeMissingMethodDetails: http.StatusBadRequest,
	ErrCodeInvalidScope:         http.StatusBadRequest,
	ErrCodeInvalidLineItem:      http.StatusBadRequest,
	ErrCodeInvalidInvoice:       http.StatusBadRequest,

	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeConflict:         http.StatusConflict,
	ErrCodeRefundInProgress: http.StatusConflict,

	// Well-formed but refused by the ledger -> 422 Unprocessable Entity
	ErrCodeRefundExceedsNetPaid:  http.StatusUnprocessableEntity,
	ErrCodeRefundExceedsOriginal: http.StatusUnprocessableEntity,
	ErrCodeRefundNotAllowed:      http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":         ErrCodeNotFound,
	"PAYMENT_NOT_FOUND": ErrCodeNotFound,
	"INVOICE_NOT_FOUND": ErrCodeNotFound,
	"INVALID_INPUT":     ErrCodeInvalidInput,
	"VALIDATION_ERROR":  ErrCodeValidation,
	"INTERNAL_ERROR":    ErrCodeInternal,

	billing.CodeScopeNotFound:         ErrCodeNotFound,
	billing.CodeInvalidAmount:         ErrCodeInvalidAmount,
	billing.CodeInvalidPaymentMethod:  ErrCodeInvalidPaymentMethod,
	billing.CodeMissingMethodDetails:  ErrCodeMissingMethodDetails,
	billing.CodeInvalidScope:          ErrCodeInvalidScope,
	billing.CodeInvalidLineItem:       ErrCodeInvalidLineItem,
	billing.CodeInvalidInvoice:        ErrCodeInvalidInvoice,
	billing.CodeRefundExceedsNetPaid:  ErrCodeRefundExceedsNetPaid,
	billing.CodeRefundExceedsOriginal: ErrCodeRefundExceedsOriginal,
	billing.CodeRefundNotAllowed:      ErrCodeRefundNotAllowed,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
