package x402

import (
	"fmt"
	"net/http"
)

// PaymentError represents an error raised while negotiating or validating a
// payment. Code identifies the failed check; Cause carries the underlying
// error, if any.
type PaymentError struct {
	Code    string
	Message string
	Cause   error
}

func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// Error codes. Client-side codes (PaymentTooExpensive, PaymentRejected,
// MalformedOffer) are terminal negotiation failures; the rest map to HTTP
// statuses on the server side.
const (
	ErrCodeMalformedOffer         = "MALFORMED_OFFER"
	ErrCodeMalformedHeader        = "MALFORMED_HEADER"
	ErrCodeNetworkMismatch        = "NETWORK_MISMATCH"
	ErrCodeAssetMismatch          = "ASSET_MISMATCH"
	ErrCodeInvalidSignature       = "INVALID_SIGNATURE"
	ErrCodeExpiredPayment         = "EXPIRED_PAYMENT"
	ErrCodeRecipientMismatch      = "RECIPIENT_MISMATCH"
	ErrCodeInsufficientAmount     = "INSUFFICIENT_AMOUNT"
	ErrCodePaymentTooExpensive    = "PAYMENT_TOO_EXPENSIVE"
	ErrCodePaymentRejected        = "PAYMENT_REJECTED"
	ErrCodeCustomValidationFailed = "CUSTOM_VALIDATION_FAILED"
	ErrCodeSettlementUnavailable  = "SETTLEMENT_UNAVAILABLE"
	ErrCodeSettlementRejected     = "SETTLEMENT_REJECTED"
	ErrCodeInvalidPayment         = "INVALID_PAYMENT"
	ErrCodeInvalidConfig          = "INVALID_CONFIG"
)

// NewPaymentError creates a new PaymentError.
func NewPaymentError(code, message string, cause error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsPaymentError checks if an error is a PaymentError.
func IsPaymentError(err error) bool {
	_, ok := err.(*PaymentError)
	return ok
}

// GetPaymentErrorCode extracts the error code from a PaymentError.
func GetPaymentErrorCode(err error) string {
	if pe, ok := err.(*PaymentError); ok {
		return pe.Code
	}
	return ""
}

// HTTPStatus maps the error code to the status the server responds with:
// 400 for malformed or mismatched payments, 403 for signature and policy
// failures, 402 for settlement rejection, 502 when the delegate is
// unreachable and confirmation is mandatory, 500 otherwise.
func (e *PaymentError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeMalformedOffer, ErrCodeMalformedHeader, ErrCodeNetworkMismatch,
		ErrCodeAssetMismatch, ErrCodeExpiredPayment, ErrCodeRecipientMismatch,
		ErrCodeInsufficientAmount:
		return http.StatusBadRequest
	case ErrCodeInvalidSignature, ErrCodeCustomValidationFailed:
		return http.StatusForbidden
	case ErrCodeSettlementRejected:
		return http.StatusPaymentRequired
	case ErrCodeSettlementUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
