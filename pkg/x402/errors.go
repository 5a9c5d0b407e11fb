// Package x402 - Error taxonomy
// Every failure mode of the payment flow maps to a typed error with a
// stable machine-readable code, so callers can branch on errors.As and
// servers can emit the code in JSON bodies.
package x402

import (
	"errors"
	"fmt"
)

// Error codes emitted in error responses and carried by ProtocolError.Code.
const (
	CodePaymentRequired            = "PAYMENT_REQUIRED"
	CodePaymentExpired             = "PAYMENT_EXPIRED"
	CodeInsufficientFunds          = "INSUFFICIENT_FUNDS"
	CodePaymentVerificationFailed  = "PAYMENT_VERIFICATION_FAILED"
	CodeTransactionBroadcastFailed = "TRANSACTION_BROADCAST_FAILED"
	CodeTransactionNotVisible      = "TRANSACTION_NOT_VISIBLE"
	CodeInvalidPaymentRequest      = "INVALID_PAYMENT_REQUEST"
	CodeInvalidAuthorization       = "INVALID_AUTHORIZATION"
	CodeReplayDetected             = "REPLAY_DETECTED"
	CodeVerificationUnavailable    = "VERIFICATION_UNAVAILABLE"
	CodeConfigurationError         = "CONFIGURATION_ERROR"
)

// ProtocolError is the base type for all payment protocol errors.
type ProtocolError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *ProtocolError) Unwrap() error {
	return e.cause
}

// PaymentRequiredError is returned when a server demands payment and the
// client has not (or is not allowed to) pay automatically.
type PaymentRequiredError struct {
	*ProtocolError
	Request *PaymentRequest
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *PaymentRequiredError) Unwrap() error { return e.ProtocolError }

// NewPaymentRequiredError wraps a 402 challenge in an error.
func NewPaymentRequiredError(req *PaymentRequest) *PaymentRequiredError {
	return &PaymentRequiredError{
		ProtocolError: &ProtocolError{
			Code:    CodePaymentRequired,
			Message: "payment required to access this resource",
		},
		Request: req,
	}
}

// PaymentExpiredError is returned when a payment request's expires_at has
// passed. The moment expires_at itself is reached counts as expired.
type PaymentExpiredError struct {
	*ProtocolError
	Request *PaymentRequest
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *PaymentExpiredError) Unwrap() error { return e.ProtocolError }

// NewPaymentExpiredError reports an expired payment request.
func NewPaymentExpiredError(req *PaymentRequest) *PaymentExpiredError {
	e := &PaymentExpiredError{
		ProtocolError: &ProtocolError{
			Code:    CodePaymentExpired,
			Message: "payment request has expired",
		},
		Request: req,
	}
	if req != nil {
		e.Details = map[string]interface{}{"payment_id": req.PaymentID, "expires_at": req.ExpiresAt}
	}
	return e
}

// InsufficientFundsError is returned before any transaction is built when
// the payer's token balance cannot cover the requested amount. Both amounts
// are decimal token-unit strings.
type InsufficientFundsError struct {
	*ProtocolError
	Required  string
	Available string
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *InsufficientFundsError) Unwrap() error { return e.ProtocolError }

// NewInsufficientFundsError reports a balance shortfall.
func NewInsufficientFundsError(required, available string) *InsufficientFundsError {
	return &InsufficientFundsError{
		ProtocolError: &ProtocolError{
			Code:    CodeInsufficientFunds,
			Message: fmt.Sprintf("insufficient funds: required %s, available %s", required, available),
			Details: map[string]interface{}{"required": required, "available": available},
		},
		Required:  required,
		Available: available,
	}
}

// PaymentVerificationError is returned when a transaction could be fetched
// from the ledger but did not satisfy the payment it claims to settle.
type PaymentVerificationError struct {
	*ProtocolError
	TransactionHash string
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *PaymentVerificationError) Unwrap() error { return e.ProtocolError }

// NewPaymentVerificationError reports a failed on-chain verification.
func NewPaymentVerificationError(reason, txHash string) *PaymentVerificationError {
	return &PaymentVerificationError{
		ProtocolError: &ProtocolError{
			Code:    CodePaymentVerificationFailed,
			Message: reason,
			Details: map[string]interface{}{"transaction_hash": txHash},
		},
		TransactionHash: txHash,
	}
}

// TransactionBroadcastError is returned when building, sending or confirming
// a ledger transaction fails. When Retryable is true the transaction may
// still land; callers should not assume funds did not move.
type TransactionBroadcastError struct {
	*ProtocolError
	TransactionHash string
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *TransactionBroadcastError) Unwrap() error { return e.ProtocolError }

// NewTransactionBroadcastError reports a broadcast or confirmation failure.
// txHash is empty when the transaction never reached the ledger.
func NewTransactionBroadcastError(reason, txHash string, cause error) *TransactionBroadcastError {
	e := &TransactionBroadcastError{
		ProtocolError: &ProtocolError{
			Code:    CodeTransactionBroadcastFailed,
			Message: reason,
			cause:   cause,
		},
		TransactionHash: txHash,
	}
	if txHash != "" {
		e.Details = map[string]interface{}{"transaction_hash": txHash}
	}
	return e
}

// TransactionNotVisibleError is returned by verification when the
// transaction does not exist on the ledger yet. Unlike a transaction that
// exists and failed, this condition is transient and worth retrying.
type TransactionNotVisibleError struct {
	*ProtocolError
	TransactionHash string
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *TransactionNotVisibleError) Unwrap() error { return e.ProtocolError }

// NewTransactionNotVisibleError reports a transaction the ledger has not
// surfaced yet.
func NewTransactionNotVisibleError(txHash string) *TransactionNotVisibleError {
	return &TransactionNotVisibleError{
		ProtocolError: &ProtocolError{
			Code:      CodeTransactionNotVisible,
			Message:   "transaction not yet visible on ledger",
			Retryable: true,
			Details:   map[string]interface{}{"transaction_hash": txHash},
		},
		TransactionHash: txHash,
	}
}

// InvalidPaymentRequestError is returned when a payment request is
// malformed or fails validation.
type InvalidPaymentRequestError struct {
	*ProtocolError
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *InvalidPaymentRequestError) Unwrap() error { return e.ProtocolError }

// NewInvalidPaymentRequestError reports a malformed payment request.
func NewInvalidPaymentRequestError(reason string) *InvalidPaymentRequestError {
	return &InvalidPaymentRequestError{
		ProtocolError: &ProtocolError{
			Code:    CodeInvalidPaymentRequest,
			Message: reason,
		},
	}
}

// InvalidAuthorizationError is returned when a payment authorization header
// cannot be decoded or fails validation.
type InvalidAuthorizationError struct {
	*ProtocolError
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *InvalidAuthorizationError) Unwrap() error { return e.ProtocolError }

// NewInvalidAuthorizationError reports a malformed or mismatched
// authorization.
func NewInvalidAuthorizationError(reason string) *InvalidAuthorizationError {
	return &InvalidAuthorizationError{
		ProtocolError: &ProtocolError{
			Code:    CodeInvalidAuthorization,
			Message: reason,
		},
	}
}

// ConfigurationError is returned for invalid configuration, including an
// automatic client refusing a payment above its configured ceiling.
type ConfigurationError struct {
	*ProtocolError
}

// Unwrap exposes the embedded *ProtocolError to errors.As.
func (e *ConfigurationError) Unwrap() error { return e.ProtocolError }

// NewConfigurationError reports an invalid configuration.
func NewConfigurationError(reason string) *ConfigurationError {
	return &ConfigurationError{
		ProtocolError: &ProtocolError{
			Code:    CodeConfigurationError,
			Message: reason,
		},
	}
}

// IsRetryable reports whether err is a protocol error marked retryable.
func IsRetryable(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// ErrorCode extracts the protocol error code from err, or "" when err is
// not a protocol error.
func ErrorCode(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
