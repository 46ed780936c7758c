package claimsx

import (
	"errors"
	"fmt"
)

// ErrorCode represents claims and verification error categories.
type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "claims_not_found"
	ErrCodeDecryption        ErrorCode = "decryption_failed"
	ErrCodeConfiguration     ErrorCode = "configuration_error"
	ErrCodeStoreUnavailable  ErrorCode = "store_unavailable"
	ErrCodeSecretUnavailable ErrorCode = "secret_unavailable"
	ErrCodeInvalidToken      ErrorCode = "invalid_token"
	ErrCodeKeyNotFound       ErrorCode = "key_not_found"
	ErrCodeInvalidSignature  ErrorCode = "invalid_signature"
	ErrCodeExpired           ErrorCode = "token_expired"
	ErrCodeInvalidAudience   ErrorCode = "invalid_audience"
	ErrCodeJWKSUnavailable   ErrorCode = "jwks_unavailable"
	ErrCodeInvalidUser       ErrorCode = "invalid_user"
	ErrCodeInternal          ErrorCode = "internal_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeNotFound:          "Claims not found",
	ErrCodeDecryption:        "Claims could not be decrypted",
	ErrCodeConfiguration:     "Invalid configuration",
	ErrCodeStoreUnavailable:  "Claims store unavailable",
	ErrCodeSecretUnavailable: "Secret unavailable",
	ErrCodeInvalidToken:      "Invalid token",
	ErrCodeKeyNotFound:       "Signing key not found",
	ErrCodeInvalidSignature:  "Invalid signature",
	ErrCodeExpired:           "Token expired",
	ErrCodeInvalidAudience:   "Invalid audience",
	ErrCodeJWKSUnavailable:   "JWKS unavailable",
	ErrCodeInvalidUser:       "Invalid user",
	ErrCodeInternal:          "Internal error",
}

// Error wraps claimsx errors with a stable code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error carrying the same code, so that
// errors.Is(err, &Error{Code: ErrCodeNotFound}) works across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Err == nil
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// NewError builds an *Error for the given code. Store and secret backends
// use it so their failures carry the same taxonomy as the core.
func NewError(code ErrorCode, err error) error {
	return newError(code, err)
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when err is not a claimsx error. A nil err yields "".
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err means no claims exist for an identifier.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsDecryption reports whether err means a stored blob was rejected by the codec.
func IsDecryption(err error) bool {
	return CodeOf(err) == ErrCodeDecryption
}

// isRetryable reports whether err is a transient dependency failure.
func isRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeStoreUnavailable, ErrCodeSecretUnavailable, ErrCodeJWKSUnavailable:
		return true
	}
	return false
}
