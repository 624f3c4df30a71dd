package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	// Validation
	ErrValidation    = errors.New("validation failed")
	ErrInvalidAmount = errors.New("invalid amount")

	// Authorization. Callers must not be able to tell "absent" from "not yours"
	ErrNotFoundOrUnauthorized = errors.New("not found or not authorized")

	ErrAccountNotFound     = errors.New("account not found")
	ErrBalanceInsufficient = errors.New("insufficient balance")

	ErrWorkOrderNotFound = errors.New("work order not found")
	ErrIllegalTransition = errors.New("illegal work order transition")

	ErrPaymentDeclined         = errors.New("payment declined")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentAlreadyProcessed = errors.New("payment with this external reference already processed")

	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrAlreadyProcessed   = errors.New("request already processed")

	ErrReviewNotFound      = errors.New("review not found")
	ErrReviewAlreadyExists = errors.New("review already exists for this work order")

	// Concurrent writer changed the row between read and conditional update
	ErrConflict = errors.New("concurrent modification")

	// Storage failure: connection loss, constraint we did not expect, etc.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError carries a message that is safe to show to the caller.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return ErrValidation.Error() + ": " + e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ValidationMessage returns the caller-facing part of a validation error only,
// so wrapping context added on the way up never reaches the response
func ValidationMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return "Invalid request"
}
