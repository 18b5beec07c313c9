package reputation

import (
	"errors"
	"fmt"
)

// Sentinel kinds returned by the engine. Compare with errors.Is.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrPersistence   = errors.New("persistence failure")
	ErrPartialCredit = errors.New("one or more accepted volunteers were not credited")
	ErrPartialReset  = errors.New("one or more scores were not reset")
)

// CreditError records why one accepted application was not credited.
type CreditError struct {
	ApplicationID string
	UserID        string
	Cause         error
}

func (e CreditError) Error() string {
	if e.UserID == "" {
		return fmt.Sprintf("application %s: %v", e.ApplicationID, e.Cause)
	}
	return fmt.Sprintf("application %s (user %s): %v", e.ApplicationID, e.UserID, e.Cause)
}

func (e CreditError) Unwrap() error { return e.Cause }

// ResetError reports a score reset that wrote some users but not all.
// Written counts the writes that were applied.
type ResetError struct {
	Written int
	Errors  []error
}

func (e *ResetError) Error() string {
	return fmt.Sprintf("%v (%d written, %d failed): %v",
		ErrPartialReset, e.Written, len(e.Errors), errors.Join(e.Errors...))
}

// Unwrap exposes ErrPartialReset and every per-user failure.
func (e *ResetError) Unwrap() []error {
	return append([]error{ErrPartialReset}, e.Errors...)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
