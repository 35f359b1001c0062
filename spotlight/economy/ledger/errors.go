package ledger

import (
	"errors"
	"fmt"
)

// Business-rule failures are typed so callers can render user-facing
// messages instead of treating them as transport errors.
var (
	// ErrInsufficientFunds is returned when a debit exceeds the spendable
	// balance. The failed call has no side effects.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLimitExceeded is returned when an award would push the account
	// past its daily earning cap.
	ErrLimitExceeded = errors.New("daily earning limit exceeded")
)

// ValidationError reports a rejected input: a non-positive amount or an
// unknown activity kind.
type ValidationError struct {
	Field  string
	Reason string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", ve.Field, ve.Reason)
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
