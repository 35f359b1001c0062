package auction

import (
	"errors"
	"fmt"
)

var (
	// ErrPositionNotOpen is returned when a bid arrives outside the
	// position's window, or after the position has been finalized.
	ErrPositionNotOpen = errors.New("position is not open for bidding")

	// ErrPositionStillOpen is returned when finalize is called before the
	// position window has elapsed.
	ErrPositionStillOpen = errors.New("position window has not elapsed")
)

// BidTooLowError reports a bid that does not strictly exceed the current
// highest bid on the position.
type BidTooLowError struct {
	Amount  int64
	Highest int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid of %d must be strictly greater than the current highest bid %d", e.Amount, e.Highest)
}

// IsBidTooLow checks if an error is a BidTooLowError
func IsBidTooLow(err error) bool {
	var be *BidTooLowError
	return errors.As(err, &be)
}
