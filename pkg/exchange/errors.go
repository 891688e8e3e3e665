package exchange

import "errors"

var (
	// ErrInsufficientFunds means the pre-match fund check failed.
	// Nothing was mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOrderNotFound covers cancellation of an unknown order, including
	// the race where the order was fully matched after the lock-free
	// pre-check.
	ErrOrderNotFound = errors.New("order not found")

	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidOrder rejects non-positive price or quantity.
	ErrInvalidOrder = errors.New("invalid order")
)
