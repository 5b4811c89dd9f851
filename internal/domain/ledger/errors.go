package ledger

import "errors"

var (
	// ErrInsufficientBalance is a normal, expected outcome of Consume: the
	// employee's valid lots cannot cover the requested amount. The whole
	// consumption rolls back; nothing is partially debited.
	ErrInsufficientBalance = errors.New("insufficient leave coin balance")

	ErrInvalidAmount = errors.New("amount must be positive")
)
