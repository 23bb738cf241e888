package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrLockHeld = errors.New("a reschedule for this booking is already in progress")

	ErrHistoryNotFound = errors.New("reschedule history entry not found")
)
