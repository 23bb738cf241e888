package errors

import "errors"

var (
	ErrNotFound = errors.New("rule not found")

	ErrInvalidID = errors.New("invalid rule ID format")

	ErrDuplicateActive = errors.New("an active rule already exists for this type and role")

	ErrConfigNotFound = errors.New("configuration entry not found")
)
