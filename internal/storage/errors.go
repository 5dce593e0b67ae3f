package storage

import "errors"

var (
	// ErrInvalidArgument is returned when an input is missing or malformed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a record does not exist in the user's index.
	ErrNotFound = errors.New("not found")

	errUserIDRequired = errors.New("userId required")
	errUserIDUnsafe   = errors.New("userId must be a single path segment")
	errUserIDReserved = errors.New("userId is reserved")
	errInvalidJSON    = errors.New("document is not valid JSON")
)
