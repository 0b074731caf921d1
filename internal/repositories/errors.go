package repositories

import "errors"

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when the unique email index rejects a write.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrDuplicateOrderNumber is returned when the unique order-number
	// index rejects a write (concurrent creates in the same month).
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)
