package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrTimeConflict is returned by a store that rejects an overlapping write itself.
	ErrTimeConflict = errors.New("booking dates overlap an existing booking")

	ErrSpotNotFound = errors.New("spot not found")

	// ErrLockNotAcquired means the spot lock stayed held for the whole wait budget.
	ErrLockNotAcquired = errors.New("spot lock not acquired")
)
