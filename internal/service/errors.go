package service

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a write would duplicate a unique SKU.
	ErrConflict = errors.New("conflict")

	// ErrJobNotPending is returned when re-submitting a job that already ran.
	ErrJobNotPending = errors.New("job is not pending")
)
