package billing

import "errors"

var (
	ErrNotFound     = errors.New("billing: not found")
	ErrConflict     = errors.New("billing: already exists")
	ErrInvalidInput = errors.New("billing: invalid input")
	ErrNoDocument   = errors.New("billing: document not found")
	ErrGeneration   = errors.New("billing: invoice generation failed")
	ErrShareFailed  = errors.New("billing: delivery failed")
	ErrAlreadyPaid  = errors.New("billing: invoice already paid")
	ErrCancelled    = errors.New("billing: invoice cancelled")
)
