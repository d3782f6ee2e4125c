package core

import (
	"errors"
)

var (
	// ErrResourceCreation is returned when the device refuses to create a
	// buffer, image, binding table or pipeline. It is never retried.
	ErrResourceCreation  = errors.New("resource creation failed")
	ErrSequenceViolation = errors.New("frame phase sequencing violation")
	ErrExtentMismatch    = errors.New("source and destination extents differ")
	ErrInvalidExtent     = errors.New("extent must be non-zero")
	ErrNotInitialized    = errors.New("not initialized")
	ErrReleased          = errors.New("handle already released")
	ErrUnknown           = errors.New("unknown")
)
