package sift

import "errors"

// Sentinel errors for the sift package.
// Use errors.Is to check: errors.Is(err, sift.ErrEmptyBatch)
var (
	ErrEmptyBatch     = errors.New("sift: batch is empty")
	ErrNilPolicy      = errors.New("sift: no selection policy configured")
	ErrNotInitialized = errors.New("sift: Update called before Initialize")
	ErrNoEvaluator    = errors.New("sift: policy refreshes losses but no forward runner or loss computer is configured")
	ErrInvalidCadence = errors.New("sift: cadence must not be negative")
	ErrInvalidGroups  = errors.New("sift: invalid two-stage index groups")
	ErrIndexRange     = errors.New("sift: element index out of range")
	ErrWidthTooSmall  = errors.New("sift: formatting width below minimum of 5")
)
