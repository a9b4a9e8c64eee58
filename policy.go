package sift

import "math"

// Policy selects the next batch element to optimize. The six
// implementations in this package form a closed set; Pick relies on
// scheduler internals that are not part of the public API.
//
// Pick must not change the scheduler's step or selected index (the
// driver owns those). It may mutate the policy's own auxiliary state and
// may re-evaluate batch elements through the scheduler's refresh pass.
type Policy interface {
	// Pick returns the 1-based index of the element to select next, or
	// 0 for "no selection".
	Pick(s *Scheduler) (int, error)

	// LogScale reports whether this policy records per-element losses
	// on a logarithmic scale.
	LogScale() bool

	// Name identifies the policy in logs and serialized snapshots.
	Name() PolicyName
}

// validator is implemented by policies that need batch-shaped state or
// input checking before the first selection pass. NewScheduler invokes
// it once, after the scheduler is assembled.
type validator interface {
	validate(s *Scheduler) error
}

// finiteLoss coerces the never-evaluated sentinel (and any other
// non-finite value) to 0 so it can neither win a comparison scan nor
// poison an aggregate sum.
func finiteLoss(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}
