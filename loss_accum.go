package sift

import "fmt"

// LossAccumulation selects the element with the largest accumulated
// loss.
//
// Each selection pass adds every element's nominal loss to a
// per-element accumulator and picks the largest total. The accumulator
// of the currently selected element is zeroed before the scan, so a
// just-trained element cannot win again immediately and low-loss
// elements accumulate their way to a selection eventually, bounding
// starvation. Losses are re-evaluated whenever the step count is a
// multiple of the update step; other passes accumulate the recorded
// values as they stand.
type LossAccumulation struct {
	updateStep int
	accu       []float64 // one slot per batch element, allocated by validate
}

// NewLossAccumulation returns a loss-accumulation policy. updateStep is
// the loss-recomputation cadence; 0 refreshes on every selection pass.
func NewLossAccumulation(updateStep int) *LossAccumulation {
	if updateStep == 0 {
		updateStep = 1
	}
	return &LossAccumulation{updateStep: updateStep}
}

func (p *LossAccumulation) validate(s *Scheduler) error {
	if p.updateStep < 0 {
		return fmt.Errorf("%w: update step %d", ErrInvalidCadence, p.updateStep)
	}
	if p.updateStep == 0 {
		// Zero-value policy: same default as the constructor.
		p.updateStep = 1
	}
	if s.runner == nil || s.loss == nil {
		return ErrNoEvaluator
	}
	p.accu = make([]float64, len(s.batch))
	return nil
}

// Pick returns the 1-based index of the element with the largest
// accumulated loss. Ties keep the lowest index.
func (p *LossAccumulation) Pick(s *Scheduler) (int, error) {
	if cur := s.elementIndex; cur > 0 {
		p.accu[cur-1] = 0
	}

	if s.step%p.updateStep == 0 {
		if err := s.refreshAll(); err != nil {
			return 0, err
		}
	}

	// Accumulate everything first so the arg max scan sees a fully
	// updated set.
	for i, e := range s.batch {
		p.accu[i] += finiteLoss(e.NominalLoss())
	}

	best := 1
	for i := 2; i <= len(s.batch); i++ {
		if p.accu[i-1] > p.accu[best-1] {
			best = i
		}
	}
	return best, nil
}

// Accumulated returns a copy of the per-element loss accumulators,
// index 0 holding the total for element 1. Nil before the policy is
// bound to a scheduler.
func (p *LossAccumulation) Accumulated() []float64 {
	if p.accu == nil {
		return nil
	}
	out := make([]float64, len(p.accu))
	copy(out, p.accu)
	return out
}

// LogScale implements Policy. Accumulated losses are recorded linearly.
func (p *LossAccumulation) LogScale() bool { return false }

// Name implements Policy.
func (p *LossAccumulation) Name() PolicyName { return LossAccumulationPolicy }
