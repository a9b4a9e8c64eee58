package sift

import "fmt"

// WorstElement selects the element with the largest nominal loss.
//
// Whenever the step count is a multiple of the update step the policy
// re-evaluates every element to refresh its nominal loss; other passes
// reuse the recorded values. Excluded elements are never selected. When
// no eligible element has positive loss the policy reports "no
// selection" and the driver keeps the previous index.
type WorstElement struct {
	updateStep int
	exclude    map[int]struct{}
}

// NewWorstElement returns a worst-element policy. updateStep is the
// loss-recomputation cadence; 0 refreshes on every selection pass.
// exclude lists 1-based indices that are never eligible for selection.
func NewWorstElement(updateStep int, exclude ...int) *WorstElement {
	if updateStep == 0 {
		updateStep = 1
	}
	m := make(map[int]struct{}, len(exclude))
	for _, idx := range exclude {
		m[idx] = struct{}{}
	}
	return &WorstElement{updateStep: updateStep, exclude: m}
}

func (p *WorstElement) validate(s *Scheduler) error {
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
	for idx := range p.exclude {
		if idx < 1 || idx > len(s.batch) {
			return fmt.Errorf("%w: excluded index %d outside [1, %d]",
				ErrIndexRange, idx, len(s.batch))
		}
	}
	return nil
}

// Pick returns the 1-based index of the eligible element with the
// largest nominal loss, or 0 when none has positive loss. Ties keep the
// lowest index.
func (p *WorstElement) Pick(s *Scheduler) (int, error) {
	if s.step%p.updateStep == 0 {
		if err := s.refreshAll(); err != nil {
			return 0, err
		}
	}

	best := 0
	bestLoss := 0.0
	for i := 1; i <= len(s.batch); i++ {
		if _, skip := p.exclude[i]; skip {
			continue
		}
		if v := finiteLoss(s.batch.Element(i).NominalLoss()); v > bestLoss {
			best, bestLoss = i, v
		}
	}
	return best, nil
}

// LogScale implements Policy. Worst-element losses are recorded linearly.
func (p *WorstElement) LogScale() bool { return false }

// Name implements Policy.
func (p *WorstElement) Name() PolicyName { return WorstElementPolicy }
