package sift

// WorstGrow selects the element whose loss is growing fastest.
//
// Every selection pass re-evaluates every element under log-scale loss
// recording and estimates each element's loss derivative as the
// difference of its last two recorded values. An element with fewer
// than two records falls back to its current loss alone, so the first
// pass favors large absolute losses.
type WorstGrow struct{}

// NewWorstGrow returns a worst-grow policy.
func NewWorstGrow() *WorstGrow {
	return &WorstGrow{}
}

func (*WorstGrow) validate(s *Scheduler) error {
	if s.runner == nil || s.loss == nil {
		return ErrNoEvaluator
	}
	return nil
}

// Pick returns the 1-based index of the element with the largest loss
// derivative estimate. Ties keep the lowest index.
func (*WorstGrow) Pick(s *Scheduler) (int, error) {
	if err := s.refreshAll(); err != nil {
		return 0, err
	}

	best := 1
	bestGrow := lossGrowth(s.batch[0])
	for i := 2; i <= len(s.batch); i++ {
		if g := lossGrowth(s.batch[i-1]); g > bestGrow {
			best, bestGrow = i, g
		}
	}
	return best, nil
}

// lossGrowth estimates the derivative of an element's loss from its
// last two recorded values. Histories shorter than two entries yield
// the current loss itself.
func lossGrowth(e *Element) float64 {
	hist := e.LossHistory()
	if len(hist) >= 2 {
		return hist[len(hist)-1] - hist[len(hist)-2]
	}
	return finiteLoss(e.NominalLoss())
}

// LogScale implements Policy. Always true: the derivative estimate
// works on consecutive log-scale loss values.
func (*WorstGrow) LogScale() bool { return true }

// Name implements Policy.
func (*WorstGrow) Name() PolicyName { return WorstGrowPolicy }
