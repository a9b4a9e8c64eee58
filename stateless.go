package sift

import (
	"fmt"

	"go.uber.org/multierr"
)

// Random selects a uniformly random element, independent of any loss
// history.
type Random struct{}

// NewRandom returns a random policy.
func NewRandom() *Random {
	return &Random{}
}

// Pick returns a uniformly sampled 1-based index.
func (*Random) Pick(s *Scheduler) (int, error) {
	return 1 + s.rng.Intn(len(s.batch)), nil
}

// LogScale implements Policy.
func (*Random) LogScale() bool { return false }

// Name implements Policy.
func (*Random) Name() PolicyName { return RandomPolicy }

// Sequential cycles through the batch in index order, wrapping back to
// the first element after the last. Deterministic given the current
// selection.
type Sequential struct{}

// NewSequential returns a sequential policy.
func NewSequential() *Sequential {
	return &Sequential{}
}

// Pick returns the index after the current selection, wrapping to 1.
func (*Sequential) Pick(s *Scheduler) (int, error) {
	idx := s.elementIndex + 1
	if idx > len(s.batch) {
		idx = 1
	}
	return idx, nil
}

// LogScale implements Policy.
func (*Sequential) LogScale() bool { return false }

// Name implements Policy.
func (*Sequential) Name() PolicyName { return SequentialPolicy }

// TwoStageRandom samples a group uniformly, then an element uniformly
// within that group. Groups may overlap or leave elements out; members
// of smaller groups carry a proportionally larger selection weight,
// which makes the policy useful for structured curricula such as
// grouping elements by experiment or trajectory.
type TwoStageRandom struct {
	groups [][]int
}

// NewTwoStageRandom returns a two-stage random policy over the given
// groups of 1-based batch indices. The groups are copied; later changes
// to the argument do not affect the policy.
func NewTwoStageRandom(groups [][]int) *TwoStageRandom {
	copied := make([][]int, len(groups))
	for i, g := range groups {
		copied[i] = append([]int(nil), g...)
	}
	return &TwoStageRandom{groups: copied}
}

func (p *TwoStageRandom) validate(s *Scheduler) error {
	var errs error
	if len(p.groups) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: no groups", ErrInvalidGroups))
	}
	for gi, g := range p.groups {
		if len(g) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: group %d is empty", ErrInvalidGroups, gi))
			continue
		}
		for _, idx := range g {
			if idx < 1 || idx > len(s.batch) {
				errs = multierr.Append(errs, fmt.Errorf("%w: group %d holds index %d outside [1, %d]",
					ErrInvalidGroups, gi, idx, len(s.batch)))
			}
		}
	}
	return errs
}

// Pick returns a member of a uniformly sampled group, itself sampled
// uniformly.
func (p *TwoStageRandom) Pick(s *Scheduler) (int, error) {
	g := p.groups[s.rng.Intn(len(p.groups))]
	return g[s.rng.Intn(len(g))], nil
}

// LogScale implements Policy.
func (*TwoStageRandom) LogScale() bool { return false }

// Name implements Policy.
func (*TwoStageRandom) Name() PolicyName { return TwoStageRandomPolicy }
