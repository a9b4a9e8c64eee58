package sift

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/sourcegraph/conc/pool"
)

// statusWidth is the rendered width of loss figures in status lines.
const statusWidth = 10

// ForwardRunner re-evaluates the model for a single batch element. The
// options are the ones handed to Scheduler.Initialize, forwarded
// verbatim.
type ForwardRunner interface {
	RunForward(e *Element, opts RunOptions) error
}

// LossComputer computes the loss of an element from its current model
// evaluation. When logScale is true the returned value is expected on a
// logarithmic scale. The scheduler records the returned value on the
// element itself.
type LossComputer interface {
	ComputeLoss(e *Element, logScale bool) (float64, error)
}

// Visualizer receives scheduler snapshots on the plot cadence.
// lastIndex is the element index selected before the current pass (0 at
// initialization). Failures are the visualizer's own responsibility.
type Visualizer interface {
	Visualize(s *Scheduler, lastIndex int)
}

// Config configures a Scheduler. Zero values produce sensible defaults
// except for the cadences, where 0 means "disabled"; see field comments.
type Config struct {
	Batch  Batch  // required
	Policy Policy // required

	// Runner and Loss re-evaluate elements on refresh passes. Required
	// by WorstElement, LossAccumulation and WorstGrow; unused by the
	// stateless policies.
	Runner ForwardRunner
	Loss   LossComputer

	// Visualizer fires on the PlotStep cadence. Optional.
	Visualizer Visualizer

	// ApplyStep is the re-selection cadence: the policy runs when
	// step%ApplyStep == 0. 0 keeps the selection made at Initialize for
	// the whole run.
	ApplyStep int

	// PlotStep is the visualization cadence; 0 disables the hook.
	PlotStep int

	// Parallelism bounds the worker count of refresh passes. Values
	// below 2 refresh sequentially in index order.
	Parallelism int

	// Seed seeds the policy RNG; zero → time-based seed.
	Seed int64

	// Logger receives per-step status lines and selection warnings.
	// nil → no logging.
	Logger log.Logger
}

// Scheduler drives element selection for one training run. It is not
// safe for concurrent use; Initialize and Update must be called from a
// single goroutine.
type Scheduler struct {
	batch  Batch
	policy Policy
	runner ForwardRunner
	loss   LossComputer
	viz    Visualizer

	applyStep   int
	plotStep    int
	parallelism int

	step         int
	elementIndex int
	losses       []float64
	logLoss      bool
	runOpts      RunOptions
	initialized  bool

	rng    *rand.Rand
	logger log.Logger
}

// NewScheduler creates a Scheduler from the given config. The batch and
// policy are required; policies with inputs of their own (exclusions,
// index groups, cadences) are validated here as well.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if len(cfg.Batch) == 0 {
		return nil, ErrEmptyBatch
	}
	if cfg.Policy == nil {
		return nil, ErrNilPolicy
	}
	if cfg.ApplyStep < 0 || cfg.PlotStep < 0 {
		return nil, fmt.Errorf("%w: apply step %d, plot step %d",
			ErrInvalidCadence, cfg.ApplyStep, cfg.PlotStep)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	s := &Scheduler{
		batch:       cfg.Batch,
		policy:      cfg.Policy,
		runner:      cfg.Runner,
		loss:        cfg.Loss,
		viz:         cfg.Visualizer,
		applyStep:   cfg.ApplyStep,
		plotStep:    cfg.PlotStep,
		parallelism: cfg.Parallelism,
		logLoss:     cfg.Policy.LogScale(),
		rng:         rand.New(rand.NewSource(seed)),
		logger:      logger,
	}

	if v, ok := cfg.Policy.(validator); ok {
		if err := v.validate(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Initialize prepares the scheduler for a training run: it resets the
// step counter and aggregate loss history, stores the run options for
// forwarding to the runner, and performs the initial selection pass.
// It must be called before the first Update; calling it again resets
// the run.
func (s *Scheduler) Initialize(opts RunOptions) error {
	s.step = 0
	s.elementIndex = 0
	s.losses = s.losses[:0]
	s.runOpts = opts

	idx, err := s.policy.Pick(s)
	if err != nil {
		return err
	}
	if idx == 0 {
		level.Warn(s.logger).Log("msg", "policy made no selection, keeping previous",
			"policy", s.policy.Name(), "index", s.elementIndex)
	}
	s.elementIndex = idx
	s.initialized = true

	if s.plotStep > 0 {
		s.visualize(0)
	}
	return nil
}

// Update advances the scheduler by one training step. On the apply
// cadence the policy picks a new element; every call appends the summed
// nominal loss of the batch (never-evaluated elements count as 0) to
// the aggregate loss history and emits a status line. Collaborator
// failures propagate unmodified, with no retry and no suppression.
func (s *Scheduler) Update() error {
	if !s.initialized {
		return ErrNotInitialized
	}

	lastIndex := s.elementIndex
	s.step++

	if s.applyStep > 0 && s.step%s.applyStep == 0 {
		idx, err := s.policy.Pick(s)
		if err != nil {
			return err
		}
		if idx == 0 {
			// Degenerate pass, e.g. every eligible element excluded:
			// keep the previous selection.
			level.Warn(s.logger).Log("msg", "policy made no selection, keeping previous",
				"policy", s.policy.Name(), "index", lastIndex)
			idx = lastIndex
		}
		s.elementIndex = idx
	}

	var sum float64
	maxLoss := finiteLoss(s.batch[0].NominalLoss())
	for _, e := range s.batch {
		v := finiteLoss(e.NominalLoss())
		sum += v
		if v > maxLoss {
			maxLoss = v
		}
	}
	avg := sum / float64(len(s.batch))
	s.losses = append(s.losses, sum)

	level.Debug(s.logger).Log("msg", "scheduler step",
		"step", s.step,
		"index", s.elementIndex,
		"avg", fmtLoss(avg),
		"max", fmtLoss(maxLoss),
		"sum", fmtLoss(sum),
	)

	if s.plotStep > 0 && s.step%s.plotStep == 0 {
		s.visualize(lastIndex)
	}
	return nil
}

// Step returns the number of completed Update calls since Initialize.
func (s *Scheduler) Step() int {
	return s.step
}

// ElementIndex returns the 1-based index of the currently selected
// element, or 0 when nothing is selected.
func (s *Scheduler) ElementIndex() int {
	return s.elementIndex
}

// Losses returns the aggregate loss history, one summed value per
// Update call. The returned slice is the scheduler's backing store;
// callers must not modify it.
func (s *Scheduler) Losses() []float64 {
	return s.losses
}

// Batch returns the batch the scheduler selects from.
func (s *Scheduler) Batch() Batch {
	return s.batch
}

// LogScale reports whether per-element losses are recorded on a
// logarithmic scale, as declared by the configured policy.
func (s *Scheduler) LogScale() bool {
	return s.logLoss
}

func (s *Scheduler) visualize(lastIndex int) {
	if s.viz != nil {
		s.viz.Visualize(s, lastIndex)
	}
}

// refreshAll re-evaluates every batch element (forward run followed by
// a fresh loss record) in index order, or across a bounded worker pool
// when Parallelism > 1. The first failure in index order wins; later
// ones are dropped only after every element had its turn.
func (s *Scheduler) refreshAll() error {
	if s.runner == nil || s.loss == nil {
		return ErrNoEvaluator
	}
	if s.parallelism > 1 {
		return s.refreshParallel()
	}
	for _, e := range s.batch {
		if err := s.refreshOne(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) refreshOne(e *Element) error {
	if err := s.runner.RunForward(e, s.runOpts); err != nil {
		return err
	}
	v, err := s.loss.ComputeLoss(e, s.logLoss)
	if err != nil {
		return err
	}
	e.RecordLoss(v)
	return nil
}

func (s *Scheduler) refreshParallel() error {
	errs := make([]error, len(s.batch))
	p := pool.New().WithMaxGoroutines(s.parallelism)
	for i, e := range s.batch {
		p.Go(func() {
			errs[i] = s.refreshOne(e)
		})
	}
	p.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func fmtLoss(v float64) string {
	out, err := RoundToLength(v, statusWidth)
	if err != nil {
		return fmt.Sprint(v)
	}
	return out
}

// schedulerJSON is the serialized snapshot of a Scheduler.
type schedulerJSON struct {
	Policy       PolicyName `json:"policy"`
	LogLoss      bool       `json:"log_loss"`
	ApplyStep    int        `json:"apply_step"`
	PlotStep     int        `json:"plot_step"`
	Parallelism  int        `json:"parallelism"`
	Step         int        `json:"step"`
	ElementIndex int        `json:"element_index"`
	Losses       []float64  `json:"losses,omitempty"`
}

// MarshalJSON implements json.Marshaler. The snapshot records the
// scheduler's configuration and position for experiment bookkeeping;
// the batch, the collaborators and the RNG state are not serialized.
func (s *Scheduler) MarshalJSON() ([]byte, error) {
	return json.Marshal(schedulerJSON{
		Policy:       s.policy.Name(),
		LogLoss:      s.logLoss,
		ApplyStep:    s.applyStep,
		PlotStep:     s.plotStep,
		Parallelism:  s.parallelism,
		Step:         s.step,
		ElementIndex: s.elementIndex,
		Losses:       s.losses,
	})
}
