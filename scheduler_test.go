package sift

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchOf builds a batch whose elements carry their "true" loss as the
// payload; dataLoss echoes it back on every refresh.
func batchOf(losses ...float64) Batch {
	data := make([]any, len(losses))
	for i, v := range losses {
		data[i] = v
	}
	return NewBatch(data...)
}

type stubRunner struct {
	calls    int
	lastOpts RunOptions
	err      error
}

func (r *stubRunner) RunForward(e *Element, opts RunOptions) error {
	r.calls++
	r.lastOpts = opts
	return r.err
}

// dataLoss replays the element payload as its loss.
type dataLoss struct {
	calls        int
	lastLogScale bool
}

func (l *dataLoss) ComputeLoss(e *Element, logScale bool) (float64, error) {
	l.calls++
	l.lastLogScale = logScale
	return e.Data.(float64), nil
}

// seqLoss pops per-element loss sequences keyed by payload name.
type seqLoss struct {
	queues map[any][]float64
}

func (l *seqLoss) ComputeLoss(e *Element, logScale bool) (float64, error) {
	q := l.queues[e.Data]
	if len(q) == 0 {
		return 0, fmt.Errorf("seqLoss: no values left for %v", e.Data)
	}
	v := q[0]
	l.queues[e.Data] = q[1:]
	return v, nil
}

type recordingViz struct {
	lastIndexes []int
	steps       []int
}

func (v *recordingViz) Visualize(s *Scheduler, lastIndex int) {
	v.lastIndexes = append(v.lastIndexes, lastIndex)
	v.steps = append(v.steps, s.Step())
}

// capturedLog collects every logged keyval line.
type capturedLog struct {
	lines [][]interface{}
}

func (c *capturedLog) logger() log.Logger {
	return log.LoggerFunc(func(keyvals ...interface{}) error {
		c.lines = append(c.lines, keyvals)
		return nil
	})
}

func (c *capturedLog) contains(key string, value interface{}) bool {
	for _, line := range c.lines {
		for i := 0; i+1 < len(line); i += 2 {
			if line[i] == key && line[i+1] == value {
				return true
			}
		}
	}
	return false
}

func mustScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	return s
}

// --- NewScheduler ---

func TestNewSchedulerRejectsEmptyBatch(t *testing.T) {
	_, err := NewScheduler(Config{Policy: NewRandom()})
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestNewSchedulerRejectsNilPolicy(t *testing.T) {
	_, err := NewScheduler(Config{Batch: batchOf(1, 2)})
	require.ErrorIs(t, err, ErrNilPolicy)
}

func TestNewSchedulerRejectsNegativeCadence(t *testing.T) {
	_, err := NewScheduler(Config{Batch: batchOf(1), Policy: NewRandom(), ApplyStep: -1})
	require.ErrorIs(t, err, ErrInvalidCadence)

	_, err = NewScheduler(Config{Batch: batchOf(1), Policy: NewRandom(), PlotStep: -3})
	require.ErrorIs(t, err, ErrInvalidCadence)
}

func TestNewSchedulerRequiresEvaluatorForRefreshingPolicies(t *testing.T) {
	for _, p := range []Policy{NewWorstElement(1), NewLossAccumulation(1), NewWorstGrow()} {
		_, err := NewScheduler(Config{Batch: batchOf(1, 2), Policy: p})
		assert.ErrorIs(t, err, ErrNoEvaluator, "policy %s", p.Name())
	}
}

// --- Initialize / Update driver ---

func TestUpdateBeforeInitialize(t *testing.T) {
	s := mustScheduler(t, Config{Batch: batchOf(1, 2), Policy: NewSequential(), ApplyStep: 1})
	require.ErrorIs(t, s.Update(), ErrNotInitialized)
}

func TestInitializeSelectsInitialElement(t *testing.T) {
	s := mustScheduler(t, Config{
		Batch:     batchOf(3, 7, 2),
		Policy:    NewWorstElement(1),
		Runner:    &stubRunner{},
		Loss:      &dataLoss{},
		ApplyStep: 1,
	})
	require.NoError(t, s.Initialize(nil))
	assert.Equal(t, 2, s.ElementIndex())
	assert.Equal(t, 0, s.Step())
	assert.Empty(t, s.Losses())
}

func TestLossesTrackStep(t *testing.T) {
	s := mustScheduler(t, Config{
		Batch:     batchOf(3, 7, 2),
		Policy:    NewWorstElement(1),
		Runner:    &stubRunner{},
		Loss:      &dataLoss{},
		ApplyStep: 1,
	})
	require.NoError(t, s.Initialize(nil))
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Update())
		assert.Len(t, s.Losses(), s.Step())
	}
	assert.Equal(t, 25, s.Step())
}

func TestUpdateAppliesOnCadenceOnly(t *testing.T) {
	s := mustScheduler(t, Config{Batch: batchOf(1, 2, 3), Policy: NewSequential(), ApplyStep: 2})
	require.NoError(t, s.Initialize(nil))
	require.Equal(t, 1, s.ElementIndex())

	require.NoError(t, s.Update()) // step 1, off cadence
	assert.Equal(t, 1, s.ElementIndex())

	require.NoError(t, s.Update()) // step 2, on cadence
	assert.Equal(t, 2, s.ElementIndex())
}

func TestUpdateWithZeroApplyStepKeepsInitialSelection(t *testing.T) {
	s := mustScheduler(t, Config{Batch: batchOf(1, 2, 3), Policy: NewSequential()})
	require.NoError(t, s.Initialize(nil))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Update())
	}
	assert.Equal(t, 1, s.ElementIndex())
}

func TestUpdateAggregatesNominalLosses(t *testing.T) {
	b := batchOf(0.0, 0.0, 0.0)
	b.Element(1).RecordLoss(2)
	b.Element(2).RecordLoss(3)
	// Element 3 never evaluated: +Inf coerced to 0 in the aggregate.

	s := mustScheduler(t, Config{Batch: b, Policy: NewRandom(), Seed: 1})
	require.NoError(t, s.Initialize(nil))
	require.NoError(t, s.Update())

	require.Len(t, s.Losses(), 1)
	assert.Equal(t, 5.0, s.Losses()[0])
}

func TestStatusLineMaxWithAllNegativeLosses(t *testing.T) {
	// Under log-scale recording losses below 1 record negative; the
	// reported maximum must be the largest of them, not a phantom 0.
	b := batchOf(0.0, 0.0, 0.0)
	b.Element(1).RecordLoss(-5)
	b.Element(2).RecordLoss(-2)
	b.Element(3).RecordLoss(-9)

	logged := &capturedLog{}
	s := mustScheduler(t, Config{Batch: b, Policy: NewRandom(), Seed: 1, Logger: logged.logger()})
	require.NoError(t, s.Initialize(nil))
	require.NoError(t, s.Update())

	want, err := RoundToLength(-2, statusWidth)
	require.NoError(t, err)
	assert.True(t, logged.contains("max", want))
}

func TestInitializeWarnsOnNoSelection(t *testing.T) {
	logged := &capturedLog{}
	s := mustScheduler(t, Config{
		Batch:     batchOf(0, 0, 0),
		Policy:    NewWorstElement(1),
		Runner:    &stubRunner{},
		Loss:      &dataLoss{},
		ApplyStep: 1,
		Logger:    logged.logger(),
	})
	require.NoError(t, s.Initialize(nil))
	assert.Equal(t, 0, s.ElementIndex())
	assert.True(t, logged.contains("msg", "policy made no selection, keeping previous"))
}

func TestUpdateKeepsPreviousIndexOnNoSelection(t *testing.T) {
	logged := &capturedLog{}
	s := mustScheduler(t, Config{
		Batch:  batchOf(0, 0, 0), // nothing ever has positive loss
		Policy: NewWorstElement(1),
		Runner: &stubRunner{},
		Loss:   &dataLoss{},

		ApplyStep: 1,
		Logger:    logged.logger(),
	})
	require.NoError(t, s.Initialize(nil))
	require.Equal(t, 0, s.ElementIndex())

	s.elementIndex = 2 // as if the driver had picked one manually
	require.NoError(t, s.Update())
	assert.Equal(t, 2, s.ElementIndex())
	assert.True(t, logged.contains("msg", "policy made no selection, keeping previous"))
}

func TestUpdatePropagatesRunnerFailure(t *testing.T) {
	boom := errors.New("solver diverged")
	s := mustScheduler(t, Config{
		Batch:     batchOf(3, 7),
		Policy:    NewWorstElement(1),
		Runner:    &stubRunner{err: boom},
		Loss:      &dataLoss{},
		ApplyStep: 1,
	})
	require.ErrorIs(t, s.Initialize(nil), boom)
}

func TestRunOptionsForwardedVerbatim(t *testing.T) {
	runner := &stubRunner{}
	s := mustScheduler(t, Config{
		Batch:     batchOf(3, 7),
		Policy:    NewWorstElement(1),
		Runner:    runner,
		Loss:      &dataLoss{},
		ApplyStep: 1,
	})
	opts := RunOptions{"abstol": 1e-8, "horizon": 4.0}
	require.NoError(t, s.Initialize(opts))
	assert.Equal(t, opts, runner.lastOpts)
}

func TestLogScaleComesFromPolicy(t *testing.T) {
	loss := &dataLoss{}
	s := mustScheduler(t, Config{
		Batch:     batchOf(3, 7),
		Policy:    NewWorstGrow(),
		Runner:    &stubRunner{},
		Loss:      loss,
		ApplyStep: 1,
	})
	assert.True(t, s.LogScale())
	require.NoError(t, s.Initialize(nil))
	assert.True(t, loss.lastLogScale)
}

// --- parallel refresh ---

type indexedLoss struct {
	failOn map[any]error
}

func (l *indexedLoss) ComputeLoss(e *Element, logScale bool) (float64, error) {
	if err, ok := l.failOn[e.Data]; ok {
		return 0, err
	}
	return e.Data.(float64), nil
}

func TestParallelRefreshRecordsAllLosses(t *testing.T) {
	s := mustScheduler(t, Config{
		Batch:       batchOf(3, 7, 2, 9, 1),
		Policy:      NewWorstElement(1),
		Runner:      &stubRunner{},
		Loss:        &dataLoss{},
		ApplyStep:   1,
		Parallelism: 4,
	})
	require.NoError(t, s.Initialize(nil))
	assert.Equal(t, 4, s.ElementIndex())
	for i, want := range []float64{3, 7, 2, 9, 1} {
		assert.Equal(t, want, s.Batch()[i].NominalLoss())
	}
}

func TestParallelRefreshFirstFailureWins(t *testing.T) {
	errSecond := errors.New("element two failed")
	errFourth := errors.New("element four failed")
	s := mustScheduler(t, Config{
		Batch:  batchOf(3, 7, 2, 9),
		Policy: NewWorstElement(1),
		Runner: &stubRunner{},
		Loss: &indexedLoss{failOn: map[any]error{
			7.0: errSecond,
			9.0: errFourth,
		}},
		ApplyStep:   1,
		Parallelism: 4,
	})
	err := s.Initialize(nil)
	require.ErrorIs(t, err, errSecond)
	require.NotErrorIs(t, err, errFourth)
}

// --- visualization hook ---

func TestVisualizerFiresOnCadence(t *testing.T) {
	viz := &recordingViz{}
	s := mustScheduler(t, Config{
		Batch:      batchOf(1, 2, 3),
		Policy:     NewSequential(),
		Visualizer: viz,
		ApplyStep:  1,
		PlotStep:   2,
	})
	require.NoError(t, s.Initialize(nil))
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Update())
	}

	// Initialize fires with lastIndex 0, then steps 2 and 4. At step 2
	// the pass moves 2→3, at step 4 it moves 1→2 (wrapped at step 3).
	assert.Equal(t, []int{0, 2, 4}, viz.steps)
	assert.Equal(t, []int{0, 2, 1}, viz.lastIndexes)
}

func TestVisualizerDisabledByZeroCadence(t *testing.T) {
	viz := &recordingViz{}
	s := mustScheduler(t, Config{
		Batch:      batchOf(1, 2),
		Policy:     NewSequential(),
		Visualizer: viz,
		ApplyStep:  1,
	})
	require.NoError(t, s.Initialize(nil))
	require.NoError(t, s.Update())
	assert.Empty(t, viz.steps)
}

// --- serialization ---

func TestSchedulerMarshalJSON(t *testing.T) {
	s := mustScheduler(t, Config{
		Batch:     batchOf(1, 2, 3),
		Policy:    NewSequential(),
		ApplyStep: 1,
		PlotStep:  5,
	})
	require.NoError(t, s.Initialize(nil))
	require.NoError(t, s.Update())

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var snap map[string]any
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "Sequential", snap["policy"])
	assert.Equal(t, float64(1), snap["step"])
	assert.Equal(t, float64(2), snap["element_index"])
	assert.Equal(t, float64(1), snap["apply_step"])
}
