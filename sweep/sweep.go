package sweep

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.uber.org/multierr"
)

var (
	// ErrNoCandidates is returned when Run is given nothing to grade.
	ErrNoCandidates = errors.New("sweep: no candidates")

	// ErrNoViableCandidate is returned by Best when every trial failed.
	ErrNoViableCandidate = errors.New("sweep: no candidate completed a trial")
)

// Candidate describes one gradient-backend configuration to time.
type Candidate struct {
	Name    string         `json:"name"`
	Options map[string]any `json:"options,omitempty"` // forwarded verbatim to the trial
}

// Grid expands backend names against chunk sizes into candidates, one
// per combination. Chunk sizes reach the trial as the "chunk_size"
// option; an empty chunkSizes yields one candidate per backend.
func Grid(backends []string, chunkSizes []int) []Candidate {
	if len(chunkSizes) == 0 {
		out := make([]Candidate, 0, len(backends))
		for _, b := range backends {
			out = append(out, Candidate{Name: b})
		}
		return out
	}
	out := make([]Candidate, 0, len(backends)*len(chunkSizes))
	for _, b := range backends {
		for _, cs := range chunkSizes {
			out = append(out, Candidate{
				Name:    fmt.Sprintf("%s/chunk=%d", b, cs),
				Options: map[string]any{"chunk_size": cs},
			})
		}
	}
	return out
}

// TrialFunc runs one gradient computation under the candidate
// configuration. Diagnostic output belongs on w, not on process stdout;
// the sweep owns w and collects it when the trial finishes, on every
// exit path. The function should honor ctx — a trial that ignores it
// keeps its goroutine alive past the timeout. A round abandoned at its
// deadline keeps writing to a buffer nobody reads anymore, so its
// partial output is dropped from the result.
type TrialFunc func(ctx context.Context, c Candidate, w io.Writer) error

// Config configures a sweep. Zero values produce sensible defaults.
type Config struct {
	Timeout time.Duration // per trial round; 0 → no timeout
	Rounds  int           // timed repetitions per candidate; 0 → 1
	Logger  log.Logger    // nil → no logging
}

// Result holds the graded outcome of one candidate.
type Result struct {
	Candidate Candidate
	Duration  time.Duration // best wall time across rounds; 0 when Err != nil
	Output    string        // captured trial output
	Err       error         // first round failure, or nil
}

// Run times every candidate and returns one result per candidate, in
// input order. A candidate failure is recorded in its result and the
// sweep moves on; Run itself fails only on empty input or outer context
// cancellation (returning the results gathered so far).
func Run(ctx context.Context, candidates []Candidate, trial TrialFunc, cfg Config) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	rounds := cfg.Rounds
	if rounds == 0 {
		rounds = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := runCandidate(ctx, c, trial, rounds, cfg.Timeout)
		if res.Err != nil {
			level.Warn(logger).Log("msg", "trial failed", "candidate", c.Name, "err", res.Err)
		} else {
			level.Debug(logger).Log("msg", "trial done", "candidate", c.Name, "duration", res.Duration)
		}
		results = append(results, res)
	}
	return results, nil
}

// runCandidate times up to rounds trial runs, keeping the best wall
// time. Each round writes into its own buffer, merged into the result
// only once the trial goroutine has finished; an abandoned round still
// owns its buffer and must not be read.
func runCandidate(ctx context.Context, c Candidate, trial TrialFunc, rounds int, timeout time.Duration) Result {
	var out bytes.Buffer
	res := Result{Candidate: c}

	for r := 0; r < rounds; r++ {
		var roundBuf bytes.Buffer
		elapsed, completed, err := runRound(ctx, c, trial, &roundBuf, timeout)
		if completed {
			out.Write(roundBuf.Bytes())
		}
		if err != nil {
			res.Err = err
			res.Duration = 0
			break
		}
		if r == 0 || elapsed < res.Duration {
			res.Duration = elapsed
		}
	}

	res.Output = out.String()
	return res
}

// runRound reports completed=true only when the trial goroutine has
// returned and w is safe to read again.
func runRound(ctx context.Context, c Candidate, trial TrialFunc, w io.Writer, timeout time.Duration) (time.Duration, bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- trial(ctx, c, w)
	}()

	select {
	case err := <-done:
		return time.Since(start), true, err
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}

// Best returns the fastest successful result. When every candidate
// failed it returns ErrNoViableCandidate wrapping the individual trial
// errors.
func Best(results []Result) (Result, error) {
	viable := make([]Result, 0, len(results))
	var failures error
	for _, r := range results {
		if r.Err != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", r.Candidate.Name, r.Err))
			continue
		}
		viable = append(viable, r)
	}
	if len(viable) == 0 {
		if failures == nil {
			return Result{}, ErrNoViableCandidate
		}
		return Result{}, fmt.Errorf("%w: %w", ErrNoViableCandidate, failures)
	}
	sort.SliceStable(viable, func(i, j int) bool { return viable[i].Duration < viable[j].Duration })
	return viable[0], nil
}
