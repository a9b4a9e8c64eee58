// Package sweep grades gradient-backend configurations by timing trial
// runs.
//
// Training drivers built on sift usually have several interchangeable
// gradient-computation backends (sensitivity algorithms, chunk sizes,
// checkpointing schemes) whose relative performance depends on the
// model at hand. sweep runs one timed trial per candidate
// configuration, captures the trial's diagnostic output into a buffer
// scoped to the trial, and reports the fastest viable candidate.
//
// # Usage
//
//	candidates := sweep.Grid([]string{"forward", "adjoint"}, []int{32, 64})
//	results, err := sweep.Run(ctx, candidates, trial, sweep.Config{
//	    Timeout: 30 * time.Second,
//	    Rounds:  3,
//	})
//	best, err := sweep.Best(results)
//
// Trials run sequentially so timings do not distort each other. A trial
// writes its diagnostics to the io.Writer it is handed instead of
// process stdout, and should honor its context for cancellation.
package sweep
