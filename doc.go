// Package sift schedules which element of a training batch receives the
// next optimization update.
//
// sift provides a Scheduler that, once per training step, selects one
// element of a fixed ordered batch based on accumulated or freshly
// measured per-element losses. The model, the loss function and the
// optimizer itself stay outside the package and are consumed through
// narrow interfaces ([ForwardRunner], [LossComputer], [Visualizer]).
//
// Six selection policies are available: [WorstElement],
// [LossAccumulation], [WorstGrow], [Random], [Sequential] and
// [TwoStageRandom]. Element indices are 1-based throughout; index 0
// means "no selection".
//
// Basic usage:
//
//	s, err := sift.NewScheduler(sift.Config{
//	    Batch:     batch,
//	    Policy:    sift.NewWorstElement(2),
//	    Runner:    runner,
//	    Loss:      loss,
//	    ApplyStep: 1,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := s.Initialize(nil); err != nil {
//	    log.Fatal(err)
//	}
//	for !converged {
//	    if err := s.Update(); err != nil {
//	        log.Fatal(err)
//	    }
//	    train(batch.Element(s.ElementIndex()))
//	}
package sift
