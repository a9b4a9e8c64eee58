package sift

import "math"

// Element is one individually evaluable training sample. The scheduler
// treats the Data payload as opaque: it only reads the recorded loss
// history and asks the configured collaborators to refresh it.
type Element struct {
	// Data is the driver-owned training payload (sample, trajectory, ...).
	Data any

	losses []float64
}

// NewElement wraps a driver payload in an element with no recorded losses.
func NewElement(data any) *Element {
	return &Element{Data: data}
}

// RecordLoss appends a loss value to the element's history.
func (e *Element) RecordLoss(v float64) {
	e.losses = append(e.losses, v)
}

// LossHistory returns the recorded losses, oldest first. The returned
// slice is the element's backing store; callers must not modify it.
func (e *Element) LossHistory() []float64 {
	return e.losses
}

// NominalLoss returns the most recently recorded loss, or +Inf if the
// element has never been evaluated.
func (e *Element) NominalLoss() float64 {
	if len(e.losses) == 0 {
		return math.Inf(1)
	}
	return e.losses[len(e.losses)-1]
}

// Batch is a fixed ordered collection of elements. Indices used
// throughout this package are 1-based positions in this slice. The batch
// is owned by the training driver; the scheduler holds a non-owning
// reference, and element positions must stay stable for the scheduler's
// lifetime.
type Batch []*Element

// NewBatch wraps each payload in a fresh element, preserving order.
func NewBatch(data ...any) Batch {
	b := make(Batch, len(data))
	for i, d := range data {
		b[i] = NewElement(d)
	}
	return b
}

// Element returns the element at the 1-based index idx.
func (b Batch) Element(idx int) *Element {
	return b[idx-1]
}

// RunOptions carries run-time keyword options (solver tolerances,
// integration horizon, ...) forwarded verbatim to the forward runner.
// The scheduler stores but never interprets them.
type RunOptions map[string]any
