package client

// FixedLoop decouples the fixed client physics step from the variable render
// rate: elapsed frame time is consumed in fixed slices, the remainder is
// carried forward, and a single frame's elapsed time is capped so a stall
// doesn't trigger a runaway catch-up burst.
type FixedLoop struct {
	stepSec     float64
	maxFrameSec float64
	accumulator float64
}

// NewFixedLoop creates a loop with the given fixed step and frame cap.
func NewFixedLoop(stepSec, maxFrameSec float64) *FixedLoop {
	if maxFrameSec < stepSec {
		maxFrameSec = stepSec
	}
	return &FixedLoop{stepSec: stepSec, maxFrameSec: maxFrameSec}
}

// Advance consumes elapsed seconds, invoking step once per fixed slice.
// Returns the number of steps taken.
func (l *FixedLoop) Advance(elapsedSec float64, step func(dt float64)) int {
	if elapsedSec > l.maxFrameSec {
		elapsedSec = l.maxFrameSec
	}
	l.accumulator += elapsedSec

	steps := 0
	for l.accumulator >= l.stepSec {
		step(l.stepSec)
		l.accumulator -= l.stepSec
		steps++
	}
	return steps
}
