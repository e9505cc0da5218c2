package client

import "testing"

func TestFixedLoopAccumulates(t *testing.T) {
	loop := NewFixedLoop(1.0/30, 0.25)

	// Half a step: nothing runs, remainder carries.
	if steps := loop.Advance(1.0/60, func(dt float64) {}); steps != 0 {
		t.Errorf("steps = %d for half a slice, want 0", steps)
	}
	// The second half completes the slice.
	if steps := loop.Advance(1.0/60, func(dt float64) {}); steps != 1 {
		t.Errorf("steps = %d after accumulation, want 1", steps)
	}
}

func TestFixedLoopFixedDt(t *testing.T) {
	const step = 1.0 / 30
	loop := NewFixedLoop(step, 0.25)

	loop.Advance(0.1, func(dt float64) {
		if dt != step {
			t.Errorf("dt = %v, want fixed %v", dt, step)
		}
	})
}

func TestFixedLoopCapsFrameTime(t *testing.T) {
	const step = 1.0 / 30
	loop := NewFixedLoop(step, 0.25)

	// A 10-second stall must not replay 300 steps.
	cap := 0.25
	steps := loop.Advance(10, func(dt float64) {})
	if steps > int(cap/step)+1 {
		t.Errorf("steps = %d after a stall, want at most %d", steps, int(cap/step)+1)
	}
}

func TestFixedLoopCapBelowStep(t *testing.T) {
	// A cap smaller than the step would deadlock the loop; the constructor
	// raises it.
	loop := NewFixedLoop(1.0/30, 0.001)
	if steps := loop.Advance(1.0/30, func(dt float64) {}); steps != 1 {
		t.Errorf("steps = %d, want 1", steps)
	}
}
