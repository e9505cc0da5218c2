package phys

import (
	"math"
	"testing"
)

func TestMemWorldGravityIntegration(t *testing.T) {
	w := NewMemWorld(10)
	id, err := w.CreateBody(BodyConfig{Kind: Dynamic, Position: Vec3{Y: 100}, Mass: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	w.Step(1)
	vel, _ := w.Velocity(id)
	if math.Abs(vel.Y+10) > 1e-9 {
		t.Errorf("vel.Y = %v after 1s under g=10, want -10", vel.Y)
	}
	pos, _ := w.Position(id)
	if pos.Y >= 100 {
		t.Errorf("pos.Y = %v, body did not fall", pos.Y)
	}
}

func TestMemWorldGroundClamp(t *testing.T) {
	w := NewMemWorld(10)
	id, _ := w.CreateBody(BodyConfig{Kind: Dynamic, Position: Vec3{Y: 1}, Radius: 0.5})

	for i := 0; i < 100; i++ {
		w.Step(1.0 / 30)
	}
	pos, _ := w.Position(id)
	if math.Abs(pos.Y-0.5) > 1e-9 {
		t.Errorf("resting height = %v, want radius 0.5", pos.Y)
	}
	grounded, err := w.Grounded(id)
	if err != nil || !grounded {
		t.Errorf("grounded = %v (err %v), want true", grounded, err)
	}
}

func TestMemWorldKinematicNeverIntegrated(t *testing.T) {
	w := NewMemWorld(10)
	start := Vec3{X: 1, Y: 5}
	id, _ := w.CreateBody(BodyConfig{Kind: Kinematic, Position: start})

	w.Step(1)
	if err := w.ApplyImpulse(id, Vec3{X: 100}); err != nil {
		t.Fatalf("impulse on kinematic errored: %v", err)
	}
	w.Step(1)

	pos, _ := w.Position(id)
	vel, _ := w.Velocity(id)
	if pos != start {
		t.Errorf("kinematic moved to %v", pos)
	}
	if vel.Len() != 0 {
		t.Errorf("kinematic gained velocity %v", vel)
	}
}

func TestMemWorldImpulseScaledByMass(t *testing.T) {
	w := NewMemWorld(0)
	light, _ := w.CreateBody(BodyConfig{Kind: Dynamic, Position: Vec3{Y: 10}, Mass: 1})
	heavy, _ := w.CreateBody(BodyConfig{Kind: Dynamic, Position: Vec3{Y: 10, X: 5}, Mass: 2})

	w.ApplyImpulse(light, Vec3{X: 10})
	w.ApplyImpulse(heavy, Vec3{X: 10})

	vl, _ := w.Velocity(light)
	vh, _ := w.Velocity(heavy)
	if math.Abs(vl.X-10) > 1e-9 || math.Abs(vh.X-5) > 1e-9 {
		t.Errorf("velocities = %v / %v, want 10 / 5", vl.X, vh.X)
	}
}

func TestMemWorldRemovedBodyQueries(t *testing.T) {
	w := NewMemWorld(0)
	id, _ := w.CreateBody(BodyConfig{Kind: Dynamic})
	if err := w.RemoveBody(id); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := w.Position(id); err != ErrNoBody {
		t.Errorf("position error = %v, want ErrNoBody", err)
	}
	if err := w.RemoveBody(id); err != ErrNoBody {
		t.Errorf("double remove error = %v, want ErrNoBody", err)
	}
	if len(w.Bodies()) != 0 {
		t.Errorf("bodies = %v, want empty", w.Bodies())
	}
}

func TestMemWorldContactCount(t *testing.T) {
	w := NewMemWorld(0)
	a, _ := w.CreateBody(BodyConfig{Kind: Dynamic, Position: Vec3{Y: 0.5}, Radius: 0.5})
	w.CreateBody(BodyConfig{Kind: Dynamic, Position: Vec3{Y: 0.5, X: 0.8}, Radius: 0.5})
	c, _ := w.CreateBody(BodyConfig{Kind: Dynamic, Position: Vec3{Y: 10, X: 50}, Radius: 0.5})

	// a touches the ground and overlaps the neighbor.
	n, err := w.ContactCount(a)
	if err != nil || n != 2 {
		t.Errorf("contacts(a) = %d (err %v), want 2", n, err)
	}
	// c floats alone.
	n, _ = w.ContactCount(c)
	if n != 0 {
		t.Errorf("contacts(c) = %d, want 0", n)
	}
}
