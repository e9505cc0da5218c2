package phys

import "math"

// MemWorld is a minimal in-memory World implementation: gravity integration
// for dynamic bodies, a ground plane at y=0, sphere-sphere contact pairs.
// It exists so the server and tests run without binding a real engine.
type MemWorld struct {
	gravity float64
	nextID  BodyID
	bodies  map[BodyID]*memBody
}

type memBody struct {
	kind   Kind
	pos    Vec3
	vel    Vec3
	radius float64
	mass   float64
}

// NewMemWorld creates an empty world. gravity is the downward acceleration
// in units/s^2 (pass a positive value).
func NewMemWorld(gravity float64) *MemWorld {
	return &MemWorld{
		gravity: gravity,
		nextID:  1,
		bodies:  make(map[BodyID]*memBody),
	}
}

func (w *MemWorld) CreateBody(cfg BodyConfig) (BodyID, error) {
	id := w.nextID
	w.nextID++

	radius := cfg.Radius
	if radius <= 0 {
		radius = 0.5
	}
	mass := cfg.Mass
	if mass <= 0 {
		mass = 1
	}
	w.bodies[id] = &memBody{
		kind:   cfg.Kind,
		pos:    cfg.Position,
		vel:    cfg.Velocity,
		radius: radius,
		mass:   mass,
	}
	return id, nil
}

func (w *MemWorld) RemoveBody(id BodyID) error {
	if _, ok := w.bodies[id]; !ok {
		return ErrNoBody
	}
	delete(w.bodies, id)
	return nil
}

func (w *MemWorld) Step(dt float64) {
	for _, b := range w.bodies {
		if b.kind != Dynamic {
			continue
		}
		b.vel.Y -= w.gravity * dt
		b.pos = b.pos.Add(b.vel.Scale(dt))

		// Ground plane: clamp and kill downward velocity.
		if b.pos.Y-b.radius < 0 {
			b.pos.Y = b.radius
			if b.vel.Y < 0 {
				b.vel.Y = 0
			}
		}
	}
}

func (w *MemWorld) Position(id BodyID) (Vec3, error) {
	b, ok := w.bodies[id]
	if !ok {
		return Vec3{}, ErrNoBody
	}
	return b.pos, nil
}

func (w *MemWorld) Velocity(id BodyID) (Vec3, error) {
	b, ok := w.bodies[id]
	if !ok {
		return Vec3{}, ErrNoBody
	}
	return b.vel, nil
}

func (w *MemWorld) SetTransform(id BodyID, pos Vec3) error {
	b, ok := w.bodies[id]
	if !ok {
		return ErrNoBody
	}
	b.pos = pos
	return nil
}

func (w *MemWorld) SetVelocity(id BodyID, vel Vec3) error {
	b, ok := w.bodies[id]
	if !ok {
		return ErrNoBody
	}
	b.vel = vel
	return nil
}

func (w *MemWorld) ApplyImpulse(id BodyID, impulse Vec3) error {
	b, ok := w.bodies[id]
	if !ok {
		return ErrNoBody
	}
	if b.kind == Kinematic {
		return nil
	}
	b.vel = b.vel.Add(impulse.Scale(1 / b.mass))
	return nil
}

func (w *MemWorld) ContactCount(id BodyID) (int, error) {
	b, ok := w.bodies[id]
	if !ok {
		return 0, ErrNoBody
	}

	count := 0
	if b.pos.Y-b.radius <= 1e-6 {
		count++
	}
	for other, ob := range w.bodies {
		if other == id {
			continue
		}
		if Dist(b.pos, ob.pos) <= b.radius+ob.radius {
			count++
		}
	}
	return count, nil
}

func (w *MemWorld) Kind(id BodyID) (Kind, error) {
	b, ok := w.bodies[id]
	if !ok {
		return Dynamic, ErrNoBody
	}
	return b.kind, nil
}

func (w *MemWorld) Bodies() []BodyID {
	ids := make([]BodyID, 0, len(w.bodies))
	for id := range w.bodies {
		ids = append(ids, id)
	}
	return ids
}

// Grounded reports whether a body is resting on the ground plane, using a
// near-zero vertical velocity check plus height proximity.
func (w *MemWorld) Grounded(id BodyID) (bool, error) {
	b, ok := w.bodies[id]
	if !ok {
		return false, ErrNoBody
	}
	return math.Abs(b.vel.Y) < 1e-3 && b.pos.Y-b.radius <= 1e-3, nil
}
