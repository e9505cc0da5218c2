package game

import (
	"log"
	"math"

	"github.com/pkg/errors"

	"blastrace/internal/phys"
)

// ImpulseEvent carries a launch impulse for a kinematic body. The resolver
// never mutates a kinematic transform; the owning movement controller
// consumes the event on its next update.
type ImpulseEvent struct {
	Body    phys.BodyID
	Impulse phys.Vec3
}

// BlastSettings tunes one explosion.
type BlastSettings struct {
	Radius       float64
	Force        float64
	SelfBoost    float64 // kinematic owner only
	AirborneMult float64 // kinematic only, when not grounded
	MinDistance  float64 // direction clamp floor
}

// DefaultBlastSettings returns the standard blast ability tuning.
func DefaultBlastSettings() BlastSettings {
	return BlastSettings{
		Radius:       BlastRadius,
		Force:        BlastForce,
		SelfBoost:    BlastSelfBoost,
		AirborneMult: BlastAirborneMult,
		MinDistance:  BlastMinDistance,
	}
}

// Resolver applies area-effect impulses around an explosion point.
// Dynamic bodies get the impulse through the physics API; kinematic bodies
// get an ImpulseEvent instead.
type Resolver struct {
	world       phys.World
	onKinematic func(ImpulseEvent)
}

// NewResolver creates a resolver. onKinematic may be nil, in which case
// kinematic impulse events are dropped.
func NewResolver(world phys.World, onKinematic func(ImpulseEvent)) *Resolver {
	return &Resolver{world: world, onKinematic: onKinematic}
}

// Resolve scans all world bodies and applies falloff-scaled impulses to
// those within s.Radius of center. The global scan is fine at the body
// counts this game runs. Returns the number of affected bodies.
//
// A query error on one body skips that body only; explosion resolution must
// always complete.
func (r *Resolver) Resolve(center phys.Vec3, owner phys.BodyID, s BlastSettings) int {
	affected := 0

	for _, id := range r.world.Bodies() {
		pos, err := r.world.Position(id)
		if err != nil {
			log.Printf("blast: position query for body %d: %v", id, errors.WithStack(err))
			continue
		}

		delta := pos.Sub(center)
		dist := delta.Len()
		if dist > s.Radius {
			continue
		}

		// A body sitting exactly at the center has no defined direction;
		// clamping to the floor both fixes that and bounds the magnitude.
		clamped := math.Max(dist, s.MinDistance)
		dir := delta.Scale(1 / clamped)
		falloff := 1 - math.Min(dist/s.Radius, 1)
		magnitude := s.Force * falloff

		kind, err := r.world.Kind(id)
		if err != nil {
			log.Printf("blast: kind query for body %d: %v", id, err)
			continue
		}

		switch kind {
		case phys.Dynamic:
			if err := r.world.ApplyImpulse(id, dir.Scale(magnitude)); err != nil {
				log.Printf("blast: impulse on body %d: %v", id, err)
				continue
			}
		case phys.Kinematic:
			// Self-boost and airborne multipliers apply only here: the
			// kinematic body is the locally-controlled player, and launches
			// are the point of the ability.
			if id == owner {
				magnitude *= s.SelfBoost
			}
			if airborne(r.world, id) {
				magnitude *= s.AirborneMult
			}
			if r.onKinematic != nil {
				r.onKinematic(ImpulseEvent{Body: id, Impulse: dir.Scale(magnitude)})
			}
		}
		affected++
	}

	return affected
}

// airborne checks for near-zero vertical velocity as a grounded proxy.
// A failed query counts as grounded; the smaller launch is the safe answer.
func airborne(w phys.World, id phys.BodyID) bool {
	vel, err := w.Velocity(id)
	if err != nil {
		return false
	}
	return math.Abs(vel.Y) > 1e-3
}
