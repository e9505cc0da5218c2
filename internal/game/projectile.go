package game

import (
	"log"
	"time"

	"github.com/pkg/errors"

	"blastrace/internal/phys"
)

// ProjectileSettings tunes one projectile spawn.
type ProjectileSettings struct {
	Speed float64
	Fuse  time.Duration
	Blast BlastSettings
}

// DefaultProjectileSettings returns the standard blast projectile tuning.
func DefaultProjectileSettings() ProjectileSettings {
	return ProjectileSettings{
		Speed: BlastSpeed,
		Fuse:  BlastFuse,
		Blast: DefaultBlastSettings(),
	}
}

// projectile is one in-flight record.
type projectile struct {
	body     phys.BodyID
	owner    phys.BodyID
	settings ProjectileSettings

	spawnedAt  time.Time
	exploded   bool
	removed    bool
	lastPos    phys.Vec3
	stuckTicks int
}

// ProjectileManager owns in-flight projectiles and decides explosion timing.
//
// Collision is heuristic: contact events from the engine are not delivered
// reliably per step, so four independent signals are ORed each tick. Multiple
// firing in the same tick still explode the projectile once.
type ProjectileManager struct {
	world    phys.World
	resolver *Resolver

	// OnExplode, if set, is called after area effects are applied.
	OnExplode func(owner phys.BodyID, at phys.Vec3, affected int, now time.Time)

	projectiles []*projectile
}

// NewProjectileManager creates a manager resolving explosions through r.
func NewProjectileManager(world phys.World, r *Resolver) *ProjectileManager {
	return &ProjectileManager{
		world:       world,
		resolver:    r,
		projectiles: make([]*projectile, 0, MaxProjectiles),
	}
}

// Spawn creates a projectile body at origin moving along dir at the
// configured speed. Over-cap spawns are dropped and logged.
func (m *ProjectileManager) Spawn(origin, dir phys.Vec3, owner phys.BodyID, s ProjectileSettings, now time.Time) error {
	if len(m.projectiles) >= MaxProjectiles {
		log.Printf("projectile: cap reached (%d), dropping spawn", MaxProjectiles)
		return nil
	}
	owned := 0
	for _, p := range m.projectiles {
		if p.owner == owner {
			owned++
		}
	}
	if owned >= MaxProjectilesPerOwner {
		log.Printf("projectile: per-owner cap reached for body %d", owner)
		return nil
	}

	body, err := m.world.CreateBody(phys.BodyConfig{
		Kind:     phys.Dynamic,
		Position: origin,
		Velocity: dir.Normalized().Scale(s.Speed),
		Radius:   0.15,
		Mass:     0.5,
	})
	if err != nil {
		return errors.Wrap(err, "projectile: create body")
	}

	m.projectiles = append(m.projectiles, &projectile{
		body:      body,
		owner:     owner,
		settings:  s,
		spawnedAt: now,
		lastPos:   origin,
	})
	return nil
}

// Active returns the number of live projectiles.
func (m *ProjectileManager) Active() int {
	return len(m.projectiles)
}

// Tick advances every live projectile: explode on fuse expiry, otherwise OR
// the four collision heuristics. Records that exploded or failed a physics
// query are dropped in place.
func (m *ProjectileManager) Tick(now time.Time) {
	n := 0
	for _, p := range m.projectiles {
		m.step(p, now)
		if p.exploded || p.removed {
			if err := m.world.RemoveBody(p.body); err != nil && !errors.Is(err, phys.ErrNoBody) {
				log.Printf("projectile: release body %d: %v", p.body, err)
			}
			continue
		}
		m.projectiles[n] = p
		n++
	}
	m.projectiles = m.projectiles[:n]
}

func (m *ProjectileManager) step(p *projectile, now time.Time) {
	if p.exploded || p.removed {
		return
	}

	age := now.Sub(p.spawnedAt)
	if age >= p.settings.Fuse {
		m.explode(p, now)
		return
	}

	pos, err := m.world.Position(p.body)
	if err != nil {
		m.abandon(p, errors.Wrap(err, "position query"))
		return
	}

	// (a) Stuck: displacement below threshold for several consecutive ticks.
	if phys.Dist(pos, p.lastPos) < StuckDisplacement {
		p.stuckTicks++
	} else {
		p.stuckTicks = 0
	}
	p.lastPos = pos

	if p.stuckTicks >= StuckTicks {
		m.explode(p, now)
		return
	}

	// (b) Crawling: speed below threshold past a short grace period.
	if age > SlowGrace {
		vel, err := m.world.Velocity(p.body)
		if err != nil {
			m.abandon(p, errors.Wrap(err, "velocity query"))
			return
		}
		if vel.Len() < SlowSpeedFloor {
			m.explode(p, now)
			return
		}
	}

	// (c) Touching something past a very short grace period.
	if age > ContactGrace {
		contacts, err := m.world.ContactCount(p.body)
		if err != nil {
			m.abandon(p, errors.Wrap(err, "contact query"))
			return
		}
		if contacts > 0 {
			m.explode(p, now)
			return
		}
	}

	// (d) Fell out of the map.
	if pos.Y < FloorHeight {
		m.explode(p, now)
		return
	}
}

// explode is idempotent: a second call on the same record is a no-op, so
// overlapping heuristics never double-apply area effects.
func (m *ProjectileManager) explode(p *projectile, now time.Time) {
	if p.exploded {
		return
	}
	p.exploded = true

	at := p.lastPos
	if pos, err := m.world.Position(p.body); err == nil {
		at = pos
	}

	// Release the body before resolving: the projectile must not count as
	// a body affected by its own blast.
	if err := m.world.RemoveBody(p.body); err != nil && !errors.Is(err, phys.ErrNoBody) {
		log.Printf("projectile: release body %d: %v", p.body, err)
	}

	affected := m.resolver.Resolve(at, p.owner, p.settings.Blast)
	if m.OnExplode != nil {
		m.OnExplode(p.owner, at, affected, now)
	}
}

// abandon marks a projectile for removal after a physics-query failure.
// Explosion state must always converge, so the error is logged, never
// propagated out of the tick.
func (m *ProjectileManager) abandon(p *projectile, err error) {
	log.Printf("projectile: body %d marked for removal: %v", p.body, err)
	p.removed = true
}
