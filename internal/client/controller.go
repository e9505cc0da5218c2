package client

import (
	"math"
	"time"

	"blastrace/internal/game"
	"blastrace/internal/phys"
	"blastrace/internal/protocol"
)

// Controller drives the locally-controlled kinematic body. The physics
// engine never moves a kinematic body and never applies impulses to it, so
// launches arrive as queued impulse events and are consumed here, at a fixed
// point at the start of each update. Nothing else may touch the transform.
type Controller struct {
	Pos phys.Vec3
	Vel phys.Vec3
	Yaw float64

	gravity  float64
	radius   float64
	runSpeed float64

	pending []phys.Vec3

	boostUntil time.Time
	boostMult  float64
}

// NewController creates a controller at a spawn position.
func NewController(spawn phys.Vec3, gravity float64) *Controller {
	return &Controller{
		Pos:      spawn,
		gravity:  gravity,
		radius:   game.PlayerRadius,
		runSpeed: game.PlayerRunSpeed,
	}
}

// QueueImpulse defers a launch to the next update. Called with events from
// the area-effect resolver; applying them mid-query would re-enter the
// physics engine.
func (c *Controller) QueueImpulse(ev game.ImpulseEvent) {
	c.pending = append(c.pending, ev.Impulse)
}

// ApplyBoost grants a temporary run-speed multiplier (optimistic target-kill
// reward).
func (c *Controller) ApplyBoost(mult float64, d time.Duration, now time.Time) {
	c.boostMult = mult
	c.boostUntil = now.Add(d)
}

// Grounded uses the near-zero vertical velocity check.
func (c *Controller) Grounded() bool {
	return math.Abs(c.Vel.Y) < 1e-3 && c.Pos.Y-c.radius <= 1e-3
}

// Update advances one fixed step and returns whether a queued impulse was
// consumed (the bridge follows that with an out-of-band correction).
func (c *Controller) Update(dt float64, in protocol.Input, now time.Time) bool {
	launched := len(c.pending) > 0
	for _, imp := range c.pending {
		c.Vel = c.Vel.Add(imp)
	}
	c.pending = c.pending[:0]

	speed := c.runSpeed
	if c.boostMult > 0 && now.Before(c.boostUntil) {
		speed *= c.boostMult
	}

	var dx, dz float64
	if in.MoveFlags&protocol.MoveForward != 0 {
		dz--
	}
	if in.MoveFlags&protocol.MoveBack != 0 {
		dz++
	}
	if in.MoveFlags&protocol.MoveLeft != 0 {
		dx--
	}
	if in.MoveFlags&protocol.MoveRight != 0 {
		dx++
	}
	sin, cos := math.Sin(c.Yaw), math.Cos(c.Yaw)
	move := phys.Vec3{X: dx*cos - dz*sin, Z: dx*sin + dz*cos}.Normalized().Scale(speed)

	// A launch owns the horizontal velocity until it decays; ordinary input
	// only steers when no launch just happened.
	if !launched {
		c.Vel.X, c.Vel.Z = move.X, move.Z
	}
	if in.MoveFlags&protocol.MoveJump != 0 && c.Grounded() {
		c.Vel.Y = game.PlayerJumpSpeed
	}

	c.Vel.Y -= c.gravity * dt
	c.Pos = c.Pos.Add(c.Vel.Scale(dt))
	if c.Pos.Y-c.radius < 0 {
		c.Pos.Y = c.radius
		if c.Vel.Y < 0 {
			c.Vel.Y = 0
		}
	}
	return launched
}
