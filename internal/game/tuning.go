package game

import "time"

// Ability and simulation tuning. Gameplay feel lives here; change with care.
const (
	// Blast projectile: initial speed in units/s, fuse until the guaranteed
	// explosion, area-effect radius, impulse magnitude at distance zero, the
	// extra launch for the explosion owner and for airborne bodies, the
	// floor the impulse direction is clamped at, and the damage dealt to
	// shared targets caught in the radius.
	BlastSpeed        = 50.0
	BlastFuse         = 1200 * time.Millisecond
	BlastRadius       = 4.0
	BlastForce        = 36.0
	BlastSelfBoost    = 1.8
	BlastAirborneMult = 1.35
	BlastMinDistance  = 0.5
	BlastTargetDamage = 40
	AbilityCooldown   = 900 * time.Millisecond

	// Projectile collision heuristics. Deliberately overlapping and
	// differently latent: single-step contact events are unreliable, so an
	// early false positive beats a missed explosion.
	StuckDisplacement = 0.05                   // units/tick considered "not moving"
	StuckTicks        = 3                      // consecutive ticks before stuck fires
	SlowSpeedFloor    = 2.0                    // units/s considered crawling
	SlowGrace         = 250 * time.Millisecond // ignore slow speed right after launch
	ContactGrace      = 100 * time.Millisecond // ignore contacts right after launch
	FloorHeight       = -10.0                  // below this the projectile fell out of the map

	// Players
	PlayerMaxHealth = 100
	PlayerRadius    = 0.5
	PlayerRunSpeed  = 8.0
	PlayerJumpSpeed = 9.0

	// Shared targets
	TargetMaxHealth = 100
	TargetRadius    = 0.6

	// Caps
	MaxProjectiles         = 32
	MaxProjectilesPerOwner = 3
)
