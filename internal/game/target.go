package game

import (
	"time"

	"blastrace/internal/phys"
)

// OwnershipMode tags who currently mutates a shared target's health.
// Offline the local client owns it; online ownership transfers to the server
// and the client becomes a read-mirror.
type OwnershipMode uint8

const (
	OwnedLocal OwnershipMode = iota
	OwnedServer
)

// Damageable is the capability surface combat code needs from a target.
type Damageable interface {
	Damage(amount int, now time.Time) bool
}

// RangeIndicatable lets ability previews ask whether a point is in range
// without knowing the concrete target type.
type RangeIndicatable interface {
	InRange(p phys.Vec3, radius float64) bool
}

// SharedTarget is a dummy/NPC-like entity. One concrete type carries the
// ownership-mode tag instead of wrapping specializations around each other.
type SharedTarget struct {
	ID        string
	Pos       phys.Vec3
	Health    int
	MaxHealth int
	Available bool
	Mode      OwnershipMode

	respawnDelay time.Duration
	respawnAt    time.Time

	// OnDepleted fires when health reaches zero, before availability flips.
	// Used for local optimistic side effects such as the speed boost.
	OnDepleted func(*SharedTarget)
}

// NewSharedTarget creates an available target at full health.
func NewSharedTarget(id string, pos phys.Vec3, mode OwnershipMode, respawnDelay time.Duration) *SharedTarget {
	return &SharedTarget{
		ID:           id,
		Pos:          pos,
		Health:       TargetMaxHealth,
		MaxHealth:    TargetMaxHealth,
		Available:    true,
		Mode:         mode,
		respawnDelay: respawnDelay,
	}
}

// Damage applies damage and reports whether any state changed. Damaging a
// missing, unavailable, or already-depleted target is a no-op returning
// false, never an error. Health stays within [0, max] and is non-increasing
// between respawns.
func (t *SharedTarget) Damage(amount int, now time.Time) bool {
	if !t.Available || t.Health <= 0 || amount <= 0 {
		return false
	}

	t.Health -= amount
	if t.Health <= 0 {
		t.Health = 0
		if t.OnDepleted != nil {
			t.OnDepleted(t)
		}
		t.Available = false
		t.respawnAt = now.Add(t.respawnDelay)
	}
	return true
}

// Tick re-enables a depleted target after its respawn delay. The reset to
// full health happens exactly once per depletion.
func (t *SharedTarget) Tick(now time.Time) {
	if t.Available || now.Before(t.respawnAt) {
		return
	}
	t.Health = t.MaxHealth
	t.Available = true
}

// InRange reports whether p is within radius of the target.
func (t *SharedTarget) InRange(p phys.Vec3, radius float64) bool {
	return phys.Dist(t.Pos, p) <= radius
}

// splashable is the capability pair an area effect needs from an entity.
type splashable interface {
	Damageable
	RangeIndicatable
}

// SplashDamage applies amount to t when center lands within radius of it,
// reporting whether any state changed. Out-of-range entities are untouched.
func SplashDamage(t splashable, center phys.Vec3, radius float64, amount int, now time.Time) bool {
	if !t.InRange(center, radius) {
		return false
	}
	return t.Damage(amount, now)
}
