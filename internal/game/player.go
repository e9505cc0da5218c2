package game

import (
	"time"

	"blastrace/internal/phys"
)

// Player is one connection's authoritative record. The server owns the copy
// keyed by connection id; the client keeps a local copy for its own body.
type Player struct {
	ConnID string
	Name   string
	Body   phys.BodyID

	Pos phys.Vec3
	Vel phys.Vec3
	Yaw float64

	Health    int
	MaxHealth int

	// Attacking and Blocking mirror the latest input into snapshots so other
	// clients can animate the stance.
	Attacking bool
	Blocking  bool

	AbilityReadyAt time.Time
	LastInputAt    time.Time
}

// NewPlayer creates a player record at a spawn position.
func NewPlayer(connID, name string, body phys.BodyID, spawn phys.Vec3) *Player {
	return &Player{
		ConnID:    connID,
		Name:      name,
		Body:      body,
		Pos:       spawn,
		Health:    PlayerMaxHealth,
		MaxHealth: PlayerMaxHealth,
	}
}

// AbilityReady reports whether the ability cooldown has elapsed.
func (p *Player) AbilityReady(now time.Time) bool {
	return !now.Before(p.AbilityReadyAt)
}

// StartCooldown arms the ability cooldown.
func (p *Player) StartCooldown(now time.Time) {
	p.AbilityReadyAt = now.Add(AbilityCooldown)
}
