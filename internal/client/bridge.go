// Package client implements the reconciliation side of the sync protocol:
// fixed-rate outbound state, snapshot merging, and out-of-band corrections.
package client

import (
	"log"
	"time"

	"golang.org/x/time/rate"

	"blastrace/internal/game"
	"blastrace/internal/phys"
	"blastrace/internal/protocol"
)

// Transport sends typed messages to the server. Implementations must not
// block the caller for long; the bridge runs inside the fixed physics step.
type Transport interface {
	Send(msgType string, payload any) error
}

// SpeedBoost tuning for the optimistic target-kill reward.
const (
	SpeedBoostMult     = 1.5
	SpeedBoostDuration = 4 * time.Second
)

// Bridge is the client-side reconciliation layer. It owns the local player's
// controller, mirrors of remote players and shared targets, and the pacing
// of the outbound position stream.
type Bridge struct {
	transport Transport
	localID   string
	ctrl      *Controller

	// positionLimiter bounds the position stream independently of the
	// render/physics rate.
	positionLimiter *rate.Limiter

	online  bool
	remotes map[string]protocol.PlayerState
	targets map[string]*game.SharedTarget

	localHealth int
}

// NewBridge creates a bridge. online selects shared-target ownership:
// offline the client owns target health, online the server does and local
// mutations are optimistic only.
func NewBridge(transport Transport, localID string, ctrl *Controller, positionHz int, online bool) *Bridge {
	if positionHz <= 0 {
		positionHz = 20
	}
	return &Bridge{
		transport:       transport,
		localID:         localID,
		ctrl:            ctrl,
		positionLimiter: rate.NewLimiter(rate.Limit(positionHz), 1),
		online:          online,
		remotes:         make(map[string]protocol.PlayerState),
		targets:         make(map[string]*game.SharedTarget),
		localHealth:     game.PlayerMaxHealth,
	}
}

// AddTarget registers a shared-target mirror. The depletion hook grants the
// local speed boost either way; in online mode the health value itself is
// later discarded for the broadcast value.
func (b *Bridge) AddTarget(t *game.SharedTarget) {
	t.OnDepleted = func(*game.SharedTarget) {
		b.ctrl.ApplyBoost(SpeedBoostMult, SpeedBoostDuration, time.Now())
	}
	b.targets[t.ID] = t
}

// Target returns a shared-target mirror by id, nil if unknown.
func (b *Bridge) Target(id string) *game.SharedTarget {
	return b.targets[id]
}

// Remote returns the last snapshot state for a remote player.
func (b *Bridge) Remote(connID string) (protocol.PlayerState, bool) {
	s, ok := b.remotes[connID]
	return s, ok
}

// LocalHealth returns the server-authoritative health of the local player.
func (b *Bridge) LocalHealth() int {
	return b.localHealth
}

// Step advances the local fixed physics step and sends the paced position
// update. If the controller consumed a launch impulse this step, the regular
// stream would show other clients a stale position for up to a full period,
// so a correction goes out immediately instead.
func (b *Bridge) Step(dt float64, in protocol.Input, now time.Time) {
	launched := b.ctrl.Update(dt, in, now)
	for _, t := range b.targets {
		if t.Mode == game.OwnedLocal {
			t.Tick(now)
		}
	}

	if launched {
		b.SendCorrection("blastLaunch")
		return
	}
	if b.positionLimiter.Allow() {
		b.sendPosition(now)
	}
}

func (b *Bridge) sendPosition(now time.Time) {
	err := b.transport.Send(protocol.MsgPosition, protocol.Position{
		Position:  b.ctrl.Pos,
		Velocity:  b.ctrl.Vel,
		FacingYaw: b.ctrl.Yaw,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		log.Printf("bridge: position send: %v", err)
	}
}

// SendCorrection issues the out-of-band position override.
func (b *Bridge) SendCorrection(reason string) {
	err := b.transport.Send(protocol.MsgCorrection, protocol.Correction{
		Position:  b.ctrl.Pos,
		Velocity:  b.ctrl.Vel,
		ReasonTag: reason,
	})
	if err != nil {
		log.Printf("bridge: correction send: %v", err)
	}
}

// SendAbility sends an ability activation immediately, never coalesced.
func (b *Bridge) SendAbility(kind string, origin, dir phys.Vec3) {
	err := b.transport.Send(protocol.MsgAbility, protocol.Ability{
		AbilityKind: kind,
		Origin:      origin,
		Direction:   dir,
	})
	if err != nil {
		log.Printf("bridge: ability send: %v", err)
	}
}

// DamageTarget damages a shared-target mirror. Offline the mutation is
// authoritative. Online it still runs locally so side effects (the boost)
// feel immediate, then the damage request goes to the server and the next
// snapshot supplies the real health.
func (b *Bridge) DamageTarget(id string, amount int, now time.Time) bool {
	t, ok := b.targets[id]
	if !ok {
		return false
	}
	changed := t.Damage(amount, now)
	if t.Mode == game.OwnedServer {
		err := b.transport.Send(protocol.MsgDamage, protocol.Damage{TargetID: id, Amount: amount})
		if err != nil {
			log.Printf("bridge: damage send: %v", err)
		}
	}
	return changed
}

// ApplySnapshot merges server truth. Remote players and server-owned shared
// targets are overwritten wholesale; the local player's position fields are
// ignored because the client stays authoritative over its own movement.
func (b *Bridge) ApplySnapshot(s protocol.Snapshot) {
	for connID, ps := range s.Players {
		if connID == b.localID {
			// Health is server truth even for the local player.
			b.localHealth = ps.Health
			continue
		}
		b.remotes[connID] = ps
	}
	// Drop remotes missing from the snapshot (disconnected).
	for connID := range b.remotes {
		if _, ok := s.Players[connID]; !ok {
			delete(b.remotes, connID)
		}
	}

	for id, ts := range s.Targets {
		t, ok := b.targets[id]
		if !ok || t.Mode != game.OwnedServer {
			continue
		}
		t.Pos = ts.Position
		t.Health = ts.Health
		t.Available = ts.Available
	}
}

// HandleImpulse queues a resolver impulse event for the local controller.
func (b *Bridge) HandleImpulse(ev game.ImpulseEvent) {
	b.ctrl.QueueImpulse(ev)
}
