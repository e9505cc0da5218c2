// Package phys abstracts the rigid-body simulation the game core runs on.
// The simulation core only needs a handful of capabilities from the engine:
// query a body's position/velocity, apply an impulse, count contact pairs.
// Everything else (broadphase, solvers, materials) stays behind this interface.
package phys

import "github.com/pkg/errors"

// BodyID identifies a rigid body inside a World.
type BodyID uint64

// Kind classifies how a body responds to the simulation.
type Kind uint8

const (
	// Dynamic bodies are integrated by the engine and respond to impulses.
	Dynamic Kind = iota
	// Kinematic bodies are driven by external code. The engine never moves
	// them and silently ignores impulses applied to them.
	Kinematic
)

// ErrNoBody is returned by queries against a removed or unknown body.
// Callers are expected to treat it as "record is gone", not as fatal.
var ErrNoBody = errors.New("phys: no such body")

// BodyConfig describes a body at creation time.
type BodyConfig struct {
	Kind     Kind
	Position Vec3
	Velocity Vec3
	Radius   float64
	Mass     float64
}

// World is the rigid-body adapter contract.
//
// Implementations are not required to be safe for concurrent use; the
// authoritative tick loop is the single caller on the server.
type World interface {
	// Step advances the simulation by dt seconds.
	Step(dt float64)

	CreateBody(cfg BodyConfig) (BodyID, error)
	RemoveBody(id BodyID) error

	Position(id BodyID) (Vec3, error)
	Velocity(id BodyID) (Vec3, error)
	SetTransform(id BodyID, pos Vec3) error
	SetVelocity(id BodyID, vel Vec3) error

	// ApplyImpulse adds an instantaneous velocity change to a dynamic body.
	// Kinematic bodies ignore it without error, matching real engine behavior.
	ApplyImpulse(id BodyID, impulse Vec3) error

	// ContactCount reports how many contact pairs currently involve the body.
	ContactCount(id BodyID) (int, error)

	Kind(id BodyID) (Kind, error)

	// Bodies returns the ids of all live bodies in unspecified order.
	Bodies() []BodyID
}
