package client

import (
	"math"
	"testing"
	"time"

	"blastrace/internal/game"
	"blastrace/internal/phys"
	"blastrace/internal/protocol"
)

func groundedController() *Controller {
	return NewController(phys.Vec3{Y: game.PlayerRadius}, 24)
}

func TestControllerQueuedImpulseConsumedOnce(t *testing.T) {
	c := groundedController()
	now := time.Now()

	c.QueueImpulse(game.ImpulseEvent{Impulse: phys.Vec3{X: 10, Y: 15}})
	launched := c.Update(1.0/30, protocol.Input{}, now)
	if !launched {
		t.Fatal("update did not report the launch")
	}
	if c.Vel.X <= 0 || c.Vel.Y <= 0 {
		t.Errorf("impulse not applied: vel=%v", c.Vel)
	}

	if c.Update(1.0/30, protocol.Input{}, now) {
		t.Error("second update reported a launch with an empty queue")
	}
}

func TestControllerLaunchOwnsHorizontalVelocity(t *testing.T) {
	c := groundedController()
	now := time.Now()

	c.QueueImpulse(game.ImpulseEvent{Impulse: phys.Vec3{X: 20, Y: 10}})
	// Input pushes the opposite way; the launch step must ignore it.
	c.Update(1.0/30, protocol.Input{MoveFlags: protocol.MoveLeft}, now)
	if c.Vel.X < 19 {
		t.Errorf("vel.X = %.2f, input overrode the launch", c.Vel.X)
	}
}

func TestControllerJumpOnlyWhenGrounded(t *testing.T) {
	c := groundedController()
	now := time.Now()

	c.Update(1.0/30, protocol.Input{MoveFlags: protocol.MoveJump}, now)
	if c.Vel.Y <= 0 {
		t.Fatalf("grounded jump did not launch: vel.Y=%.2f", c.Vel.Y)
	}

	vy := c.Vel.Y
	c.Update(1.0/30, protocol.Input{MoveFlags: protocol.MoveJump}, now)
	if c.Vel.Y > vy {
		t.Error("airborne jump added velocity")
	}
}

func TestControllerGroundClamp(t *testing.T) {
	c := NewController(phys.Vec3{Y: 2}, 24)
	now := time.Now()

	for i := 0; i < 120; i++ {
		c.Update(1.0/30, protocol.Input{}, now)
	}
	if math.Abs(c.Pos.Y-game.PlayerRadius) > 1e-9 {
		t.Errorf("resting height = %.4f, want %.4f", c.Pos.Y, game.PlayerRadius)
	}
	if c.Vel.Y < 0 {
		t.Errorf("downward velocity survived the clamp: %.2f", c.Vel.Y)
	}
	if !c.Grounded() {
		t.Error("controller not grounded after settling")
	}
}

func TestControllerBoostExpires(t *testing.T) {
	c := groundedController()
	now := time.Now()

	c.ApplyBoost(2, 100*time.Millisecond, now)
	c.Update(1.0/30, protocol.Input{MoveFlags: protocol.MoveForward}, now)
	boosted := phys.Vec3{X: c.Vel.X, Z: c.Vel.Z}.Len()
	if math.Abs(boosted-2*game.PlayerRunSpeed) > 1e-9 {
		t.Errorf("boosted speed = %.2f, want %.2f", boosted, 2*game.PlayerRunSpeed)
	}

	c.Update(1.0/30, protocol.Input{MoveFlags: protocol.MoveForward}, now.Add(200*time.Millisecond))
	normal := phys.Vec3{X: c.Vel.X, Z: c.Vel.Z}.Len()
	if math.Abs(normal-game.PlayerRunSpeed) > 1e-9 {
		t.Errorf("post-boost speed = %.2f, want %.2f", normal, game.PlayerRunSpeed)
	}
}

func TestControllerYawRotatesMovement(t *testing.T) {
	c := groundedController()
	now := time.Now()

	// Facing 90 degrees: forward intent becomes motion along +X.
	c.Yaw = math.Pi / 2
	c.Update(1.0/30, protocol.Input{MoveFlags: protocol.MoveForward}, now)
	if math.Abs(c.Vel.X-game.PlayerRunSpeed) > 1e-9 {
		t.Errorf("vel.X = %.2f, want %.2f", c.Vel.X, game.PlayerRunSpeed)
	}
	if math.Abs(c.Vel.Z) > 1e-9 {
		t.Errorf("vel.Z = %.2f, want 0", c.Vel.Z)
	}
}
