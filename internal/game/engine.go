package game

import (
	"log"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"blastrace/internal/phys"
	"blastrace/internal/protocol"
)

// EngineConfig configures the authoritative simulation.
type EngineConfig struct {
	TickHz        int
	TargetRespawn time.Duration
	SpawnPoints   []phys.Vec3
	TargetSpawns  map[string]phys.Vec3
}

// Engine is the authoritative simulation state: player records keyed by
// connection id, shared targets, in-flight projectiles, and the rigid-body
// world underneath.
//
// Engine is not safe for concurrent use. The server's single tick goroutine
// is the only caller; deferred mutations go through Defer and are drained at
// the start of each tick, before input ingestion.
type Engine struct {
	world       phys.World
	resolver    *Resolver
	projectiles *ProjectileManager
	events      *EventLog

	players map[string]*Player
	targets map[string]*SharedTarget

	latestInputs map[string]protocol.Input
	commands     []func()

	spawnPoints []phys.Vec3
	nextSpawn   int

	tickHz int
	tick   uint64

	// abilityEvents accumulates accepted activations within the current tick
	// for broadcast alongside the snapshot.
	abilityEvents []protocol.AbilityEvent
}

// NewEngine creates the simulation with its shared targets in place.
func NewEngine(world phys.World, events *EventLog, cfg EngineConfig) *Engine {
	e := &Engine{
		world:        world,
		events:       events,
		players:      make(map[string]*Player),
		targets:      make(map[string]*SharedTarget),
		latestInputs: make(map[string]protocol.Input),
		spawnPoints:  cfg.SpawnPoints,
		tickHz:       cfg.TickHz,
	}
	if len(e.spawnPoints) == 0 {
		e.spawnPoints = []phys.Vec3{{Y: PlayerRadius}}
	}
	if e.tickHz <= 0 {
		e.tickHz = 30
	}

	// Remote bodies are dynamic on the server; kinematic impulse events only
	// occur client-side, so the server resolver has no kinematic consumer.
	e.resolver = NewResolver(world, nil)
	e.projectiles = NewProjectileManager(world, e.resolver)
	e.projectiles.OnExplode = func(owner phys.BodyID, at phys.Vec3, affected int, now time.Time) {
		e.emit(EventTypeExplosion, "", ExplosionPayload{X: at.X, Y: at.Y, Z: at.Z, Affected: affected})
		e.splashTargets(at, now)
	}

	respawn := cfg.TargetRespawn
	if respawn <= 0 {
		respawn = 5 * time.Second
	}
	for id, pos := range cfg.TargetSpawns {
		e.targets[id] = NewSharedTarget(id, pos, OwnedServer, respawn)
	}
	return e
}

// Connect allocates a player record at the next spawn point.
func (e *Engine) Connect(connID, name string) (*Player, error) {
	spawn := e.spawnPoints[e.nextSpawn%len(e.spawnPoints)]
	e.nextSpawn++

	body, err := e.world.CreateBody(phys.BodyConfig{
		Kind:     phys.Dynamic,
		Position: spawn,
		Radius:   PlayerRadius,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "engine: create body for %s", connID)
	}

	p := NewPlayer(connID, name, body, spawn)
	e.players[connID] = p
	e.emit(EventTypeJoin, connID, nil)
	return p, nil
}

// Disconnect destroys the player record and its body. Unknown ids are a
// no-op: a late disconnect for an already-removed connection is normal.
func (e *Engine) Disconnect(connID string) {
	p, ok := e.players[connID]
	if !ok {
		return
	}
	if err := e.world.RemoveBody(p.Body); err != nil && !errors.Is(err, phys.ErrNoBody) {
		log.Printf("engine: remove body for %s: %v", connID, err)
	}
	delete(e.players, connID)
	delete(e.latestInputs, connID)
	e.emit(EventTypeLeave, connID, nil)
}

// ConnectedCount returns the number of live player records.
func (e *Engine) ConnectedCount() int {
	return len(e.players)
}

// Defer queues a mutation to run at the start of the next tick, before input
// ingestion. This is the escape hatch for code running inside physics
// callbacks, which must not mutate the body currently under query.
func (e *Engine) Defer(fn func()) {
	e.commands = append(e.commands, fn)
}

// BufferInput stores the latest input for a connection, last-write-wins.
// Input for an unknown (already disconnected) connection is ignored.
func (e *Engine) BufferInput(connID string, in protocol.Input) {
	if _, ok := e.players[connID]; !ok {
		return
	}
	e.latestInputs[connID] = in
}

// UpdatePosition applies the client's regular position stream. The client is
// authoritative over its own movement; the server mirrors it into the body.
func (e *Engine) UpdatePosition(connID string, pos protocol.Position) {
	p, ok := e.players[connID]
	if !ok {
		return
	}
	p.Pos = pos.Position
	p.Vel = pos.Velocity
	p.Yaw = pos.FacingYaw
	if err := e.world.SetTransform(p.Body, pos.Position); err != nil {
		log.Printf("engine: position for %s: %v", connID, err)
		return
	}
	if err := e.world.SetVelocity(p.Body, pos.Velocity); err != nil {
		log.Printf("engine: velocity for %s: %v", connID, err)
	}
}

// ApplyCorrection applies an out-of-band position override immediately.
// The caller is responsible for force-broadcasting the next snapshot.
func (e *Engine) ApplyCorrection(connID string, c protocol.Correction) error {
	p, ok := e.players[connID]
	if !ok {
		return errors.Errorf("engine: correction for unknown connection %s", connID)
	}
	p.Pos = c.Position
	p.Vel = c.Velocity
	if err := e.world.SetTransform(p.Body, c.Position); err != nil {
		return errors.Wrapf(err, "engine: correction transform for %s", connID)
	}
	if err := e.world.SetVelocity(p.Body, c.Velocity); err != nil {
		return errors.Wrapf(err, "engine: correction velocity for %s", connID)
	}
	e.emit(EventTypeCorrection, connID, CorrectionPayload{
		ReasonTag: c.ReasonTag,
		X:         c.Position.X, Y: c.Position.Y, Z: c.Position.Z,
	})
	return nil
}

// HandleAbility validates cooldown and spawns the blast projectile.
// Returns the broadcast event and whether the activation was accepted.
func (e *Engine) HandleAbility(connID string, a protocol.Ability, now time.Time) (protocol.AbilityEvent, bool) {
	p, ok := e.players[connID]
	if !ok {
		return protocol.AbilityEvent{}, false
	}
	if !p.AbilityReady(now) {
		return protocol.AbilityEvent{}, false
	}
	p.StartCooldown(now)

	if err := e.projectiles.Spawn(a.Origin, a.Direction, p.Body, DefaultProjectileSettings(), now); err != nil {
		log.Printf("engine: ability spawn for %s: %v", connID, err)
		return protocol.AbilityEvent{}, false
	}

	ev := protocol.AbilityEvent{
		AbilityKind: a.AbilityKind,
		Origin:      a.Origin,
		Direction:   a.Direction,
		OriginConn:  connID,
	}
	e.abilityEvents = append(e.abilityEvents, ev)
	return ev, true
}

// DamageTarget damages a shared target. Missing or depleted targets make it
// a no-op returning false; the client learns the outcome from the next
// snapshot either way.
func (e *Engine) DamageTarget(connID string, d protocol.Damage, now time.Time) bool {
	t, ok := e.targets[d.TargetID]
	if !ok {
		return false
	}
	if !t.Damage(d.Amount, now) {
		return false
	}
	e.emit(EventTypeDamage, connID, DamagePayload{TargetID: t.ID, Amount: d.Amount, HealthNow: t.Health})
	return true
}

// Tick advances one fixed step. Order is fixed: deferred commands, input
// ingestion, world step, projectile heuristics, target respawns, state
// readback. Snapshot serialization happens after Tick via Snapshot.
func (e *Engine) Tick(now time.Time) {
	e.tick++

	// Deferred mutations first, so nothing below observes half-applied state.
	cmds := e.commands
	e.commands = nil
	for _, fn := range cmds {
		fn()
	}

	// Ingest buffered input, stable order across connections within a tick.
	for _, connID := range e.sortedInputConns() {
		in := e.latestInputs[connID]
		if err := e.applyInput(connID, in, now); err != nil {
			// One connection's bad input never aborts the tick for others.
			log.Printf("engine: input for %s: %v", connID, err)
		}
	}

	e.world.Step(1 / float64(e.tickHz))
	e.projectiles.Tick(now)

	for _, t := range e.targets {
		t.Tick(now)
	}

	e.readBack()
}

func (e *Engine) sortedInputConns() []string {
	conns := make([]string, 0, len(e.latestInputs))
	for connID := range e.latestInputs {
		if _, ok := e.players[connID]; !ok {
			delete(e.latestInputs, connID)
			continue
		}
		conns = append(conns, connID)
	}
	sort.Strings(conns)
	return conns
}

func (e *Engine) applyInput(connID string, in protocol.Input, now time.Time) error {
	p, ok := e.players[connID]
	if !ok {
		return nil
	}
	p.LastInputAt = now
	p.Attacking = in.Attacking
	p.Blocking = in.Blocking

	vel, err := e.world.Velocity(p.Body)
	if err != nil {
		return errors.Wrap(err, "velocity query")
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

	// Rotate the movement intent by facing yaw.
	sin, cos := math.Sin(p.Yaw), math.Cos(p.Yaw)
	move := phys.Vec3{X: dx*cos - dz*sin, Z: dx*sin + dz*cos}.Normalized().Scale(PlayerRunSpeed)
	vel.X, vel.Z = move.X, move.Z

	if in.MoveFlags&protocol.MoveJump != 0 && math.Abs(vel.Y) < 1e-3 {
		vel.Y = PlayerJumpSpeed
	}
	if err := e.world.SetVelocity(p.Body, vel); err != nil {
		return errors.Wrap(err, "set velocity")
	}

	if in.AbilityPressed {
		pos, err := e.world.Position(p.Body)
		if err != nil {
			return errors.Wrap(err, "position query")
		}
		// Same rotation as the movement intent: forward along facing yaw.
		dir := phys.Vec3{X: math.Sin(p.Yaw), Z: -math.Cos(p.Yaw)}
		e.HandleAbility(connID, protocol.Ability{AbilityKind: "blast", Origin: pos, Direction: dir}, now)
	}
	return nil
}

// splashTargets applies blast damage to shared targets caught in the radius.
func (e *Engine) splashTargets(at phys.Vec3, now time.Time) {
	for id, t := range e.targets {
		if SplashDamage(t, at, BlastRadius, BlastTargetDamage, now) {
			e.emit(EventTypeDamage, "", DamagePayload{TargetID: id, Amount: BlastTargetDamage, HealthNow: t.Health})
		}
	}
}

// readBack mirrors the stepped world into the player records.
func (e *Engine) readBack() {
	for connID, p := range e.players {
		pos, err := e.world.Position(p.Body)
		if err != nil {
			log.Printf("engine: readback for %s: %v", connID, err)
			continue
		}
		vel, _ := e.world.Velocity(p.Body)
		p.Pos, p.Vel = pos, vel
	}
}

// Snapshot serializes the full authoritative shared state.
func (e *Engine) Snapshot(now time.Time) protocol.Snapshot {
	s := protocol.Snapshot{
		Timestamp: now.UnixMilli(),
		Tick:      e.tick,
		Players:   make(map[string]protocol.PlayerState, len(e.players)),
		Targets:   make(map[string]protocol.TargetState, len(e.targets)),
	}
	for connID, p := range e.players {
		s.Players[connID] = protocol.PlayerState{
			Position:  p.Pos,
			Velocity:  p.Vel,
			FacingYaw: p.Yaw,
			Health:    p.Health,
			Attacking: p.Attacking,
			Blocking:  p.Blocking,
		}
	}
	for id, t := range e.targets {
		s.Targets[id] = protocol.TargetState{
			Position:  t.Pos,
			Health:    t.Health,
			Available: t.Available,
		}
	}
	return s
}

// DrainAbilityEvents returns activations accepted since the last drain.
func (e *Engine) DrainAbilityEvents() []protocol.AbilityEvent {
	evs := e.abilityEvents
	e.abilityEvents = nil
	return evs
}

// ActiveProjectiles returns the number of in-flight projectiles.
func (e *Engine) ActiveProjectiles() int {
	return e.projectiles.Active()
}

// Target returns a shared target by id, nil if unknown.
func (e *Engine) Target(id string) *SharedTarget {
	return e.targets[id]
}

// Player returns a player record by connection id, nil if unknown.
func (e *Engine) Player(connID string) *Player {
	return e.players[connID]
}

func (e *Engine) emit(t EventType, connID string, payload any) {
	if e.events == nil {
		return
	}
	e.events.EmitSimple(t, e.tick, connID, payload)
}
