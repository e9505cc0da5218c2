package protocol

import "blastrace/internal/phys"

// Hello is sent once by a client after connecting.
type Hello struct {
	Name string `json:"name"`
}

// Welcome answers a Hello with the assigned connection id and the full
// initial snapshot.
type Welcome struct {
	ConnID   string   `json:"connId"`
	Snapshot Snapshot `json:"snapshot"`
}

// Input carries buffered movement state at a fixed low rate.
// The server keeps only the latest Input per connection (last-write-wins).
type Input struct {
	MoveFlags      uint8 `json:"moveFlags"`
	AbilityPressed bool  `json:"abilityPressed"`
	Attacking      bool  `json:"attacking"`
	Blocking       bool  `json:"blocking"`
	Timestamp      int64 `json:"timestamp"` // unix millis, client clock
}

// Movement flag bits in Input.MoveFlags.
const (
	MoveForward uint8 = 1 << iota
	MoveBack
	MoveLeft
	MoveRight
	MoveJump
)

// Position is the client's regular position stream, paced independently of
// its render rate.
type Position struct {
	Position  phys.Vec3 `json:"position"`
	Velocity  phys.Vec3 `json:"velocity"`
	FacingYaw float64   `json:"facingYaw"`
	Timestamp int64     `json:"timestamp"`
}

// Correction is an out-of-band position override after a discontinuous local
// event (blast launch, teleport). The server applies it immediately and
// force-broadcasts outside the tick cadence.
type Correction struct {
	Position  phys.Vec3 `json:"position"`
	Velocity  phys.Vec3 `json:"velocity"`
	ReasonTag string    `json:"reasonTag"`
}

// Ability requests an ability activation at an origin and direction.
type Ability struct {
	AbilityKind string    `json:"abilityKind"`
	Origin      phys.Vec3 `json:"origin"`
	Direction   phys.Vec3 `json:"direction"`
}

// AbilityEvent is the broadcast form of an accepted ability activation.
type AbilityEvent struct {
	AbilityKind string    `json:"abilityKind"`
	Origin      phys.Vec3 `json:"origin"`
	Direction   phys.Vec3 `json:"direction"`
	OriginConn  string    `json:"originConnId"`
}

// Damage asks the server to damage a shared target. Acknowledged only
// implicitly through the next snapshot.
type Damage struct {
	TargetID string `json:"targetId"`
	Amount   int    `json:"amount"`
}

// PlayerState is the per-player slice of a snapshot.
type PlayerState struct {
	Position  phys.Vec3 `json:"position"`
	Velocity  phys.Vec3 `json:"velocity"`
	FacingYaw float64   `json:"facingYaw"`
	Health    int       `json:"health"`
	Attacking bool      `json:"attacking"`
	Blocking  bool      `json:"blocking"`
}

// TargetState is the per-shared-target slice of a snapshot.
type TargetState struct {
	Position  phys.Vec3 `json:"position"`
	Health    int       `json:"health"`
	Available bool      `json:"available"`
}

// Snapshot is the full broadcast of server-authoritative shared state.
type Snapshot struct {
	Timestamp int64                  `json:"timestamp"` // unix millis, server clock
	Tick      uint64                 `json:"tick"`
	Players   map[string]PlayerState `json:"players"`
	Targets   map[string]TargetState `json:"sharedTargets"`
}

// VoteUpdate reports the current post-match tally. Decision is empty while
// undecided, "round" or "menu" once resolved.
type VoteUpdate struct {
	RoundCount int    `json:"roundCount"`
	MenuCount  int    `json:"menuCount"`
	Total      int    `json:"total"`
	Unanimous  bool   `json:"unanimous"`
	Decision   string `json:"decision,omitempty"`
}

// FinalScore is a client's end-of-match submission.
type FinalScore struct {
	Score    int      `json:"score"`
	Events   []string `json:"events"`
	ClassTag string   `json:"classTag"`
}

// RankedEntry is one leaderboard row, ranked best first.
type RankedEntry struct {
	ConnID   string   `json:"connId"`
	Score    int      `json:"score"`
	Rank     int      `json:"rank"`
	Events   []string `json:"events"`
	ClassTag string   `json:"classTag"`
}

// Leaderboard is emitted exactly once per match.
type Leaderboard struct {
	RankedEntries  []RankedEntry `json:"rankedEntries"`
	TotalConnected int           `json:"totalConnected"`
}

// Status is the synchronous liveness answer, outside the simulation protocol.
type Status struct {
	Status         string `json:"status"`
	ConnectedCount int    `json:"connectedCount"`
	Timestamp      int64  `json:"timestamp"`
}
