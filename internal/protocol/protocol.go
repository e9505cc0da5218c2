// Package protocol defines the wire format between client and server.
// Every message travels as an Envelope: a type tag plus raw payload bytes,
// decoded into a typed payload struct by the receiver.
package protocol

import "encoding/json"

// Message types, client -> server.
const (
	MsgHello      = "hello"
	MsgInput      = "input"
	MsgPosition   = "position"
	MsgCorrection = "correction"
	MsgAbility    = "ability"
	MsgDamage     = "damage"
	MsgVoteRound  = "voteRound"
	MsgVoteMenu   = "voteMenu"
	MsgStartRace  = "startRace"
	MsgFinalScore = "finalScore"
)

// Message types, server -> client.
const (
	MsgWelcome       = "welcome"
	MsgSnapshot      = "snapshot"
	MsgAbilityEvent  = "abilityEvent"
	MsgVoteUpdate    = "voteUpdate"
	MsgRaceStart     = "raceStart"
	MsgLeaderboard   = "leaderboard"
	MsgServerClosing = "serverClosing"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}
