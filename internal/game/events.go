package game

import (
	"encoding/json"
	"time"
)

// EventType classifies audit-log events.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeJoin
	EventTypeLeave
	EventTypeExplosion
	EventTypeDamage
	EventTypeCorrection
	EventTypeVoteDecision
	EventTypeRaceStart
)

// EventVersion for backwards compatibility when replaying logs.
const EventVersion uint8 = 1

// Event is the core record written to the audit log.
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // unix nano
	Sequence  uint64    `json:"sequence"`
	Tick      uint64    `json:"tick"`
	ConnID    string    `json:"connId"`
	Payload   []byte    `json:"payload"`
}

// String returns a human-readable event type.
func (t EventType) String() string {
	switch t {
	case EventTypeJoin:
		return "join"
	case EventTypeLeave:
		return "leave"
	case EventTypeExplosion:
		return "explosion"
	case EventTypeDamage:
		return "damage"
	case EventTypeCorrection:
		return "correction"
	case EventTypeVoteDecision:
		return "vote_decision"
	case EventTypeRaceStart:
		return "race_start"
	default:
		return "unknown"
	}
}

// NewEvent builds an Event with a marshaled payload. Marshal failures leave
// the payload empty; an event with a lost payload still beats a lost event.
func NewEvent(t EventType, tick uint64, connID string, payload any) Event {
	var raw []byte
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	return Event{
		Version:   EventVersion,
		Type:      t,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		ConnID:    connID,
		Payload:   raw,
	}
}

// ExplosionPayload records a resolved area effect.
type ExplosionPayload struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Affected int     `json:"affected"`
}

// DamagePayload records a shared-target damage application.
type DamagePayload struct {
	TargetID  string `json:"targetId"`
	Amount    int    `json:"amount"`
	HealthNow int    `json:"healthNow"`
}

// CorrectionPayload records an out-of-band position override.
type CorrectionPayload struct {
	ReasonTag string  `json:"reasonTag"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

// VoteDecisionPayload records a resolved post-match vote.
type VoteDecisionPayload struct {
	Decision   string `json:"decision"`
	RoundCount int    `json:"roundCount"`
	MenuCount  int    `json:"menuCount"`
	Total      int    `json:"total"`
	TimedOut   bool   `json:"timedOut"`
}
