// Package match owns the lifecycle around a race: start gating, post-match
// voting, and leaderboard aggregation. All of it lives as fields of one
// Coordinator instance with an explicit Reset between matches; connection
// handlers hold a reference instead of sharing globals.
package match

import (
	"sync"
	"time"

	"blastrace/internal/protocol"
)

// Phase is the coordinator state machine.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseRaceStarting
	PhaseRaceActive
	PhaseVoting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRaceStarting:
		return "race_starting"
	case PhaseRaceActive:
		return "race_active"
	case PhaseVoting:
		return "voting"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a post-match vote.
type Decision uint8

const (
	DecisionNone Decision = iota
	DecisionRound
	DecisionMenu
)

func (d Decision) String() string {
	switch d {
	case DecisionRound:
		return "round"
	case DecisionMenu:
		return "menu"
	default:
		return ""
	}
}

// Config tunes coordinator timings.
type Config struct {
	StartCooldown time.Duration // duplicate race-start suppression window
	VoteTimeout   time.Duration // forces menu if no unanimous decision
}

// Callbacks are invoked with the coordinator's lock released. They run on
// whichever goroutine triggered the transition (tick loop or timer).
type Callbacks struct {
	OnVoteUpdate  func(protocol.VoteUpdate)
	OnDecision    func(d Decision, timedOut bool)
	OnLeaderboard func(protocol.Leaderboard)
}

// Coordinator drives race start, voting, and leaderboard flush.
//
// The server tick goroutine is the main caller, but the vote timeout fires
// on a timer goroutine, so all state is guarded by one mutex. voteEpoch
// fences stale timers: a timer from a vote that already resolved or was
// reset never acts.
type Coordinator struct {
	mu  sync.Mutex
	cfg Config
	cbs Callbacks

	phase Phase

	roundVotes map[string]struct{}
	menuVotes  map[string]struct{}
	total      int
	voteTimer  *time.Timer
	voteEpoch  uint64

	startLatched bool
	startEpoch   uint64

	board *Leaderboard
}

// New creates an idle coordinator.
func New(cfg Config, cbs Callbacks) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		cbs:        cbs,
		roundVotes: make(map[string]struct{}),
		menuVotes:  make(map[string]struct{}),
		board:      NewLeaderboard(),
	}
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// RequestStart asks to begin a race. Any connection may request it; a latch
// suppresses duplicates for the cooldown window and clears automatically
// regardless of outcome.
func (c *Coordinator) RequestStart(connID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.startLatched || c.phase == PhaseRaceStarting || c.phase == PhaseRaceActive {
		return false
	}
	c.startLatched = true
	c.startEpoch++
	epoch := c.startEpoch
	time.AfterFunc(c.cfg.StartCooldown, func() {
		c.mu.Lock()
		if c.startEpoch == epoch {
			c.startLatched = false
		}
		c.mu.Unlock()
	})

	c.phase = PhaseRaceStarting
	return true
}

// MarkRaceActive flips RaceStarting to RaceActive once the start goes out.
func (c *Coordinator) MarkRaceActive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseRaceStarting {
		c.phase = PhaseRaceActive
	}
}

// OpenVoting ends the race and opens the post-match vote for total live
// connections. Leaderboard collection opens at the same moment. The timeout
// timer guarantees termination even if nobody votes. The empty tally is
// announced through OnVoteUpdate: votes racing in right behind the final
// score need a sync point telling them the tally is accepting.
func (c *Coordinator) OpenVoting(total int) {
	c.mu.Lock()

	c.phase = PhaseVoting
	c.total = total
	c.roundVotes = make(map[string]struct{})
	c.menuVotes = make(map[string]struct{})
	c.board.Reset()

	c.voteEpoch++
	epoch := c.voteEpoch
	c.voteTimer = time.AfterFunc(c.cfg.VoteTimeout, func() {
		c.voteTimedOut(epoch)
	})

	update := c.voteUpdateLocked()
	cb := c.cbs.OnVoteUpdate
	c.mu.Unlock()

	if cb != nil {
		cb(update)
	}
}

// CastVote records a connection's vote. Casting retracts any prior opposite
// vote from the same connection; a connection appears in at most one set.
func (c *Coordinator) CastVote(connID string, menu bool) {
	c.mu.Lock()
	if c.phase != PhaseVoting {
		c.mu.Unlock()
		return
	}
	if menu {
		delete(c.roundVotes, connID)
		c.menuVotes[connID] = struct{}{}
	} else {
		delete(c.menuVotes, connID)
		c.roundVotes[connID] = struct{}{}
	}
	c.resolveLocked(false)
}

// HandleDisconnect removes the connection from both vote sets and from the
// expected totals, then re-evaluates: the removal can retroactively make the
// round vote unanimous or the leaderboard complete.
func (c *Coordinator) HandleDisconnect(connID string) {
	c.mu.Lock()
	delete(c.roundVotes, connID)
	delete(c.menuVotes, connID)
	if c.total > 0 {
		c.total--
	}
	if c.phase != PhaseVoting {
		c.checkFlushThenUnlock()
		return
	}
	c.resolveLocked(false)
}

// SubmitScore records a final score and re-checks leaderboard completeness.
func (c *Coordinator) SubmitScore(connID string, fs protocol.FinalScore) {
	c.mu.Lock()
	c.board.Submit(connID, fs)
	c.checkFlushThenUnlock()
}

// voteTimedOut forces menu when the timeout elapses before unanimity.
func (c *Coordinator) voteTimedOut(epoch uint64) {
	c.mu.Lock()
	if c.voteEpoch != epoch || c.phase != PhaseVoting {
		c.mu.Unlock()
		return
	}
	c.decideLocked(DecisionMenu, true)
}

// resolveLocked applies the decision rule: any menu vote wins immediately;
// otherwise a unanimous round vote wins. Unlocks c.mu either way.
func (c *Coordinator) resolveLocked(timedOut bool) {
	update := c.voteUpdateLocked()
	switch {
	case len(c.menuVotes) > 0:
		c.decideLocked(DecisionMenu, timedOut)
	case c.total > 0 && len(c.roundVotes) == c.total:
		c.decideLocked(DecisionRound, timedOut)
	default:
		cb := c.cbs.OnVoteUpdate
		c.mu.Unlock()
		if cb != nil {
			cb(update)
		}
		// No decision: also give the leaderboard check a chance, since a
		// disconnect routes through here.
		c.mu.Lock()
		c.checkFlushThenUnlock()
	}
}

// decideLocked finalizes the vote: cancels the timeout the instant an early
// decision resolves, clears both sets, and moves the phase. Unlocks c.mu.
func (c *Coordinator) decideLocked(d Decision, timedOut bool) {
	if c.voteTimer != nil {
		c.voteTimer.Stop()
		c.voteTimer = nil
	}
	c.voteEpoch++

	update := c.voteUpdateLocked()
	update.Decision = d.String()

	c.roundVotes = make(map[string]struct{})
	c.menuVotes = make(map[string]struct{})
	if d == DecisionRound {
		c.phase = PhaseRaceStarting
	} else {
		c.phase = PhaseIdle
	}

	// The event that decided the vote can complete the leaderboard in the
	// same stroke (a disconnect shrinks both totals at once), so the flush
	// is re-checked before control leaves.
	var board protocol.Leaderboard
	flushed := false
	if !c.board.Flushed() && c.total > 0 && c.board.Count() >= c.total {
		board, flushed = c.board.Flush(c.total)
	}

	onUpdate, onLeaderboard, onDecision := c.cbs.OnVoteUpdate, c.cbs.OnLeaderboard, c.cbs.OnDecision
	c.mu.Unlock()

	if onUpdate != nil {
		onUpdate(update)
	}
	if flushed && onLeaderboard != nil {
		onLeaderboard(board)
	}
	if onDecision != nil {
		onDecision(d, timedOut)
	}
}

// checkFlushThenUnlock fires the leaderboard exactly once, gated on every
// live connection having submitted. Unlocks c.mu.
func (c *Coordinator) checkFlushThenUnlock() {
	if c.board.Flushed() || c.total <= 0 || c.board.Count() < c.total {
		c.mu.Unlock()
		return
	}
	payload, ok := c.board.Flush(c.total)
	cb := c.cbs.OnLeaderboard
	c.mu.Unlock()
	if ok && cb != nil {
		cb(payload)
	}
}

func (c *Coordinator) voteUpdateLocked() protocol.VoteUpdate {
	return protocol.VoteUpdate{
		RoundCount: len(c.roundVotes),
		MenuCount:  len(c.menuVotes),
		Total:      c.total,
		Unanimous:  c.total > 0 && len(c.roundVotes) == c.total,
	}
}

// VoteState returns the current tally without side effects.
func (c *Coordinator) VoteState() protocol.VoteUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voteUpdateLocked()
}

// Reset clears all lifecycle state between matches.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.voteTimer != nil {
		c.voteTimer.Stop()
		c.voteTimer = nil
	}
	c.voteEpoch++
	c.startEpoch++
	c.startLatched = false
	c.phase = PhaseIdle
	c.roundVotes = make(map[string]struct{})
	c.menuVotes = make(map[string]struct{})
	c.total = 0
	c.board.Reset()
}
