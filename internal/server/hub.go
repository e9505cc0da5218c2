// Package server runs the authoritative side: a websocket hub feeding one
// single-threaded fixed-interval tick loop. All connections' buffered input
// is processed synchronously within a tick; there are no per-connection
// goroutines touching simulation state.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"blastrace/internal/api"
	"blastrace/internal/game"
	"blastrace/internal/match"
	"blastrace/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Config tunes the hub.
type Config struct {
	TickHz        int
	MaxConns      int
	MaxConnsPerIP int
	HelloTimeout  time.Duration // how long a fresh connection may stay silent
}

// Hub owns the tick loop and all connections. Simulation state (engine,
// coordinator totals) is mutated only from the Run goroutine; commands
// arriving from read pumps and timers are serialized through the inbox.
type Hub struct {
	cfg    Config
	engine *game.Engine
	coord  *match.Coordinator
	events *game.EventLog

	inbox chan any
	conns map[string]*conn
	names map[string]string
	next  atomic.Int64

	ipConns   map[string]int
	ipConnsMu sync.Mutex

	// Read-only mirrors for the HTTP surface.
	statusMu     sync.RWMutex
	connCount    int
	lastSnapshot protocol.Snapshot

	done chan struct{}
}

// Commands serialized through the inbox.
type (
	cmdJoin struct {
		c    *conn
		name string
	}
	cmdLeave struct{ id string }
	cmdInput struct {
		id    string
		input protocol.Input
	}
	cmdPosition struct {
		id  string
		pos protocol.Position
	}
	cmdCorrection struct {
		id   string
		corr protocol.Correction
	}
	cmdAbility struct {
		id      string
		ability protocol.Ability
	}
	cmdDamage struct {
		id     string
		damage protocol.Damage
	}
	cmdVote struct {
		id   string
		menu bool
	}
	cmdStartRace  struct{ id string }
	cmdFinalScore struct {
		id    string
		score protocol.FinalScore
	}
	cmdBroadcast struct {
		msgType string
		payload any
	}
	cmdShutdown struct{ done chan struct{} }
)

// New creates a hub around an engine and a match coordinator config.
func New(cfg Config, engine *game.Engine, matchCfg match.Config, events *game.EventLog) *Hub {
	if cfg.TickHz <= 0 {
		cfg.TickHz = 30
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = 5 * time.Second
	}
	h := &Hub{
		cfg:     cfg,
		engine:  engine,
		events:  events,
		inbox:   make(chan any, 256),
		conns:   make(map[string]*conn),
		names:   make(map[string]string),
		ipConns: make(map[string]int),
		done:    make(chan struct{}),
	}

	// Coordinator callbacks can fire on a timer goroutine; routing them
	// through the inbox keeps all broadcasting on the tick goroutine.
	h.coord = match.New(matchCfg, match.Callbacks{
		OnVoteUpdate: func(u protocol.VoteUpdate) {
			h.post(cmdBroadcast{msgType: protocol.MsgVoteUpdate, payload: u})
		},
		OnDecision: func(d match.Decision, timedOut bool) {
			h.handleDecision(d, timedOut)
		},
		OnLeaderboard: func(lb protocol.Leaderboard) {
			h.post(cmdBroadcast{msgType: protocol.MsgLeaderboard, payload: lb})
		},
	})
	return h
}

// Coordinator exposes the match coordinator (status, tests).
func (h *Hub) Coordinator() *match.Coordinator {
	return h.coord
}

// post delivers a command to the tick goroutine, dropping with a log line if
// the inbox is saturated. Dropping beats deadlocking the loop.
func (h *Hub) post(cmd any) {
	select {
	case h.inbox <- cmd:
	default:
		log.Printf("hub: inbox full, dropping %T", cmd)
	}
}

// Run drives the tick loop until ctx is cancelled or Shutdown completes.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.TickHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case cmd := <-h.inbox:
			if sd, ok := cmd.(cmdShutdown); ok {
				h.closeAll()
				close(sd.done)
				return
			}
			h.handleCommand(cmd)
		case <-ticker.C:
			h.tick(time.Now())
		}
	}
}

// Shutdown notifies connections and stops the loop. Safe to call once.
func (h *Hub) Shutdown() {
	done := make(chan struct{})
	select {
	case h.inbox <- cmdShutdown{done: done}:
		<-done
	case <-time.After(2 * time.Second):
		log.Println("hub: shutdown post timed out")
	}
}

// tick runs one fixed step: ingestion happens inside engine.Tick (after the
// deferred command drain), then the broadcast. With zero connections the
// snapshot is skipped entirely.
func (h *Hub) tick(now time.Time) {
	start := time.Now()
	h.engine.Tick(now)

	if len(h.conns) > 0 {
		h.broadcastAbilityEvents()
		h.broadcastSnapshot(now)
	} else {
		h.engine.DrainAbilityEvents()
	}
	api.RecordTick(time.Since(start))
}

func (h *Hub) handleCommand(cmd any) {
	now := time.Now()
	switch c := cmd.(type) {
	case cmdJoin:
		h.handleJoin(c)
	case cmdLeave:
		h.handleLeave(c.id)
	case cmdInput:
		h.engine.BufferInput(c.id, c.input)
	case cmdPosition:
		h.engine.UpdatePosition(c.id, c.pos)
	case cmdCorrection:
		// Waiting for the next scheduled tick would show every other client
		// a stale position, so the broadcast goes out now.
		if err := h.engine.ApplyCorrection(c.id, c.corr); err != nil {
			log.Printf("hub: correction from %s: %v", c.id, err)
			return
		}
		api.RecordCorrection()
		h.broadcastSnapshot(now)
	case cmdAbility:
		if _, ok := h.engine.HandleAbility(c.id, c.ability, now); ok {
			h.broadcastAbilityEvents()
		}
	case cmdDamage:
		h.engine.DamageTarget(c.id, c.damage, now)
	case cmdVote:
		kind := "round"
		if c.menu {
			kind = "menu"
		}
		api.RecordVote(kind)
		h.coord.CastVote(c.id, c.menu)
	case cmdStartRace:
		if h.coord.RequestStart(c.id) {
			h.emit(game.EventTypeRaceStart, c.id, nil)
			h.broadcast(protocol.MsgRaceStart, struct{}{})
			h.coord.MarkRaceActive()
		}
	case cmdFinalScore:
		// The first finisher's score ends the race and opens voting.
		if h.coord.Phase() == match.PhaseRaceActive {
			h.coord.OpenVoting(len(h.conns))
		}
		h.coord.SubmitScore(c.id, c.score)
	case cmdBroadcast:
		h.broadcast(c.msgType, c.payload)
	}
}

func (h *Hub) handleJoin(c cmdJoin) {
	id := c.c.id

	if _, err := h.engine.Connect(id, c.name); err != nil {
		log.Printf("hub: connect %s: %v", id, err)
		close(c.c.send)
		return
	}
	h.conns[id] = c.c
	h.names[id] = c.name
	h.updateStatus()

	welcome, err := protocol.Encode(protocol.MsgWelcome, protocol.Welcome{
		ConnID:   id,
		Snapshot: h.engine.Snapshot(time.Now()),
	})
	if err != nil {
		log.Printf("hub: welcome for %s: %v", id, err)
	} else {
		c.c.enqueue(welcome)
	}
	log.Printf("hub: %s connected (%d total)", id, len(h.conns))
}

// handleLeave removes the connection and immediately re-evaluates pending
// vote and leaderboard aggregates: the removal can retroactively make them
// unanimous or complete.
func (h *Hub) handleLeave(id string) {
	c, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	delete(h.names, id)
	close(c.send)
	h.releaseIP(c.ip)

	h.engine.Disconnect(id)
	h.coord.HandleDisconnect(id)
	h.updateStatus()
	log.Printf("hub: %s disconnected (%d remaining)", id, len(h.conns))
}

func (h *Hub) handleDecision(d match.Decision, timedOut bool) {
	state := h.coord.VoteState()
	h.emit(game.EventTypeVoteDecision, "", game.VoteDecisionPayload{
		Decision:   d.String(),
		RoundCount: state.RoundCount,
		MenuCount:  state.MenuCount,
		Total:      state.Total,
		TimedOut:   timedOut,
	})
	if d == match.DecisionRound {
		h.post(cmdBroadcast{msgType: protocol.MsgRaceStart, payload: struct{}{}})
		h.coord.MarkRaceActive()
	}
}

func (h *Hub) broadcastSnapshot(now time.Time) {
	snap := h.engine.Snapshot(now)

	h.statusMu.Lock()
	h.lastSnapshot = snap
	h.statusMu.Unlock()

	h.broadcast(protocol.MsgSnapshot, snap)
	api.RecordSnapshotBroadcast()
}

func (h *Hub) broadcastAbilityEvents() {
	for _, ev := range h.engine.DrainAbilityEvents() {
		h.broadcast(protocol.MsgAbilityEvent, ev)
	}
}

// broadcast fans an encoded message out to every connection. Delivery order
// across connections is unordered; a backed-up client just misses it.
func (h *Hub) broadcast(msgType string, payload any) {
	msg, err := protocol.Encode(msgType, payload)
	if err != nil {
		log.Printf("hub: encode %s: %v", msgType, err)
		return
	}
	for _, c := range h.conns {
		c.enqueue(msg)
	}
}

func (h *Hub) closeAll() {
	if msg, err := protocol.Encode(protocol.MsgServerClosing, struct{}{}); err == nil {
		for _, c := range h.conns {
			c.enqueue(msg)
		}
	}
	for id, c := range h.conns {
		close(c.send)
		delete(h.conns, id)
	}
	h.updateStatus()
}

func (h *Hub) updateStatus() {
	h.statusMu.Lock()
	h.connCount = len(h.conns)
	h.statusMu.Unlock()
	api.UpdateWSConnections(len(h.conns))
}

func (h *Hub) emit(t game.EventType, connID string, payload any) {
	if h.events != nil {
		h.events.EmitSimple(t, 0, connID, payload)
	}
}

// Status answers the liveness query. Safe from any goroutine.
func (h *Hub) Status() protocol.Status {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return protocol.Status{
		Status:         "ok",
		ConnectedCount: h.connCount,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// LatestSnapshot returns the last broadcast snapshot. Safe from any
// goroutine.
func (h *Hub) LatestSnapshot() protocol.Snapshot {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	return h.lastSnapshot
}

// HandleWebSocket upgrades a connection and starts its pumps, enforcing the
// total and per-IP connection caps before the upgrade.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := api.GetClientIP(r)

	h.statusMu.RLock()
	total := h.connCount
	h.statusMu.RUnlock()
	if h.cfg.MaxConns > 0 && total >= h.cfg.MaxConns {
		api.RecordConnectionRejected("total_limit")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.acquireIP(ip) {
		api.RecordConnectionRejected("ip_limit")
		http.Error(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: upgrade: %v", err)
		h.releaseIP(ip)
		return
	}
	c := newConn(ws, ip)
	c.id = fmt.Sprintf("c%d", h.next.Add(1))

	// The first message must be a hello, and it must arrive within the
	// handshake window: a client that connects and never speaks must not
	// pin this goroutine or its per-IP slot.
	ws.SetReadDeadline(time.Now().Add(h.cfg.HelloTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		log.Printf("hub: hello from %s: %v", ip, err)
		h.releaseIP(ip)
		ws.Close()
		return
	}
	ws.SetReadDeadline(time.Time{})

	name := ""
	if env, err := protocol.DecodeEnvelope(raw); err == nil && env.T == protocol.MsgHello {
		if hello, err := protocol.DecodePayload[protocol.Hello](env); err == nil {
			name = hello.Name
		}
	}

	go c.writePump()
	h.post(cmdJoin{c: c, name: name})
	go c.readPump(h)
}

func (h *Hub) acquireIP(ip string) bool {
	h.ipConnsMu.Lock()
	defer h.ipConnsMu.Unlock()
	if h.cfg.MaxConnsPerIP > 0 && h.ipConns[ip] >= h.cfg.MaxConnsPerIP {
		return false
	}
	h.ipConns[ip]++
	return true
}

func (h *Hub) releaseIP(ip string) {
	h.ipConnsMu.Lock()
	defer h.ipConnsMu.Unlock()
	if h.ipConns[ip] > 0 {
		h.ipConns[ip]--
		if h.ipConns[ip] == 0 {
			delete(h.ipConns, ip)
		}
	}
}
