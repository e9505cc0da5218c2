// Command bot is a headless client for load and soak testing. It connects
// over the real WebSocket protocol, runs the same fixed-step movement
// controller a player client runs, wanders, fires blasts, and reconciles
// against server snapshots.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"blastrace/internal/client"
	"blastrace/internal/config"
	"blastrace/internal/game"
	"blastrace/internal/phys"
	"blastrace/internal/protocol"
)

// wsTransport adapts a gorilla connection to the bridge's Transport. Writes
// come from the loop goroutine and the signal handler, so they are serialized
// with a mutex.
type wsTransport struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (t *wsTransport) Send(msgType string, payload any) error {
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return t.ws.WriteMessage(websocket.TextMessage, raw)
}

type bot struct {
	transport *wsTransport
	bridge    *client.Bridge
	ctrl      *client.Controller
	connID    string

	mu        sync.Mutex
	snapshots []protocol.Snapshot
}

func main() {
	serverURL := flag.String("url", "ws://127.0.0.1:3000/ws", "server WebSocket URL")
	name := flag.String("name", "", "player name (random if empty)")
	duration := flag.Duration("duration", 60*time.Second, "how long to run")
	abilityEvery := flag.Duration("ability-every", 3*time.Second, "blast fire interval")
	flag.Parse()

	if *name == "" {
		*name = fmt.Sprintf("bot-%04d", rand.Intn(10000))
	}

	b, err := connect(*serverURL, *name)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	log.Printf("%s connected as %s", *name, b.connID)

	go b.readLoop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	deadline := time.After(*duration)

	cfg := config.Load()
	loop := client.NewFixedLoop(1.0/float64(cfg.Sim.TickHz), cfg.Sim.MaxFrameSec)

	frameTicker := time.NewTicker(16 * time.Millisecond)
	defer frameTicker.Stop()
	abilityTicker := time.NewTicker(*abilityEvery)
	defer abilityTicker.Stop()
	wanderTicker := time.NewTicker(2 * time.Second)
	defer wanderTicker.Stop()

	in := protocol.Input{MoveFlags: protocol.MoveForward}
	last := time.Now()

	for {
		select {
		case <-sigChan:
			log.Println("interrupted")
			return
		case <-deadline:
			log.Println("duration elapsed")
			return
		case <-wanderTicker.C:
			in.MoveFlags = wanderFlags()
			b.ctrl.Yaw = rand.Float64() * 2 * math.Pi
		case <-abilityTicker.C:
			b.fireBlast()
		case now := <-frameTicker.C:
			elapsed := now.Sub(last).Seconds()
			last = now
			b.drainInbound()
			loop.Advance(elapsed, func(dt float64) {
				b.bridge.Step(dt, in, time.Now())
			})
		}
	}
}

func connect(url, name string) (*bot, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	hello, err := protocol.Encode(protocol.MsgHello, protocol.Hello{Name: name})
	if err != nil {
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, hello); err != nil {
		return nil, errors.Wrap(err, "send hello")
	}

	ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "read welcome")
	}
	ws.SetReadDeadline(time.Time{})

	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	if env.T != protocol.MsgWelcome {
		return nil, errors.Errorf("expected %s, got %s", protocol.MsgWelcome, env.T)
	}
	welcome, err := protocol.DecodePayload[protocol.Welcome](env)
	if err != nil {
		return nil, err
	}

	cfg := config.Load()
	spawn := phys.Vec3{Y: game.PlayerRadius}
	if ps, ok := welcome.Snapshot.Players[welcome.ConnID]; ok {
		spawn = ps.Position
	}
	ctrl := client.NewController(spawn, cfg.Sim.Gravity)
	transport := &wsTransport{ws: ws}
	bridge := client.NewBridge(transport, welcome.ConnID, ctrl, cfg.Sim.PositionHz, true)
	for id, ts := range welcome.Snapshot.Targets {
		t := game.NewSharedTarget(id, ts.Position, game.OwnedServer, cfg.Match.TargetRespawn)
		t.Health = ts.Health
		t.Available = ts.Available
		bridge.AddTarget(t)
	}

	b := &bot{
		transport: transport,
		bridge:    bridge,
		ctrl:      ctrl,
		connID:    welcome.ConnID,
	}
	bridge.ApplySnapshot(welcome.Snapshot)
	return b, nil
}

// readLoop parks on the socket and hands server messages to the loop
// goroutine through the inbound buffers.
func (b *bot) readLoop() {
	for {
		_, raw, err := b.transport.ws.ReadMessage()
		if err != nil {
			log.Printf("read: %v", err)
			os.Exit(0)
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			log.Printf("decode: %v", err)
			continue
		}
		switch env.T {
		case protocol.MsgSnapshot:
			s, err := protocol.DecodePayload[protocol.Snapshot](env)
			if err != nil {
				continue
			}
			b.mu.Lock()
			b.snapshots = append(b.snapshots, s)
			b.mu.Unlock()
		case protocol.MsgAbilityEvent:
			ev, err := protocol.DecodePayload[protocol.AbilityEvent](env)
			if err != nil {
				continue
			}
			log.Printf("blast by %s at (%.1f, %.1f, %.1f)",
				ev.OriginConn, ev.Origin.X, ev.Origin.Y, ev.Origin.Z)
		case protocol.MsgVoteUpdate:
			v, err := protocol.DecodePayload[protocol.VoteUpdate](env)
			if err != nil {
				continue
			}
			log.Printf("vote: round=%d menu=%d/%d decision=%q",
				v.RoundCount, v.MenuCount, v.Total, v.Decision)
		case protocol.MsgLeaderboard:
			lb, err := protocol.DecodePayload[protocol.Leaderboard](env)
			if err != nil {
				continue
			}
			for _, e := range lb.RankedEntries {
				log.Printf("rank %d: %s score=%d", e.Rank, e.ConnID, e.Score)
			}
		case protocol.MsgRaceStart:
			log.Println("race started")
		case protocol.MsgServerClosing:
			log.Println("server closing")
			os.Exit(0)
		}
	}
}

// drainInbound applies buffered snapshots on the loop goroutine, mirroring
// how a real client defers reconciliation to its fixed step.
func (b *bot) drainInbound() {
	b.mu.Lock()
	snaps := b.snapshots
	b.snapshots = nil
	b.mu.Unlock()

	for _, s := range snaps {
		b.bridge.ApplySnapshot(s)
	}
}

func (b *bot) fireBlast() {
	sin, cos := math.Sin(b.ctrl.Yaw), math.Cos(b.ctrl.Yaw)
	dir := phys.Vec3{X: sin, Z: -cos}
	origin := b.ctrl.Pos.Add(phys.Vec3{Y: 0.5}).Add(dir.Scale(0.6))
	b.bridge.SendAbility("blast", origin, dir)
}

func wanderFlags() uint8 {
	flags := protocol.MoveForward
	if rand.Intn(4) == 0 {
		flags |= protocol.MoveJump
	}
	switch rand.Intn(3) {
	case 1:
		flags |= protocol.MoveLeft
	case 2:
		flags |= protocol.MoveRight
	}
	return flags
}
