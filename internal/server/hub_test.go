package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"blastrace/internal/game"
	"blastrace/internal/match"
	"blastrace/internal/phys"
	"blastrace/internal/protocol"
)

func startTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	w := phys.NewMemWorld(24)
	engine := game.NewEngine(w, nil, game.EngineConfig{
		TickHz:        30,
		TargetRespawn: time.Second,
		TargetSpawns:  map[string]phys.Vec3{"dummy-1": {X: 10, Y: 0.6}},
	})
	h := New(Config{TickHz: 30, MaxConns: 8, MaxConnsPerIP: 8}, engine, match.Config{
		StartCooldown: 50 * time.Millisecond,
		VoteTimeout:   time.Minute,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dialTestClient(t *testing.T, srv *httptest.Server, name string) (*websocket.Conn, protocol.Welcome) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	send(t, ws, protocol.MsgHello, protocol.Hello{Name: name})

	env := readUntil(t, ws, protocol.MsgWelcome)
	welcome, err := protocol.DecodePayload[protocol.Welcome](env)
	if err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	return ws, welcome
}

func send(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", msgType, err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

// readUntil reads messages until one of the wanted type arrives. Snapshots
// arrive continuously, so tests skip past whatever they are not waiting for.
func readUntil(t *testing.T, ws *websocket.Conn, msgType string) protocol.Envelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.T == msgType {
			return env
		}
	}
}

func TestHubWelcomeAndSnapshotStream(t *testing.T) {
	_, srv := startTestHub(t)
	ws, welcome := dialTestClient(t, srv, "alice")

	if welcome.ConnID == "" {
		t.Fatal("welcome carried no connection id")
	}
	if _, ok := welcome.Snapshot.Players[welcome.ConnID]; !ok {
		t.Error("welcome snapshot missing the joining player")
	}
	if _, ok := welcome.Snapshot.Targets["dummy-1"]; !ok {
		t.Error("welcome snapshot missing shared targets")
	}

	env := readUntil(t, ws, protocol.MsgSnapshot)
	snap, err := protocol.DecodePayload[protocol.Snapshot](env)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if _, ok := snap.Players[welcome.ConnID]; !ok {
		t.Error("tick snapshot missing the connected player")
	}
}

func TestHubCorrectionReflectedInSnapshot(t *testing.T) {
	_, srv := startTestHub(t)
	ws, welcome := dialTestClient(t, srv, "alice")

	want := phys.Vec3{X: 42, Y: 5, Z: -7}
	send(t, ws, protocol.MsgCorrection, protocol.Correction{
		Position:  want,
		Velocity:  phys.Vec3{X: 20},
		ReasonTag: "blastLaunch",
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env := readUntil(t, ws, protocol.MsgSnapshot)
		snap, err := protocol.DecodePayload[protocol.Snapshot](env)
		if err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		p, ok := snap.Players[welcome.ConnID]
		if !ok {
			continue
		}
		// Gravity pulls the corrected body down tick by tick, so match on
		// the horizontal coordinates only.
		if p.Position.X == want.X && p.Position.Z == want.Z {
			return
		}
	}
	t.Fatal("correction never showed up in a snapshot")
}

func TestHubAbilityEventBroadcast(t *testing.T) {
	_, srv := startTestHub(t)
	ws, welcome := dialTestClient(t, srv, "alice")

	send(t, ws, protocol.MsgAbility, protocol.Ability{
		AbilityKind: "blast",
		Origin:      phys.Vec3{Y: 1},
		Direction:   phys.Vec3{X: 1},
	})

	env := readUntil(t, ws, protocol.MsgAbilityEvent)
	ev, err := protocol.DecodePayload[protocol.AbilityEvent](env)
	if err != nil {
		t.Fatalf("decode ability event: %v", err)
	}
	if ev.OriginConn != welcome.ConnID {
		t.Errorf("event origin = %q, want %q", ev.OriginConn, welcome.ConnID)
	}
}

func TestHubRaceVoteLeaderboardCycle(t *testing.T) {
	h, srv := startTestHub(t)
	ws, welcome := dialTestClient(t, srv, "alice")

	send(t, ws, protocol.MsgStartRace, struct{}{})
	readUntil(t, ws, protocol.MsgRaceStart)

	// First final score ends the race, opens voting, and (being the only
	// connection) completes the leaderboard.
	send(t, ws, protocol.MsgFinalScore, protocol.FinalScore{Score: 150, ClassTag: "runner"})
	env := readUntil(t, ws, protocol.MsgLeaderboard)
	lb, err := protocol.DecodePayload[protocol.Leaderboard](env)
	if err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(lb.RankedEntries) != 1 || lb.RankedEntries[0].ConnID != welcome.ConnID {
		t.Fatalf("leaderboard = %+v, want single entry for %s", lb, welcome.ConnID)
	}
	if lb.RankedEntries[0].Score != 150 || lb.RankedEntries[0].Rank != 1 {
		t.Errorf("entry = %+v, want score 150 at rank 1", lb.RankedEntries[0])
	}

	// A unanimous round vote starts the next race.
	send(t, ws, protocol.MsgVoteRound, struct{}{})
	for {
		env := readUntil(t, ws, protocol.MsgVoteUpdate)
		u, err := protocol.DecodePayload[protocol.VoteUpdate](env)
		if err != nil {
			t.Fatalf("decode vote update: %v", err)
		}
		if u.Decision == "round" {
			break
		}
	}
	readUntil(t, ws, protocol.MsgRaceStart)

	deadline := time.Now().Add(time.Second)
	for h.Coordinator().Phase() != match.PhaseRaceActive {
		if time.Now().After(deadline) {
			t.Fatalf("phase = %v, want race_active", h.Coordinator().Phase())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubMenuVoteReturnsToIdle(t *testing.T) {
	h, srv := startTestHub(t)
	ws1, _ := dialTestClient(t, srv, "alice")
	ws2, _ := dialTestClient(t, srv, "bob")

	send(t, ws1, protocol.MsgStartRace, struct{}{})
	readUntil(t, ws1, protocol.MsgRaceStart)
	readUntil(t, ws2, protocol.MsgRaceStart)

	send(t, ws1, protocol.MsgFinalScore, protocol.FinalScore{Score: 10})

	// The race end is announced with an undecided tally; once it arrives the
	// vote cannot race ahead of the phase change and get dropped.
	open, err := protocol.DecodePayload[protocol.VoteUpdate](readUntil(t, ws2, protocol.MsgVoteUpdate))
	if err != nil {
		t.Fatalf("decode vote update: %v", err)
	}
	if open.Decision != "" || open.Total != 2 {
		t.Fatalf("opening announce = %+v, want undecided tally for 2", open)
	}

	// One menu vote decides immediately, no unanimity needed.
	send(t, ws2, protocol.MsgVoteMenu, struct{}{})
	for {
		env := readUntil(t, ws1, protocol.MsgVoteUpdate)
		u, err := protocol.DecodePayload[protocol.VoteUpdate](env)
		if err != nil {
			t.Fatalf("decode vote update: %v", err)
		}
		if u.Decision == "menu" {
			break
		}
	}

	deadline := time.Now().Add(time.Second)
	for h.Coordinator().Phase() != match.PhaseIdle {
		if time.Now().After(deadline) {
			t.Fatalf("phase = %v, want idle", h.Coordinator().Phase())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubPerIPConnectionCap(t *testing.T) {
	w := phys.NewMemWorld(24)
	engine := game.NewEngine(w, nil, game.EngineConfig{TickHz: 30})
	h := New(Config{TickHz: 30, MaxConns: 8, MaxConnsPerIP: 1}, engine, match.Config{
		StartCooldown: time.Millisecond,
		VoteTimeout:   time.Minute,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	dialTestClient(t, srv, "alice")

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("second connection from the same IP accepted past the cap")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("rejection status = %v, want 429", resp)
	}
}

func TestHubHelloTimeoutReleasesSlot(t *testing.T) {
	w := phys.NewMemWorld(24)
	engine := game.NewEngine(w, nil, game.EngineConfig{TickHz: 30})
	h := New(Config{TickHz: 30, MaxConns: 8, MaxConnsPerIP: 1, HelloTimeout: 100 * time.Millisecond}, engine, match.Config{
		StartCooldown: time.Millisecond,
		VoteTimeout:   time.Minute,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	// Never send the hello: the server must hang up at the deadline instead
	// of parking the handler goroutine forever.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("server kept a silent connection past the hello window")
	}

	// The per-IP slot was released, so a well-behaved client gets in.
	dialTestClient(t, srv, "alice")
}

func TestHubDisconnectPrunesPlayer(t *testing.T) {
	_, srv := startTestHub(t)
	ws1, w1 := dialTestClient(t, srv, "alice")
	ws2, w2 := dialTestClient(t, srv, "bob")

	// Both visible to each other first.
	deadline := time.Now().Add(2 * time.Second)
	for {
		env := readUntil(t, ws1, protocol.MsgSnapshot)
		snap, _ := protocol.DecodePayload[protocol.Snapshot](env)
		if _, ok := snap.Players[w2.ConnID]; ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second player never appeared in snapshots")
		}
	}

	ws2.Close()

	deadline = time.Now().Add(2 * time.Second)
	for {
		env := readUntil(t, ws1, protocol.MsgSnapshot)
		snap, _ := protocol.DecodePayload[protocol.Snapshot](env)
		if _, ok := snap.Players[w2.ConnID]; !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("disconnected player still in snapshots")
		}
	}

	// The remaining player is unaffected.
	env := readUntil(t, ws1, protocol.MsgSnapshot)
	snap, _ := protocol.DecodePayload[protocol.Snapshot](env)
	if _, ok := snap.Players[w1.ConnID]; !ok {
		t.Error("remaining player missing from snapshots")
	}
}
