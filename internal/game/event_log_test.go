package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEventLogWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el := NewEventLog()
	if err := el.Start(path); err != nil {
		t.Fatalf("start: %v", err)
	}

	el.EmitSimple(EventTypeJoin, 1, "c1", nil)
	el.EmitSimple(EventTypeExplosion, 2, "c1", ExplosionPayload{X: 1, Affected: 3})
	el.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].Type != EventTypeJoin || lines[1].Type != EventTypeExplosion {
		t.Errorf("types = %v %v", lines[0].Type, lines[1].Type)
	}
	if lines[1].Tick != 2 {
		t.Errorf("tick = %d, want 2", lines[1].Tick)
	}
}

func TestEventLogStoppedRejectsEmit(t *testing.T) {
	el := NewEventLog()
	if el.EmitSimple(EventTypeJoin, 0, "c1", nil) {
		t.Error("emit on a never-started log accepted")
	}

	if err := el.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !el.EmitSimple(EventTypeJoin, 0, "c1", nil) {
		t.Error("emit on a running log rejected")
	}
	el.Stop()
	if el.EmitSimple(EventTypeJoin, 0, "c1", nil) {
		t.Error("emit after stop accepted")
	}
}

func TestEventLogStatsCountDrops(t *testing.T) {
	el := NewEventLog()
	if err := el.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer el.Stop()

	// Push well past the rate limit in a tight loop; some must drop.
	for i := 0; i < 3*maxEventsPerSec; i++ {
		el.EmitSimple(EventTypeDamage, uint64(i), "c1", nil)
	}
	total, dropped, _ := el.Stats()
	if total == 0 {
		t.Error("no events accepted")
	}
	if dropped == 0 {
		t.Error("rate limiter never dropped under a flood")
	}

	// Give the writer a moment so pending drains without a file.
	time.Sleep(150 * time.Millisecond)
}
