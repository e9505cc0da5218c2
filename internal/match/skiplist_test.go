package match

import (
	"fmt"
	"math/rand"
	"testing"
)

func collect(sl *skipList) []scoreEntry {
	var out []scoreEntry
	sl.forEach(func(rank int, e scoreEntry) bool {
		out = append(out, e)
		return true
	})
	return out
}

func TestSkipListOrdering(t *testing.T) {
	sl := newSkipList()
	sl.insert("b", 50)
	sl.insert("a", 100)
	sl.insert("c", 75)

	got := collect(sl)
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, key := range want {
		if got[i].Key != key {
			t.Errorf("rank %d = %s, want %s", i+1, got[i].Key, key)
		}
	}
}

func TestSkipListTieBreaksOnKey(t *testing.T) {
	sl := newSkipList()
	sl.insert("z", 10)
	sl.insert("a", 10)
	sl.insert("m", 10)

	got := collect(sl)
	want := []string{"a", "m", "z"}
	for i, key := range want {
		if got[i].Key != key {
			t.Errorf("rank %d = %s, want %s", i+1, got[i].Key, key)
		}
	}
}

func TestSkipListRemove(t *testing.T) {
	sl := newSkipList()
	sl.insert("a", 100)
	sl.insert("b", 50)

	if !sl.remove("a", 100) {
		t.Fatal("remove of present entry returned false")
	}
	if sl.remove("a", 100) {
		t.Error("second remove returned true")
	}
	if sl.remove("b", 999) {
		t.Error("remove with wrong score returned true")
	}
	if sl.len() != 1 {
		t.Errorf("len = %d, want 1", sl.len())
	}
	if got := collect(sl); len(got) != 1 || got[0].Key != "b" {
		t.Errorf("remaining = %v, want [b]", got)
	}
}

func TestSkipListRandomizedAgainstSort(t *testing.T) {
	sl := newSkipList()
	rng := rand.New(rand.NewSource(42))

	scores := make(map[string]float64)
	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("k%03d", i)
		score := float64(rng.Intn(100))
		scores[key] = score
		sl.insert(key, score)
	}

	// Replace a third of them, exercising remove+insert.
	for i := 0; i < 500; i += 3 {
		key := fmt.Sprintf("k%03d", i)
		if !sl.remove(key, scores[key]) {
			t.Fatalf("remove %s failed", key)
		}
		scores[key] = float64(rng.Intn(100))
		sl.insert(key, scores[key])
	}

	if sl.len() != 500 {
		t.Fatalf("len = %d, want 500", sl.len())
	}

	got := collect(sl)
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if prev.Score < cur.Score {
			t.Fatalf("order violated at %d: %v before %v", i, prev, cur)
		}
		if prev.Score == cur.Score && prev.Key >= cur.Key {
			t.Fatalf("tie-break violated at %d: %v before %v", i, prev, cur)
		}
	}
}

func TestSkipListClear(t *testing.T) {
	sl := newSkipList()
	sl.insert("a", 1)
	sl.insert("b", 2)
	sl.clear()
	if sl.len() != 0 {
		t.Errorf("len = %d after clear, want 0", sl.len())
	}
	if got := collect(sl); got != nil {
		t.Errorf("entries after clear: %v", got)
	}
	sl.insert("c", 3)
	if got := collect(sl); len(got) != 1 || got[0].Key != "c" {
		t.Errorf("reuse after clear = %v, want [c]", got)
	}
}
