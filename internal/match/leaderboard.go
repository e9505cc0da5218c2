package match

import "blastrace/internal/protocol"

// Leaderboard collects per-connection final scores and produces the ranked
// flush payload. Collection is independent of voting; the coordinator gates
// the flush and guards access with its mutex.
type Leaderboard struct {
	entries map[string]protocol.FinalScore
	ranking *skipList
	flushed bool
}

// NewLeaderboard creates an empty collection.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{
		entries: make(map[string]protocol.FinalScore),
		ranking: newSkipList(),
	}
}

// Submit records a connection's final score. A resubmission replaces the
// previous entry.
func (lb *Leaderboard) Submit(connID string, fs protocol.FinalScore) {
	if prev, ok := lb.entries[connID]; ok {
		lb.ranking.remove(connID, float64(prev.Score))
	}
	lb.entries[connID] = fs
	lb.ranking.insert(connID, float64(fs.Score))
}

// Count returns the number of submitted scores.
func (lb *Leaderboard) Count() int {
	return len(lb.entries)
}

// Flushed reports whether this match's leaderboard already went out.
func (lb *Leaderboard) Flushed() bool {
	return lb.flushed
}

// Flush latches the leaderboard and returns the ranked payload. A second
// call returns false: the flush fires exactly once per match.
func (lb *Leaderboard) Flush(totalConnected int) (protocol.Leaderboard, bool) {
	if lb.flushed {
		return protocol.Leaderboard{}, false
	}
	lb.flushed = true

	out := protocol.Leaderboard{
		RankedEntries:  make([]protocol.RankedEntry, 0, len(lb.entries)),
		TotalConnected: totalConnected,
	}
	lb.ranking.forEach(func(rank int, e scoreEntry) bool {
		fs := lb.entries[e.Key]
		out.RankedEntries = append(out.RankedEntries, protocol.RankedEntry{
			ConnID:   e.Key,
			Score:    fs.Score,
			Rank:     rank,
			Events:   fs.Events,
			ClassTag: fs.ClassTag,
		})
		return true
	})
	return out, true
}

// Reset clears collection state for the next match.
func (lb *Leaderboard) Reset() {
	lb.entries = make(map[string]protocol.FinalScore)
	lb.ranking.clear()
	lb.flushed = false
}
