// Skip list with highest-score-first ordering for leaderboard ranking.
// Pugh (1990); the same pattern Redis ZSET uses. Ties break on key so the
// flush order is deterministic.

package match

import "math/rand"

const (
	maxLevel         = 16
	levelProbability = 0.25
)

type scoreEntry struct {
	Key   string
	Score float64
}

type skipNode struct {
	entry scoreEntry
	next  []*skipNode
}

// skipList is a single-writer skip list; the coordinator's mutex guards it.
// Updates and removals take the old score so the ordered levels can be
// traversed; the owning Leaderboard tracks scores per key.
type skipList struct {
	head   *skipNode
	level  int
	length int
	rng    *rand.Rand
}

func newSkipList() *skipList {
	return &skipList{
		head:  &skipNode{next: make([]*skipNode, maxLevel)},
		level: 1,
		rng:   rand.New(rand.NewSource(rand.Int63())),
	}
}

func (sl *skipList) randomLevel() int {
	level := 1
	for level < maxLevel && sl.rng.Float64() < levelProbability {
		level++
	}
	return level
}

// before reports whether entry a sorts strictly before position (score, key).
func before(a scoreEntry, score float64, key string) bool {
	if a.Score != score {
		return a.Score > score
	}
	return a.Key < key
}

// findUpdate fills the per-level predecessors for position (score, key).
func (sl *skipList) findUpdate(score float64, key string) []*skipNode {
	update := make([]*skipNode, maxLevel)
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && before(x.next[i].entry, score, key) {
			x = x.next[i]
		}
		update[i] = x
	}
	return update
}

// insert adds an entry. The caller removes any previous entry for the key
// first; duplicate keys are not detected here.
func (sl *skipList) insert(key string, score float64) {
	update := sl.findUpdate(score, key)

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level; i < newLevel; i++ {
			update[i] = sl.head
		}
		sl.level = newLevel
	}

	node := &skipNode{
		entry: scoreEntry{Key: key, Score: score},
		next:  make([]*skipNode, newLevel),
	}
	for i := 0; i < newLevel; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
	}
	sl.length++
}

// remove deletes the entry for key, located by its known score.
func (sl *skipList) remove(key string, score float64) bool {
	update := sl.findUpdate(score, key)

	target := update[0].next[0]
	if target == nil || target.entry.Key != key {
		return false
	}
	for i := 0; i < sl.level; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	for sl.level > 1 && sl.head.next[sl.level-1] == nil {
		sl.level--
	}
	sl.length--
	return true
}

// forEach visits entries best-score-first. Return false to stop.
func (sl *skipList) forEach(fn func(rank int, e scoreEntry) bool) {
	rank := 0
	for x := sl.head.next[0]; x != nil; x = x.next[0] {
		rank++
		if !fn(rank, x.entry) {
			return
		}
	}
}

func (sl *skipList) len() int {
	return sl.length
}

func (sl *skipList) clear() {
	for i := range sl.head.next {
		sl.head.next[i] = nil
	}
	sl.level = 1
	sl.length = 0
}
