// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package store

import (
	"sort"
	"sync"
)

type zmember struct {
	name  string
	score float64
}

// less implements the (score ascending, member lexicographic) total order
// invariant #3.
func (m zmember) less(other zmember) bool {
	if m.score != other.score {
		return m.score < other.score
	}
	return m.name < other.name
}

type zsetEntry struct {
	// ordered is kept sorted by (score, member) at all times; byName
	// indexes directly to the current score for O(1) ZSCORE/ZREM lookup.
	ordered []zmember
	byName  map[string]float64
}

func newZsetEntry() *zsetEntry {
	return &zsetEntry{byName: make(map[string]float64)}
}

func (e *zsetEntry) insert(name string, score float64) (added bool) {
	if old, ok := e.byName[name]; ok {
		if old == score {
			return false
		}
		e.remove(name)
	} else {
		added = true
	}
	e.byName[name] = score
	m := zmember{name: name, score: score}
	i := sort.Search(len(e.ordered), func(i int) bool { return !e.ordered[i].less(m) })
	e.ordered = append(e.ordered, zmember{})
	copy(e.ordered[i+1:], e.ordered[i:])
	e.ordered[i] = m
	return added
}

func (e *zsetEntry) remove(name string) bool {
	score, ok := e.byName[name]
	if !ok {
		return false
	}
	delete(e.byName, name)
	m := zmember{name: name, score: score}
	i := sort.Search(len(e.ordered), func(i int) bool { return !e.ordered[i].less(m) })
	for i < len(e.ordered) && e.ordered[i].name != name {
		i++
	}
	e.ordered = append(e.ordered[:i], e.ordered[i+1:]...)
	return true
}

func (e *zsetEntry) rank(name string) (int, bool) {
	score, ok := e.byName[name]
	if !ok {
		return 0, false
	}
	m := zmember{name: name, score: score}
	i := sort.Search(len(e.ordered), func(i int) bool { return !e.ordered[i].less(m) })
	for i < len(e.ordered) && e.ordered[i].name != name {
		i++
	}
	return i, true
}

type zsets struct {
	mu   sync.RWMutex
	data map[string]*zsetEntry
}

func newZsets() *zsets {
	return &zsets{data: make(map[string]*zsetEntry)}
}

// ZAdd inserts or updates members, returning the count of newly-added
// (not merely updated) members.
func (st *Store) ZAdd(key string, members map[string]float64) (int, error) {
	if err := st.kinds.checkKind(key, KindZSet); err != nil {
		return 0, err
	}
	st.zsets.mu.Lock()
	e := st.zsets.data[key]
	if e == nil {
		e = newZsetEntry()
		st.zsets.data[key] = e
	}
	added := 0
	for name, score := range members {
		if e.insert(name, score) {
			added++
		}
	}
	st.zsets.mu.Unlock()

	if err := st.kinds.claim(key, KindZSet, nil); err != nil {
		return 0, err
	}
	return added, nil
}

func (st *Store) ZRem(key string, members ...string) (int, error) {
	if err := st.kinds.checkKind(key, KindZSet); err != nil {
		return 0, err
	}
	st.zsets.mu.Lock()
	defer st.zsets.mu.Unlock()
	e := st.zsets.data[key]
	if e == nil {
		return 0, nil
	}
	removed := 0
	for _, m := range members {
		if e.remove(m) {
			removed++
		}
	}
	return removed, nil
}

func (st *Store) ZCard(key string) (int, error) {
	if err := st.kinds.checkKind(key, KindZSet); err != nil {
		return 0, err
	}
	st.zsets.mu.RLock()
	defer st.zsets.mu.RUnlock()
	e := st.zsets.data[key]
	if e == nil {
		return 0, nil
	}
	return len(e.ordered), nil
}

func (st *Store) ZScore(key, member string) (float64, bool, error) {
	if err := st.kinds.checkKind(key, KindZSet); err != nil {
		return 0, false, err
	}
	st.zsets.mu.RLock()
	defer st.zsets.mu.RUnlock()
	e := st.zsets.data[key]
	if e == nil {
		return 0, false, nil
	}
	score, ok := e.byName[member]
	return score, ok, nil
}

func (st *Store) ZRank(key, member string) (int, bool, error) {
	if err := st.kinds.checkKind(key, KindZSet); err != nil {
		return 0, false, err
	}
	st.zsets.mu.RLock()
	defer st.zsets.mu.RUnlock()
	e := st.zsets.data[key]
	if e == nil {
		return 0, false, nil
	}
	r, ok := e.rank(member)
	return r, ok, nil
}

// ZRangeMember is one entry of a ZRANGE reply.
type ZRangeMember struct {
	Member string
	Score  float64
}

// ZRange returns the inclusive [start,end] index range in (score, member)
// order, negative indices counting from the back.
func (st *Store) ZRange(key string, start, end int) ([]ZRangeMember, error) {
	if err := st.kinds.checkKind(key, KindZSet); err != nil {
		return nil, err
	}
	st.zsets.mu.RLock()
	defer st.zsets.mu.RUnlock()
	e := st.zsets.data[key]
	if e == nil {
		return nil, nil
	}
	n := len(e.ordered)
	start, end = normalizeRange(start, end, n)
	if start > end {
		return nil, nil
	}
	out := make([]ZRangeMember, 0, end-start+1)
	for _, m := range e.ordered[start : end+1] {
		out = append(out, ZRangeMember{Member: m.name, Score: m.score})
	}
	return out, nil
}
