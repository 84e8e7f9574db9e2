// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package store

import "time"

func unixMilliTime(ms int64) time.Time { return time.UnixMilli(ms) }

// Store is the process-wide, injected data store: one map per kind, a
// shared kind registry, and the blocking-waiter queues for BLPOP/XREAD.
// Callers construct one Store at startup (optionally seeding it from a
// snapshot) and pass it into every connection's session explicitly,
// rather than reaching for a package-level global.
type Store struct {
	kinds *kindRegistry

	strs    *strings
	lists   *lists
	zsets   *zsets
	streams *streams
}

func New() *Store {
	return &Store{
		kinds:   newKindRegistry(),
		strs:    newStrings(),
		lists:   newLists(),
		zsets:   newZsets(),
		streams: newStreams(),
	}
}

// Keys returns every live string and list key, used by the snapshot
// writer; sorted-set and stream keys are not included. Lazily-expired string keys are excluded.
func (st *Store) Keys() []string {
	st.strs.mu.RLock()
	keys := make([]string, 0, len(st.strs.data))
	for k := range st.strs.data {
		if st.strs.lockedGet(k) != nil {
			keys = append(keys, k)
		}
	}
	st.strs.mu.RUnlock()

	st.lists.mu.RLock()
	for k := range st.lists.data {
		keys = append(keys, k)
	}
	st.lists.mu.RUnlock()

	return keys
}

// RawStringEntry exposes an opaque string/integer value for the snapshot
// writer: its payload and the absolute wall-clock expiry deadline in unix
// milliseconds (0 if none).
type RawStringEntry struct {
	Payload        []byte
	ExpireAtUnixMs int64
}

func (st *Store) RawStringGet(key string) (RawStringEntry, bool) {
	st.strs.mu.RLock()
	defer st.strs.mu.RUnlock()
	e := st.strs.lockedGet(key)
	if e == nil {
		return RawStringEntry{}, false
	}
	out := RawStringEntry{Payload: e.payload()}
	if !e.expireAt.IsZero() {
		out.ExpireAtUnixMs = e.expireAt.UnixMilli()
	}
	return out, true
}

func (st *Store) RawListGet(key string) ([][]byte, bool) {
	st.lists.mu.RLock()
	defer st.lists.mu.RUnlock()
	e := st.lists.lockedGet(key)
	if e == nil {
		return nil, false
	}
	out := make([][]byte, len(e.values))
	copy(out, e.values)
	return out, true
}

// LoadString restores a string/integer key at snapshot-load time,
// bypassing SET's NX/XX/GET option handling.
func (st *Store) LoadString(key string, payload []byte, expireAtUnixMs int64) {
	e := newStringEntry(payload)
	if expireAtUnixMs != 0 {
		e.expireAt = unixMilliTime(expireAtUnixMs)
	}
	st.strs.mu.Lock()
	st.strs.data[key] = e
	st.strs.mu.Unlock()
	_ = st.kinds.claim(key, KindString, nil)
}

// LoadList restores a list key at snapshot-load time.
func (st *Store) LoadList(key string, values [][]byte) {
	st.lists.mu.Lock()
	st.lists.data[key] = &listEntry{values: values}
	st.lists.mu.Unlock()
	_ = st.kinds.claim(key, KindList, nil)
}
