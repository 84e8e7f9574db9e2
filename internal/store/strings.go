// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package store

import (
	"strconv"
	"sync"
	"time"
)

type stringEntry struct {
	isInt  bool
	intVal int64
	bytes  []byte

	// expireAt is the zero Time when there is no deadline. A relative
	// expiry (EX/PX) is stored as time.Now().Add(d), which keeps Go's
	// monotonic reading; an absolute expiry (EXAT/PXAT) is stored via
	// time.Unix/time.UnixMilli, a pure wall-clock deadline.
	expireAt time.Time
}

func (e *stringEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

func (e *stringEntry) payload() []byte {
	if e.isInt {
		return []byte(strconv.FormatInt(e.intVal, 10))
	}
	return e.bytes
}

func newStringEntry(payload []byte) *stringEntry {
	e := &stringEntry{}
	if n, err := strconv.ParseInt(string(payload), 10, 64); err == nil {
		e.isInt = true
		e.intVal = n
	} else {
		e.bytes = payload
	}
	return e
}

// Expiry describes the deadline requested on a SET, independent of how it
// was spelled on the wire (EX/PX/EXAT/PXAT/KEEPTTL).
type Expiry struct {
	// None means "clear any existing deadline", the default for a bare
	// SET. Keep takes precedence over None when Keep is true.
	None bool
	Keep bool
	At   time.Time
}

type SetOptions struct {
	NX, XX bool
	GetOld bool
	Expiry Expiry
}

type strings struct {
	mu   sync.RWMutex
	data map[string]*stringEntry
}

func newStrings() *strings {
	return &strings{data: make(map[string]*stringEntry)}
}

// lockedGet returns the entry for key if present and unexpired. Callers
// must hold at least a read lock on s.mu.
func (s *strings) lockedGet(key string) *stringEntry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(time.Now()) {
		return nil
	}
	return e
}

func (st *Store) Get(key string) ([]byte, bool, error) {
	if err := st.kinds.checkKind(key, KindString); err != nil {
		return nil, false, err
	}
	st.strs.mu.RLock()
	defer st.strs.mu.RUnlock()
	e := st.strs.lockedGet(key)
	if e == nil {
		return nil, false, nil
	}
	return e.payload(), true, nil
}

// Set stores payload under key per opts, returning the previous payload
// when opts.GetOld is set (nil if there was none). set is false when NX/XX
// vetoed the write.
func (st *Store) Set(key string, payload []byte, opts SetOptions) (old []byte, set bool, err error) {
	if err := st.kinds.checkKind(key, KindString); err != nil {
		return nil, false, err
	}

	st.strs.mu.Lock()
	defer st.strs.mu.Unlock()

	existing := st.strs.lockedGet(key)
	if opts.GetOld && existing != nil {
		old = existing.payload()
	}

	if opts.NX && existing != nil {
		return old, false, nil
	}
	if opts.XX && existing == nil {
		return old, false, nil
	}

	e := newStringEntry(payload)
	switch {
	case !opts.Expiry.At.IsZero():
		// an explicit EX/PX/EXAT/PXAT always wins, even alongside KEEPTTL.
		e.expireAt = opts.Expiry.At
	case opts.Expiry.Keep && existing != nil:
		e.expireAt = existing.expireAt
	case !opts.Expiry.None:
		e.expireAt = opts.Expiry.At
	}

	st.strs.data[key] = e
	if err := st.kinds.claim(key, KindString, nil); err != nil {
		return old, false, err
	}
	return old, true, nil
}

// Incr adds delta to the integer at key (initializing a missing key to 0
// first) and returns the new value.
func (st *Store) Incr(key string, delta int64) (int64, error) {
	if err := st.kinds.checkKind(key, KindString); err != nil {
		return 0, err
	}

	st.strs.mu.Lock()
	defer st.strs.mu.Unlock()

	e := st.strs.lockedGet(key)
	if e == nil {
		e = &stringEntry{isInt: true, intVal: 0}
	} else if !e.isInt {
		return 0, ErrNotInteger
	}

	e.intVal += delta
	st.strs.data[key] = e
	if err := st.kinds.claim(key, KindString, nil); err != nil {
		return 0, err
	}
	return e.intVal, nil
}

// Del removes key regardless of kind, returning whether it existed.
func (st *Store) Del(key string) bool {
	existed := false

	st.strs.mu.Lock()
	if _, ok := st.strs.data[key]; ok {
		delete(st.strs.data, key)
		existed = true
	}
	st.strs.mu.Unlock()

	st.lists.mu.Lock()
	if _, ok := st.lists.data[key]; ok {
		delete(st.lists.data, key)
		existed = true
	}
	st.lists.mu.Unlock()

	st.zsets.mu.Lock()
	if _, ok := st.zsets.data[key]; ok {
		delete(st.zsets.data, key)
		existed = true
	}
	st.zsets.mu.Unlock()

	st.streams.mu.Lock()
	if _, ok := st.streams.data[key]; ok {
		delete(st.streams.data, key)
		existed = true
	}
	st.streams.mu.Unlock()

	if existed {
		st.kinds.release(key)
	}
	return existed
}

// TypeOf reports the kind-name for the TYPE command: "none", "string",
// "list", "zset" or "stream". A lazily-expired string key reports "none".
func (st *Store) TypeOf(key string) string {
	if k := st.kinds.typeOf(key); k == KindString {
		st.strs.mu.RLock()
		e := st.strs.lockedGet(key)
		st.strs.mu.RUnlock()
		if e == nil {
			return KindNone.String()
		}
	}
	return st.kinds.typeOf(key).String()
}
