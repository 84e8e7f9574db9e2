// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package replication implements both sides of primary/replica
// propagation: the primary's replica roster and WAIT accounting, and the
// replica's handshake client and streamed-write applier.
package replication

import (
	"sync"
	"time"

	"github.com/sandia-minimega/keyd/internal/command"
	"github.com/sandia-minimega/keyd/internal/rdb"
	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
	log "github.com/sandia-minimega/keyd/pkg/minilog"
)

// Hub is the primary-side replica roster, grounded on ron.Server's
// clients map/clientLock pattern: one lock guards the roster, a separate
// pending-ack set with its woken channel plays the role of ron's responses
// channel —
// the thing a distinct operation (WAIT) waits on without holding the
// roster lock across the wait.
type Hub struct {
	store *store.Store

	mu       sync.Mutex
	replicas map[string]*replicaHandle

	waitMu  sync.Mutex
	pending map[string]struct{} // connIDs a WAIT round is still expecting an ack from
	woken   chan struct{}       // closed and replaced each time pending shrinks
}

type replicaHandle struct {
	writer command.ReplicaWriter
	offset int64
}

func NewHub(st *store.Store) *Hub {
	return &Hub{
		store:    st,
		replicas: make(map[string]*replicaHandle),
		pending:  make(map[string]struct{}),
		woken:    make(chan struct{}),
	}
}

// RegisterReplica promotes a connection to replica-writer status after a
// successful PSYNC and returns an encoded snapshot of the current store,
// the FULLRESYNC handshake's payload.
func (h *Hub) RegisterReplica(connID string, w command.ReplicaWriter) []byte {
	h.mu.Lock()
	h.replicas[connID] = &replicaHandle{writer: w}
	h.mu.Unlock()

	snapshot, err := rdb.WriteBytes(rdb.FromStore(h.store))
	if err != nil {
		log.Error("replication: snapshot encode for %v: %v", connID, err)
		return rdb.Empty()
	}
	return snapshot
}

func (h *Hub) UnregisterReplica(connID string) {
	h.mu.Lock()
	delete(h.replicas, connID)
	h.mu.Unlock()

	h.wake(connID)
}

// wake drops connID from the pending set (if present) and signals any
// blocked WAIT to recheck.
func (h *Hub) wake(connID string) {
	h.waitMu.Lock()
	if _, ok := h.pending[connID]; ok {
		delete(h.pending, connID)
		close(h.woken)
		h.woken = make(chan struct{})
	}
	h.waitMu.Unlock()
}

// Broadcast enqueues frame to every replica writer in map iteration order,
// which is unordered; no ordering is required
// between distinct replicas, only per-replica sequential delivery, which
// a single caller-goroutine write sequence already guarantees.
func (h *Hub) Broadcast(frame resp.Value) {
	h.mu.Lock()
	writers := make([]command.ReplicaWriter, 0, len(h.replicas))
	for _, r := range h.replicas {
		writers = append(writers, r.writer)
	}
	h.mu.Unlock()

	for _, w := range writers {
		if err := w.WriteValue(frame); err != nil {
			log.Debug("replication: broadcast write: %v", err)
			continue
		}
		w.Flush()
	}
}

func (h *Hub) ReplicaCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.replicas)
}

// HandleAck records a REPLCONF ACK <offset> from a replica and wakes any
// WAIT round still expecting one from it.
func (h *Hub) HandleAck(connID string, offset int64) {
	h.mu.Lock()
	if r, ok := h.replicas[connID]; ok {
		r.offset = offset
	}
	h.mu.Unlock()

	h.wake(connID)
}

// Wait implements WAIT n timeout: mark every current replica pending,
// broadcast REPLCONF GETACK *, then poll the pending set via its wake
// channel until n replicas have acked or timeout elapses. It never holds
// the roster lock across the suspension point.
func (h *Hub) Wait(n int, timeout time.Duration) int {
	count := h.ReplicaCount()
	if n <= 0 || count == 0 {
		return count
	}

	h.mu.Lock()
	var connIDs []string
	for id := range h.replicas {
		connIDs = append(connIDs, id)
	}
	h.mu.Unlock()

	h.waitMu.Lock()
	for _, id := range connIDs {
		h.pending[id] = struct{}{}
	}
	h.waitMu.Unlock()

	h.Broadcast(resp.Command("REPLCONF", "GETACK", "*"))

	deadline := time.Now().Add(timeout)
	for {
		h.waitMu.Lock()
		acked := len(connIDs) - len(h.pending)
		woken := h.woken
		h.waitMu.Unlock()

		if acked >= n {
			return acked
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return acked
		}
		select {
		case <-woken:
		case <-time.After(remaining):
			h.waitMu.Lock()
			acked = len(connIDs) - len(h.pending)
			h.waitMu.Unlock()
			return acked
		}
	}
}
