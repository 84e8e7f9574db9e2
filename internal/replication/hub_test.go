// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package replication

import (
	"sync"
	"testing"
	"time"

	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
)

type fakeReplicaWriter struct {
	mu     sync.Mutex
	frames []resp.Value
}

func (f *fakeReplicaWriter) WriteValue(v resp.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, v)
	return nil
}

func (f *fakeReplicaWriter) WriteSnapshotBlob(data []byte) error { return nil }
func (f *fakeReplicaWriter) Flush() error                        { return nil }

func (f *fakeReplicaWriter) last() resp.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[len(f.frames)-1]
}

func (f *fakeReplicaWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestRegisterReplicaReturnsSnapshot(t *testing.T) {
	h := NewHub(store.New())
	w := &fakeReplicaWriter{}

	blob := h.RegisterReplica("r1", w)
	if len(blob) == 0 {
		t.Fatal("expected non-empty snapshot blob")
	}
	if h.ReplicaCount() != 1 {
		t.Fatalf("ReplicaCount: %d", h.ReplicaCount())
	}
}

func TestUnregisterReplicaRemovesFromRoster(t *testing.T) {
	h := NewHub(store.New())
	w := &fakeReplicaWriter{}
	h.RegisterReplica("r1", w)
	h.UnregisterReplica("r1")

	if h.ReplicaCount() != 0 {
		t.Fatalf("ReplicaCount after unregister: %d", h.ReplicaCount())
	}
}

func TestBroadcastReachesEveryReplica(t *testing.T) {
	h := NewHub(store.New())
	w1, w2 := &fakeReplicaWriter{}, &fakeReplicaWriter{}
	h.RegisterReplica("r1", w1)
	h.RegisterReplica("r2", w2)

	h.Broadcast(resp.Command("SET", "k", "v"))

	if w1.count() != 1 || w2.count() != 1 {
		t.Fatalf("expected both replicas to receive the frame: %d, %d", w1.count(), w2.count())
	}
}

func TestWaitReturnsImmediatelyWithNoReplicas(t *testing.T) {
	h := NewHub(store.New())
	if got := h.Wait(1, 10*time.Millisecond); got != 0 {
		t.Fatalf("Wait with no replicas: %d", got)
	}
}

func TestWaitSucceedsOnAck(t *testing.T) {
	h := NewHub(store.New())
	w := &fakeReplicaWriter{}
	h.RegisterReplica("r1", w)

	done := make(chan int, 1)
	go func() {
		done <- h.Wait(1, time.Second)
	}()

	// Wait broadcasts REPLCONF GETACK * as soon as it starts; give it a
	// moment to register r1 as pending before acking.
	time.Sleep(20 * time.Millisecond)
	h.HandleAck("r1", 42)

	select {
	case got := <-done:
		if got != 1 {
			t.Fatalf("Wait result: %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait never returned")
	}

	if f := w.last(); f.Kind != resp.KindArray || len(f.Array) != 3 {
		t.Fatalf("expected GETACK frame broadcast, got %v", f)
	}
}

func TestWaitTimesOutWithoutAck(t *testing.T) {
	h := NewHub(store.New())
	w := &fakeReplicaWriter{}
	h.RegisterReplica("r1", w)

	start := time.Now()
	got := h.Wait(1, 30*time.Millisecond)
	if got != 0 {
		t.Fatalf("Wait result: %d", got)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("Wait returned before its timeout elapsed: %v", elapsed)
	}
}
