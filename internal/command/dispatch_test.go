// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import (
	"sync"
	"testing"
	"time"

	"github.com/sandia-minimega/keyd/internal/auth"
	"github.com/sandia-minimega/keyd/internal/pubsub"
	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
)

func newTestContext() *Context {
	return &Context{
		Store:     store.New(),
		PubSub:    pubsub.New(),
		Auth:      auth.New(),
		Config:    map[string]string{"dir": "/tmp"},
		ReplID:    "test",
		StartTime: time.Now(),
	}
}

func newTestConn() *ConnState {
	done := make(chan struct{})
	name := "default"
	return &ConnState{ID: "test-conn", Done: done, Authenticated: &name}
}

func run(t *testing.T, ctx *Context, cs *ConnState, args ...string) resp.Value {
	t.Helper()
	v, _ := Dispatch(ctx, cs, args)
	return v
}

func TestSetGetWithTTL(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	if v := run(t, ctx, cs, "SET", "k", "v", "PX", "50"); v.Kind != resp.KindSimpleString || v.Str != "OK" {
		t.Fatalf("SET: %v", v)
	}
	if v := run(t, ctx, cs, "GET", "k"); v.Kind != resp.KindBulkString || string(v.Bulk) != "v" {
		t.Fatalf("GET: %v", v)
	}

	time.Sleep(80 * time.Millisecond)
	if v := run(t, ctx, cs, "GET", "k"); !v.IsNull() {
		t.Fatalf("expected expired key to read nil, got %v", v)
	}
}

func TestIncrOnMissingKey(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	if v := run(t, ctx, cs, "INCR", "counter"); v.Kind != resp.KindInteger || v.Int != 1 {
		t.Fatalf("INCR: %v", v)
	}
	if v := run(t, ctx, cs, "INCR", "counter"); v.Int != 2 {
		t.Fatalf("INCR: %v", v)
	}
}

func TestBLPopWakesOnRPush(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	done := make(chan struct{})
	result := make(chan resp.Value, 1)
	go func() {
		blCs := newTestConn()
		result <- run(t, ctx, blCs, "BLPOP", "q", "1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if v := run(t, ctx, cs, "RPUSH", "q", "hello"); v.Kind != resp.KindInteger || v.Int != 1 {
		t.Fatalf("RPUSH: %v", v)
	}

	select {
	case v := <-result:
		if v.Kind != resp.KindArray || len(v.Array) != 2 || string(v.Array[1].Bulk) != "hello" {
			t.Fatalf("BLPOP result: %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("BLPOP never woke")
	}
}

func TestXAddWildcardID(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	v := run(t, ctx, cs, "XADD", "stream", "*", "field1", "value1")
	if v.Kind != resp.KindBulkString || len(v.Bulk) == 0 {
		t.Fatalf("XADD: %v", v)
	}

	r := run(t, ctx, cs, "XRANGE", "stream", "-", "+")
	if r.Kind != resp.KindArray || len(r.Array) != 1 {
		t.Fatalf("XRANGE: %v", r)
	}
}

func TestGeoAddAndDist(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	v := run(t, ctx, cs, "GEOADD", "cities", "2.3522", "48.8566", "Paris", "-0.1278", "51.5074", "London")
	if v.Kind != resp.KindInteger || v.Int != 2 {
		t.Fatalf("GEOADD: %v", v)
	}

	d := run(t, ctx, cs, "GEODIST", "cities", "Paris", "London", "km")
	if d.Kind != resp.KindBulkString {
		t.Fatalf("GEODIST: %v", d)
	}
}

func TestGeoSearchByBox(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	run(t, ctx, cs, "GEOADD", "cities", "2.3522", "48.8566", "Paris", "-0.1278", "51.5074", "London")

	v := run(t, ctx, cs, "GEOSEARCH", "cities", "FROMLONLAT", "2.3522", "48.8566", "BYBOX", "500", "500", "km")
	if v.Kind != resp.KindArray || len(v.Array) != 1 || string(v.Array[0].Bulk) != "Paris" {
		t.Fatalf("expected only Paris inside a 500x500km box around itself, got %v", v)
	}
}

func TestMultiExecTransaction(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	if v := run(t, ctx, cs, "MULTI"); v.Str != "OK" {
		t.Fatalf("MULTI: %v", v)
	}
	if v := run(t, ctx, cs, "SET", "a", "1"); v.Kind != resp.KindSimpleString || v.Str != "QUEUED" {
		t.Fatalf("queued SET: %v", v)
	}
	if v := run(t, ctx, cs, "INCR", "a"); v.Str != "QUEUED" {
		t.Fatalf("queued INCR: %v", v)
	}

	v := run(t, ctx, cs, "EXEC")
	if v.Kind != resp.KindArray || len(v.Array) != 2 {
		t.Fatalf("EXEC: %v", v)
	}
	if v.Array[1].Kind != resp.KindInteger || v.Array[1].Int != 2 {
		t.Fatalf("EXEC[1]: %v", v.Array[1])
	}

	if cs.Tx != nil {
		t.Fatal("Tx should be cleared after EXEC")
	}
}

func TestDiscardClearsQueue(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	run(t, ctx, cs, "MULTI")
	run(t, ctx, cs, "SET", "a", "1")
	if v := run(t, ctx, cs, "DISCARD"); v.Str != "OK" {
		t.Fatalf("DISCARD: %v", v)
	}
	if cs.Tx != nil {
		t.Fatal("Tx should be nil after DISCARD")
	}
	if v := run(t, ctx, cs, "GET", "a"); !v.IsNull() {
		t.Fatalf("queued SET must not have executed, got %v", v)
	}
}

func TestAuthGating(t *testing.T) {
	ctx := newTestContext()
	ctx.Auth.SetUserPassword("default", "secret")

	cs := &ConnState{ID: "c", Done: make(chan struct{})}

	if v := run(t, ctx, cs, "GET", "k"); v.Kind != resp.KindError {
		t.Fatalf("expected NOAUTH error, got %v", v)
	}

	if v := run(t, ctx, cs, "AUTH", "wrong"); v.Kind != resp.KindError {
		t.Fatalf("expected WRONGPASS error, got %v", v)
	}

	if v := run(t, ctx, cs, "AUTH", "secret"); v.Kind != resp.KindSimpleString || v.Str != "OK" {
		t.Fatalf("AUTH: %v", v)
	}
	if v := run(t, ctx, cs, "GET", "k"); v.Kind != resp.KindBulkString && !v.IsNull() {
		t.Fatalf("GET after auth: %v", v)
	}
}

func TestConfigGetGlob(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()
	ctx.Config["dbfilename"] = "dump.rdb"

	v := run(t, ctx, cs, "CONFIG", "GET", "db*")
	if v.Kind != resp.KindArray || len(v.Array) != 2 {
		t.Fatalf("CONFIG GET: %v", v)
	}
}

func TestCommandCount(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()
	v := run(t, ctx, cs, "COMMAND", "COUNT")
	if v.Kind != resp.KindInteger || v.Int == 0 {
		t.Fatalf("COMMAND COUNT: %v", v)
	}
}

func TestWrongNumArgs(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()
	v := run(t, ctx, cs, "GET")
	if v.Kind != resp.KindError {
		t.Fatalf("expected error, got %v", v)
	}
}

func TestUnknownCommand(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()
	v := run(t, ctx, cs, "NOTACOMMAND")
	if v.Kind != resp.KindError {
		t.Fatalf("expected error, got %v", v)
	}
}

// fakeHub is a minimal ReplicationHub recording every broadcast frame,
// standing in for *replication.Hub so dispatch_test.go doesn't need to
// import internal/replication (which already imports internal/command).
// Broadcast is called from whichever goroutine is running dispatch, so it
// guards frames with a mutex.
type fakeHub struct {
	mu     sync.Mutex
	frames []resp.Value
}

func (h *fakeHub) Broadcast(frame resp.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame)
}
func (h *fakeHub) snapshot() []resp.Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]resp.Value(nil), h.frames...)
}
func (h *fakeHub) ReplicaCount() int                                     { return 0 }
func (h *fakeHub) Wait(n int, timeout time.Duration) int                 { return 0 }
func (h *fakeHub) HandleAck(connID string, offset int64)                 {}
func (h *fakeHub) RegisterReplica(connID string, w ReplicaWriter) []byte { return nil }
func (h *fakeHub) UnregisterReplica(connID string)                       {}

func frameStrings(v resp.Value) []string {
	out := make([]string, len(v.Array))
	for i, e := range v.Array {
		out[i] = string(e.Bulk)
	}
	return out
}

func TestBLPopTimeoutSuppressesReplication(t *testing.T) {
	hub := &fakeHub{}
	ctx := newTestContext()
	ctx.Repl = hub
	cs := newTestConn()

	v := run(t, ctx, cs, "BLPOP", "nosuchkey", "0.05")
	if !v.IsNull() {
		t.Fatalf("expected nil reply on timeout, got %v", v)
	}
	if frames := hub.snapshot(); len(frames) != 0 {
		t.Fatalf("expected no broadcast on a no-op BLPOP timeout, got %v", frames)
	}
}

func TestBLPopSuccessReplicatesAsLPop(t *testing.T) {
	hub := &fakeHub{}
	ctx := newTestContext()
	ctx.Repl = hub
	cs := newTestConn()

	done := make(chan struct{})
	result := make(chan resp.Value, 1)
	go func() {
		blCs := newTestConn()
		result <- run(t, ctx, blCs, "BLPOP", "q", "1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	run(t, ctx, cs, "RPUSH", "q", "hello")

	select {
	case <-result:
	case <-time.After(time.Second):
		t.Fatal("BLPOP never woke")
	}
	<-done

	frames := hub.snapshot()
	if len(frames) != 2 {
		t.Fatalf("expected RPUSH + LPOP broadcast, got %v", frames)
	}
	if got := frameStrings(frames[1]); len(got) != 2 || got[0] != "LPOP" || got[1] != "q" {
		t.Fatalf("expected BLPOP to replicate as LPOP q, got %v", got)
	}
}

func TestXAddWildcardReplicatesResolvedID(t *testing.T) {
	hub := &fakeHub{}
	ctx := newTestContext()
	ctx.Repl = hub
	cs := newTestConn()

	v := run(t, ctx, cs, "XADD", "stream", "*", "field1", "value1")
	resolvedID := string(v.Bulk)

	frames := hub.snapshot()
	if len(frames) != 1 {
		t.Fatalf("expected one broadcast frame, got %v", frames)
	}
	got := frameStrings(frames[0])
	if len(got) != 5 || got[0] != "XADD" || got[1] != "stream" {
		t.Fatalf("unexpected broadcast frame: %v", got)
	}
	if got[2] == "*" {
		t.Fatalf("broadcast frame still carries the wildcard id spec: %v", got)
	}
	if got[2] != resolvedID {
		t.Fatalf("broadcast id %q does not match resolved id %q", got[2], resolvedID)
	}
}

func TestSetKeepTTLWithExplicitExpiryPrecedence(t *testing.T) {
	ctx, cs := newTestContext(), newTestConn()

	run(t, ctx, cs, "SET", "k", "v1", "EX", "1000")
	v := run(t, ctx, cs, "SET", "k", "v2", "KEEPTTL", "EX", "10")
	if v.Kind != resp.KindSimpleString || v.Str != "OK" {
		t.Fatalf("SET: %v", v)
	}

	e, ok := ctx.Store.RawStringGet("k")
	if !ok {
		t.Fatal("key missing after SET")
	}
	now := time.Now().UnixMilli()
	if e.ExpireAtUnixMs == 0 {
		t.Fatal("expected an expiry to survive, got none")
	}
	if e.ExpireAtUnixMs-now > 10*1000 {
		t.Fatalf("expected the explicit EX 10 to win over KEEPTTL's old EX 1000, got expireAt %d ms from now", e.ExpireAtUnixMs-now)
	}
}
