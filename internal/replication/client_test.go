// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package replication

import (
	"net"
	"testing"
	"time"

	"github.com/sandia-minimega/keyd/internal/auth"
	"github.com/sandia-minimega/keyd/internal/command"
	"github.com/sandia-minimega/keyd/internal/pubsub"
	"github.com/sandia-minimega/keyd/internal/rdb"
	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
)

// fakePrimary runs the handshake's primary side over a net.Pipe, then
// streams one SET before closing, so connectOnce's apply path and its
// terminal stream-read error both get exercised.
func fakePrimary(t *testing.T, conn net.Conn) {
	t.Helper()
	r := resp.NewReader(conn)
	w := resp.NewWriter(conn)

	expectAndReply := func(want string) {
		v, err := r.ReadValue()
		if err != nil {
			t.Errorf("fakePrimary read: %v", err)
			return
		}
		if v.Kind != resp.KindArray || len(v.Array) == 0 {
			t.Errorf("fakePrimary: expected array request, got %v", v)
		}
		w.WriteValue(resp.SimpleString(want))
		w.Flush()
	}

	expectAndReply("PONG")
	expectAndReply("OK")
	expectAndReply("OK")

	if _, err := r.ReadValue(); err != nil { // PSYNC ? -1
		t.Errorf("fakePrimary read PSYNC: %v", err)
		return
	}
	w.WriteValue(resp.SimpleString("FULLRESYNC testid 0"))
	w.Flush()
	w.WriteSnapshotBlob(rdb.Empty())
	w.Flush()

	w.WriteValue(resp.Command("SET", "replicated", "yes"))
	w.Flush()

	conn.Close()
}

func TestClientConnectOnceAppliesStreamedWrite(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	go fakePrimary(t, serverConn)

	st := store.New()
	ctx := &command.Context{Store: st, PubSub: pubsub.New(), Auth: auth.New()}
	c := NewClient("primary:6380", 6381, st, ctx)
	c.connFn = func() (net.Conn, error) { return clientConn, nil }

	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- c.connectOnce(done) }()

	select {
	case <-errCh:
		// the fake primary closes after streaming, so connectOnce returning
		// an error here is expected; what matters is the write landed first.
	case <-time.After(2 * time.Second):
		t.Fatal("connectOnce never returned")
	}

	cs := &command.ConnState{ID: "check", Done: make(chan struct{})}
	name := "default"
	cs.Authenticated = &name
	v, _ := command.Dispatch(ctx, cs, []string{"GET", "replicated"})
	if v.Kind != resp.KindBulkString || string(v.Bulk) != "yes" {
		t.Fatalf("expected streamed SET to be applied, got %v", v)
	}
}

func TestClientConnectOnceFailsOnHandshakeMismatch(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	go func() {
		r := resp.NewReader(serverConn)
		w := resp.NewWriter(serverConn)
		r.ReadValue() // PING
		w.WriteValue(resp.SimpleString("WRONG"))
		w.Flush()
		serverConn.Close()
	}()

	st := store.New()
	ctx := &command.Context{Store: st, PubSub: pubsub.New(), Auth: auth.New()}
	c := NewClient("primary:6380", 6381, st, ctx)
	c.connFn = func() (net.Conn, error) { return clientConn, nil }

	err := c.connectOnce(make(chan struct{}))
	if err == nil {
		t.Fatal("expected an error on handshake mismatch")
	}
	if _, ok := err.(*HandshakeError); !ok {
		t.Fatalf("expected *HandshakeError, got %T: %v", err, err)
	}
}
