// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package session

import (
	"net"
	"testing"
	"time"

	"github.com/sandia-minimega/keyd/internal/auth"
	"github.com/sandia-minimega/keyd/internal/command"
	"github.com/sandia-minimega/keyd/internal/pubsub"
	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
)

func newTestContext() *command.Context {
	return &command.Context{
		Store:  store.New(),
		PubSub: pubsub.New(),
		Auth:   auth.New(),
		Config: map[string]string{},
	}
}

func TestSessionServesSetGet(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	ctx := newTestContext()
	go New(serverConn, ctx).Serve()

	w := resp.NewWriter(clientConn)
	r := resp.NewReader(clientConn)

	w.WriteValue(resp.Command("SET", "k", "v"))
	w.Flush()
	reply, err := r.ReadValue()
	if err != nil {
		t.Fatalf("SET reply: %v", err)
	}
	if reply.Kind != resp.KindSimpleString || reply.Str != "OK" {
		t.Fatalf("SET reply: %v", reply)
	}

	w.WriteValue(resp.Command("GET", "k"))
	w.Flush()
	reply, err = r.ReadValue()
	if err != nil {
		t.Fatalf("GET reply: %v", err)
	}
	if reply.Kind != resp.KindBulkString || string(reply.Bulk) != "v" {
		t.Fatalf("GET reply: %v", reply)
	}

	clientConn.Close()
}

func TestSessionRequiresAuthWhenPasswordSet(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	ctx := newTestContext()
	ctx.Auth.SetUserPassword("default", "secret")
	go New(serverConn, ctx).Serve()

	w := resp.NewWriter(clientConn)
	r := resp.NewReader(clientConn)

	w.WriteValue(resp.Command("GET", "k"))
	w.Flush()
	reply, err := r.ReadValue()
	if err != nil {
		t.Fatalf("unauthenticated GET reply: %v", err)
	}
	if reply.Kind != resp.KindError {
		t.Fatalf("expected NOAUTH error, got %v", reply)
	}

	w.WriteValue(resp.Command("AUTH", "secret"))
	w.Flush()
	reply, err = r.ReadValue()
	if err != nil {
		t.Fatalf("AUTH reply: %v", err)
	}
	if reply.Kind != resp.KindSimpleString || reply.Str != "OK" {
		t.Fatalf("AUTH reply: %v", reply)
	}

	clientConn.Close()
}

func TestSessionPublishesSubscribedMessages(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	ctx := newTestContext()
	go New(serverConn, ctx).Serve()

	w := resp.NewWriter(clientConn)
	r := resp.NewReader(clientConn)

	w.WriteValue(resp.Command("SUBSCRIBE", "news"))
	w.Flush()
	reply, err := r.ReadValue()
	if err != nil {
		t.Fatalf("SUBSCRIBE reply: %v", err)
	}
	if reply.Kind != resp.KindArray || len(reply.Array) != 3 {
		t.Fatalf("SUBSCRIBE reply: %v", reply)
	}

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		ctx.PubSub.Publish("news", []byte("hello"))
		close(done)
	}()

	push, err := r.ReadValue()
	if err != nil {
		t.Fatalf("push message: %v", err)
	}
	if push.Kind != resp.KindArray || len(push.Array) != 3 || string(push.Array[0].Bulk) != "message" {
		t.Fatalf("push message shape: %v", push)
	}
	if string(push.Array[2].Bulk) != "hello" {
		t.Fatalf("push payload: %v", push.Array[2])
	}

	<-done
	clientConn.Close()
}

func TestSessionRepliesErrorOnMalformedFrame(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	ctx := newTestContext()
	go New(serverConn, ctx).Serve()

	w := resp.NewWriter(clientConn)
	r := resp.NewReader(clientConn)

	// A bulk string at the top level isn't a valid request frame (requests
	// must be arrays of bulk strings).
	w.WriteValue(resp.BulkStringFromString("not-a-request"))
	w.Flush()

	reply, err := r.ReadValue()
	if err != nil {
		t.Fatalf("error reply: %v", err)
	}
	if reply.Kind != resp.KindError {
		t.Fatalf("expected an error reply for a malformed frame, got %v", reply)
	}

	clientConn.Close()
}
