// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package session owns one client connection end to end: framing,
// authentication seeding, the read-dispatch-write loop, and termination
// cleanup. Grounded on the accept-loop-spawns-handler-goroutine shape and
// the per-connection "loop until err, then log and clean up" pattern.
package session

import (
	"errors"
	"net"
	"strings"

	"github.com/sandia-minimega/keyd/internal/command"
	"github.com/sandia-minimega/keyd/internal/resp"
	log "github.com/sandia-minimega/keyd/pkg/minilog"
)

// Session is one connection's I/O handle and dispatch state.
type Session struct {
	conn net.Conn
	r    *resp.Reader
	w    *resp.Writer

	ctx *command.Context
	cs  *command.ConnState

	done chan struct{}
}

// New wires a fresh connection's ConnState: an id derived from the remote
// address, AUTH seeded if the default user has NoPass, and a Subscriber/
// ReplicaLink handle back to this same session so SUBSCRIBE and PSYNC can
// reach it.
func New(conn net.Conn, ctx *command.Context) *Session {
	done := make(chan struct{})
	s := &Session{
		conn: conn,
		r:    resp.NewReader(conn),
		w:    resp.NewWriter(conn),
		ctx:  ctx,
		done: done,
	}

	cs := &command.ConnState{
		ID:          conn.RemoteAddr().String(),
		Done:        done,
		Subscriber:  s,
		ReplicaLink: s,
	}
	if !ctx.Auth.DefaultRequiresAuth() {
		name := "default"
		cs.Authenticated = &name
	}
	s.cs = cs

	return s
}

// PublishMessage implements command.Subscriber/pubsub.Writer: it delivers
// a pub/sub message as the three-element push reply.
func (s *Session) PublishMessage(channel string, payload []byte) error {
	v := resp.Array([]resp.Value{
		resp.BulkStringFromString("message"),
		resp.BulkStringFromString(channel),
		resp.BulkString(payload),
	})
	if err := s.w.WriteValue(v); err != nil {
		return err
	}
	return s.w.Flush()
}

// WriteValue/WriteSnapshotBlob/Flush implement command.ReplicaWriter: a
// connection that completes PSYNC writes its FULLRESYNC handshake and
// every subsequent propagated command through these same methods.
func (s *Session) WriteValue(v resp.Value) error       { return s.w.WriteValue(v) }
func (s *Session) WriteSnapshotBlob(data []byte) error { return s.w.WriteSnapshotBlob(data) }
func (s *Session) Flush() error                        { return s.w.Flush() }

// Serve runs the read-dispatch-write loop until the connection errors or
// closes, then releases this connection's subscriptions. It never
// returns an error — failures are logged and the connection is dropped,
// matching command_socket.go's own terminal error handling.
func (s *Session) Serve() {
	defer s.conn.Close()
	defer close(s.done)
	defer s.ctx.PubSub.UnsubscribeAll(s.cs.ID)
	if s.ctx.Repl != nil {
		defer s.ctx.Repl.UnregisterReplica(s.cs.ID)
	}

	for {
		v, err := s.r.ReadValue()
		if err != nil {
			logDisconnect(s.cs.ID, err)
			return
		}

		args, err := frameArgs(v)
		if err != nil {
			s.w.WriteValue(resp.Error("ERR " + err.Error()))
			s.w.Flush()
			continue
		}
		if len(args) == 0 {
			continue
		}

		reply, shouldReply := func() (v resp.Value, ok bool) {
			defer func() {
				if p := recover(); p != nil {
					log.Error("session %s: panic in dispatch: %v", s.cs.ID, p)
					v, ok = resp.Error("ERR internal error"), true
				}
			}()
			return command.Dispatch(s.ctx, s.cs, args)
		}()
		if !shouldReply || command.IsNoReply(reply) {
			continue
		}
		if err := s.w.WriteValue(reply); err != nil {
			logDisconnect(s.cs.ID, err)
			return
		}
		if err := s.w.Flush(); err != nil {
			logDisconnect(s.cs.ID, err)
			return
		}
	}
}

func frameArgs(v resp.Value) ([]string, error) {
	if v.Kind != resp.KindArray {
		return nil, errors.New("expected request array")
	}
	args := make([]string, len(v.Array))
	for i, item := range v.Array {
		if item.Kind != resp.KindBulkString {
			return nil, errors.New("expected bulk string request element")
		}
		args[i] = string(item.Bulk)
	}
	return args, nil
}

func logDisconnect(id string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, resp.ErrNeedMore) {
		log.Debug("session %s disconnected", id)
		return
	}
	msg := err.Error()
	if strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection reset by peer") {
		log.Debug("session %s disconnected: %v", id, err)
		return
	}
	log.Error("session %s: %v", id, err)
}
