// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package replication

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sandia-minimega/keyd/internal/command"
	"github.com/sandia-minimega/keyd/internal/rdb"
	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
	log "github.com/sandia-minimega/keyd/pkg/minilog"
	"golang.org/x/time/rate"
)

// HandshakeError is fatal to the replica process: any mismatch during
// the handshake table's synchronous steps aborts the connection.
type HandshakeError struct{ Reason string }

func (e *HandshakeError) Error() string { return "replication handshake failed: " + e.Reason }

// state names the six-step handshake table, kept only for log messages —
// the connectOnce method runs the steps in a straight line, there being no
// reason to reenter any of them.
type state int

const (
	pinging state = iota
	configuringPort
	configuringCapa
	psyncing
	loadingSnapshot
	streaming
)

func (s state) String() string {
	return [...]string{"PINGING", "CONFIGURING_PORT", "CONFIGURING_CAPA", "PSYNCING", "LOADING_SNAPSHOT", "STREAMING"}[s]
}

// Client is the replica side of replication: it dials a primary, runs the
// handshake, loads the snapshot, then applies every streamed command
// against the local store until the connection drops.
type Client struct {
	primaryAddr string
	listenPort  int

	store  *store.Store
	ctx    *command.Context
	connFn func() (net.Conn, error) // overridable for tests; defaults to net.Dial

	limiter *rate.Limiter

	mu      sync.Mutex
	offset  int64
	current *resp.Reader
}

func NewClient(primaryAddr string, listenPort int, st *store.Store, ctx *command.Context) *Client {
	return &Client{
		primaryAddr: primaryAddr,
		listenPort:  listenPort,
		store:       st,
		ctx:         ctx,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Offset reports bytes consumed since STREAMING began, the reply to
// REPLCONF GETACK *.
func (c *Client) Offset() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Run connects to the primary and streams forever, reconnecting (rate
// limited) on any connection error other than a HandshakeError, which
// ends the process — a process-level supervisor loop, not part of the
// synchronous handshake itself.
func (c *Client) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := c.limiter.Wait(context.Background()); err != nil {
			return
		}
		if err := c.connectOnce(done); err != nil {
			var he *HandshakeError
			if errors.As(err, &he) {
				log.Fatal("replication: %v", err)
			}
			log.Error("replication: %v", err)
		}
	}
}

func (c *Client) dial() (net.Conn, error) {
	if c.connFn != nil {
		return c.connFn()
	}
	return net.Dial("tcp", c.primaryAddr)
}

func (c *Client) connectOnce(done <-chan struct{}) error {
	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("dial %v: %w", c.primaryAddr, err)
	}
	defer conn.Close()

	w := resp.NewWriter(conn)
	r := resp.NewReader(conn)

	if err := step(w, r, pinging, resp.Command("PING"), "PONG"); err != nil {
		return err
	}
	if err := step(w, r, configuringPort, resp.Command("REPLCONF", "listening-port", strconv.Itoa(c.listenPort)), "OK"); err != nil {
		return err
	}
	if err := step(w, r, configuringCapa, resp.Command("REPLCONF", "capa", "psync2"), "OK"); err != nil {
		return err
	}

	if err := w.WriteValue(resp.Command("PSYNC", "?", "-1")); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	reply, err := r.ReadValue()
	if err != nil {
		return &HandshakeError{Reason: fmt.Sprintf("%v: %v", psyncing, err)}
	}
	if reply.Kind != resp.KindSimpleString || len(reply.Str) < len("FULLRESYNC ") || reply.Str[:11] != "FULLRESYNC " {
		return &HandshakeError{Reason: fmt.Sprintf("%v: unexpected reply %v", psyncing, reply.Str)}
	}

	r.ExpectSnapshotBlob()
	blob, err := r.ReadValue()
	if err != nil {
		return &HandshakeError{Reason: fmt.Sprintf("%v: %v", loadingSnapshot, err)}
	}
	f, err := rdb.ReadBytes(blob.Bulk)
	if err != nil {
		return &HandshakeError{Reason: fmt.Sprintf("%v: snapshot decode: %v", loadingSnapshot, err)}
	}
	rdb.LoadInto(f, c.store)

	log.Info("replication: %v, streaming from %v", streaming, c.primaryAddr)
	r.ResetOffset()
	c.mu.Lock()
	c.current = r
	c.offset = 0
	c.mu.Unlock()

	cs := &command.ConnState{
		ID:         c.primaryAddr,
		MasterLink: true,
		Done:       done,
		ReplOffset: c.Offset,
	}
	defaultUser := "default"
	cs.Authenticated = &defaultUser

	for {
		select {
		case <-done:
			return nil
		default:
		}

		v, err := r.ReadValue()
		if err != nil {
			return fmt.Errorf("stream read: %w", err)
		}
		c.mu.Lock()
		c.offset = r.Offset()
		c.mu.Unlock()

		args, err := frameArgs(v)
		if err != nil {
			log.Error("replication: malformed streamed frame: %v", err)
			continue
		}

		reply, shouldReply := command.Dispatch(c.ctx, cs, args)
		if !shouldReply || command.IsNoReply(reply) {
			continue
		}
		if err := w.WriteValue(reply); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
}

// step sends a request and requires an exact simple-string reply, the
// shape of every handshake row before PSYNC.
func step(w *resp.Writer, r *resp.Reader, s state, req resp.Value, want string) error {
	if err := w.WriteValue(req); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	reply, err := r.ReadValue()
	if err != nil {
		return &HandshakeError{Reason: fmt.Sprintf("%v: %v", s, err)}
	}
	if reply.Kind != resp.KindSimpleString || reply.Str != want {
		return &HandshakeError{Reason: fmt.Sprintf("%v: expected %q, got %v", s, want, reply.Str)}
	}
	return nil
}

// frameArgs extracts a request array's bulk strings, the same shape a
// session reads off a normal client connection.
func frameArgs(v resp.Value) ([]string, error) {
	if v.Kind != resp.KindArray {
		return nil, fmt.Errorf("expected array frame, got kind %v", v.Kind)
	}
	args := make([]string, len(v.Array))
	for i, item := range v.Array {
		if item.Kind != resp.KindBulkString {
			return nil, fmt.Errorf("expected bulk string element, got kind %v", item.Kind)
		}
		args[i] = string(item.Bulk)
	}
	return args, nil
}
