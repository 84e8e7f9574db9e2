// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import (
	"strings"
	"time"

	"github.com/sandia-minimega/keyd/internal/auth"
	"github.com/sandia-minimega/keyd/internal/pubsub"
	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
	log "github.com/sandia-minimega/keyd/pkg/minilog"
)

// ReplicationHub is the capability the command layer needs from the
// replication subsystem. It is declared here, not in internal/replication,
// so internal/replication can depend on internal/command (to run commands
// received from a primary's write stream) without a cycle.
type ReplicationHub interface {
	// Broadcast enqueues frame to every connected replica writer, in the
	// order it is called, once per mutating command executed locally.
	Broadcast(frame resp.Value)
	// ReplicaCount reports the number of live replica connections.
	ReplicaCount() int
	// Wait implements WAIT n timeout: it resets the pending-ack counter,
	// broadcasts REPLCONF GETACK *, and blocks until n replicas have
	// acked or timeout elapses, returning the count reached.
	Wait(n int, timeout time.Duration) int
	// HandleAck records a REPLCONF ACK <offset> from a replica connection.
	HandleAck(connID string, offset int64)
	// RegisterReplica promotes a connection to replica-writer status
	// after a successful PSYNC, returning a snapshot of the current store
	// as its FULLRESYNC payload.
	RegisterReplica(connID string, w ReplicaWriter) []byte
	// UnregisterReplica drops connID from the replica-writer list.
	UnregisterReplica(connID string)
}

// ReplicaWriter is the minimal capability RegisterReplica needs: deliver an
// already-framed command to the replica's connection, and stream the
// initial snapshot blob in the handshake's one-shot (no trailing CRLF)
// encoding.
type ReplicaWriter interface {
	WriteValue(v resp.Value) error
	WriteSnapshotBlob(data []byte) error
	Flush() error
}

// Context is the process-wide dependency set every connection's dispatch
// loop shares; callers construct one at startup and pass it into every
// session explicitly, rather than reaching for package-level globals.
type Context struct {
	Store  *store.Store
	PubSub *pubsub.Registry
	Auth   *auth.Table
	Repl   ReplicationHub // nil when replication is not wired (tests, standalone primary)
	Config map[string]string

	// ReplID is this server's replication id, echoed in a PSYNC
	// connection's FULLRESYNC reply.
	ReplID string

	StartTime time.Time

	// DebugLog is the ring-buffer logger CLIENT LOG dumps, nil when no
	// ring logger was registered (e.g. in tests).
	DebugLog *log.Ring
}

// Request is one queued command inside an active transaction.
type Request struct {
	Args []string
}

// ConnState is the per-connection state the dispatch loop threads through
// every call: authentication, transaction buffer, replication flags.
type ConnState struct {
	ID string // stable subscriber/replica id: remote address+port

	Authenticated *string    // nil until AUTH succeeds (or seeded NoPass)
	Tx            *[]Request // non-nil while a MULTI is open

	// MasterLink is true on a replica's single connection to its primary:
	// commands arriving on it are applied but not replied to, except
	// REPLCONF GETACK *.
	MasterLink bool

	Done <-chan struct{} // closed on connection termination, cancels blocking ops

	// Subscriber is this connection's pubsub.Writer handle, set by the
	// session package at connection setup; SUBSCRIBE/UNSUBSCRIBE register
	// it with the channel registry under ID.
	Subscriber Subscriber

	// ReplicaLink is set once a connection completes PSYNC on the primary
	// side: PSYNC writes the FULLRESYNC line and snapshot blob directly
	// through it, bypassing the ordinary single-reply flow.
	ReplicaLink ReplicaWriter

	// ReplOffset reports a replica's bytes-consumed-since-STREAMING
	// counter, answered back to the primary's REPLCONF GETACK *.
	ReplOffset func() int64

	// replicateOverride and suppressReplication let a Write handler
	// control what Dispatch propagates in place of the literal request:
	// a handler that didn't actually mutate anything (e.g. BLPOP timing
	// out empty-handed) sets suppressReplication so nothing is
	// broadcast, and a handler whose effect should be replayed
	// differently than it was requested (e.g. BLPOP replicating the
	// resolved pop as a plain LPOP, never the blocking wait itself)
	// sets replicateOverride to the frame to broadcast instead. Dispatch
	// clears both before every call.
	replicateOverride   []string
	suppressReplication bool
}

// Handler is one dispatch-table entry.
type Handler struct {
	Name             string
	MinArgs, MaxArgs int  // MaxArgs < 0 means unbounded
	Write            bool // mutating commands are propagated to replicas
	Call             func(ctx *Context, cs *ConnState, args []string) (resp.Value, error)
}

var handlers = map[string]*Handler{}

func register(h *Handler) {
	handlers[h.Name] = h
}

// Dispatch runs one request's command. It returns the reply frame and
// whether the caller should write it back to the connection — false only
// for commands applied silently off a master link (every command except
// REPLCONF GETACK).
func Dispatch(ctx *Context, cs *ConnState, args []string) (resp.Value, bool) {
	if len(args) == 0 {
		return resp.Error("ERR empty command"), true
	}
	name := strings.ToUpper(args[0])

	if cs.Authenticated == nil && name != "AUTH" {
		return resp.Error(auth.ErrNotAuthenticated.Error()), true
	}

	if cs.Tx != nil && name != "EXEC" && name != "DISCARD" && name != "MULTI" {
		*cs.Tx = append(*cs.Tx, Request{Args: append([]string(nil), args...)})
		return resp.SimpleString("QUEUED"), true
	}

	switch name {
	case "MULTI":
		return execMulti(cs), true
	case "EXEC":
		return execExec(ctx, cs), true
	case "DISCARD":
		return execDiscard(cs), true
	}

	h, ok := handlers[name]
	if !ok {
		return resp.Error((&UnknownCommand{Cmd: args[0]}).Error()), true
	}
	rest := args[1:]
	if len(rest) < h.MinArgs || (h.MaxArgs >= 0 && len(rest) > h.MaxArgs) {
		return resp.Error((&WrongNumArgs{Cmd: args[0]}).Error()), true
	}

	cs.replicateOverride = nil
	cs.suppressReplication = false

	v, err := h.Call(ctx, cs, rest)
	if err != nil {
		return resp.Error(err.Error()), true
	}

	if h.Write && ctx.Repl != nil && !cs.MasterLink && !cs.suppressReplication {
		if cs.replicateOverride != nil {
			ctx.Repl.Broadcast(resp.Command(cs.replicateOverride...))
		} else {
			ctx.Repl.Broadcast(resp.Command(args...))
		}
	}

	shouldReply := !cs.MasterLink ||
		(name == "REPLCONF" && len(rest) > 0 && strings.EqualFold(rest[0], "GETACK"))
	return v, shouldReply
}

// IsNoReply reports whether v is the zero Value a handler returns to mean
// "write nothing" — used by REPLCONF ACK, which the wire spec never
// replies to (the replica doesn't read responses on that connection once
// streaming begins).
func IsNoReply(v resp.Value) bool { return v.Kind == 0 }

func execMulti(cs *ConnState) resp.Value {
	if cs.Tx == nil {
		empty := []Request{}
		cs.Tx = &empty
	}
	return resp.SimpleString("OK")
}

func execDiscard(cs *ConnState) resp.Value {
	if cs.Tx == nil {
		return resp.Error("ERR DISCARD without MULTI")
	}
	cs.Tx = nil
	return resp.SimpleString("OK")
}

func execExec(ctx *Context, cs *ConnState) resp.Value {
	if cs.Tx == nil {
		return resp.Error("ERR EXEC without MULTI")
	}
	queued := *cs.Tx
	cs.Tx = nil

	replies := make([]resp.Value, len(queued))
	for i, req := range queued {
		v, _ := Dispatch(ctx, cs, req.Args)
		replies[i] = v
	}
	return resp.Array(replies)
}
