// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/sandia-minimega/keyd/internal/resp"
)

func init() {
	register(&Handler{Name: "REPLCONF", MinArgs: 1, MaxArgs: -1, Call: cmdReplconf})
	register(&Handler{Name: "PSYNC", MinArgs: 2, MaxArgs: 2, Call: cmdPsync})
	register(&Handler{Name: "WAIT", MinArgs: 2, MaxArgs: 2, Call: cmdWait})
}

// cmdReplconf answers the handshake's LISTENING-PORT/CAPA acks, the
// primary's GETACK probe (replica side), and records ACK offsets (primary
// side). ACK carries no reply — the replica stream is unidirectional once
// STREAMING begins — signalled to the caller via IsNoReply.
func cmdReplconf(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	switch strings.ToUpper(args[0]) {
	case "LISTENING-PORT", "CAPA":
		return resp.SimpleString("OK"), nil

	case "GETACK":
		var offset int64
		if cs.ReplOffset != nil {
			offset = cs.ReplOffset()
		}
		return resp.Command("REPLCONF", "ACK", strconv.FormatInt(offset, 10)), nil

	case "ACK":
		if len(args) < 2 {
			return resp.Value{}, &WrongNumArgs{Cmd: "REPLCONF"}
		}
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return resp.Value{}, &BadInteger{Got: args[1]}
		}
		if ctx.Repl != nil {
			ctx.Repl.HandleAck(cs.ID, n)
		}
		return resp.Value{}, nil

	default:
		return resp.SimpleString("OK"), nil
	}
}

// cmdPsync implements the primary side of PSYNC ? -1: register the
// connection as a replica writer, then write the FULLRESYNC line and the
// empty/current snapshot blob directly through ReplicaLink, since neither
// fits the ordinary single-reply-value flow.
func cmdPsync(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	if ctx.Repl == nil || cs.ReplicaLink == nil {
		return resp.Value{}, &SyntaxError{Msg: "PSYNC requires a replication-capable connection"}
	}

	snapshot := ctx.Repl.RegisterReplica(cs.ID, cs.ReplicaLink)

	if err := cs.ReplicaLink.WriteValue(resp.SimpleString("FULLRESYNC " + ctx.ReplID + " 0")); err != nil {
		return resp.Value{}, err
	}
	if err := cs.ReplicaLink.WriteSnapshotBlob(snapshot); err != nil {
		return resp.Value{}, err
	}
	if err := cs.ReplicaLink.Flush(); err != nil {
		return resp.Value{}, err
	}
	return resp.Value{}, nil
}

// cmdWait implements WAIT n timeout_ms; with no replication hub wired
// (a standalone primary in tests) it degrades to "no replicas".
func cmdWait(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	c := NewCursor(args)
	n, err := c.Int()
	if err != nil {
		return resp.Value{}, err
	}
	timeoutMs, err := c.Int()
	if err != nil {
		return resp.Value{}, err
	}

	if ctx.Repl == nil {
		return resp.Integer(0), nil
	}
	got := ctx.Repl.Wait(int(n), time.Duration(timeoutMs)*time.Millisecond)
	return resp.Integer(int64(got)), nil
}
