// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import (
	"time"

	"github.com/sandia-minimega/keyd/internal/resp"
)

func init() {
	register(&Handler{Name: "RPUSH", MinArgs: 2, MaxArgs: -1, Write: true, Call: cmdRPush})
	register(&Handler{Name: "LPUSH", MinArgs: 2, MaxArgs: -1, Write: true, Call: cmdLPush})
	register(&Handler{Name: "LRANGE", MinArgs: 3, MaxArgs: 3, Call: cmdLRange})
	register(&Handler{Name: "LLEN", MinArgs: 1, MaxArgs: 1, Call: cmdLLen})
	register(&Handler{Name: "LPOP", MinArgs: 1, MaxArgs: 2, Write: true, Call: cmdLPop})
	register(&Handler{Name: "BLPOP", MinArgs: 2, MaxArgs: -1, Write: true, Call: cmdBLPop})
}

func bulkValues(vals [][]byte) resp.Value {
	out := make([]resp.Value, len(vals))
	for i, v := range vals {
		out[i] = resp.BulkString(v)
	}
	return resp.Array(out)
}

func cmdRPush(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	vals := make([][]byte, len(args)-1)
	for i, a := range args[1:] {
		vals[i] = []byte(a)
	}
	n, err := ctx.Store.RPush(args[0], vals...)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Integer(int64(n)), nil
}

func cmdLPush(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	vals := make([][]byte, len(args)-1)
	for i, a := range args[1:] {
		vals[i] = []byte(a)
	}
	n, err := ctx.Store.LPush(args[0], vals...)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Integer(int64(n)), nil
}

func cmdLRange(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	c := NewCursor(args)
	key, _ := c.Next()
	start, err := c.Int()
	if err != nil {
		return resp.Value{}, err
	}
	end, err := c.Int()
	if err != nil {
		return resp.Value{}, err
	}
	vals, err := ctx.Store.LRange(key, int(start), int(end))
	if err != nil {
		return resp.Value{}, err
	}
	return bulkValues(vals), nil
}

func cmdLLen(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	n, err := ctx.Store.LLen(args[0])
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Integer(int64(n)), nil
}

func cmdLPop(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	count := 1
	single := true
	if len(args) == 2 {
		c := NewCursor(args[1:])
		n, err := c.Int()
		if err != nil {
			return resp.Value{}, err
		}
		count = int(n)
		single = false
	}
	vals, err := ctx.Store.LPop(args[0], count)
	if err != nil {
		return resp.Value{}, err
	}
	if single {
		if len(vals) == 0 {
			return resp.NullBulkString(), nil
		}
		return resp.BulkString(vals[0]), nil
	}
	if vals == nil {
		return resp.NullArray(), nil
	}
	return bulkValues(vals), nil
}

// cmdBLPop parses BLPOP key... timeout: every argument but the last is a
// candidate key, the last is the timeout in seconds (fractional values
// are kept, converted to a nanosecond duration).
//
// A bare timeout (r == nil) never mutated the store, so it suppresses
// replication entirely; a successful pop replicates as a plain LPOP on
// the key that actually gave up its head, never the blocking wait
// itself — a replica has no business re-running BLPOP against its own
// copy of the store, since that would stall the single streamed-write
// loop it applies commands on for up to the full timeout.
func cmdBLPop(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	keys := args[:len(args)-1]
	c := NewCursor(args[len(args)-1:])
	secs, err := c.Float()
	if err != nil {
		return resp.Value{}, err
	}
	timeout := time.Duration(secs * float64(time.Second))

	r, err := ctx.Store.BLPop(keys, timeout, cs.Done)
	if err != nil {
		return resp.Value{}, err
	}
	if r == nil {
		cs.suppressReplication = true
		return resp.NullArray(), nil
	}
	cs.replicateOverride = []string{"LPOP", r.Key}
	return resp.Array([]resp.Value{
		resp.BulkStringFromString(r.Key),
		resp.BulkString(r.Value),
	}), nil
}
