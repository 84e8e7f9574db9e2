// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import (
	"time"

	"github.com/sandia-minimega/keyd/internal/resp"
	"github.com/sandia-minimega/keyd/internal/store"
)

func init() {
	register(&Handler{Name: "XADD", MinArgs: 4, MaxArgs: -1, Write: true, Call: cmdXAdd})
	register(&Handler{Name: "XRANGE", MinArgs: 3, MaxArgs: 5, Call: cmdXRange})
	register(&Handler{Name: "XREAD", MinArgs: 3, MaxArgs: -1, Call: cmdXRead})
}

func streamEntryValue(e store.StreamEntry) resp.Value {
	fields := make([]resp.Value, 0, len(e.Fields)*2)
	for _, f := range e.Fields {
		fields = append(fields, resp.BulkString(f.Name), resp.BulkString(f.Value))
	}
	return resp.Array([]resp.Value{
		resp.BulkStringFromString(e.ID.String()),
		resp.Array(fields),
	})
}

// cmdXAdd parses XADD key id field value [field value ...]; a trailing
// field/value run of odd length is rejected with WrongNumArgs.
//
// args[1] (the id spec, e.g. "*" or "ms-*") is overwritten in place with
// the resolved concrete id once XAdd succeeds. args aliases the backing
// array Dispatch broadcasts to replicas, so this turns the broadcast
// frame into the literal resolved id rather than letting every replica
// resolve its own "*" independently and diverge from the primary.
func cmdXAdd(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	key, id := args[0], args[1]
	rest := args[2:]
	if len(rest)%2 != 0 {
		return resp.Value{}, &WrongNumArgs{Cmd: "XADD"}
	}

	fields := make([]store.Field, 0, len(rest)/2)
	for i := 0; i+1 < len(rest); i += 2 {
		fields = append(fields, store.Field{Name: []byte(rest[i]), Value: []byte(rest[i+1])})
	}

	newID, err := ctx.Store.XAdd(key, id, fields)
	if err != nil {
		return resp.Value{}, err
	}
	args[1] = newID.String()
	return resp.BulkStringFromString(newID.String()), nil
}

// cmdXRange parses XRANGE key start end [COUNT n].
func cmdXRange(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	key, start, end := args[0], args[1], args[2]
	count := 0
	if len(args) > 3 {
		c := NewCursor(args[3:])
		if err := c.Literal("COUNT"); err != nil {
			return resp.Value{}, err
		}
		n, err := c.Int()
		if err != nil {
			return resp.Value{}, err
		}
		count = int(n)
	}

	entries, err := ctx.Store.XRange(key, start, end, count)
	if err != nil {
		return resp.Value{}, err
	}
	out := make([]resp.Value, len(entries))
	for i, e := range entries {
		out[i] = streamEntryValue(e)
	}
	return resp.Array(out), nil
}

// cmdXRead parses XREAD [BLOCK ms] STREAMS key... id..., resolving "$" to
// the stream's current last id at request time before any blocking wait
// begins, and then binding each key to its paired id.
func cmdXRead(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	c := NewCursor(args)

	var blockMs int64
	block := false
	if c.TryLiteral("BLOCK") {
		ms, err := c.Int()
		if err != nil {
			return resp.Value{}, err
		}
		blockMs = ms
		block = true
	}

	if err := c.Literal("STREAMS"); err != nil {
		return resp.Value{}, err
	}

	remaining := c.Remaining()
	if remaining%2 != 0 {
		return resp.Value{}, &SyntaxError{Msg: "STREAMS requires matching key/id pairs"}
	}
	n := remaining / 2
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		k, _ := c.Next()
		keys[i] = k
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id, _ := c.Next()
		ids[i] = id
	}

	queries := make([]store.XReadQuery, n)
	for i := range keys {
		after, err := resolveXReadID(ctx, keys[i], ids[i])
		if err != nil {
			return resp.Value{}, err
		}
		queries[i] = store.XReadQuery{Key: keys[i], After: after}
	}

	timeout := time.Duration(blockMs) * time.Millisecond
	results, err := ctx.Store.XRead(queries, timeout, block, cs.Done)
	if err != nil {
		return resp.Value{}, err
	}
	if len(results) == 0 {
		return resp.NullArray(), nil
	}

	out := make([]resp.Value, len(results))
	for i, r := range results {
		entries := make([]resp.Value, len(r.Entries))
		for j, e := range r.Entries {
			entries[j] = streamEntryValue(e)
		}
		out[i] = resp.Array([]resp.Value{resp.BulkStringFromString(r.Key), resp.Array(entries)})
	}
	return resp.Array(out), nil
}

func resolveXReadID(ctx *Context, key, spec string) (store.StreamID, error) {
	if spec == "$" {
		last, ok, err := ctx.Store.XLastID(key)
		if err != nil {
			return store.StreamID{}, err
		}
		if !ok {
			return store.StreamID{}, nil
		}
		return last, nil
	}
	return store.ParseStreamID(spec, nil)
}
