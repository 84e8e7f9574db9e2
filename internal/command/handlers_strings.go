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
	register(&Handler{Name: "GET", MinArgs: 1, MaxArgs: 1, Call: cmdGet})
	register(&Handler{Name: "SET", MinArgs: 2, MaxArgs: -1, Write: true, Call: cmdSet})
	register(&Handler{Name: "INCR", MinArgs: 1, MaxArgs: 1, Write: true, Call: cmdIncr})
}

func cmdGet(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	v, ok, err := ctx.Store.Get(args[0])
	if err != nil {
		return resp.Value{}, err
	}
	if !ok {
		return resp.NullBulkString(), nil
	}
	return resp.BulkString(v), nil
}

// cmdSet parses SET key value [NX|XX] [GET] [EX s|PX ms|EXAT s|PXAT ms|KEEPTTL]
// with the cursor binder: each option is an Optional literal match, greedily
// consumed in any order until the cursor is exhausted.
func cmdSet(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	c := NewCursor(args)
	key, _ := c.Next()
	payload, _ := c.Bytes()

	var opts store.SetOptions
	for !c.Done() {
		switch {
		case c.TryLiteral("NX"):
			opts.NX = true
		case c.TryLiteral("XX"):
			opts.XX = true
		case c.TryLiteral("GET"):
			opts.GetOld = true
		case c.TryLiteral("KEEPTTL"):
			opts.Expiry.Keep = true
		case c.TryLiteral("EX"):
			n, err := c.Int()
			if err != nil {
				return resp.Value{}, &SyntaxError{Msg: "EX requires an integer"}
			}
			opts.Expiry.At = time.Now().Add(time.Duration(n) * time.Second)
		case c.TryLiteral("PX"):
			n, err := c.Int()
			if err != nil {
				return resp.Value{}, &SyntaxError{Msg: "PX requires an integer"}
			}
			opts.Expiry.At = time.Now().Add(time.Duration(n) * time.Millisecond)
		case c.TryLiteral("EXAT"):
			n, err := c.Int()
			if err != nil {
				return resp.Value{}, &SyntaxError{Msg: "EXAT requires an integer"}
			}
			opts.Expiry.At = time.Unix(n, 0)
		case c.TryLiteral("PXAT"):
			n, err := c.Int()
			if err != nil {
				return resp.Value{}, &SyntaxError{Msg: "PXAT requires an integer"}
			}
			opts.Expiry.At = time.UnixMilli(n)
		default:
			tok, _ := c.Peek()
			return resp.Value{}, &SyntaxError{Msg: "unknown SET option " + tok}
		}
	}
	if opts.Expiry.At.IsZero() && !opts.Expiry.Keep {
		opts.Expiry.None = true
	}

	old, set, err := ctx.Store.Set(key, payload, opts)
	if err != nil {
		return resp.Value{}, err
	}
	if opts.GetOld {
		if old == nil {
			return resp.NullBulkString(), nil
		}
		return resp.BulkString(old), nil
	}
	if !set {
		return resp.NullBulkString(), nil
	}
	return resp.SimpleString("OK"), nil
}

func cmdIncr(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	n, err := ctx.Store.Incr(args[0], 1)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Integer(n), nil
}
