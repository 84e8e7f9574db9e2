// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import "github.com/sandia-minimega/keyd/internal/resp"

func init() {
	register(&Handler{Name: "ZADD", MinArgs: 3, MaxArgs: -1, Write: true, Call: cmdZAdd})
	register(&Handler{Name: "ZRANK", MinArgs: 2, MaxArgs: 2, Call: cmdZRank})
	register(&Handler{Name: "ZRANGE", MinArgs: 3, MaxArgs: 3, Call: cmdZRange})
	register(&Handler{Name: "ZSCORE", MinArgs: 2, MaxArgs: 2, Call: cmdZScore})
	register(&Handler{Name: "ZCARD", MinArgs: 1, MaxArgs: 1, Call: cmdZCard})
	register(&Handler{Name: "ZREM", MinArgs: 2, MaxArgs: -1, Write: true, Call: cmdZRem})
}

// cmdZAdd parses ZADD key (score member)... as an ordered Map<float,string>
// over the cursor.
func cmdZAdd(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	c := NewCursor(args)
	key, _ := c.Next()

	scores, members, err := Map(c, (*Cursor).Float, (*Cursor).Next)
	if err != nil {
		return resp.Value{}, err
	}
	if len(scores) == 0 || !c.Done() {
		return resp.Value{}, &SyntaxError{Msg: "ZADD requires score/member pairs"}
	}

	pairs := make(map[string]float64, len(scores))
	for i, m := range members {
		pairs[m] = scores[i]
	}
	n, err := ctx.Store.ZAdd(key, pairs)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Integer(int64(n)), nil
}

func cmdZRank(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	rank, ok, err := ctx.Store.ZRank(args[0], args[1])
	if err != nil {
		return resp.Value{}, err
	}
	if !ok {
		return resp.NullBulkString(), nil
	}
	return resp.Integer(int64(rank)), nil
}

func cmdZRange(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
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
	members, err := ctx.Store.ZRange(key, int(start), int(end))
	if err != nil {
		return resp.Value{}, err
	}
	out := make([]resp.Value, len(members))
	for i, m := range members {
		out[i] = resp.BulkStringFromString(m.Member)
	}
	return resp.Array(out), nil
}

func cmdZScore(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	score, ok, err := ctx.Store.ZScore(args[0], args[1])
	if err != nil {
		return resp.Value{}, err
	}
	if !ok {
		return resp.NullBulkString(), nil
	}
	return resp.BulkStringFromString(formatFloat(score)), nil
}

func cmdZCard(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	n, err := ctx.Store.ZCard(args[0])
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Integer(int64(n)), nil
}

func cmdZRem(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	n, err := ctx.Store.ZRem(args[0], args[1:]...)
	if err != nil {
		return resp.Value{}, err
	}
	return resp.Integer(int64(n)), nil
}
