// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import (
	"path"
	"strconv"
	"strings"
	"time"

	proc "github.com/c9s/goprocinfo/linux"

	"github.com/sandia-minimega/keyd/internal/resp"
)

func init() {
	register(&Handler{Name: "PING", MinArgs: 0, MaxArgs: 1, Call: cmdPing})
	register(&Handler{Name: "ECHO", MinArgs: 1, MaxArgs: 1, Call: cmdEcho})
	register(&Handler{Name: "INFO", MinArgs: 0, MaxArgs: 1, Call: cmdInfo})
	register(&Handler{Name: "TYPE", MinArgs: 1, MaxArgs: 1, Call: cmdType})
	register(&Handler{Name: "CLIENT", MinArgs: 1, MaxArgs: -1, Call: cmdClient})
	register(&Handler{Name: "CONFIG", MinArgs: 1, MaxArgs: -1, Call: cmdConfig})
	register(&Handler{Name: "COMMAND", MinArgs: 0, MaxArgs: -1, Call: cmdCommand})
}

func cmdPing(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	if len(args) == 1 {
		return resp.BulkStringFromString(args[0]), nil
	}
	return resp.SimpleString("PONG"), nil
}

func cmdEcho(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	return resp.BulkStringFromString(args[0]), nil
}

// cmdInfo answers a handful of the standard sections, reading host memory
// and uptime off /proc via goprocinfo.
func cmdInfo(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	var b strings.Builder
	b.WriteString("# Server\r\n")
	b.WriteString("uptime_in_seconds:")
	b.WriteString(strconv.FormatInt(int64(time.Since(ctx.StartTime).Seconds()), 10))
	b.WriteString("\r\n")

	if up, err := proc.ReadUptime("/proc/uptime"); err == nil {
		b.WriteString("system_uptime_in_seconds:")
		b.WriteString(strconv.FormatInt(int64(up.Total), 10))
		b.WriteString("\r\n")
	}

	b.WriteString("# Memory\r\n")
	if mem, err := proc.ReadMemInfo("/proc/meminfo"); err == nil {
		b.WriteString("used_memory:")
		b.WriteString(strconv.FormatInt(int64((mem.MemTotal-mem.MemFree)*1024), 10))
		b.WriteString("\r\n")
	}

	b.WriteString("# Replication\r\n")
	b.WriteString("role:master\r\n")
	if ctx.Repl != nil {
		b.WriteString("connected_slaves:")
		b.WriteString(strconv.FormatInt(int64(ctx.Repl.ReplicaCount()), 10))
		b.WriteString("\r\n")
	}

	return resp.BulkStringFromString(b.String()), nil
}

func cmdType(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	return resp.SimpleString(ctx.Store.TypeOf(args[0])), nil
}

// cmdClient answers the handful of CLIENT subcommands a debug session
// needs; anything else is a harmless OK, matching the wire spec's silence
// on CLIENT's full option grammar.
func cmdClient(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	switch strings.ToUpper(args[0]) {
	case "GETNAME":
		return resp.BulkStringFromString(""), nil
	case "ID":
		return resp.BulkStringFromString(cs.ID), nil
	case "LOG":
		if ctx.DebugLog == nil {
			return resp.Array(nil), nil
		}
		lines := ctx.DebugLog.Dump()
		out := make([]resp.Value, len(lines))
		for i, l := range lines {
			out[i] = resp.BulkStringFromString(l)
		}
		return resp.Array(out), nil
	default:
		return resp.SimpleString("OK"), nil
	}
}

// cmdConfig implements CONFIG GET with prefix-glob matching: every
// matching key is always emitted, empty string if unset, never omitted.
func cmdConfig(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	if !strings.EqualFold(args[0], "GET") || len(args) < 2 {
		return resp.Error("ERR unsupported CONFIG subcommand"), nil
	}

	pattern := args[1]
	var out []resp.Value
	for key, val := range ctx.Config {
		ok, err := path.Match(pattern, key)
		if err != nil || !ok {
			continue
		}
		out = append(out, resp.BulkStringFromString(key), resp.BulkStringFromString(val))
	}
	return resp.Array(out), nil
}

// cmdCommand answers bare COMMAND (array of known names), COMMAND COUNT,
// and COMMAND DOCS <name>, all off the same dispatch table.
func cmdCommand(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	if len(args) == 0 {
		out := make([]resp.Value, 0, len(handlers))
		for name := range handlers {
			out = append(out, resp.BulkStringFromString(strings.ToLower(name)))
		}
		return resp.Array(out), nil
	}

	switch strings.ToUpper(args[0]) {
	case "COUNT":
		return resp.Integer(int64(len(handlers))), nil
	case "DOCS":
		if len(args) < 2 {
			return resp.Array(nil), nil
		}
		h, ok := handlers[strings.ToUpper(args[1])]
		if !ok {
			return resp.NullArray(), nil
		}
		arity := h.MinArgs + 1
		if h.MaxArgs < 0 {
			arity = -arity
		}
		fields := []resp.Value{
			resp.BulkStringFromString("name"), resp.BulkStringFromString(strings.ToLower(h.Name)),
			resp.BulkStringFromString("arity"), resp.Integer(int64(arity)),
			resp.BulkStringFromString("flags"), resp.Array(writeFlag(h.Write)),
		}
		return resp.Array(fields), nil
	default:
		return resp.Array(nil), nil
	}
}

func writeFlag(write bool) []resp.Value {
	if !write {
		return []resp.Value{resp.SimpleString("readonly")}
	}
	return []resp.Value{resp.SimpleString("write")}
}
