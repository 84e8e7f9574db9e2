// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import (
	"strings"

	"github.com/sandia-minimega/keyd/internal/resp"
)

func init() {
	register(&Handler{Name: "AUTH", MinArgs: 1, MaxArgs: 2, Call: cmdAuth})
	register(&Handler{Name: "ACL", MinArgs: 1, MaxArgs: -1, Call: cmdAcl})
}

// cmdAuth accepts both "AUTH password" and "AUTH user password"; the
// single in-scope user profile makes the username optional.
func cmdAuth(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	user, password := "default", args[0]
	if len(args) == 2 {
		user, password = args[0], args[1]
	}

	name, err := ctx.Auth.Authenticate(user, password)
	if err != nil {
		return resp.Value{}, err
	}
	cs.Authenticated = &name
	return resp.SimpleString("OK"), nil
}

// cmdAcl answers WHOAMI, GETUSER, and SETUSER for the single injected user
// table; GETUSER always restores the full reply shape rather than a
// pared-down one.
func cmdAcl(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	switch strings.ToUpper(args[0]) {
	case "WHOAMI":
		if cs.Authenticated == nil {
			return resp.BulkStringFromString("default"), nil
		}
		return resp.BulkStringFromString(*cs.Authenticated), nil

	case "GETUSER":
		if len(args) < 2 {
			return resp.Value{}, &WrongNumArgs{Cmd: "ACL"}
		}
		u, ok := ctx.Auth.GetUser(args[1])
		if !ok {
			return resp.NullArray(), nil
		}
		var flags []resp.Value
		if u.NoPass {
			flags = append(flags, resp.BulkStringFromString("nopass"))
		}
		passwords := make([]resp.Value, len(u.Hashes))
		for i, h := range u.Hashes {
			passwords[i] = resp.BulkStringFromString(h)
		}
		return resp.Array([]resp.Value{
			resp.BulkStringFromString("flags"), resp.Array(flags),
			resp.BulkStringFromString("passwords"), resp.Array(passwords),
			resp.BulkStringFromString("commands"), resp.BulkStringFromString("+@all"),
			resp.BulkStringFromString("keys"), resp.BulkStringFromString("~*"),
			resp.BulkStringFromString("channels"), resp.BulkStringFromString("&*"),
			resp.BulkStringFromString("selectors"), resp.Array(nil),
		}), nil

	case "SETUSER":
		if len(args) < 3 {
			return resp.Value{}, &WrongNumArgs{Cmd: "ACL"}
		}
		name := args[1]
		for _, rule := range args[2:] {
			switch {
			case rule == "nopass":
				ctx.Auth.SetUserNoPass(name)
			case strings.HasPrefix(rule, ">"):
				ctx.Auth.SetUserPassword(name, rule[1:])
			}
		}
		return resp.SimpleString("OK"), nil

	default:
		return resp.Value{}, &SyntaxError{Msg: "unsupported ACL subcommand"}
	}
}
