// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package command

import "github.com/sandia-minimega/keyd/internal/resp"

func init() {
	register(&Handler{Name: "SUBSCRIBE", MinArgs: 1, MaxArgs: -1, Call: cmdSubscribe})
	register(&Handler{Name: "UNSUBSCRIBE", MinArgs: 0, MaxArgs: -1, Call: cmdUnsubscribe})
	register(&Handler{Name: "PUBLISH", MinArgs: 2, MaxArgs: 2, Write: true, Call: cmdPublish})
}

// Subscriber is what a session must implement to receive pub/sub messages;
// it is the pubsub.Writer capability, restated here so the command package
// never has to import the session package that constructs one.
type Subscriber interface {
	PublishMessage(channel string, payload []byte) error
}

// cmdSubscribe registers the calling connection's own writer handle,
// ConnState.Subscriber (set by the session package at connection setup),
// for each named channel.
func cmdSubscribe(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	if cs.Subscriber == nil {
		return resp.Value{}, &SyntaxError{Msg: "connection cannot subscribe"}
	}
	var last resp.Value
	for _, channel := range args {
		n := ctx.PubSub.Subscribe(channel, cs.ID, cs.Subscriber)
		last = resp.Array([]resp.Value{
			resp.BulkStringFromString("subscribe"),
			resp.BulkStringFromString(channel),
			resp.Integer(int64(n)),
		})
	}
	return last, nil
}

func cmdUnsubscribe(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	channels := args
	if len(channels) == 0 {
		ctx.PubSub.UnsubscribeAll(cs.ID)
		return resp.Array([]resp.Value{
			resp.BulkStringFromString("unsubscribe"),
			resp.NullBulkString(),
			resp.Integer(0),
		}), nil
	}
	var last resp.Value
	for _, channel := range channels {
		n := ctx.PubSub.Unsubscribe(channel, cs.ID)
		last = resp.Array([]resp.Value{
			resp.BulkStringFromString("unsubscribe"),
			resp.BulkStringFromString(channel),
			resp.Integer(int64(n)),
		})
	}
	return last, nil
}

func cmdPublish(ctx *Context, cs *ConnState, args []string) (resp.Value, error) {
	n := ctx.PubSub.Publish(args[0], []byte(args[1]))
	return resp.Integer(int64(n)), nil
}
