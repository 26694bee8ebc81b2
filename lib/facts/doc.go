// Package facts answers cross-node queries with values computed from the local
// state of this node.
//
// A requester sends a request envelope listing fact names ("info"), a nonce and
// optional keyword arguments per fact ("args"). Every node that receives it evaluates
// the named facts concurrently against its own state, never cluster wide, and sends
// one response envelope to the nonce. The response arguments are the results keyed by
// fact name, in the order of the request. A name without a registered fact, or a fact
// returning an error, produces a nil value; the response is sent anyway.
//
// The node registers a few built-in facts (see RegisterBuiltins). Applications
// embedding a node add their own, e.g. the number of guilds served:
//
//	n.Facts().Register("guild_count", func(ctx context.Context, _ common.Args) (any, error) {
//		return len(guilds), nil
//	})
package facts
