// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"

	"go.uber.org/zap"
)

// Lookup drives a FIND_VALUE lookup for target and returns the value if
// any reachable node held it.
func Lookup(ctx context.Context, e *Engine, inbox *Inbox, target ID) (value []byte, ok bool) {
	type result struct {
		value []byte
		ok    bool
	}

	r := Run(ctx, e, inbox, Params[result]{
		Target:        target,
		QueryKind:     FindValue,
		ExpectedKinds: []CommandKind{ReturnValue, ReturnNodes},

		OnCommand: func(state *LookupState, cmd Command) Decision[result] {
			switch cmd.Kind {
			case ReturnValue:
				return Decision[result]{Terminal: true, Result: result{value: cmd.FoundValue, ok: true}}
			case ReturnNodes:
				return Decision[result]{Nodes: cmd.Nodes}
			default:
				return Decision[result]{Continue: true}
			}
		},
		Cancel: func(state *LookupState) result {
			return result{}
		},
		End: func(state *LookupState) result {
			return result{}
		},
	})
	return r.value, r.ok
}

// Store drives a FIND_NODE lookup for key and, once the lookup has
// converged on the closest reachable peers, sends a single STORE
// datagram to the polled peer nearest to key. It has no return channel
// other than that observable network effect.
func Store(ctx context.Context, e *Engine, inbox *Inbox, key ID, value []byte) {
	Run(ctx, e, inbox, Params[struct{}]{
		Target:        key,
		QueryKind:     FindNode,
		ExpectedKinds: []CommandKind{ReturnNodes},

		OnCommand: func(state *LookupState, cmd Command) Decision[struct{}] {
			if cmd.Kind == ReturnNodes {
				return Decision[struct{}]{Nodes: cmd.Nodes}
			}
			// Any other RETURN_* is ignored; the driver keeps waiting.
			return Decision[struct{}]{Continue: true}
		},
		Cancel: func(state *LookupState) struct{} {
			storeAtNearestPolled(e, state, key, value)
			return struct{}{}
		},
		End: func(state *LookupState) struct{} {
			storeAtNearestPolled(e, state, key, value)
			return struct{}{}
		},
	})
}

func storeAtNearestPolled(e *Engine, state *LookupState, key ID, value []byte) {
	polled := state.Polled()
	if len(polled) == 0 {
		return
	}
	nearest := polled[0]
	for _, n := range polled[1:] {
		if n.ID.CloserThan(nearest.ID, key) {
			nearest = n
		}
	}
	cmd := Command{Kind: Store, Target: key, Value: value}
	if err := e.transport.Send(nearest.Peer, cmd); err != nil {
		e.log.Debug("store datagram send failed",
			zap.String("peer", nearest.Peer.Address), zap.Error(err))
	}
}

// JoinNetwork drives a FIND_NODE lookup for the local node's own ID,
// seeded by a single peer rather than the routing view, to pull this
// node into the network. Both terminal actions discard their result.
func JoinNetwork(ctx context.Context, e *Engine, inbox *Inbox, seed Node) {
	ownID := e.routing.OwnID()

	Run(ctx, e, inbox, Params[struct{}]{
		Target:        ownID,
		QueryKind:     FindNode,
		ExpectedKinds: []CommandKind{ReturnNodes},
		Seed:          &seed,

		OnCommand: func(state *LookupState, cmd Command) Decision[struct{}] {
			if cmd.Kind == ReturnNodes {
				return Decision[struct{}]{Nodes: cmd.Nodes}
			}
			return Decision[struct{}]{Continue: true}
		},
		Cancel: func(state *LookupState) struct{} { return struct{}{} },
		End:    func(state *LookupState) struct{} { return struct{}{} },
	})
}
