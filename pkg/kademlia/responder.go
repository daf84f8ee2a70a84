// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"go.uber.org/zap"
)

// NodeResponder is the background responder every live node runs
// alongside the lookup engine: it answers the four query kinds a peer
// can send us: PING with PONG, FIND_NODE and FIND_VALUE with the
// matching RETURN_*, and STORE by recording the value locally with no
// reply. It also learns the sender into the routing table on
// every inbound signal regardless of kind. It implements Responder and
// is handed to a UDPTransport at construction.
type NodeResponder struct {
	log     *zap.Logger
	routing RoutingView
	store   *ValueStore
}

// NewNodeResponder returns a responder backed by the given routing view
// and value store.
func NewNodeResponder(log *zap.Logger, routing RoutingView, store *ValueStore) *NodeResponder {
	return &NodeResponder{log: log, routing: routing, store: store}
}

// Respond implements Responder.
func (r *NodeResponder) Respond(sig Signal, reply func(Command) error) {
	r.routing.Insert(sig.Source)

	var resp Command
	switch sig.Command.Kind {
	case Ping:
		resp = Command{Kind: Pong}

	case FindNode:
		resp = Command{
			Kind:   ReturnNodes,
			Target: sig.Command.Target,
			Nodes:  r.routing.ClosestKnown(sig.Command.Target, K),
		}

	case FindValue:
		if value, ok := r.store.Get(sig.Command.Target); ok {
			resp = Command{Kind: ReturnValue, Target: sig.Command.Target, FoundValue: value}
		} else {
			resp = Command{
				Kind:   ReturnNodes,
				Target: sig.Command.Target,
				Nodes:  r.routing.ClosestKnown(sig.Command.Target, K),
			}
		}

	case Store:
		r.store.Put(sig.Command.Target, sig.Command.Value)
		return

	default:
		// RETURN_NODES and RETURN_VALUE arriving here means no inbox
		// claimed them before the router handed them to us: a reply to
		// a lookup that has already moved on or timed out. There is
		// nothing to answer.
		r.log.Debug("unsolicited reply, discarding",
			zap.String("kind", sig.Command.Kind.String()),
			zap.String("from", sig.Source.Peer.Address))
		return
	}

	if err := reply(resp); err != nil {
		r.log.Debug("responder reply failed",
			zap.String("kind", sig.Command.Kind.String()),
			zap.String("to", sig.Source.Peer.Address),
			zap.Error(err))
	}
}
