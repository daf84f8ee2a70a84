// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cmd

import (
	"context"

	"github.com/rahulmutt/kademlia/pkg/debugrpc"
	"github.com/rahulmutt/kademlia/pkg/kademlia"
)

// serviceBackend adapts *kademlia.Service to debugrpc.Backend, the
// boundary where the wire-agnostic debugrpc package meets the concrete
// kademlia.ID type.
type serviceBackend struct {
	svc *kademlia.Service
}

func (b serviceBackend) RoutingSnapshot(target debugrpc.Identifier, limit int) []debugrpc.PeerView {
	nodes := b.svc.RoutingSnapshot(target.(kademlia.ID), limit)
	out := make([]debugrpc.PeerView, len(nodes))
	for i, n := range nodes {
		out[i] = debugrpc.PeerView{ID: n.ID.String(), Address: n.Peer.Address}
	}
	return out
}

func (b serviceBackend) Lookup(ctx context.Context, key debugrpc.Identifier) ([]byte, bool) {
	return b.svc.Lookup(ctx, key.(kademlia.ID))
}

func (b serviceBackend) Store(ctx context.Context, key debugrpc.Identifier, value []byte) {
	b.svc.Store(ctx, key.(kademlia.ID), value)
}

func (b serviceBackend) Self() debugrpc.PeerView {
	self := b.svc.Self()
	return debugrpc.PeerView{ID: self.ID.String(), Address: self.Peer.Address}
}

func (b serviceBackend) KnownPeerCount() int {
	return len(b.svc.RoutingSnapshot(b.svc.Self().ID, 1<<16))
}

func parseIdentifier(hex string) (debugrpc.Identifier, error) {
	id, err := kademlia.ParseID(hex)
	if err != nil {
		return nil, err
	}
	return id, nil
}
