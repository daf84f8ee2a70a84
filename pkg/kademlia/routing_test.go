// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestNode(t *testing.T, addr string) Node {
	t.Helper()
	id, err := NewRandomID()
	require.NoError(t, err)
	return Node{ID: id, Peer: Peer{Address: addr}}
}

func TestRoutingTable_InsertAndClosestKnown(t *testing.T) {
	self := newTestNode(t, "self:0")
	rt := NewRoutingTable(zap.NewNop(), self)

	other := newTestNode(t, "peer:1")
	rt.Insert(other)

	closest := rt.ClosestKnown(other.ID, 5)
	require.Len(t, closest, 1)
	assert.True(t, closest[0].ID.Equal(other.ID))
}

func TestRoutingTable_InsertSkipsSelf(t *testing.T) {
	self := newTestNode(t, "self:0")
	rt := NewRoutingTable(zap.NewNop(), self)

	rt.Insert(self)
	assert.Empty(t, rt.ClosestKnown(self.ID, 5))
}

func TestRoutingTable_Delete(t *testing.T) {
	self := newTestNode(t, "self:0")
	rt := NewRoutingTable(zap.NewNop(), self)

	other := newTestNode(t, "peer:1")
	rt.Insert(other)
	rt.Delete(other.ID)

	assert.Empty(t, rt.ClosestKnown(other.ID, 5))
}

func TestRoutingTable_BucketOverflowUsesReplacementCache(t *testing.T) {
	self := newTestNode(t, "self:0")
	rt := NewRoutingTable(zap.NewNop(), self)

	// Force every node into the same bucket of self's table: XOR each
	// candidate's last byte with 0x80+i (i=0..K+1). The top bit of
	// 0x80+i is always set and dominates, so the highest set bit of
	// the XOR distance, and hence the bucket index, is identical for
	// every candidate regardless of self's actual ID, while the low
	// bits still make each candidate a distinct node.
	var nodes []Node
	for i := 0; i < K+2; i++ {
		id := self.ID
		id[IDLength-1] ^= 0x80 + byte(i)
		nodes = append(nodes, Node{ID: id, Peer: Peer{Address: "peer"}})
	}
	for _, n := range nodes {
		rt.Insert(n)
	}

	b := rt.bucketFor(nodes[0].ID)
	assert.Equal(t, K, b.entries.Len())
	assert.NotEmpty(t, b.cache)
}

func TestRoutingTable_ClosestKnownOrdersByDistance(t *testing.T) {
	self := newTestNode(t, "self:0")
	rt := NewRoutingTable(zap.NewNop(), self)

	target := self.ID
	target[IDLength-1] ^= 0xFF

	near := self.ID
	near[IDLength-1] ^= 0x01
	far := self.ID
	far[IDLength-1] ^= 0x0F

	rt.Insert(Node{ID: far, Peer: Peer{Address: "far"}})
	rt.Insert(Node{ID: near, Peer: Peer{Address: "near"}})

	closest := rt.ClosestKnown(target, 2)
	require.Len(t, closest, 2)
	assert.Equal(t, "far", closest[0].Peer.Address)
	assert.Equal(t, "near", closest[1].Peer.Address)
}
