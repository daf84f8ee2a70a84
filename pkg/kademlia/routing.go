// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"container/list"
	"sync"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// RoutingErr is the class for all errors pertaining to routing-table
// operations.
var RoutingErr = errs.Class("routing table error")

// RoutingView is the read/mutate contract the lookup engine requires
// from the routing table: a deterministic nearest-K snapshot read, and
// two mutation hooks the engine calls as it observes the network.
// Implementations must serialize their own mutations; the engine
// issues no locking of its own.
type RoutingView interface {
	// ClosestKnown returns up to n known peers ordered by ascending
	// distance to target.
	ClosestKnown(target ID, n int) []Node
	// Insert adds node, or refreshes it if already present.
	Insert(node Node)
	// Delete removes the node with the given ID, if present.
	Delete(id ID)
	// OwnID returns the identifier of the local node.
	OwnID() ID
}

// bucket holds up to K live entries for one shared-prefix-length slot,
// most-recently-seen at the front, plus a small bounded replacement
// cache of contacts that arrived while the bucket was full.
type bucket struct {
	entries *list.List // of Node, front = most recently seen
	cache   []Node
}

const replacementCacheSize = 8

func newBucket() *bucket {
	return &bucket{entries: list.New()}
}

func (b *bucket) touch(n Node) (added bool) {
	for e := b.entries.Front(); e != nil; e = e.Next() {
		if e.Value.(Node).ID.Equal(n.ID) {
			e.Value = n
			b.entries.MoveToFront(e)
			return false
		}
	}
	if b.entries.Len() < K {
		b.entries.PushFront(n)
		return true
	}
	b.addToCache(n)
	return false
}

func (b *bucket) addToCache(n Node) {
	for _, c := range b.cache {
		if c.ID.Equal(n.ID) {
			return
		}
	}
	if len(b.cache) >= replacementCacheSize {
		b.cache = b.cache[1:]
	}
	b.cache = append(b.cache, n)
}

func (b *bucket) remove(id ID) {
	for e := b.entries.Front(); e != nil; e = e.Next() {
		if e.Value.(Node).ID.Equal(id) {
			b.entries.Remove(e)
			if len(b.cache) > 0 {
				promoted := b.cache[len(b.cache)-1]
				b.cache = b.cache[:len(b.cache)-1]
				b.entries.PushFront(promoted)
			}
			return
		}
	}
}

func (b *bucket) nodes() []Node {
	out := make([]Node, 0, b.entries.Len())
	for e := b.entries.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Node))
	}
	return out
}

// RoutingTable is a fixed-width array of buckets indexed by the length
// of the shared prefix between the local ID and a candidate ID, the
// classic Kademlia layout, simplified to skip dynamic splitting of the
// "close" bucket into finer slices: every prefix length gets its own
// fixed bucket instead.
type RoutingTable struct {
	log  *zap.Logger
	self Node

	mu      sync.Mutex
	buckets [IDLength * 8]*bucket
}

// NewRoutingTable returns an empty routing table for the local node
// self; self itself is never stored in a bucket.
func NewRoutingTable(log *zap.Logger, self Node) *RoutingTable {
	rt := &RoutingTable{log: log, self: self}
	for i := range rt.buckets {
		rt.buckets[i] = newBucket()
	}
	return rt
}

func (rt *RoutingTable) bucketFor(id ID) *bucket {
	idx := rt.self.ID.PrefixLen(id)
	if idx >= len(rt.buckets) {
		idx = len(rt.buckets) - 1
	}
	return rt.buckets[idx]
}

// Insert implements RoutingView.
func (rt *RoutingTable) Insert(node Node) {
	if node.ID.Equal(rt.self.ID) {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.bucketFor(node.ID).touch(node)
}

// Delete implements RoutingView.
func (rt *RoutingTable) Delete(id ID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.bucketFor(id).remove(id)
}

// OwnID implements RoutingView.
func (rt *RoutingTable) OwnID() ID {
	return rt.self.ID
}

// ClosestKnown implements RoutingView by scanning every bucket. This is
// a small, fixed-cost O(160*K) walk, acceptable since bucket-splitting
// performance is not a concern this table tries to solve.
func (rt *RoutingTable) ClosestKnown(target ID, n int) []Node {
	rt.mu.Lock()
	var all []Node
	for _, b := range rt.buckets {
		all = append(all, b.nodes()...)
	}
	rt.mu.Unlock()

	sortByDistance(all, target)
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func sortByDistance(nodes []Node, target ID) {
	// Insertion sort: bucket-scan results are already nearly sorted in
	// practice (each bucket is small and LRU-ordered, not
	// distance-ordered, but the total candidate count is tiny, at most
	// 160*K, so the simple approach is preferable to pulling in a
	// dependency for this).
	for i := 1; i < len(nodes); i++ {
		j := i
		for j > 0 && nodes[j].ID.CloserThan(nodes[j-1].ID, target) {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
			j--
		}
	}
}
