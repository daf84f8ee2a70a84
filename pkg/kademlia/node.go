// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import "net"

// Peer is a network address sufficient for the transport to deliver a
// datagram to a remote node.
type Peer struct {
	Address string // host:port, resolved lazily by the transport
}

// ResolveUDPAddr resolves the peer's address for use with a UDP socket.
func (p Peer) ResolveUDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", p.Address)
}

// Node pairs an identifier with the address used to reach it. Equality
// between nodes is by ID alone: two Node values with the same ID but
// different Peer are considered the same node, the second simply
// refreshing the first's address.
type Node struct {
	ID   ID
	Peer Peer
}

// Equal reports whether two nodes name the same peer, by ID only.
func (n Node) Equal(other Node) bool {
	return n.ID.Equal(other.ID)
}

// NodeSet is an insertion-ordered set of nodes keyed by ID. It backs the
// known/pending/polled/timedOut bookkeeping in the lookup engine;
// callers needing a plain list should range over Ordered().
type NodeSet struct {
	index map[ID]int
	nodes []Node
}

// NewNodeSet returns an empty NodeSet.
func NewNodeSet() *NodeSet {
	return &NodeSet{index: make(map[ID]int)}
}

// Add inserts n if its ID is not already present. Returns true if added.
func (s *NodeSet) Add(n Node) bool {
	if _, ok := s.index[n.ID]; ok {
		return false
	}
	s.index[n.ID] = len(s.nodes)
	s.nodes = append(s.nodes, n)
	return true
}

// Remove deletes the node with the given ID, if present.
func (s *NodeSet) Remove(id ID) {
	i, ok := s.index[id]
	if !ok {
		return
	}
	copy(s.nodes[i:], s.nodes[i+1:])
	s.nodes = s.nodes[:len(s.nodes)-1]
	for j := i; j < len(s.nodes); j++ {
		s.index[s.nodes[j].ID] = j
	}
	delete(s.index, id)
}

// Contains reports whether id is a member.
func (s *NodeSet) Contains(id ID) bool {
	_, ok := s.index[id]
	return ok
}

// Get returns the node stored for id, if any.
func (s *NodeSet) Get(id ID) (Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i], true
}

// Len returns the number of members.
func (s *NodeSet) Len() int {
	return len(s.nodes)
}

// Ordered returns the members in insertion order. The returned slice is
// a copy; mutating it does not affect the set.
func (s *NodeSet) Ordered() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}
