// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRoutingView is a minimal, test-only RoutingView: ClosestKnown
// always returns the fixed seed it was constructed with (the engine
// only calls it once, at the start of an unseeded Run), and
// Insert/Delete just record what happened for assertions.
type fakeRoutingView struct {
	mu      sync.Mutex
	self    ID
	seed    []Node
	known   map[ID]Node
	deleted map[ID]bool
}

func newFakeRoutingView(self ID, seed []Node) *fakeRoutingView {
	return &fakeRoutingView{
		self:    self,
		seed:    seed,
		known:   make(map[ID]Node),
		deleted: make(map[ID]bool),
	}
}

func (r *fakeRoutingView) ClosestKnown(target ID, n int) []Node {
	if len(r.seed) > n {
		return r.seed[:n]
	}
	return r.seed
}

func (r *fakeRoutingView) Insert(node Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[node.ID] = node
}

func (r *fakeRoutingView) Delete(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.known, id)
	r.deleted[id] = true
}

func (r *fakeRoutingView) OwnID() ID { return r.self }

// scriptedTransport answers FIND_NODE/FIND_VALUE queries according to a
// fixed script keyed by the destination peer's address, delivering the
// reply directly into the inbox the test wires up, the pattern Inbox's
// own doc comment describes for tests with a fake transport.
// Addresses with no script entry simply never reply, letting the
// inbox's own timer synthesize a TIMEOUT.
type scriptedTransport struct {
	mu     sync.Mutex
	inbox  *Inbox
	script map[string]func(cmd Command) *Signal
	sent   []Command
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{script: make(map[string]func(cmd Command) *Signal)}
}

func (s *scriptedTransport) Send(peer Peer, cmd Command) error {
	s.mu.Lock()
	s.sent = append(s.sent, cmd)
	reply, ok := s.script[peer.Address]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if sig := reply(cmd); sig != nil {
		go s.inbox.Deliver(*sig)
	}
	return nil
}

func (s *scriptedTransport) sentCommands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.sent))
	copy(out, s.sent)
	return out
}

func nodeAt(addr string, lastByte byte) Node {
	var id ID
	id[IDLength-1] = lastByte
	return Node{ID: id, Peer: Peer{Address: addr}}
}

func TestRun_Store_ConvergesThroughOneHop(t *testing.T) {
	self := idFromByte(0)
	key := idFromByte(8)

	a := nodeAt("a", 6)  // distance to key: 14
	b := nodeAt("b", 9)  // distance to key: 1, closer, discovered via a

	transport := newScriptedTransport()
	routing := newFakeRoutingView(self, []Node{a})

	transport.script[a.Peer.Address] = func(cmd Command) *Signal {
		require.Equal(t, FindNode, cmd.Kind)
		return &Signal{Source: a, Command: Command{Kind: ReturnNodes, Nodes: []Node{b}}}
	}
	transport.script[b.Peer.Address] = func(cmd Command) *Signal {
		if cmd.Kind != FindNode {
			// The final STORE datagram lands here too, fire-and-forget
			// with no acknowledgment (spec's store-has-no-retry rule).
			return nil
		}
		return &Signal{Source: b, Command: Command{Kind: ReturnNodes}}
	}

	inbox := NewInbox(100 * time.Millisecond)
	transport.inbox = inbox
	engine := NewEngine(zap.NewNop(), routing, transport)

	Store(context.Background(), engine, inbox, key, []byte("v"))

	sent := transport.sentCommands()
	require.Len(t, sent, 3) // FIND_NODE a, FIND_NODE b, STORE b
	assert.Equal(t, Store, sent[2].Kind)
	assert.Equal(t, []byte("v"), sent[2].Value)

	assert.True(t, routing.known[a.ID].ID.Equal(a.ID))
	assert.True(t, routing.known[b.ID].ID.Equal(b.ID))
}

func TestRun_Lookup_ReturnsValueFromReply(t *testing.T) {
	self := idFromByte(0)
	key := idFromByte(8)

	a := nodeAt("a", 6)

	transport := newScriptedTransport()
	routing := newFakeRoutingView(self, []Node{a})

	transport.script[a.Peer.Address] = func(cmd Command) *Signal {
		return &Signal{Source: a, Command: Command{Kind: ReturnValue, FoundValue: []byte("hello")}}
	}

	inbox := NewInbox(100 * time.Millisecond)
	transport.inbox = inbox
	engine := NewEngine(zap.NewNop(), routing, transport)

	value, ok := Lookup(context.Background(), engine, inbox, key)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), value)
}

func TestRun_Lookup_EmptyRoutingViewReturnsNoResult(t *testing.T) {
	self := idFromByte(0)
	key := idFromByte(8)

	transport := newScriptedTransport()
	routing := newFakeRoutingView(self, nil)

	inbox := NewInbox(100 * time.Millisecond)
	transport.inbox = inbox
	engine := NewEngine(zap.NewNop(), routing, transport)

	_, ok := Lookup(context.Background(), engine, inbox, key)
	assert.False(t, ok)
}

func TestRun_TimeoutThenRetryThenEvict(t *testing.T) {
	self := idFromByte(0)
	key := idFromByte(8)

	a := nodeAt("a", 6) // never replies

	transport := newScriptedTransport()
	routing := newFakeRoutingView(self, []Node{a})

	inbox := NewInbox(20 * time.Millisecond)
	transport.inbox = inbox
	engine := NewEngine(zap.NewNop(), routing, transport)

	Store(context.Background(), engine, inbox, key, []byte("v"))

	// a times out twice (the initial send plus one retry) and is
	// evicted; with no other peer ever having been polled, `polled`
	// is empty at termination, so store has nowhere to send its final
	// datagram (spec's "if polled is non-empty" store-placement rule).
	sent := transport.sentCommands()
	require.Len(t, sent, 2) // FIND_NODE, retry FIND_NODE
	assert.Equal(t, FindNode, sent[0].Kind)
	assert.Equal(t, FindNode, sent[1].Kind)
	assert.True(t, routing.deleted[a.ID])
}

func TestJoinNetwork_SeedsSingleNode(t *testing.T) {
	self := idFromByte(0)
	seed := nodeAt("seed", 3)

	transport := newScriptedTransport()
	routing := newFakeRoutingView(self, nil)

	transport.script[seed.Peer.Address] = func(cmd Command) *Signal {
		require.Equal(t, FindNode, cmd.Kind)
		return &Signal{Source: seed, Command: Command{Kind: ReturnNodes}}
	}

	inbox := NewInbox(100 * time.Millisecond)
	transport.inbox = inbox
	engine := NewEngine(zap.NewNop(), routing, transport)

	JoinNetwork(context.Background(), engine, inbox, seed)

	sent := transport.sentCommands()
	require.Len(t, sent, 1)
	assert.True(t, routing.known[seed.ID].ID.Equal(seed.ID))
}
