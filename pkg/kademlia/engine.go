// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

// Transport is the fire-and-forget send half of a lookup's network
// access: non-blocking, and neither reliable nor ordered. The engine
// never learns whether a send actually reached the wire. A dropped
// datagram is indistinguishable, from the engine's perspective, from
// one that arrived but drew no timely reply: both surface as a
// synthesized TIMEOUT.
type Transport interface {
	Send(peer Peer, cmd Command) error
}

// LookupState is the state kept for a single invocation of the engine.
// It is owned exclusively by the goroutine running Run for this
// invocation; nothing outside the engine and the driver callbacks
// touches it, so it carries no locking of its own.
type LookupState struct {
	Target ID

	inbox    *Inbox
	known    *NodeSet
	pending  *NodeSet
	polled   *NodeSet
	timedOut *NodeSet
}

func newLookupState(target ID, inbox *Inbox) *LookupState {
	return &LookupState{
		Target:   target,
		inbox:    inbox,
		known:    NewNodeSet(),
		pending:  NewNodeSet(),
		polled:   NewNodeSet(),
		timedOut: NewNodeSet(),
	}
}

// Polled returns the peers queried at least once during this lookup.
func (s *LookupState) Polled() []Node { return s.polled.Ordered() }

// Known returns the engine's current frontier.
func (s *LookupState) Known() []Node { return s.known.Ordered() }

// Pending returns peers awaiting a reply or timeout.
func (s *LookupState) Pending() []Node { return s.pending.Ordered() }

// Decision is what an operation's OnCommand callback returns after
// observing one RETURN_* reply: either a terminal result, an
// instruction to ignore the reply and keep waiting, or a node list that
// should drive continueLookup.
type Decision[R any] struct {
	Terminal bool
	Result   R

	// Continue, when true, means this reply carried no information this
	// operation cares about. Store ignores any reply that isn't
	// RETURN_NODES this way. Re-enter the wait loop without touching
	// the frontier.
	Continue bool

	// Nodes is the RETURN_NODES payload to feed into continueLookup.
	// Ignored when Terminal or Continue is set.
	Nodes []Node
}

// Params parameterizes the engine for one operation: the query kind and
// expected reply kinds to register on every send, how to interpret a
// reply, and the two terminal actions.
type Params[R any] struct {
	Target        ID
	QueryKind     CommandKind
	ExpectedKinds []CommandKind

	// Seed, when non-nil, selects the join-network start-phase variant:
	// send exactly one query to *Seed instead of preloading the alpha
	// nearest known peers.
	Seed *Node

	OnCommand func(state *LookupState, cmd Command) Decision[R]
	Cancel    func(state *LookupState) R
	End       func(state *LookupState) R
}

// Engine holds the collaborators the lookup state machine needs: a
// routing view to seed from and update, and a transport to send
// queries over. It carries no per-lookup state; Run creates a fresh
// LookupState for each invocation.
type Engine struct {
	log       *zap.Logger
	routing   RoutingView
	transport Transport
}

// NewEngine returns an engine bound to the given routing view and
// transport.
func NewEngine(log *zap.Logger, routing RoutingView, transport Transport) *Engine {
	return &Engine{log: log, routing: routing, transport: transport}
}

// Run drives one iterative lookup to completion and returns the
// operation-specific result. It is generic over R because the three
// operations built on it return different things: Lookup a found
// value, Store and JoinNetwork nothing but observable network effects.
func Run[R any](ctx context.Context, e *Engine, inbox *Inbox, params Params[R]) (result R) {
	defer mon.Task()(&ctx)(nil)

	state := newLookupState(params.Target, inbox)

	if params.Seed != nil {
		send(e, state, params, *params.Seed, true)
		return waitForReply(ctx, e, state, params)
	}

	initial := e.routing.ClosestKnown(params.Target, Alpha)
	if len(initial) == 0 {
		return params.Cancel(state)
	}
	for _, n := range initial {
		state.known.Add(n)
		send(e, state, params, n, true)
	}
	return waitForReply(ctx, e, state, params)
}

// send issues params.QueryKind to node, registers the expectation with
// the inbox, and records node as pending, and, when isNew, as polled.
// isNew is false for a retransmission to a peer that is already polled
// but has timed out once.
func send[R any](e *Engine, state *LookupState, params Params[R], node Node, isNew bool) {
	if isNew {
		state.polled.Add(node)
	}
	state.pending.Add(node)
	state.inbox.Register(Registration{
		ExpectedKinds: params.ExpectedKinds,
		ExpectedFrom:  node.ID,
	})
	cmd := Command{Kind: params.QueryKind, Target: params.Target}
	if err := e.transport.Send(node.Peer, cmd); err != nil {
		// A send error is treated as silently delivered; the inbox
		// timer will synthesize a TIMEOUT regardless.
		e.log.Debug("send failed, awaiting synthesized timeout",
			zap.String("peer", node.Peer.Address), zap.Error(err))
	}
}

// waitForReply blocks on the inbox and handles whichever of
// ANSWER/TIMEOUT/CLOSED arrives.
func waitForReply[R any](ctx context.Context, e *Engine, state *LookupState, params Params[R]) R {
	for {
		ev := state.inbox.Recv()
		switch ev.Kind {

		case EventAnswer:
			node := ev.Signal.Source
			e.routing.Insert(node)
			state.pending.Remove(node.ID)

			decision := params.OnCommand(state, ev.Signal.Command)
			if decision.Terminal {
				return decision.Result
			}
			if decision.Continue {
				continue
			}
			if result, done := continueLookup(e, state, params, decision.Nodes); done {
				return result
			}
			continue

		case EventTimeout:
			id := ev.Timeout
			node, ok := state.polled.Get(id)
			if !ok {
				// Should never happen: the inbox only ever synthesizes
				// a TIMEOUT for an ID already present in polled at the
				// time it registered the expectation.
				e.log.Error("timeout for node missing from polled set", zap.String("id", id.String()))
				continue
			}

			if !state.timedOut.Contains(id) {
				// First timeout is ambiguous: the datagram transport
				// may simply have dropped a packet. Retry once.
				state.timedOut.Add(node)
				send(e, state, params, node, false)
			} else {
				// Second timeout: give up on this peer.
				e.routing.Delete(id)
				state.pending.Remove(id)
				state.known.Remove(id)
				state.polled.Remove(id)
			}

			if state.pending.Len() > 0 {
				continue
			}
			return params.Cancel(state)

		case EventClosed:
			return params.Cancel(state)
		}
	}
}

// continueLookup implements the lookup's progress policy: keep probing
// as long as the K best known candidates include one not yet polled;
// once the K best are all polled, finalize. The boolean result reports
// whether the lookup has terminated (in which case the first return
// value is the final result); when false the caller should simply
// re-enter the wait loop, since a send has already been issued, or
// there is nothing to do but keep waiting on pending replies.
func continueLookup[R any](e *Engine, state *LookupState, params Params[R], nodes []Node) (R, bool) {
	newKnown := nearestUnpolled(nodes, state.known, state.polled, K)

	closest := nearestOverall(newKnown, state.polled, params.Target, K)
	closestPolled := allPolled(closest, state.polled)

	if len(newKnown) > 0 && !closestPolled {
		nearest := newKnown[0]
		for _, n := range newKnown[1:] {
			if n.ID.CloserThan(nearest.ID, params.Target) {
				nearest = n
			}
		}
		send(e, state, params, nearest, true)
		state.known = NewNodeSet()
		for _, n := range newKnown {
			state.known.Add(n)
		}
		var zero R
		return zero, false
	}

	if state.pending.Len() > 0 {
		var zero R
		return zero, false
	}

	return params.End(state), true
}

// nearestUnpolled computes the first limit entries of (nodes ∪ known)
// filtered to exclude anything already polled. Order is not
// semantically significant here; encounter order (nodes first, then the
// existing frontier) is preserved for determinism.
func nearestUnpolled(nodes []Node, known, polled *NodeSet, limit int) []Node {
	seen := make(map[ID]bool)
	var out []Node
	add := func(n Node) bool {
		if seen[n.ID] || polled.Contains(n.ID) {
			return len(out) >= limit
		}
		seen[n.ID] = true
		out = append(out, n)
		return len(out) >= limit
	}
	for _, n := range nodes {
		if add(n) {
			return out
		}
	}
	for _, n := range known.Ordered() {
		if add(n) {
			return out
		}
	}
	return out
}

// nearestOverall computes the first limit entries of (candidates ∪
// polled) ordered ascending by distance to target.
func nearestOverall(candidates []Node, polled *NodeSet, target ID, limit int) []Node {
	seen := make(map[ID]bool)
	var all []Node
	for _, n := range candidates {
		if !seen[n.ID] {
			seen[n.ID] = true
			all = append(all, n)
		}
	}
	for _, n := range polled.Ordered() {
		if !seen[n.ID] {
			seen[n.ID] = true
			all = append(all, n)
		}
	}
	sortByDistance(all, target)
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// allPolled reports whether every node in closest is already in polled.
func allPolled(closest []Node, polled *NodeSet) bool {
	for _, n := range closest {
		if !polled.Contains(n.ID) {
			return false
		}
	}
	return true
}
