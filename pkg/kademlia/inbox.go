// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"sync"
	"time"
)

// DefaultReplyTimeout is the fixed wall-clock deadline the inbox waits
// for an answer before synthesizing a TIMEOUT.
const DefaultReplyTimeout = 800 * time.Millisecond

// Inbox is a single-consumer reply queue bound to one lookup. It has
// two producers: the transport demultiplexer, which calls Deliver for
// every inbound signal, and the inbox's own timers, which fire
// synthesized TIMEOUT events. The engine is the single
// consumer, via Recv.
//
// The load-bearing guarantee: every TIMEOUT event names an ID that was
// registered, and Register is always called before the corresponding
// send returns, so by the time a TIMEOUT can be observed the node is
// already present in the caller's `polled` set.
type Inbox struct {
	timeout time.Duration
	router  *Router

	mu      sync.Mutex
	pending map[ID]Registration
	timers  map[ID]*time.Timer
	closed  bool

	events chan ReplyEvent
}

// NewInbox returns an empty, unrouted inbox with the given per-query
// deadline. A zero timeout selects DefaultReplyTimeout. An inbox built
// this way must have Deliver called on it directly by the caller (this
// is what the engine's tests do, with a fake transport); a live node
// instead uses NewRoutedInbox so inbound UDP datagrams can find it.
func NewInbox(timeout time.Duration) *Inbox {
	return newInbox(timeout, nil)
}

// NewRoutedInbox returns an inbox registered with router, so that any
// signal the router receives from a node this inbox is waiting on is
// forwarded here automatically.
func NewRoutedInbox(timeout time.Duration, router *Router) *Inbox {
	return newInbox(timeout, router)
}

func newInbox(timeout time.Duration, router *Router) *Inbox {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &Inbox{
		timeout: timeout,
		router:  router,
		pending: make(map[ID]Registration),
		timers:  make(map[ID]*time.Timer),
		events:  make(chan ReplyEvent, 16),
	}
}

// Register installs the expectation for a reply from reg.ExpectedFrom,
// arming the timeout timer, and, if this inbox was built with a Router
// (NewRoutedInbox), tells the router to forward any matching inbound
// signal here. Must be called before the corresponding send is
// considered complete.
func (ib *Inbox) Register(reg Registration) {
	ib.mu.Lock()
	if ib.closed {
		ib.mu.Unlock()
		return
	}
	ib.pending[reg.ExpectedFrom] = reg
	ib.timers[reg.ExpectedFrom] = time.AfterFunc(ib.timeout, func() {
		ib.fireTimeout(reg.ExpectedFrom)
	})
	ib.mu.Unlock()

	if ib.router != nil {
		ib.router.await(reg.ExpectedFrom, ib)
	}
}

func (ib *Inbox) fireTimeout(id ID) {
	ib.mu.Lock()
	_, stillPending := ib.pending[id]
	if stillPending {
		delete(ib.pending, id)
		delete(ib.timers, id)
	}
	closed := ib.closed
	ib.mu.Unlock()

	if !stillPending || closed {
		return
	}
	if ib.router != nil {
		ib.router.forget(id, ib)
	}
	ib.emit(ReplyEvent{Kind: EventTimeout, Timeout: id})
}

// Deliver hands an inbound signal to the inbox. It reports whether the
// signal matched a live registration (and was thus consumed as an
// ANSWER); an unmatched signal is the background responder's concern,
// not the engine's, and Deliver returns false so the caller can route
// it there instead.
func (ib *Inbox) Deliver(sig Signal) bool {
	ib.mu.Lock()
	reg, ok := ib.pending[sig.Source.ID]
	if ok {
		if !reg.accepts(sig.Command.Kind) {
			ib.mu.Unlock()
			return false
		}
		delete(ib.pending, sig.Source.ID)
		if t, ok := ib.timers[sig.Source.ID]; ok {
			t.Stop()
			delete(ib.timers, sig.Source.ID)
		}
	}
	closed := ib.closed
	ib.mu.Unlock()

	if !ok || closed {
		return false
	}
	if ib.router != nil {
		ib.router.forget(sig.Source.ID, ib)
	}
	ib.emit(ReplyEvent{Kind: EventAnswer, Signal: sig})
	return true
}

func (ib *Inbox) emit(ev ReplyEvent) {
	defer func() {
		// The events channel may have been closed concurrently by
		// Close(); a send on a closed channel panics, and losing a
		// single stale event during shutdown is harmless since the
		// engine is about to observe EventClosed anyway.
		_ = recover()
	}()
	ib.events <- ev
}

// Recv blocks for the next event: an answer, a timeout, or closure.
func (ib *Inbox) Recv() ReplyEvent {
	ev, ok := <-ib.events
	if !ok {
		return ReplyEvent{Kind: EventClosed}
	}
	return ev
}

// Close shuts the inbox down; any blocked or future Recv observes
// EventClosed exactly once the channel drains.
func (ib *Inbox) Close() {
	ib.mu.Lock()
	if ib.closed {
		ib.mu.Unlock()
		return
	}
	ib.closed = true
	for _, t := range ib.timers {
		t.Stop()
	}
	pending := ib.pending
	ib.timers = nil
	ib.pending = nil
	ib.mu.Unlock()

	if ib.router != nil {
		for id := range pending {
			ib.router.forget(id, ib)
		}
	}
	close(ib.events)
}

// Router demultiplexes inbound signals from a shared transport read loop
// to whichever inbox last registered interest in a given peer ID.
// A node runs exactly one Router; every routed inbox shares it. Mapping
// is last-registered-wins: if two concurrent lookups both query the same
// peer, only the most recent Register call's inbox will see the reply,
// and the other is left to time out and retry, an accepted limitation of
// keying replies by source ID alone rather than a per-request token.
type Router struct {
	mu      sync.Mutex
	waiting map[ID]*Inbox
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{waiting: make(map[ID]*Inbox)}
}

func (r *Router) await(id ID, inbox *Inbox) {
	r.mu.Lock()
	r.waiting[id] = inbox
	r.mu.Unlock()
}

// forget removes the mapping for id, but only if it still points at
// inbox. A later Register for the same peer by a different inbox must
// not be clobbered by an earlier registration's cleanup.
func (r *Router) forget(id ID, inbox *Inbox) {
	r.mu.Lock()
	if r.waiting[id] == inbox {
		delete(r.waiting, id)
	}
	r.mu.Unlock()
}

// Route hands sig to the inbox currently waiting on sig.Source.ID, if
// any, and reports whether it was consumed. A false result means the
// signal is unsolicited from the engine's perspective, either a fresh
// query or a reply nobody is registered for any longer, and the
// transport's read loop should hand it to the background responder
// instead.
func (r *Router) Route(sig Signal) bool {
	r.mu.Lock()
	inbox, ok := r.waiting[sig.Source.ID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return inbox.Deliver(sig)
}
