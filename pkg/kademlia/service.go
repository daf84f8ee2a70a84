// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/rahulmutt/kademlia/internal/syncutil"
)

// NodeErr is the class for all errors pertaining to service-level node
// operations (as distinct from the engine, which never raises).
var NodeErr = errs.Class("node error")

// BootstrapErr is the class for all errors pertaining to bootstrapping
// a node onto the network.
var BootstrapErr = errs.Class("bootstrap error")

// ServiceConfig collects the tunables Service needs beyond the fixed
// Alpha/K/MaxRetries constants; these are the ambient knobs a real
// deployment needs.
type ServiceConfig struct {
	ReplyTimeout          time.Duration
	BucketRefreshInterval time.Duration
	BootstrapBackoffBase  time.Duration
	BootstrapBackoffMax   time.Duration
}

// Service wires a routing table, transport, background responder, and
// lookup engine into a runnable node, and exposes Lookup, Store, and
// JoinNetwork as its public surface.
type Service struct {
	log    *zap.Logger
	config ServiceConfig

	self      Node
	routing   *RoutingTable
	router    *Router
	transport *UDPTransport
	responder *NodeResponder
	engine    *Engine
	store     *ValueStore

	bootstrapPeers []Node

	lookups      syncutil.WorkGroup
	bootstrapped syncutil.Fence
	refreshCycle syncutil.Cycle
}

// NewService binds self's UDP socket and returns a ready-to-use Service.
// The caller is responsible for calling Bootstrap (if bootstrapPeers is
// non-empty) and Run.
func NewService(log *zap.Logger, self Node, bootstrapPeers []Node, config ServiceConfig) (*Service, error) {
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = DefaultReplyTimeout
	}

	routing := NewRoutingTable(log.Named("routing"), self)
	store := NewValueStore()
	router := NewRouter()
	responder := NewNodeResponder(log.Named("responder"), routing, store)

	transport, err := NewUDPTransport(log.Named("transport"), self, router, responder)
	if err != nil {
		return nil, NodeErr.Wrap(err)
	}

	engine := NewEngine(log.Named("engine"), routing, transport)

	return &Service{
		log:            log,
		config:         config,
		self:           self,
		routing:        routing,
		router:         router,
		transport:      transport,
		responder:      responder,
		engine:         engine,
		store:          store,
		bootstrapPeers: bootstrapPeers,
	}, nil
}

func (s *Service) newInbox() *Inbox {
	return NewRoutedInbox(s.config.ReplyTimeout, s.router)
}

// Close shuts down the transport and waits for any in-flight lookup to
// finish, refusing new ones in the meantime.
func (s *Service) Close() error {
	s.lookups.Close()
	s.lookups.Wait()
	s.refreshCycle.Stop()
	return s.transport.Close()
}

// Lookup implements the public `LOOKUP(key)` operation.
func (s *Service) Lookup(ctx context.Context, key ID) (value []byte, ok bool) {
	defer mon.Task()(&ctx)(nil)

	if !s.lookups.Start() {
		return nil, false
	}
	defer s.lookups.Done()

	inbox := s.newInbox()
	defer inbox.Close()
	return Lookup(ctx, s.engine, inbox, key)
}

// Store implements the public `STORE(key, value)` operation.
func (s *Service) Store(ctx context.Context, key ID, value []byte) {
	defer mon.Task()(&ctx)(nil)

	if !s.lookups.Start() {
		return
	}
	defer s.lookups.Done()

	inbox := s.newInbox()
	defer inbox.Close()
	Store(ctx, s.engine, inbox, key, value)
}

// JoinNetwork implements the public `JOIN(seed)` operation.
func (s *Service) JoinNetwork(ctx context.Context, seed Node) {
	defer mon.Task()(&ctx)(nil)

	if !s.lookups.Start() {
		return
	}
	defer s.lookups.Done()

	inbox := s.newInbox()
	defer inbox.Close()
	JoinNetwork(ctx, s.engine, inbox, seed)
}

// RoutingSnapshot returns up to n of the peers closest to target
// currently known. Used by the debug RPC surface, never by the engine
// itself (which talks to RoutingView directly).
func (s *Service) RoutingSnapshot(target ID, n int) []Node {
	return s.routing.ClosestKnown(target, n)
}

// Self returns the local node identity.
func (s *Service) Self() Node { return s.self }

// Bootstrap contacts the configured bootstrap peers and joins the
// network, retrying with exponential backoff since a node may start
// before any peer is reachable (grounded on the teacher's
// `Kademlia.Bootstrap`).
func (s *Service) Bootstrap(ctx context.Context) error {
	defer mon.Task()(&ctx)(nil)
	defer s.bootstrapped.Release()

	if !s.lookups.Start() {
		return context.Canceled
	}
	defer s.lookups.Done()

	if len(s.bootstrapPeers) == 0 {
		s.log.Warn("no bootstrap peers configured")
		return nil
	}

	wait := s.config.BootstrapBackoffBase
	if wait <= 0 {
		wait = time.Second
	}
	max := s.config.BootstrapBackoffMax
	if max <= 0 {
		max = time.Minute
	}

	var errGroup errs.Group
	for attempt := 0; wait < max; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		for _, peer := range s.bootstrapPeers {
			s.JoinNetwork(ctx, peer)
		}

		if len(s.routing.ClosestKnown(s.self.ID, 1)) > 0 {
			return nil
		}
		errGroup.Add(BootstrapErr.New("no bootstrap peer reachable on attempt %d", attempt))
	}

	return BootstrapErr.Wrap(errGroup.Err())
}

// WaitForBootstrap blocks until Bootstrap has returned once.
func (s *Service) WaitForBootstrap() {
	s.bootstrapped.Wait()
}

// Run drives periodic bucket refresh until ctx is canceled (grounded on
// the teacher's `Kademlia.Run`/`refresh`/`RefreshBuckets.Cycle`):
// occasionally, a random ID is drawn and looked up so that buckets the
// node would otherwise never touch still see traffic.
func (s *Service) Run(ctx context.Context) error {
	if !s.lookups.Start() {
		return context.Canceled
	}
	defer s.lookups.Done()

	interval := s.config.BucketRefreshInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.refreshCycle.SetInterval(interval)

	return s.refreshCycle.Run(ctx, func(ctx context.Context) error {
		randomID, err := NewRandomID()
		if err != nil {
			s.log.Warn("failed to generate refresh target", zap.Error(err))
			return nil
		}
		s.log.Debug("refreshing routing table", zap.String("target", randomID.String()))
		s.Lookup(ctx, randomID)
		return nil
	})
}
