// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package debugrpc

import (
	"context"

	"google.golang.org/grpc"

	// Registers the "json" content-subtype codec this service uses in
	// place of protobuf.
	_ "github.com/rahulmutt/kademlia/internal/grpcjson"
)

// Backend is the subset of Service's behavior the debug surface needs.
// The CLI's serviceBackend adapter (cmd/kademlia/cmd/adapter.go) wraps
// a kademlia.Service to satisfy it; tests can supply a fake.
type Backend interface {
	RoutingSnapshot(target Identifier, limit int) []PeerView
	Lookup(ctx context.Context, key Identifier) (value []byte, ok bool)
	Store(ctx context.Context, key Identifier, value []byte)
	Self() PeerView
	KnownPeerCount() int
}

// Identifier is the wire-agnostic key type Backend methods take; the
// adapter in cmd/kademlia/cmd/adapter.go converts between this and
// kademlia.ID so this
// package does not need to import pkg/kademlia's internal ID encoding
// directly into its public contract.
type Identifier interface {
	String() string
}

// PeerView is the minimal peer shape debugrpc needs from a Backend.
type PeerView struct {
	ID      string
	Address string
}

// Server implements the hand-registered grpc service described by
// serviceDesc.
type Server struct {
	backend Backend
	parse   func(hex string) (Identifier, error)
}

// NewServer returns a Server backed by backend. parse converts a
// hex-encoded identifier string (as received over the wire) back into
// whatever concrete Identifier type backend expects.
func NewServer(backend Backend, parse func(hex string) (Identifier, error)) *Server {
	return &Server{backend: backend, parse: parse}
}

// Register attaches the debug service to an existing grpc.Server.
func Register(s *grpc.Server, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}

func (s *Server) dumpRoutingTable(ctx context.Context, req *DumpRoutingTableRequest) (*DumpRoutingTableResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	target := s.backend.Self().ID
	if req.Target != "" {
		target = req.Target
	}
	id, err := s.parse(target)
	if err != nil {
		return nil, err
	}

	peers := s.backend.RoutingSnapshot(id, limit)
	out := make([]NodeInfo, len(peers))
	for i, p := range peers {
		out[i] = NodeInfo{ID: p.ID, Address: p.Address}
	}
	return &DumpRoutingTableResponse{Nodes: out}, nil
}

func (s *Server) triggerLookup(ctx context.Context, req *TriggerLookupRequest) (*TriggerLookupResponse, error) {
	id, err := s.parse(req.Key)
	if err != nil {
		return nil, err
	}
	value, ok := s.backend.Lookup(ctx, id)
	return &TriggerLookupResponse{Found: ok, Value: value}, nil
}

func (s *Server) store(ctx context.Context, req *StoreRequest) (*StoreResponse, error) {
	id, err := s.parse(req.Key)
	if err != nil {
		return nil, err
	}
	s.backend.Store(ctx, id, req.Value)
	return &StoreResponse{}, nil
}

func (s *Server) nodeStatus(ctx context.Context, req *NodeStatusRequest) (*NodeStatusResponse, error) {
	self := s.backend.Self()
	return &NodeStatusResponse{
		SelfID:      self.ID,
		SelfAddress: self.Address,
		KnownPeers:  s.backend.KnownPeerCount(),
	}, nil
}

// The handlers below adapt grpc's decode-then-call convention to the
// typed methods above; this, together with serviceDesc, is what a
// protoc-generated _grpc.pb.go would normally provide.

func dumpRoutingTableHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(DumpRoutingTableRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.dumpRoutingTable(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/debugrpc.Debug/DumpRoutingTable"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.dumpRoutingTable(ctx, req.(*DumpRoutingTableRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func triggerLookupHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(TriggerLookupRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.triggerLookup(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/debugrpc.Debug/TriggerLookup"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.triggerLookup(ctx, req.(*TriggerLookupRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func storeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(StoreRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.store(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/debugrpc.Debug/Store"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.store(ctx, req.(*StoreRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func nodeStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(NodeStatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.nodeStatus(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/debugrpc.Debug/NodeStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.nodeStatus(ctx, req.(*NodeStatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "debugrpc.Debug",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DumpRoutingTable", Handler: dumpRoutingTableHandler},
		{MethodName: "TriggerLookup", Handler: triggerLookupHandler},
		{MethodName: "Store", Handler: storeHandler},
		{MethodName: "NodeStatus", Handler: nodeStatusHandler},
	},
	Streams: []grpc.StreamDesc{},
}
