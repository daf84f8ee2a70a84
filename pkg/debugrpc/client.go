// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package debugrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rahulmutt/kademlia/internal/grpcjson"
)

// Client is a thin wrapper around a grpc.ClientConn that talks the
// hand-registered JSON codec service described by serviceDesc.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a debugrpc server at addr.
func Dial(addr string) (*Client, error) {
	cc, err := grpc.Dial(addr, grpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.cc.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(grpcjson.Name))
}

// DumpRoutingTable calls the DumpRoutingTable RPC.
func (c *Client) DumpRoutingTable(ctx context.Context, req *DumpRoutingTableRequest) (*DumpRoutingTableResponse, error) {
	resp := new(DumpRoutingTableResponse)
	if err := c.invoke(ctx, "/debugrpc.Debug/DumpRoutingTable", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// TriggerLookup calls the TriggerLookup RPC.
func (c *Client) TriggerLookup(ctx context.Context, req *TriggerLookupRequest) (*TriggerLookupResponse, error) {
	resp := new(TriggerLookupResponse)
	if err := c.invoke(ctx, "/debugrpc.Debug/TriggerLookup", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Store calls the Store RPC.
func (c *Client) Store(ctx context.Context, req *StoreRequest) (*StoreResponse, error) {
	resp := new(StoreResponse)
	if err := c.invoke(ctx, "/debugrpc.Debug/Store", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// NodeStatus calls the NodeStatus RPC.
func (c *Client) NodeStatus(ctx context.Context, req *NodeStatusRequest) (*NodeStatusResponse, error) {
	resp := new(NodeStatusResponse)
	if err := c.invoke(ctx, "/debugrpc.Debug/NodeStatus", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
