// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"crypto/rand"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/zeebo/errs"
)

// WireErr is the class for all errors pertaining to datagram encoding.
var WireErr = errs.Class("wire encoding error")

var msgpackHandle codec.MsgpackHandle

// wireNode is the over-the-wire shape of a Node: an (ID, Peer) pair.
type wireNode struct {
	ID      []byte
	Address string
}

// envelope is the single datagram shape every command kind is encoded
// as; unused fields are simply zero. This is deliberately not a
// faithful reproduction of any particular Kademlia wire format; it
// carries only the fields the engine and responder actually need.
type envelope struct {
	MsgID  []byte // random per datagram; not read on receipt (replies are matched by source ID, see Router)
	Kind   CommandKind
	From   wireNode
	Target []byte
	Value  []byte
	Nodes  []wireNode
}

func newMsgID() ([]byte, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, WireErr.Wrap(err)
	}
	return b, nil
}

func encodeEnvelope(env envelope) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &msgpackHandle)
	if err := enc.Encode(env); err != nil {
		return nil, WireErr.Wrap(err)
	}
	return buf, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	dec := codec.NewDecoderBytes(data, &msgpackHandle)
	if err := dec.Decode(&env); err != nil {
		return envelope{}, WireErr.Wrap(err)
	}
	return env, nil
}

func toWireNode(n Node) wireNode {
	id := make([]byte, IDLength)
	copy(id, n.ID[:])
	return wireNode{ID: id, Address: n.Peer.Address}
}

func fromWireNode(w wireNode) (Node, error) {
	if len(w.ID) != IDLength {
		return Node{}, WireErr.New("bad node id length: %d", len(w.ID))
	}
	var id ID
	copy(id[:], w.ID)
	return Node{ID: id, Peer: Peer{Address: w.Address}}, nil
}

func toWireNodes(nodes []Node) []wireNode {
	out := make([]wireNode, len(nodes))
	for i, n := range nodes {
		out[i] = toWireNode(n)
	}
	return out
}

func fromWireNodes(wireNodes []wireNode) ([]Node, error) {
	out := make([]Node, 0, len(wireNodes))
	for _, w := range wireNodes {
		n, err := fromWireNode(w)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func idToBytes(id ID) []byte {
	b := make([]byte, IDLength)
	copy(b, id[:])
	return b
}

func bytesToID(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLength {
		return id, WireErr.New("bad id length: %d", len(b))
	}
	copy(id[:], b)
	return id, nil
}

