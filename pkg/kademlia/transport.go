// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"net"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// TransportErr is the class for all errors pertaining to the UDP
// transport.
var TransportErr = errs.Class("transport error")

// Responder answers inbound signals the Router could not match to a
// waiting Inbox: fresh queries from other nodes, as opposed to replies
// to our own.
type Responder interface {
	Respond(sig Signal, reply func(Command) error)
}

// UDPTransport is the datagram implementation of the Transport contract
// the engine depends on. Send is fire-and-forget, and the read loop it
// runs demultiplexes every inbound datagram to either a waiting Inbox
// (via Router) or the Responder, mirroring the real network's
// non-blocking, lossy, unordered delivery. Nothing here retries or
// acknowledges at the transport layer; that is the engine's job.
type UDPTransport struct {
	log    *zap.Logger
	conn   *net.UDPConn
	self   Node
	router *Router
	resp   Responder

	done chan struct{}
}

// NewUDPTransport binds a UDP socket at self.Peer.Address and starts the
// read loop. Close shuts the socket and stops the loop.
func NewUDPTransport(log *zap.Logger, self Node, router *Router, resp Responder) (*UDPTransport, error) {
	addr, err := self.Peer.ResolveUDPAddr()
	if err != nil {
		return nil, TransportErr.Wrap(err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, TransportErr.Wrap(err)
	}
	t := &UDPTransport{
		log:    log,
		conn:   conn,
		self:   self,
		router: router,
		resp:   resp,
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Send implements Transport: it encodes cmd and writes it as a single
// UDP datagram to peer's address, never blocking on a reply.
func (t *UDPTransport) Send(peer Peer, cmd Command) error {
	addr, err := peer.ResolveUDPAddr()
	if err != nil {
		return TransportErr.Wrap(err)
	}
	env, err := t.envelopeFor(cmd)
	if err != nil {
		return err
	}
	data, err := encodeEnvelope(env)
	if err != nil {
		return err
	}
	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		return TransportErr.Wrap(err)
	}
	return nil
}

func (t *UDPTransport) envelopeFor(cmd Command) (envelope, error) {
	msgID, err := newMsgID()
	if err != nil {
		return envelope{}, err
	}
	// The wire envelope carries a single Value slot; STORE populates it
	// from cmd.Value and RETURN_VALUE from cmd.FoundValue, and decode on
	// the receiving end fans it back out into both Command fields.
	value := cmd.Value
	if value == nil {
		value = cmd.FoundValue
	}
	return envelope{
		MsgID:  msgID,
		Kind:   cmd.Kind,
		From:   toWireNode(t.self),
		Target: idToBytes(cmd.Target),
		Value:  value,
		Nodes:  toWireNodes(cmd.Nodes),
	}, nil
}

// Close shuts down the socket; the read loop observes the resulting
// error and exits.
func (t *UDPTransport) Close() error {
	err := t.conn.Close()
	<-t.done
	if err != nil {
		return TransportErr.Wrap(err)
	}
	return nil
}

func (t *UDPTransport) readLoop() {
	defer close(t.done)
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			// Socket closed: this is the normal shutdown path, not an
			// operational failure worth logging.
			return
		}
		sig, err := t.decode(buf[:n], addr)
		if err != nil {
			t.log.Debug("dropping unparseable datagram",
				zap.String("from", addr.String()), zap.Error(err))
			continue
		}
		if t.router.Route(sig) {
			continue
		}
		if t.resp != nil {
			t.resp.Respond(sig, func(reply Command) error {
				return t.Send(sig.Source.Peer, reply)
			})
		}
	}
}

func (t *UDPTransport) decode(data []byte, addr *net.UDPAddr) (Signal, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return Signal{}, err
	}
	from, err := fromWireNode(env.From)
	if err != nil {
		return Signal{}, err
	}
	// The source address the datagram actually arrived from is more
	// trustworthy than the From field the sender claims, so replies go
	// to where the packet came from rather than a potentially stale or
	// spoofed advertised address.
	from.Peer = Peer{Address: addr.String()}

	var target ID
	if len(env.Target) > 0 {
		target, err = bytesToID(env.Target)
		if err != nil {
			return Signal{}, err
		}
	}
	nodes, err := fromWireNodes(env.Nodes)
	if err != nil {
		return Signal{}, err
	}

	return Signal{
		Source: from,
		Command: Command{
			Kind:       env.Kind,
			Target:     target,
			Value:      env.Value,
			Nodes:      nodes,
			FoundValue: env.Value,
		},
	}, nil
}
