// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"github.com/mvs-org/mvsd/wire"
)

// maxAddressesToSend caps how many pool entries are shared in response to a
// getaddr request.
const maxAddressesToSend = 1000

// ProtocolAddress gossips peer addresses.  On start it requests the peer's
// known addresses once; inbound addresses flow into the host pool and
// inbound getaddr requests are answered from a pool snapshot.
type ProtocolAddress struct {
	*Protocol
	settings *Settings
	pool     *HostPool
}

// NewProtocolAddress returns an address protocol for the channel backed by
// the host pool.
func NewProtocolAddress(channel *Channel, settings *Settings,
	pool *HostPool) *ProtocolAddress {

	return &ProtocolAddress{
		Protocol: newProtocol(channel, "address"),
		settings: settings,
		pool:     pool,
	}
}

// Start begins address gossip.  The protocol runs for the life of the
// channel and has no completion handler.
func (p *ProtocolAddress) Start() {
	p.Subscribe(wire.CmdAddr, p.handleReceiveAddress)
	p.Subscribe(wire.CmdGetAddr, p.handleReceiveGetAddress)

	// Advertise ourselves when configured to, then ask once for theirs.
	if p.settings.Self.Port != 0 {
		self := wire.NewMsgAddr()
		self.AddAddress(p.settings.Self.NetAddress(p.settings.Services))
		p.Send(self, nil)
	}
	p.Send(wire.NewMsgGetAddr(), nil)
}

func (p *ProtocolAddress) handleReceiveAddress(msg wire.Message) bool {
	if p.Stopped() {
		return false
	}

	address, ok := msg.(*wire.MsgAddr)
	if !ok {
		return false
	}

	log.Tracef("Storing %d addresses from [%v]", len(address.AddrList),
		p.Authority())

	for _, na := range address.AddrList {
		p.pool.Store(na)
	}
	return true
}

func (p *ProtocolAddress) handleReceiveGetAddress(msg wire.Message) bool {
	if p.Stopped() {
		return false
	}

	snapshot := p.pool.Snapshot()
	if len(snapshot) == 0 {
		return true
	}
	if len(snapshot) > maxAddressesToSend {
		snapshot = snapshot[:maxAddressesToSend]
	}

	reply := wire.NewMsgAddr()
	if err := reply.AddAddresses(snapshot...); err != nil {
		log.Errorf("Failed to assemble addr reply for [%v]: %v",
			p.Authority(), err)
		return true
	}

	p.Send(reply, nil)

	// One snapshot per channel is plenty.
	return false
}
