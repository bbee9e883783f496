// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"github.com/mvs-org/mvsd/wire"
)

// ProtocolSeed harvests addresses from a seed peer.  It runs a three-step
// completion: our own address is sent (skipped when we don't advertise), a
// getaddr request is acknowledged by the transport, and an inbound addr
// message is stored into the host pool.  The channel is voluntarily dropped
// once the harvest lands, so the final step completes with channel stopped.
type ProtocolSeed struct {
	*Protocol
	settings *Settings
	pool     *HostPool
}

// NewProtocolSeed returns a seed protocol for the channel backed by the host
// pool.
func NewProtocolSeed(channel *Channel, settings *Settings,
	pool *HostPool) *ProtocolSeed {

	return &ProtocolSeed{
		Protocol: newProtocol(channel, "seed"),
		settings: settings,
		pool:     pool,
	}
}

// Start begins the harvest, bounded by the channel germination duration.
// The handler fires once: with a channel stopped error once the harvest has
// been stored (the final step), or with the first error of an earlier step.
func (p *ProtocolSeed) Start(handler EventHandler) {
	if p.settings.HostPoolCapacity == 0 {
		handler(codeError(ErrNotFound))
		return
	}

	complete := func(err error) {
		p.cancelTimer()
		p.handleSeedingComplete(err, handler)
	}

	// Require three events (or any error) before firing complete.
	event := Synchronize(complete, 3, p.Name(), false)
	p.start(p.settings.ChannelGermination, event)

	p.Subscribe(wire.CmdAddr, p.handleReceiveAddress)

	p.sendOwnAddress()
	p.Send(wire.NewMsgGetAddr(), p.handleSendGetAddress)
}

// handleSeedingComplete reports the harvest result and retires the channel.
func (p *ProtocolSeed) handleSeedingComplete(err error, handler EventHandler) {
	handler(err)
	p.Stop(err)
}

// sendOwnAddress pushes our advertised address to the seed, or records the
// step done when we have nothing to advertise.
func (p *ProtocolSeed) sendOwnAddress() {
	if p.settings.Self.Port == 0 {
		// 1 of 3
		p.SetEvent(nil)
		return
	}

	self := wire.NewMsgAddr()
	self.AddAddress(p.settings.Self.NetAddress(p.settings.Services))
	p.Send(self, p.handleSendAddress)
}

func (p *ProtocolSeed) handleSendAddress(err error) {
	if p.Stopped() {
		return
	}

	if err != nil {
		log.Debugf("Failure sending address to seed [%v] %v",
			p.Authority(), err)
		p.SetEvent(err)
		return
	}

	// 1 of 3
	p.SetEvent(nil)
}

func (p *ProtocolSeed) handleSendGetAddress(err error) {
	if p.Stopped() {
		return
	}

	if err != nil {
		log.Debugf("Failure sending get_address to seed [%v] %v",
			p.Authority(), err)
		p.SetEvent(err)
		return
	}

	// 2 of 3
	p.SetEvent(nil)
}

func (p *ProtocolSeed) handleReceiveAddress(msg wire.Message) bool {
	if p.Stopped() {
		return false
	}

	address, ok := msg.(*wire.MsgAddr)
	if !ok {
		return false
	}

	log.Debugf("Storing %d addresses from seed [%v]",
		len(address.AddrList), p.Authority())

	p.pool.StoreAll(address.AddrList, p.handleStoreAddresses)
	return false
}

func (p *ProtocolSeed) handleStoreAddresses(err error) {
	if p.Stopped() {
		return
	}

	if err != nil {
		log.Errorf("Failure storing addresses from seed [%v] %v",
			p.Authority(), err)
		p.SetEvent(err)
		return
	}

	log.Debugf("Stopping completed seed [%v]", p.Authority())

	// 3 of 3
	p.SetEvent(codeError(ErrChannelStopped))
}
