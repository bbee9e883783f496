// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"math"

	"github.com/mvs-org/mvsd/wire"
)

// ProtocolVersion drives the version handshake on a channel.  It sends our
// version, expects the peer's version and a verack, and completes once both
// have been observed or fails with the first error.  The whole exchange is
// bounded by the channel handshake duration.
type ProtocolVersion struct {
	*Protocol
	settings *Settings
	height   func() uint64

	// quiet suppresses service advertisement, used by sync sessions which
	// want no services negotiation.
	quiet bool
}

// NewProtocolVersion returns a version protocol for the channel.  The height
// callback supplies the chain height advertised in our version message.
func NewProtocolVersion(channel *Channel, settings *Settings,
	height func() uint64) *ProtocolVersion {

	return &ProtocolVersion{
		Protocol: newProtocol(channel, "version"),
		settings: settings,
		height:   height,
	}
}

// NewProtocolVersionQuiet returns a version protocol which advertises no
// services and asks for no transaction relay.  Block-sync sessions use it so
// the peer treats the channel as a pure download pipe.
func NewProtocolVersionQuiet(channel *Channel, settings *Settings,
	height func() uint64) *ProtocolVersion {

	p := NewProtocolVersion(channel, settings, height)
	p.quiet = true
	return p
}

// versionFactory builds our version message for the channel.
func (p *ProtocolVersion) versionFactory() *wire.MsgVersion {
	height := p.height()
	if height > math.MaxUint32 {
		panic("time to upgrade the protocol")
	}

	theirs := p.Authority().NetAddress(wire.SFNodeNetwork)
	ours := p.settings.Self.NetAddress(p.settings.Services)

	msg := wire.NewMsgVersion(ours, theirs, p.Nonce(), int32(height))
	msg.ProtocolVersion = int32(p.settings.Protocol)
	msg.Services = p.settings.Services
	msg.UserAgent = p.settings.UserAgent
	msg.DisableRelayTx = !p.settings.RelayTransactions

	if p.quiet {
		msg.Services = 0
		msg.DisableRelayTx = true
	}
	return msg
}

// Start begins the handshake.  The handler is invoked exactly once: with nil
// after both the peer version and its verack have been observed, or with the
// first error (including a handshake timeout).
func (p *ProtocolVersion) Start(handler EventHandler) {
	complete := func(err error) {
		p.cancelTimer()
		handler(err)
	}

	// The handler is invoked in the context of the last message receipt.
	event := Synchronize(complete, 2, p.Name(), false)
	p.start(p.settings.ChannelHandshake, event)

	p.Subscribe(wire.CmdVersion, p.handleReceiveVersion)
	p.Subscribe(wire.CmdVerAck, p.handleReceiveVerAck)

	p.Send(p.versionFactory(), p.handleVersionSent)
}

func (p *ProtocolVersion) handleReceiveVersion(msg wire.Message) bool {
	if p.Stopped() {
		return false
	}

	version, ok := msg.(*wire.MsgVersion)
	if !ok {
		return false
	}

	// The wire encodes start height as a signed 32-bit value; a negative
	// height means the peer advertised a height at or past 2^31.
	if version.LastBlock < 0 {
		log.Debugf("Peer [%v] advertised invalid height %d",
			p.Authority(), version.LastBlock)
		p.SetEvent(makeError(ErrBadStream, "invalid start height"))
		return false
	}

	log.Debugf("Peer [%v] version (%v) services (%v) %s",
		p.Authority(), version.ProtocolVersion, version.Services,
		version.UserAgent)

	p.SetPeerVersion(version)
	p.Send(wire.NewMsgVerAck(), p.handleVerAckSent)

	// 1 of 2
	p.SetEvent(nil)
	return false
}

func (p *ProtocolVersion) handleReceiveVerAck(msg wire.Message) bool {
	if p.Stopped() {
		return false
	}

	// 2 of 2
	p.SetEvent(nil)
	return false
}

func (p *ProtocolVersion) handleVersionSent(err error) {
	if p.Stopped() {
		return
	}

	if err != nil {
		log.Debugf("Failure sending version to [%v] %v",
			p.Authority(), err)
		p.SetEvent(err)
	}
}

func (p *ProtocolVersion) handleVerAckSent(err error) {
	if p.Stopped() {
		return
	}

	if err != nil {
		log.Debugf("Failure sending verack to [%v] %v",
			p.Authority(), err)
		p.SetEvent(err)
	}
}
