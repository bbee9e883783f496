// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"sync"
	"sync/atomic"

	"github.com/mvs-org/mvsd/wire"
)

// HandshakeFunc attaches a handshake protocol to the channel and invokes
// done with its result.  Sessions which want no services negotiation
// override the default version handshake with a quiet variant.
type HandshakeFunc func(channel *Channel, done func(error))

// Session maintains the lifetime of a set of channels sharing a purpose.  It
// owns channel registration: configuration injection, the pending-nonce
// filter rejecting duplicates and self-connections, handshake attachment,
// and stop fan-in.  Concrete sessions embed it.
type Session struct {
	p2p      *P2P
	settings *Settings
	incoming bool
	started  int32
	stopped  int32

	// Handshake overrides the handshake protocol attached during channel
	// registration.  Nil selects the standard version protocol.
	Handshake HandshakeFunc
}

// NewSession returns a session owned by the p2p instance.
func NewSession(p *P2P, incoming bool) *Session {
	return &Session{
		p2p:      p,
		settings: p.Settings(),
		incoming: incoming,
	}
}

// Start transitions the session to started.  Starting twice fails.
func (s *Session) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return codeError(ErrOperationFailed)
	}
	return nil
}

// Stop latches the session stopped.  The session's channels are stopped by
// the owning p2p instance, which tracks them.
func (s *Session) Stop() {
	atomic.StoreInt32(&s.stopped, 1)
}

// Stopped returns whether the session has been stopped, directly or through
// its owner.
func (s *Session) Stopped() bool {
	return atomic.LoadInt32(&s.stopped) != 0 || s.p2p.Stopped()
}

// Settings returns the session configuration.
func (s *Session) Settings() *Settings {
	return s.settings
}

// P2P returns the owning p2p instance.
func (s *Session) P2P() *P2P {
	return s.p2p
}

// NewConnector returns a connector which honors the owner's ban list.
func (s *Session) NewConnector() *Connector {
	return NewConnector(s.settings, s.p2p.BanList())
}

// NewAcceptor returns an acceptor which honors the owner's ban list.
func (s *Session) NewAcceptor() *Acceptor {
	return NewAcceptor(s.settings, s.p2p.BanList())
}

// AddressCount returns the current host pool size.
func (s *Session) AddressCount() int {
	return s.p2p.HostPool().Count()
}

// FetchAddress returns a candidate address from the host pool.
func (s *Session) FetchAddress() (*wire.NetAddress, error) {
	return s.p2p.HostPool().FetchOne()
}

// Blacklisted returns whether the authority must not be contacted.
func (s *Session) Blacklisted(authority Authority) bool {
	return s.p2p.BanList().Blocked(authority)
}

// RegisterChannel runs the channel registration sequence:
//
//  1. start the channel under the session's configuration
//  2. reserve the channel's nonce in the pending set
//  3. attach the handshake protocol and await its completion
//  4. reject self-connections whose version nonce collides with a
//     pending nonce of our own
//  5. release the pending reservation and report started
//
// Any step's failure short-circuits: the channel is stopped with that code,
// onStarted observes it, and onStopped fires subsequently.  onStopped always
// fires exactly once, when the channel stops for any reason.
func (s *Session) RegisterChannel(channel *Channel, onStarted EventHandler,
	onStopped StopHandler) {

	// onStarted observes exactly one result, and always before onStopped:
	// a channel dying mid-registration reports the cause through both, in
	// that order.
	var once sync.Once
	started := func(err error) {
		once.Do(func() {
			onStarted(err)
		})
	}

	channel.SubscribeStop(func(err error) {
		s.p2p.unpend(channel.Nonce())
		s.p2p.removeChannel(channel)
		started(err)
		onStopped(err)
	})

	if s.Stopped() {
		channel.Stop(codeError(ErrOperationCanceled))
		started(codeError(ErrOperationCanceled))
		return
	}

	s.handleChannelStart(channel, started)
}

// handleChannelStart injects the session's configuration and starts the
// channel machinery.
func (s *Session) handleChannelStart(channel *Channel, onStarted EventHandler) {
	channel.SetOnBan(s.p2p.BanList().Ban)
	s.handlePend(channel, onStarted)
}

// handlePend reserves the channel's nonce in the pending set.
func (s *Session) handlePend(channel *Channel, onStarted EventHandler) {
	if !s.p2p.pend(channel.Nonce()) {
		err := makeError(ErrAcceptFailed, "duplicate channel nonce")
		channel.Stop(err)
		onStarted(err)
		return
	}

	s.handleHandshake(channel, onStarted)
}

// handleHandshake attaches the handshake protocol and begins receiving.
func (s *Session) handleHandshake(channel *Channel, onStarted EventHandler) {
	handshake := s.Handshake
	if handshake == nil {
		handshake = func(ch *Channel, done func(error)) {
			NewProtocolVersion(ch, s.settings,
				s.p2p.Height).Start(done)
		}
	}

	handshake(channel, func(err error) {
		s.handleIsPending(err, channel, onStarted)
	})

	// The handshake protocol has its subscriptions in place; let the peer
	// talk.
	channel.BeginReceiving()
}

// handleIsPending rejects self-connections: the peer's version nonce
// colliding with one of our outstanding channel nonces means we dialed
// ourselves.
func (s *Session) handleIsPending(err error, channel *Channel,
	onStarted EventHandler) {

	if err != nil {
		channel.Stop(err)
		onStarted(err)
		return
	}

	version := channel.PeerVersion()
	if version == nil {
		err := makeError(ErrAcceptFailed, "handshake without version")
		channel.Stop(err)
		onStarted(err)
		return
	}

	if s.p2p.isPending(version.Nonce) {
		log.Debugf("Rejecting self connection [%v]",
			channel.Authority())
		err := codeError(ErrAcceptFailed)
		channel.Stop(err)
		onStarted(err)
		return
	}

	s.handleStart(channel, onStarted)
}

// handleStart releases the pending reservation, records the channel live,
// and reports success.
func (s *Session) handleStart(channel *Channel, onStarted EventHandler) {
	s.p2p.unpend(channel.Nonce())
	s.p2p.addChannel(channel)
	onStarted(nil)
}
