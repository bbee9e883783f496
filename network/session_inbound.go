// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"sync"
)

// SessionInbound accepts inbound channels up to the configured cap and keeps
// them alive with ping and address gossip.
type SessionInbound struct {
	*Session
	acceptor *Acceptor

	mtx  sync.Mutex
	live uint32
}

// NewSessionInbound returns an inbound session owned by the p2p instance.
func NewSessionInbound(p *P2P) *SessionInbound {
	return &SessionInbound{
		Session: NewSession(p, true),
	}
}

// Start binds the listener and begins accepting.  A zero connection cap
// reports success without listening.
func (s *SessionInbound) Start(handler EventHandler) {
	if s.Settings().InboundConnections == 0 {
		log.Info("Not configured for inbound connections.")
		handler(nil)
		return
	}

	if err := s.Session.Start(); err != nil {
		handler(err)
		return
	}

	s.acceptor = s.NewAcceptor()
	if err := s.acceptor.Listen(s.Settings().Self.Port); err != nil {
		handler(err)
		return
	}

	log.Infof("Accepting up to %d inbound connections on port %d.",
		s.Settings().InboundConnections, s.Settings().Self.Port)

	go s.acceptor.Accept(s.handleAccept)
	handler(nil)
}

// Stop stops the session and closes the listener.
func (s *SessionInbound) Stop() {
	s.Session.Stop()
	if s.acceptor != nil {
		s.acceptor.Stop()
	}
}

func (s *SessionInbound) handleAccept(err error, channel *Channel) {
	if err != nil {
		if !s.Stopped() {
			log.Errorf("Accept terminated: %v", err)
		}
		return
	}

	if s.Stopped() {
		channel.Stop(codeError(ErrServiceStopped))
		return
	}

	s.mtx.Lock()
	if s.live >= s.Settings().InboundConnections {
		s.mtx.Unlock()
		log.Debugf("Dropping inbound channel [%v]: connection limit",
			channel.Authority())
		channel.Stop(codeError(ErrAcceptFailed))
		return
	}
	s.live++
	s.mtx.Unlock()

	s.RegisterChannel(channel,
		func(err error) {
			s.handleChannelStarted(err, channel)
		},
		func(err error) {
			s.handleChannelStopped(err, channel)
		})
}

func (s *SessionInbound) handleChannelStarted(err error, channel *Channel) {
	if err != nil {
		log.Debugf("Inbound channel failed to start [%v] %v",
			channel.Authority(), err)
		return
	}

	log.Debugf("Accepted inbound channel [%v]", channel.Authority())

	NewProtocolPing(channel, s.Settings()).Start()
	NewProtocolAddress(channel, s.Settings(), s.P2P().HostPool()).Start()
}

func (s *SessionInbound) handleChannelStopped(err error, channel *Channel) {
	log.Debugf("Inbound channel stopped [%v] %v", channel.Authority(), err)

	s.mtx.Lock()
	if s.live > 0 {
		s.live--
	}
	s.mtx.Unlock()
}
