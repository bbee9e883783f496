// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"time"
)

// connectRetryDelay is how long an outbound slot waits after a failed dial
// before trying a different host.
const connectRetryDelay = 5 * time.Second

// SessionOutbound maintains the configured number of outbound channels, each
// dialed from the host pool.  A stopped channel frees its slot, which
// immediately dials a replacement, so the session self-heals until stopped.
type SessionOutbound struct {
	*Session
	connector *Connector
}

// NewSessionOutbound returns an outbound session owned by the p2p instance.
func NewSessionOutbound(p *P2P) *SessionOutbound {
	return &SessionOutbound{
		Session: NewSession(p, false),
	}
}

// Start begins maintaining outbound connections and invokes handler with the
// start result.  A zero connection cap reports success without dialing.
func (s *SessionOutbound) Start(handler EventHandler) {
	count := s.Settings().OutboundConnections
	if count == 0 {
		log.Info("Not configured for outbound connections.")
		handler(nil)
		return
	}

	if err := s.Session.Start(); err != nil {
		handler(err)
		return
	}

	s.connector = s.NewConnector()

	log.Infof("Maintaining %d outbound connections.", count)
	for i := uint32(0); i < count; i++ {
		go s.newConnection()
	}

	handler(nil)
}

// Stop stops the session and its connector.
func (s *SessionOutbound) Stop() {
	s.Session.Stop()
	if s.connector != nil {
		s.connector.Stop()
	}
}

// newConnection fills one outbound slot: fetch a host, dial it, register and
// attach protocols.  Failures re-enter the loop after a short delay.
func (s *SessionOutbound) newConnection() {
	if s.Stopped() {
		return
	}

	address, err := s.FetchAddress()
	if err != nil {
		log.Debugf("No addresses to connect: %v", err)
		s.retry()
		return
	}

	authority := AuthorityFromNetAddress(address)
	if s.Blacklisted(authority) {
		s.retry()
		return
	}

	s.connector.Connect(authority, func(err error, channel *Channel) {
		s.handleConnect(err, channel, authority)
	})
}

// retry re-enters the connection loop after the retry delay.
func (s *SessionOutbound) retry() {
	time.AfterFunc(connectRetryDelay, s.newConnection)
}

func (s *SessionOutbound) handleConnect(err error, channel *Channel,
	authority Authority) {

	if err != nil {
		log.Debugf("Failure connecting [%v] %v", authority, err)
		s.P2P().HostPool().RemoveAuthority(authority)
		s.retry()
		return
	}

	log.Debugf("Connected to outbound channel [%v]", channel.Authority())

	established := false
	s.RegisterChannel(channel,
		func(err error) {
			if err == nil {
				established = true
			}
			s.handleChannelStarted(err, channel)
		},
		func(err error) {
			// A failed registration already re-enters the loop
			// through its start handler.
			if established {
				s.handleChannelStopped(err, channel)
			}
		})
}

func (s *SessionOutbound) handleChannelStarted(err error, channel *Channel) {
	if err != nil {
		log.Debugf("Outbound channel failed to start [%v] %v",
			channel.Authority(), err)
		s.retry()
		return
	}

	s.attachProtocols(channel)
}

func (s *SessionOutbound) attachProtocols(channel *Channel) {
	NewProtocolPing(channel, s.Settings()).Start()
	NewProtocolAddress(channel, s.Settings(), s.P2P().HostPool()).Start()
}

// handleChannelStopped frees the slot for a replacement connection.
func (s *SessionOutbound) handleChannelStopped(err error, channel *Channel) {
	log.Debugf("Outbound channel stopped [%v] %v", channel.Authority(), err)

	if !s.Stopped() {
		go s.newConnection()
	}
}
