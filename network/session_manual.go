// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"time"
)

// SessionManual maintains channels to manually configured peers, retrying
// each up to the configured attempt limit.  A zero limit retries forever.
type SessionManual struct {
	*Session
	connector *Connector
}

// NewSessionManual returns a manual session owned by the p2p instance.
func NewSessionManual(p *P2P) *SessionManual {
	return &SessionManual{
		Session: NewSession(p, false),
	}
}

// Start dials every configured peer and invokes handler with the start
// result.  No configured peers is success.
func (s *SessionManual) Start(handler EventHandler) {
	if len(s.Settings().Peers) == 0 {
		handler(nil)
		return
	}

	if err := s.Session.Start(); err != nil {
		handler(err)
		return
	}

	s.connector = s.NewConnector()
	for _, peer := range s.Settings().Peers {
		go s.connect(peer, 0)
	}
	handler(nil)
}

// Stop stops the session and its connector.
func (s *SessionManual) Stop() {
	s.Session.Stop()
	if s.connector != nil {
		s.connector.Stop()
	}
}

// connect dials the peer, counting attempts against the configured limit.
func (s *SessionManual) connect(peer Authority, attempts uint32) {
	if s.Stopped() {
		return
	}

	limit := s.Settings().ManualAttemptLimit
	if limit != 0 && attempts >= limit {
		log.Warnf("Abandoning manual peer [%v] after %d attempts.",
			peer, attempts)
		return
	}

	log.Infof("Connecting to manual peer [%v]", peer)

	s.connector.Connect(peer, func(err error, channel *Channel) {
		if err != nil {
			log.Debugf("Failure connecting manual peer [%v] %v",
				peer, err)
			time.AfterFunc(connectRetryDelay, func() {
				s.connect(peer, attempts+1)
			})
			return
		}

		established := false
		s.RegisterChannel(channel,
			func(err error) {
				if err != nil {
					s.connect(peer, attempts+1)
					return
				}
				established = true
				NewProtocolPing(channel, s.Settings()).Start()
				NewProtocolAddress(channel, s.Settings(),
					s.P2P().HostPool()).Start()
			},
			func(error) {
				if !established {
					return
				}
				// Reconnect with a fresh attempt budget once a
				// previously established channel drops.
				time.AfterFunc(connectRetryDelay, func() {
					s.connect(peer, 0)
				})
			})
	})
}
