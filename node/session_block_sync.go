// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"sync"
	"time"

	"github.com/mvs-org/mvsd/network"
)

// SessionBlockSync orchestrates the parallel block download: one channel per
// reservation slot, failed slots restarted on fresh peers, stolen slots
// retired silently, and a periodic regulator pruning laggards.  The session
// completes when every slot has drained.
type SessionBlockSync struct {
	*network.Session
	settings     *Settings
	reservations *Reservations

	mtx               sync.Mutex
	reservationsCount int
	timer             *time.Timer
}

// NewSessionBlockSync returns a block-sync session which drains the header
// queue into the chain through the reservation table.
func NewSessionBlockSync(p *network.P2P, queue *HeaderQueue,
	chain BlockChain, settings *Settings) *SessionBlockSync {

	s := &SessionBlockSync{
		Session:      network.NewSession(p, false),
		settings:     settings,
		reservations: NewReservations(queue, chain, settings),
	}

	// Sync channels negotiate quietly: no services, no relay.
	s.Handshake = func(channel *network.Channel, done func(error)) {
		network.NewProtocolVersionQuiet(channel, s.Settings(),
			p.Height).Start(done)
	}
	return s
}

// Reservations exposes the underlying table, primarily for inspection.
func (s *SessionBlockSync) Reservations() *Reservations {
	return s.reservations
}

// Start begins the download and invokes handler once with the final result.
// An empty table is immediate success.
func (s *SessionBlockSync) Start(handler network.EventHandler) {
	if err := s.Session.Start(); err != nil {
		handler(err)
		return
	}

	table := s.reservations.Table()
	if len(table) == 0 {
		handler(nil)
		return
	}

	log.Infof("Getting blocks on %d slots.", len(table))

	connector := s.NewConnector()

	s.mtx.Lock()
	s.reservationsCount = len(table)
	s.mtx.Unlock()

	complete := network.Synchronize(handler, len(table),
		"session_block_sync", false)
	for _, row := range table {
		s.newConnection(connector, row, complete)
	}

	s.resetTimer(connector)
}

// Stop stops the session and its regulator.
func (s *SessionBlockSync) Stop() {
	s.Session.Stop()

	s.mtx.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mtx.Unlock()
}

// newConnection dials a fresh peer for the slot.
func (s *SessionBlockSync) newConnection(connector *network.Connector,
	row *Reservation, handler network.EventHandler) {

	if s.Stopped() {
		log.Debugf("Suspending slot (%d).", row.Slot())
		return
	}

	log.Debugf("Starting slot (%d).", row.Slot())

	address, err := s.FetchAddress()
	if err != nil {
		// An empty pool heals through address gossip on other
		// sessions; just retry the slot shortly.
		log.Debugf("No address for slot (%d): %v", row.Slot(), err)
		time.AfterFunc(time.Second, func() {
			s.newConnection(connector, row, handler)
		})
		return
	}

	authority := network.AuthorityFromNetAddress(address)
	connector.Connect(authority, func(err error, channel *network.Channel) {
		s.handleConnect(err, channel, connector, row, handler)
	})
}

func (s *SessionBlockSync) handleConnect(err error,
	channel *network.Channel, connector *network.Connector,
	row *Reservation, handler network.EventHandler) {

	if err != nil {
		log.Debugf("Failure connecting slot (%d) %v", row.Slot(), err)
		if network.IsCode(err, network.ErrNotSatisfied) {
			s.handleComplete(err, channel, connector, row, handler)
			return
		}
		s.newConnection(connector, row, handler)
		return
	}

	log.Debugf("Connected slot (%d) [%v]", row.Slot(),
		channel.Authority())

	s.RegisterChannel(channel,
		func(err error) {
			s.handleChannelStart(err, channel, connector, row,
				handler)
		},
		func(err error) {
			log.Debugf("Channel stopped on slot (%d) %v",
				row.Slot(), err)
		})
}

func (s *SessionBlockSync) handleChannelStart(err error,
	channel *network.Channel, connector *network.Connector,
	row *Reservation, handler network.EventHandler) {

	// Treat a start failure just like a completion failure.
	if err != nil {
		s.handleComplete(err, channel, connector, row, handler)
		return
	}

	s.attachProtocols(channel, connector, row, handler)
}

func (s *SessionBlockSync) attachProtocols(channel *network.Channel,
	connector *network.Connector, row *Reservation,
	handler network.EventHandler) {

	network.NewProtocolPing(channel, s.Settings()).Start()
	network.NewProtocolAddress(channel, s.Settings(),
		s.P2P().HostPool()).Start()

	NewProtocolBlockSync(channel, s.settings, row).Start(func(err error) {
		s.handleComplete(err, channel, connector, row, handler)
	})
}

// handleComplete resolves one slot attempt.  Success removes the slot and
// counts toward session completion; a stolen slot is retired silently unless
// it is the last one; everything else retries the slot on a fresh peer.
func (s *SessionBlockSync) handleComplete(err error,
	channel *network.Channel, connector *network.Connector,
	row *Reservation, handler network.EventHandler) {

	if channel != nil {
		channel.Stop(network.CodeError(network.ErrChannelStopped))
	}

	if err == nil {
		s.mtx.Lock()
		s.reservationsCount--
		remaining := s.reservationsCount
		if remaining == 0 && s.timer != nil {
			s.timer.Stop()
		}
		s.mtx.Unlock()

		s.reservations.Remove(row)
		log.Debugf("Completed slot (%d), %d remaining.", row.Slot(),
			remaining)
		handler(nil)
		return
	}

	if network.IsCode(err, network.ErrNotSatisfied) {
		s.mtx.Lock()
		last := s.reservationsCount == 1
		if !last {
			s.reservationsCount--
		}
		s.mtx.Unlock()

		if !last {
			s.reservations.Remove(row)
			handler(nil)
			return
		}
		// The last slot owns whatever work remains; run it again.
	}

	if s.Stopped() {
		handler(network.CodeError(network.ErrOperationCanceled))
		return
	}

	// There is no failure scenario short of shutdown; the slot retries on
	// a fresh peer.  An emptied slot is refilled from the table first.
	if row.Empty() {
		if !s.reservations.Populate(row) && row.Empty() {
			// Nothing left anywhere for this slot.
			s.handleComplete(nil, nil, connector, row, handler)
			return
		}
	}

	s.newConnection(connector, row, handler)
}

// resetTimer arms the regulator.
func (s *SessionBlockSync) resetTimer(connector *network.Connector) {
	if s.Stopped() {
		return
	}

	s.mtx.Lock()
	s.timer = time.AfterFunc(s.settings.RegulatorInterval, func() {
		s.handleTimer(connector)
	})
	s.mtx.Unlock()
}

// handleTimer runs one regulator tick: lagging slots are pruned so their
// channels retire not-satisfied and their work continues on faster peers.
func (s *SessionBlockSync) handleTimer(connector *network.Connector) {
	if s.Stopped() {
		return
	}

	log.Tracef("Fired block sync regulator.")

	if pruned := s.reservations.Prune(); pruned != nil {
		log.Debugf("Regulator pruned slot (%d).", pruned.Slot())
	}

	s.resetTimer(connector)
}
