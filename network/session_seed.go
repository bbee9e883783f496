// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

// SessionSeed bootstraps the host pool by contacting each configured seed
// once.  Individual seed failures are suppressed; the session succeeds iff
// the pool grew.
type SessionSeed struct {
	*Session
}

// NewSessionSeed returns a seed session owned by the p2p instance.
func NewSessionSeed(p *P2P) *SessionSeed {
	return &SessionSeed{
		Session: NewSession(p, false),
	}
}

// Start runs the seeding sequence and invokes handler with the final result.
// Seeding is skipped with success when the pool is disabled or already
// populated; an empty seed list with an empty pool is a failure.
func (s *SessionSeed) Start(handler EventHandler) {
	if s.Settings().HostPoolCapacity == 0 {
		log.Info("Not configured to populate an address pool.")
		handler(nil)
		return
	}

	if err := s.Session.Start(); err != nil {
		handler(err)
		return
	}

	startSize := s.AddressCount()
	if startSize != 0 {
		log.Debugf("Seeding is not required because there are %d "+
			"cached addresses.", startSize)
		handler(nil)
		return
	}

	if len(s.Settings().Seeds) == 0 {
		log.Error("Seeding is required but no seeds are configured.")
		handler(codeError(ErrOperationFailed))
		return
	}

	s.startSeeding(startSize, s.NewConnector(), handler)
}

// startSeeding contacts every configured seed.  Each seed completes the
// synchronizer exactly once regardless of outcome; the overall result is
// judged by pool growth alone.
func (s *SessionSeed) startSeeding(startSize int, connector *Connector,
	handler EventHandler) {

	all := func(error) {
		s.handleComplete(startSize, handler)
	}

	// Synchronize each individual seed before judging the result;
	// individual seed errors are suppressed.
	each := Synchronize(all, len(s.Settings().Seeds), "session_seed", true)

	// At most one channel per configured seed is in flight at a time from
	// this session: each seed gets exactly one connect attempt.
	for _, seed := range s.Settings().Seeds {
		s.startSeed(seed, connector, each)
	}
}

// startSeed dials a single seed endpoint.
func (s *SessionSeed) startSeed(seed Authority, connector *Connector,
	handler EventHandler) {

	if s.Stopped() {
		log.Debug("Suspended seed connection")
		handler(codeError(ErrChannelStopped))
		return
	}

	log.Infof("Contacting seed [%v]", seed)

	connector.Connect(seed, func(err error, channel *Channel) {
		s.handleConnect(err, channel, seed, handler)
	})
}

func (s *SessionSeed) handleConnect(err error, channel *Channel,
	seed Authority, handler EventHandler) {

	if err != nil {
		log.Infof("Failure contacting seed [%v] %v", seed, err)
		handler(err)
		return
	}

	if s.Blacklisted(channel.Authority()) {
		log.Debugf("Seed [%v] on blacklisted address [%v]", seed,
			channel.Authority())
		channel.Stop(codeError(ErrAddressBlocked))
		handler(codeError(ErrAddressBlocked))
		return
	}

	log.Infof("Connected seed [%v] as %v", seed, channel.Authority())

	s.RegisterChannel(channel,
		func(err error) {
			s.handleChannelStarted(err, channel, handler)
		},
		func(err error) {
			log.Infof("Seed channel stopped: %v", err)
		})
}

func (s *SessionSeed) handleChannelStarted(err error, channel *Channel,
	handler EventHandler) {

	if err != nil {
		handler(err)
		return
	}

	s.attachProtocols(channel, handler)
}

func (s *SessionSeed) attachProtocols(channel *Channel, handler EventHandler) {
	NewProtocolPing(channel, s.Settings()).Start()
	NewProtocolSeed(channel, s.Settings(), s.P2P().HostPool()).Start(handler)
}

// handleComplete judges the seeding run by pool growth; it accepts no error
// because individual seed errors are suppressed.
func (s *SessionSeed) handleComplete(startSize int, handler EventHandler) {
	currentSize := s.AddressCount()

	log.Infof("Seeding complete with %d addresses.", currentSize)

	// We succeed only if there was a host count increase.
	if currentSize > startSize {
		handler(nil)
		return
	}
	handler(codeError(ErrOperationFailed))
}
