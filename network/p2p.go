// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/decred/dcrd/lru"
	"github.com/mvs-org/mvsd/wire"
)

// pendingNonceLimit bounds the pending-nonce filter.  Registration windows
// are short, so the limit only matters under pathological churn.
const pendingNonceLimit = 1000

// P2P is the top-level owner of the networking core.  It owns the host pool,
// the ban list, the pending-nonce filter shared by every session, and the
// sessions themselves.  Sessions own their channels; P2P tracks live
// channels so stopping the instance stops everything beneath it.
type P2P struct {
	settings *Settings
	hostPool *HostPool
	banlist  *BanList
	pending  lru.Cache

	// Height supplies the current chain height for version handshakes.
	// It is replaceable before Start.
	Height func() uint64

	mtx      sync.Mutex
	channels map[*Channel]struct{}
	stopped  bool

	seed     *SessionSeed
	outbound *SessionOutbound
	inbound  *SessionInbound
	manual   *SessionManual
}

// NewP2P returns a p2p instance for the settings.
func NewP2P(settings *Settings) *P2P {
	return &P2P{
		settings: settings,
		hostPool: NewHostPool(settings.HostPoolCapacity,
			time.Now().UnixNano()),
		banlist:  NewBanList(settings.Blacklist),
		pending:  lru.NewCache(pendingNonceLimit),
		Height:   func() uint64 { return 0 },
		channels: make(map[*Channel]struct{}),
	}
}

// Settings returns the configuration the instance runs under.
func (p *P2P) Settings() *Settings {
	return p.settings
}

// HostPool returns the pool of known peer addresses.
func (p *P2P) HostPool() *HostPool {
	return p.hostPool
}

// BanList returns the ban list.
func (p *P2P) BanList() *BanList {
	return p.banlist
}

// Stopped returns whether Stop has been called.
func (p *P2P) Stopped() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.stopped
}

// pend reserves a channel nonce, failing on duplicates.
func (p *P2P) pend(nonce uint64) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.pending.Contains(nonce) {
		return false
	}
	p.pending.Add(nonce)
	return true
}

// unpend releases a channel nonce reservation.
func (p *P2P) unpend(nonce uint64) {
	p.mtx.Lock()
	p.pending.Delete(nonce)
	p.mtx.Unlock()
}

// isPending reports whether the nonce has an outstanding reservation.
func (p *P2P) isPending(nonce uint64) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.pending.Contains(nonce)
}

// addChannel records a registered channel as live.
func (p *P2P) addChannel(channel *Channel) {
	p.mtx.Lock()
	p.channels[channel] = struct{}{}
	p.mtx.Unlock()
}

// removeChannel drops a stopped channel from the live set.
func (p *P2P) removeChannel(channel *Channel) {
	p.mtx.Lock()
	delete(p.channels, channel)
	p.mtx.Unlock()
}

// ConnectionCount returns the number of live registered channels.
func (p *P2P) ConnectionCount() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.channels)
}

// Start brings the instance up: the host pool snapshot is loaded, the seed
// session runs to completion, then the outbound, inbound and manual sessions
// start.  The handler observes the first fatal error or nil once every
// session has started.
func (p *P2P) Start(handler EventHandler) {
	p.loadHosts()

	p.seed = NewSessionSeed(p)
	p.seed.Start(func(err error) {
		if err != nil {
			log.Errorf("Seeding failed: %v", err)
			handler(err)
			return
		}
		p.startSessions(handler)
	})
}

// startSessions starts the steady-state sessions after seeding.
func (p *P2P) startSessions(handler EventHandler) {
	if p.Stopped() {
		handler(codeError(ErrServiceStopped))
		return
	}

	p.outbound = NewSessionOutbound(p)
	p.inbound = NewSessionInbound(p)
	p.manual = NewSessionManual(p)

	complete := Synchronize(handler, 3, "p2p", false)
	p.outbound.Start(complete)
	p.inbound.Start(complete)
	p.manual.Start(complete)
}

// Stop stops every session and channel and persists the host pool snapshot.
// It is idempotent.
func (p *P2P) Stop() {
	p.mtx.Lock()
	if p.stopped {
		p.mtx.Unlock()
		return
	}
	p.stopped = true
	channels := make([]*Channel, 0, len(p.channels))
	for channel := range p.channels {
		channels = append(channels, channel)
	}
	p.mtx.Unlock()

	if p.outbound != nil {
		p.outbound.Stop()
	}
	if p.inbound != nil {
		p.inbound.Stop()
	}
	if p.manual != nil {
		p.manual.Stop()
	}
	if p.seed != nil {
		p.seed.Stop()
	}

	for _, channel := range channels {
		channel.Stop(codeError(ErrServiceStopped))
	}

	p.saveHosts()
}

// hostsFileEntry is the on-disk form of one host pool entry.
type hostsFileEntry struct {
	Timestamp int64  `json:"timestamp"`
	Services  uint64 `json:"services"`
	IP        string `json:"ip"`
	Port      uint16 `json:"port"`
}

// loadHosts primes the host pool from the configured hosts file, if any.
func (p *P2P) loadHosts() {
	path := p.settings.HostsFile
	if path == "" {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("Failed to read hosts file %q: %v", path, err)
		}
		return
	}

	var entries []hostsFileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warnf("Failed to parse hosts file %q: %v", path, err)
		return
	}

	addresses := make([]*wire.NetAddress, 0, len(entries))
	for _, e := range entries {
		authority := Authority{Host: e.IP, Port: e.Port}
		na := authority.NetAddress(wire.ServiceFlag(e.Services))
		na.Timestamp = time.Unix(e.Timestamp, 0)
		addresses = append(addresses, na)
	}
	p.hostPool.Restore(addresses)

	log.Infof("Loaded %d addresses from %q", len(addresses), path)
}

// saveHosts persists the host pool snapshot to the configured hosts file.
func (p *P2P) saveHosts() {
	path := p.settings.HostsFile
	if path == "" {
		return
	}

	snapshot := p.hostPool.Snapshot()
	entries := make([]hostsFileEntry, 0, len(snapshot))
	for _, na := range snapshot {
		entries = append(entries, hostsFileEntry{
			Timestamp: na.Timestamp.Unix(),
			Services:  uint64(na.Services),
			IP:        na.IP.String(),
			Port:      na.Port,
		})
	}

	raw, err := json.MarshalIndent(entries, "", "\t")
	if err != nil {
		log.Warnf("Failed to encode hosts file: %v", err)
		return
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		log.Warnf("Failed to write hosts file %q: %v", path, err)
	}
}
