// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"net"
	"sync"
	"time"
)

// defaultBanDuration is how long a misbehaving peer's authority stays banned.
const defaultBanDuration = 24 * time.Hour

// BanList tracks peers which must not be contacted.  It combines the static
// configured blacklist of CIDR ranges with authorities banned dynamically for
// misbehavior.
type BanList struct {
	mtx      sync.RWMutex
	banned   map[string]time.Time
	networks []*net.IPNet
}

// NewBanList returns a ban list primed with the configured blacklist.
// Malformed blacklist entries are skipped with a warning.
func NewBanList(blacklist []string) *BanList {
	b := &BanList{
		banned: make(map[string]time.Time),
	}
	for _, entry := range blacklist {
		_, ipnet, err := net.ParseCIDR(entry)
		if err != nil {
			// Plain addresses are accepted as single-host ranges.
			ip := net.ParseIP(entry)
			if ip == nil {
				log.Warnf("Ignoring malformed blacklist entry %q", entry)
				continue
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			ipnet = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		b.networks = append(b.networks, ipnet)
	}
	return b
}

// Ban records the authority so future dials and accepts are refused.
func (b *BanList) Ban(authority Authority) {
	b.mtx.Lock()
	b.banned[authority.String()] = time.Now().Add(defaultBanDuration)
	b.mtx.Unlock()

	log.Infof("Peer %v banned", authority)
}

// Unban removes a dynamic ban for the authority.
func (b *BanList) Unban(authority Authority) {
	b.mtx.Lock()
	delete(b.banned, authority.String())
	b.mtx.Unlock()
}

// Blocked returns whether the authority is dynamically banned or falls in a
// blacklisted range.
func (b *BanList) Blocked(authority Authority) bool {
	b.mtx.RLock()
	deadline, banned := b.banned[authority.String()]
	b.mtx.RUnlock()

	if banned {
		if time.Now().Before(deadline) {
			return true
		}
		b.Unban(authority)
	}

	ip := net.ParseIP(authority.Host)
	if ip == nil {
		return false
	}
	for _, ipnet := range b.networks {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}
