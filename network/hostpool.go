// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"container/list"
	"math/rand"
	"sync"

	"github.com/mvs-org/mvsd/wire"
)

// hostEntry is a single known peer address together with its bookkeeping.
type hostEntry struct {
	address   *wire.NetAddress
	authority Authority
	attempted bool
	elem      *list.Element
}

// HostPool is a bounded, deduplicated store of known peer network addresses.
// Entries are unique by authority; inserts past capacity evict the least
// recently seen entry.  All methods are safe for concurrent access.
type HostPool struct {
	mtx      sync.Mutex
	capacity uint32
	hosts    map[string]*hostEntry
	order    *list.List // front = most recently seen
	rand     *rand.Rand
}

// NewHostPool returns a host pool bounded by capacity.  A capacity of zero
// yields a pool which stores nothing, matching the "seeding disabled"
// configuration.
func NewHostPool(capacity uint32, seed int64) *HostPool {
	return &HostPool{
		capacity: capacity,
		hosts:    make(map[string]*hostEntry),
		order:    list.New(),
		rand:     rand.New(rand.NewSource(seed)),
	}
}

// Store adds the address to the pool, or refreshes its timestamp and
// services when its authority is already present.  Inserting past capacity
// evicts the least recently seen entry.  Storing is a no-op when the pool is
// disabled or the address is the unspecified sentinel.
func (p *HostPool) Store(address *wire.NetAddress) {
	if p.capacity == 0 || address.IsUnspecified() {
		return
	}

	authority := AuthorityFromNetAddress(address)
	key := authority.String()

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if entry, ok := p.hosts[key]; ok {
		// Refresh timestamp and observed services.
		entry.address.Timestamp = address.Timestamp
		entry.address.Services |= address.Services
		p.order.MoveToFront(entry.elem)
		return
	}

	if uint32(len(p.hosts)) >= p.capacity {
		p.evict()
	}

	entry := &hostEntry{
		address:   address,
		authority: authority,
	}
	entry.elem = p.order.PushFront(entry)
	p.hosts[key] = entry
}

// StoreAll adds each of the addresses to the pool and invokes handler with
// the result.  Individual rejects are not errors; the call fails only when
// the pool is disabled.
func (p *HostPool) StoreAll(addresses []*wire.NetAddress, handler func(error)) {
	if p.capacity == 0 {
		handler(codeError(ErrNotFound))
		return
	}
	for _, address := range addresses {
		p.Store(address)
	}
	handler(nil)
}

// evict drops the least recently seen entry.  Callers must hold the mutex.
func (p *HostPool) evict() {
	back := p.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*hostEntry)
	p.order.Remove(back)
	delete(p.hosts, entry.authority.String())
}

// Remove drops the address from the pool if present.
func (p *HostPool) Remove(address *wire.NetAddress) {
	key := AuthorityFromNetAddress(address).String()

	p.mtx.Lock()
	defer p.mtx.Unlock()

	if entry, ok := p.hosts[key]; ok {
		p.order.Remove(entry.elem)
		delete(p.hosts, key)
	}
}

// RemoveAuthority drops the entry for the authority if present.
func (p *HostPool) RemoveAuthority(authority Authority) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if entry, ok := p.hosts[authority.String()]; ok {
		p.order.Remove(entry.elem)
		delete(p.hosts, authority.String())
	}
}

// Count returns the number of stored addresses.
func (p *HostPool) Count() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.hosts)
}

// FetchOne returns a random entry which has not been handed out yet, marking
// it attempted.  When every entry has been attempted the attempted marks are
// cleared and selection starts over, so a long-running caller cycles rather
// than starves.  An empty pool yields ErrNotFound.
func (p *HostPool) FetchOne() (*wire.NetAddress, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if len(p.hosts) == 0 {
		return nil, codeError(ErrNotFound)
	}

	fresh := make([]*hostEntry, 0, len(p.hosts))
	for _, entry := range p.hosts {
		if !entry.attempted {
			fresh = append(fresh, entry)
		}
	}

	if len(fresh) == 0 {
		for _, entry := range p.hosts {
			entry.attempted = false
			fresh = append(fresh, entry)
		}
	}

	entry := fresh[p.rand.Intn(len(fresh))]
	entry.attempted = true
	return entry.address, nil
}

// Snapshot returns a copy of every stored address, most recently seen first.
func (p *HostPool) Snapshot() []*wire.NetAddress {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	addresses := make([]*wire.NetAddress, 0, p.order.Len())
	for e := p.order.Front(); e != nil; e = e.Next() {
		na := *e.Value.(*hostEntry).address
		addresses = append(addresses, &na)
	}
	return addresses
}

// Restore loads a previously taken snapshot.  Existing entries are
// preserved; restored duplicates refresh them.
func (p *HostPool) Restore(addresses []*wire.NetAddress) {
	// Iterate in reverse so the snapshot's recency order survives the
	// front-insertion in Store.
	for i := len(addresses) - 1; i >= 0; i-- {
		p.Store(addresses[i])
	}
}
