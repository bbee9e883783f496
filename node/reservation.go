// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mvs-org/mvsd/wire"
)

// rateWindow is the number of most recent block arrivals the per-slot rate
// moving average covers.
const rateWindow = 30

// rateSample is one block arrival: its size and when it landed.
type rateSample struct {
	bytes   int
	arrived time.Time
}

// Reservation is one slot of the reservation table: the sub-range of header
// queue positions assigned to exactly one channel at a time, plus its
// throughput bookkeeping.
//
// The pending set is guarded by the owning table's mutex so that a hash can
// never be observed in two slots simultaneously; the rate ring has its own
// short-lived lock so rate reads never contend with slot reassignment.
type Reservation struct {
	table *Reservations
	slot  int

	// These fields are guarded by the table mutex.
	pending     map[chainhash.Hash]uint64 // hash -> height
	order       []chainhash.Hash          // ascending height
	partitioned bool

	rateMtx sync.Mutex
	samples []rateSample
	first   time.Time
}

// newReservation returns an empty slot owned by the table.
func newReservation(table *Reservations, slot int) *Reservation {
	return &Reservation{
		table:   table,
		slot:    slot,
		pending: make(map[chainhash.Hash]uint64),
	}
}

// Slot returns the dense slot id.
func (r *Reservation) Slot() int {
	return r.slot
}

// Empty returns whether the slot has no pending hashes.
func (r *Reservation) Empty() bool {
	r.table.mtx.Lock()
	defer r.table.mtx.Unlock()
	return len(r.pending) == 0
}

// Size returns the number of pending hashes.
func (r *Reservation) Size() int {
	r.table.mtx.Lock()
	defer r.table.mtx.Unlock()
	return len(r.pending)
}

// Pending returns the ordered hashes still to fetch.
func (r *Reservation) Pending() []chainhash.Hash {
	r.table.mtx.Lock()
	defer r.table.mtx.Unlock()

	out := make([]chainhash.Hash, len(r.order))
	copy(out, r.order)
	return out
}

// Expect returns the height reserved for the hash and whether the hash
// belongs to this slot.
func (r *Reservation) Expect(hash *chainhash.Hash) (uint64, bool) {
	r.table.mtx.Lock()
	defer r.table.mtx.Unlock()

	height, ok := r.pending[*hash]
	return height, ok
}

// Import records the arrival of a block for this slot: the matching header
// is marked complete, the rate sample is appended, and the block is handed
// to the ordered committer.  A block whose hash is not pending here reports
// false.
func (r *Reservation) Import(block *wire.MsgBlock) bool {
	hash := block.BlockHash()

	r.table.mtx.Lock()
	height, ok := r.pending[hash]
	if !ok {
		r.table.mtx.Unlock()
		return false
	}
	delete(r.pending, hash)
	r.removeFromOrder(hash)
	r.table.completed(height, block)
	r.table.mtx.Unlock()

	r.recordSample(block.SerializeSize())

	log.Tracef("Slot (%d) imported block %v at height %d", r.slot, hash,
		height)
	return true
}

// removeFromOrder drops the hash from the request order.  Callers must hold
// the table mutex.
func (r *Reservation) removeFromOrder(hash chainhash.Hash) {
	for i, h := range r.order {
		if h == hash {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// insert adds a (hash, height) pair to the slot.  Callers must hold the
// table mutex.
func (r *Reservation) insert(hash chainhash.Hash, height uint64) {
	r.pending[hash] = height
	r.order = append(r.order, hash)
}

// recordSample appends a rate sample, trimming the window.
func (r *Reservation) recordSample(bytes int) {
	now := time.Now()

	r.rateMtx.Lock()
	if r.first.IsZero() {
		r.first = now
	}
	r.samples = append(r.samples, rateSample{bytes: bytes, arrived: now})
	if len(r.samples) > rateWindow {
		r.samples = r.samples[len(r.samples)-rateWindow:]
	}
	r.rateMtx.Unlock()
}

// Rate returns the slot's throughput in bytes per second as a moving average
// over the most recent arrivals.  A slot with no samples yet reports zero.
func (r *Reservation) Rate() float64 {
	r.rateMtx.Lock()
	defer r.rateMtx.Unlock()

	if len(r.samples) == 0 {
		return 0
	}

	var total int
	for _, s := range r.samples {
		total += s.bytes
	}

	start := r.first
	if len(r.samples) == rateWindow {
		start = r.samples[0].arrived
	}
	elapsed := r.samples[len(r.samples)-1].arrived.Sub(start).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	return float64(total) / elapsed
}

// Idle returns whether the slot has produced no samples yet.
func (r *Reservation) Idle() bool {
	r.rateMtx.Lock()
	defer r.rateMtx.Unlock()
	return len(r.samples) == 0
}

// TogglePartitioned reports whether the slot was marked partitioned by a
// steal or prune and clears the mark.
func (r *Reservation) TogglePartitioned() bool {
	r.table.mtx.Lock()
	defer r.table.mtx.Unlock()

	was := r.partitioned
	r.partitioned = false
	return was
}
