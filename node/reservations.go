// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"sort"
	"sync"

	"github.com/mvs-org/mvsd/wire"
)

// Reservations divides the header queue into slots, tracks per-slot progress
// and rate, supports work stealing and pruning of laggards, and owns the
// strictly height-ordered hand-off of completed blocks to the block chain
// collaborator.
//
// Slot reassignment is serialized under the table mutex; the mutex is held
// across a donor's pending-set pop and the recipient's push so that a third
// party can never observe a hash in two slots simultaneously.
type Reservations struct {
	mtx      sync.Mutex
	slots    []*Reservation
	settings *Settings
	chain    BlockChain

	// Ordered hand-off: completed blocks park here until every lower
	// height has been stored.
	nextHeight uint64
	parked     map[uint64]*wire.MsgBlock
}

// NewReservations drains the header queue into a table of up to
// min(settings.DownloadConnections, queued headers) slots.  Headers are
// assigned round-robin by height so bandwidth balances across slots
// regardless of block-size skew.
func NewReservations(queue *HeaderQueue, chain BlockChain,
	settings *Settings) *Reservations {

	table := &Reservations{
		settings: settings,
		chain:    chain,
		parked:   make(map[uint64]*wire.MsgBlock),
	}

	count := int(settings.DownloadConnections)
	if size := queue.Size(); size < count {
		count = size
	}
	if count == 0 {
		return table
	}

	for slot := 0; slot < count; slot++ {
		table.slots = append(table.slots, newReservation(table, slot))
	}

	first := true
	for {
		hash, height, err := queue.Front()
		if err != nil {
			break
		}
		if first {
			table.nextHeight = height
			first = false
		}
		slot := table.slots[height%uint64(count)]
		slot.insert(*hash, height)
	}

	return table
}

// Table returns a snapshot of the current slots.
func (t *Reservations) Table() []*Reservation {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	out := make([]*Reservation, len(t.slots))
	copy(out, t.slots)
	return out
}

// Size returns the current slot count.
func (t *Reservations) Size() int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return len(t.slots)
}

// Remove drops a drained slot from the table.
func (t *Reservations) Remove(slot *Reservation) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	for i, row := range t.slots {
		if row == slot {
			t.slots = append(t.slots[:i], t.slots[i+1:]...)
			return
		}
	}
}

// Populate donates pending hashes to a freshly empty slot by stealing half
// of the most loaded slot's remainder.  The donor is marked partitioned so
// its channel retires with a not-satisfied result rather than waiting on
// blocks it no longer owns.  It returns whether the slot holds work
// afterwards: true at once, with nothing moved, when the slot was not empty,
// and false when no slot had at least two pending hashes to share.
func (t *Reservations) Populate(slot *Reservation) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if len(slot.pending) != 0 {
		return true
	}

	// Find the donor with the most pending work.
	var donor *Reservation
	for _, row := range t.slots {
		if row == slot {
			continue
		}
		if donor == nil || len(row.pending) > len(donor.pending) {
			donor = row
		}
	}
	if donor == nil || len(donor.pending) < 2 {
		return false
	}

	// Move the back half of the donor's remainder.  Both mutations happen
	// under the table mutex held here, so no observer can see a hash in
	// two slots.
	half := len(donor.order) / 2
	moved := donor.order[half:]
	donor.order = donor.order[:half]
	for _, hash := range moved {
		height := donor.pending[hash]
		delete(donor.pending, hash)
		slot.insert(hash, height)
	}
	donor.partitioned = true

	log.Debugf("Slot (%d) stole %d hashes from slot (%d)", slot.slot,
		len(moved), donor.slot)
	return true
}

// Prune identifies the slowest slot whose rate lags the table median by more
// than the configured factor and marks it for forced retirement, donating
// its pending work to the fastest slot.  It returns the pruned slot, or nil
// when every slot keeps up.
func (t *Reservations) Prune() *Reservation {
	factor := t.settings.PruneFactor
	if factor <= 1 {
		return nil
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	if len(t.slots) < 3 {
		return nil
	}

	rates := make([]float64, 0, len(t.slots))
	var slowest, fastest *Reservation
	var slowestRate, fastestRate float64
	for _, row := range t.slots {
		// A slot which has not produced a block yet is covered by the
		// per-block timeout, not the regulator.
		if row.Idle() || len(row.pending) == 0 {
			continue
		}
		rate := row.Rate()
		rates = append(rates, rate)
		if slowest == nil || rate < slowestRate {
			slowest, slowestRate = row, rate
		}
		if fastest == nil || rate > fastestRate {
			fastest, fastestRate = row, rate
		}
	}
	if len(rates) < 3 || slowest == fastest {
		return nil
	}

	sort.Float64s(rates)
	median := rates[len(rates)/2]
	if slowestRate*factor >= median {
		return nil
	}

	// Donate the laggard's remainder to the fastest slot and mark it for
	// retirement.
	for _, hash := range slowest.order {
		height := slowest.pending[hash]
		delete(slowest.pending, hash)
		fastest.insert(hash, height)
	}
	slowest.order = nil
	slowest.partitioned = true

	log.Debugf("Pruned slot (%d): rate %.0f B/s against median %.0f B/s",
		slowest.slot, slowestRate, median)
	return slowest
}

// completed parks a downloaded block and flushes the park in strictly
// increasing height order into the chain.  Callers must hold the table
// mutex.
func (t *Reservations) completed(height uint64, block *wire.MsgBlock) {
	t.parked[height] = block

	for {
		next, ok := t.parked[t.nextHeight]
		if !ok {
			return
		}
		delete(t.parked, t.nextHeight)

		height := t.nextHeight
		t.nextHeight++
		t.chain.Store(next, height, func(err error) {
			if err != nil {
				log.Errorf("Failed to store block at height "+
					"%d: %v", height, err)
			}
		})
	}
}
