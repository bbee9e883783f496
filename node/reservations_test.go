// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/mvs-org/mvsd/wire"
)

// makeBlock returns a distinct block for the height.
func makeBlock(height uint64) *wire.MsgBlock {
	header := wire.BlockHeader{
		Version:   1,
		Timestamp: time.Unix(0x495fab29, 0),
		Bits:      0x1d00ffff,
		Nonce:     uint32(height),
	}
	header.PrevBlock[0] = byte(height)
	return &wire.MsgBlock{Header: header}
}

// fakeChain records stores in arrival order.
type fakeChain struct {
	mtx     sync.Mutex
	heights []uint64
}

func (c *fakeChain) Store(block *wire.MsgBlock, height uint64,
	handler func(error)) {

	c.mtx.Lock()
	c.heights = append(c.heights, height)
	c.mtx.Unlock()
	handler(nil)
}

func (c *fakeChain) stored() []uint64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	out := make([]uint64, len(c.heights))
	copy(out, c.heights)
	return out
}

// buildTable returns a table over blocks for heights [0, count) split into
// the given number of slots, along with the blocks by height.
func buildTable(t *testing.T, count uint64, slots uint32,
	chain BlockChain) (*Reservations, map[uint64]*wire.MsgBlock) {
	t.Helper()

	queue := NewHeaderQueue()
	blocks := make(map[uint64]*wire.MsgBlock, count)
	for height := uint64(0); height < count; height++ {
		block := makeBlock(height)
		blocks[height] = block
		hash := block.BlockHash()
		require.NoError(t, queue.Enqueue(&hash, height))
	}

	settings := DefaultSettings()
	settings.DownloadConnections = slots
	return NewReservations(queue, chain, settings), blocks
}

// pendingUnion collects every slot's pending hashes, failing on overlap.
func pendingUnion(t *testing.T, table *Reservations) map[chainhash.Hash]int {
	t.Helper()

	union := make(map[chainhash.Hash]int)
	for _, row := range table.Table() {
		for _, hash := range row.Pending() {
			if slot, ok := union[hash]; ok {
				t.Fatalf("hash %v in slots %d and %d", hash,
					slot, row.Slot())
			}
			union[hash] = row.Slot()
		}
	}
	return union
}

// TestReservationsPartition verifies the round-robin interleaving by height
// and the disjointness of slot pending sets.
func TestReservationsPartition(t *testing.T) {
	table, blocks := buildTable(t, 10, 2, &fakeChain{})

	rows := table.Table()
	require.Len(t, rows, 2)
	require.Equal(t, 5, rows[0].Size())
	require.Equal(t, 5, rows[1].Size())

	// Even heights land in slot 0, odd heights in slot 1.
	for height, block := range blocks {
		hash := block.BlockHash()
		slot := rows[height%2]
		got, ok := slot.Expect(&hash)
		require.True(t, ok, "height %d missing from slot %d", height,
			height%2)
		require.Equal(t, height, got)
	}

	// Pending sets are pairwise disjoint and cover the queue.
	union := pendingUnion(t, table)
	require.Len(t, union, 10)
}

// TestReservationsSlotCount verifies the slot count is bounded by the queue
// size and that an empty queue yields an empty table.
func TestReservationsSlotCount(t *testing.T) {
	table, _ := buildTable(t, 3, 8, &fakeChain{})
	require.Equal(t, 3, table.Size())

	empty, _ := buildTable(t, 0, 8, &fakeChain{})
	require.Equal(t, 0, empty.Size())
}

// TestReservationsOrderedStore verifies the chain observes strictly
// increasing heights regardless of slot-local arrival order.
func TestReservationsOrderedStore(t *testing.T) {
	chain := &fakeChain{}
	table, blocks := buildTable(t, 10, 2, chain)

	rows := table.Table()

	// Drain slot 1 (odd heights) first: nothing can flush past height 0.
	for height := uint64(1); height < 10; height += 2 {
		require.True(t, rows[1].Import(blocks[height]))
	}
	require.Empty(t, chain.stored())

	// Slot 0 arrivals release the ordered flush.
	for height := uint64(8); ; height -= 2 {
		require.True(t, rows[0].Import(blocks[height]))
		if height == 0 {
			break
		}
	}

	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		chain.stored())
}

// TestReservationsImportUnexpected verifies a block no slot reserved is
// refused.
func TestReservationsImportUnexpected(t *testing.T) {
	table, _ := buildTable(t, 4, 2, &fakeChain{})
	rows := table.Table()

	require.False(t, rows[0].Import(makeBlock(99)))
}

// TestReservationsPopulate verifies work stealing moves half the donor's
// remainder without ever exposing a hash in two slots, and marks the donor
// partitioned.
func TestReservationsPopulate(t *testing.T) {
	chain := &fakeChain{}
	table, blocks := buildTable(t, 10, 2, chain)
	rows := table.Table()

	// Drain slot 0 so it becomes the thief.
	for height := uint64(0); height < 10; height += 2 {
		require.True(t, rows[0].Import(blocks[height]))
	}
	require.True(t, rows[0].Empty())

	require.True(t, table.Populate(rows[0]))

	// The donor kept the front half of its remainder and was marked
	// partitioned.
	require.Equal(t, 2, rows[1].Size())
	require.Equal(t, 3, rows[0].Size())
	require.True(t, rows[1].TogglePartitioned())
	// The mark clears once observed.
	require.False(t, rows[1].TogglePartitioned())

	// Still disjoint, still covering the undownloaded remainder.
	union := pendingUnion(t, table)
	require.Len(t, union, 5)

	// The moved work imports through its new slot.
	for _, hash := range rows[0].Pending() {
		height, ok := rows[0].Expect(&hash)
		require.True(t, ok)
		require.True(t, rows[0].Import(blocks[height]))
	}
}

// TestReservationsPopulateNoDonor verifies stealing reports false when no
// slot has enough work to give.
func TestReservationsPopulateNoDonor(t *testing.T) {
	chain := &fakeChain{}
	table, blocks := buildTable(t, 2, 2, chain)
	rows := table.Table()

	require.True(t, rows[0].Import(blocks[0]))
	require.False(t, table.Populate(rows[0]))
}

// TestReservationsRemove verifies drained slots leave the table.
func TestReservationsRemove(t *testing.T) {
	table, _ := buildTable(t, 4, 2, &fakeChain{})
	rows := table.Table()

	table.Remove(rows[0])
	require.Equal(t, 1, table.Size())
	table.Remove(rows[0])
	require.Equal(t, 1, table.Size())
}

// TestReservationsPrune verifies the regulator retires the laggard whose
// rate trails the median and donates its work to the fastest slot.
func TestReservationsPrune(t *testing.T) {
	chain := &fakeChain{}
	table, _ := buildTable(t, 9, 3, chain)
	rows := table.Table()

	base := time.Now()
	plant := func(row *Reservation, bytesPerSample int) {
		row.rateMtx.Lock()
		row.first = base
		row.samples = nil
		for i := 0; i < 3; i++ {
			row.samples = append(row.samples, rateSample{
				bytes:   bytesPerSample,
				arrived: base.Add(time.Duration(i+1) * time.Second),
			})
		}
		row.rateMtx.Unlock()
	}

	plant(rows[0], 100000) // fast
	plant(rows[1], 90000)  // median
	plant(rows[2], 100)    // laggard

	pruned := table.Prune()
	require.NotNil(t, pruned)
	require.Equal(t, rows[2].Slot(), pruned.Slot())

	// The laggard's work moved to the fastest slot.
	require.True(t, pruned.Empty())
	require.True(t, pruned.TogglePartitioned())
	require.Equal(t, 6, rows[0].Size())

	// A healthy table is left alone.
	require.Nil(t, table.Prune())
}
