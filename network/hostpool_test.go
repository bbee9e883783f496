// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mvs-org/mvsd/wire"
)

// testAddress returns a distinct routable-looking address for i.
func testAddress(i int) *wire.NetAddress {
	ip := net.ParseIP(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	return wire.NewNetAddressIPPort(ip, 5251, wire.SFNodeNetwork)
}

// TestHostPoolStoreIdempotent verifies storing the same authority twice
// leaves exactly one entry and refreshes its metadata.
func TestHostPoolStoreIdempotent(t *testing.T) {
	pool := NewHostPool(100, 1)

	addr := testAddress(1)
	pool.Store(addr)
	pool.Store(addr)
	require.Equal(t, 1, pool.Count())

	// A re-store refreshes the timestamp and merges services.
	refreshed := *addr
	refreshed.Timestamp = addr.Timestamp.Add(time.Hour)
	refreshed.Services |= wire.SFNodeBloom
	pool.Store(&refreshed)
	require.Equal(t, 1, pool.Count())

	snapshot := pool.Snapshot()
	require.Len(t, snapshot, 1)
	require.Equal(t, refreshed.Timestamp.Unix(), snapshot[0].Timestamp.Unix())
	require.True(t, snapshot[0].HasService(wire.SFNodeBloom))
}

// TestHostPoolEviction verifies inserts past capacity evict the least
// recently seen entry.
func TestHostPoolEviction(t *testing.T) {
	pool := NewHostPool(3, 1)

	first := testAddress(1)
	pool.Store(first)
	pool.Store(testAddress(2))
	pool.Store(testAddress(3))
	require.Equal(t, 3, pool.Count())

	// Refresh the oldest entry, then overflow; the evictee must be the
	// second entry, now least recently seen.
	pool.Store(first)
	pool.Store(testAddress(4))
	require.Equal(t, 3, pool.Count())

	keys := make(map[string]bool)
	for _, na := range pool.Snapshot() {
		keys[AuthorityFromNetAddress(na).String()] = true
	}
	require.True(t, keys[AuthorityFromNetAddress(first).String()])
	require.False(t, keys[AuthorityFromNetAddress(testAddress(2)).String()])
}

// TestHostPoolFetchOne verifies random fetch semantics.
func TestHostPoolFetchOne(t *testing.T) {
	pool := NewHostPool(100, 1)

	_, err := pool.FetchOne()
	require.True(t, IsCode(err, ErrNotFound))

	for i := 0; i < 5; i++ {
		pool.Store(testAddress(i))
	}

	// Five fetches hand out five distinct uncontacted entries.
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		na, err := pool.FetchOne()
		require.NoError(t, err)
		seen[AuthorityFromNetAddress(na).String()] = true
	}
	require.Len(t, seen, 5)

	// A sixth fetch cycles rather than starving.
	_, err = pool.FetchOne()
	require.NoError(t, err)
}

// TestHostPoolDisabled verifies a zero-capacity pool stores nothing.
func TestHostPoolDisabled(t *testing.T) {
	pool := NewHostPool(0, 1)
	pool.Store(testAddress(1))
	require.Equal(t, 0, pool.Count())

	var got error
	pool.StoreAll([]*wire.NetAddress{testAddress(1)}, func(err error) {
		got = err
	})
	require.True(t, IsCode(got, ErrNotFound))
}

// TestHostPoolSnapshotRestore verifies a snapshot reloads losslessly.
func TestHostPoolSnapshotRestore(t *testing.T) {
	pool := NewHostPool(100, 1)
	for i := 0; i < 10; i++ {
		pool.Store(testAddress(i))
	}

	restored := NewHostPool(100, 2)
	restored.Restore(pool.Snapshot())
	require.Equal(t, pool.Count(), restored.Count())
}
