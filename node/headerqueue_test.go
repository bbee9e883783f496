// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/mvs-org/mvsd/network"
)

// testHash returns a distinct hash for i.
func testHash(i uint64) *chainhash.Hash {
	var hash chainhash.Hash
	hash[0] = byte(i)
	hash[1] = byte(i >> 8)
	hash[2] = byte(i >> 16)
	return &hash
}

// TestHeaderQueueOrder verifies front-of-queue ordering and monotonic
// enqueue enforcement.
func TestHeaderQueueOrder(t *testing.T) {
	queue := NewHeaderQueue()
	require.Equal(t, 0, queue.Size())

	for height := uint64(100); height < 110; height++ {
		require.NoError(t, queue.Enqueue(testHash(height), height))
	}
	require.Equal(t, 10, queue.Size())

	// A non-increasing height is rejected.
	err := queue.Enqueue(testHash(1), 109)
	require.True(t, network.IsCode(err, network.ErrOperationFailed))

	// Front pops in ascending height order.
	for height := uint64(100); height < 110; height++ {
		hash, got, err := queue.Front()
		require.NoError(t, err)
		require.Equal(t, height, got)
		require.Equal(t, *testHash(height), *hash)
	}

	_, _, err = queue.Front()
	require.True(t, network.IsCode(err, network.ErrNotFound))
}

// TestHeaderQueueInvalidate verifies invalidation clears the queue and
// poisons subsequent enqueues.
func TestHeaderQueueInvalidate(t *testing.T) {
	queue := NewHeaderQueue()
	require.NoError(t, queue.Enqueue(testHash(1), 1))

	queue.Invalidate()
	require.Equal(t, 0, queue.Size())

	err := queue.Enqueue(testHash(2), 2)
	require.True(t, network.IsCode(err, network.ErrOperationFailed))
}
