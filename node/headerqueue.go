// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mvs-org/mvsd/network"
)

// header is one (height, hash) pair awaiting download.
type header struct {
	height uint64
	hash   chainhash.Hash
}

// HeaderQueue is the ordered sequence of block hashes to be fetched, from
// the last locally known block to the peer-advertised tip.  It is populated
// by a header-sync collaborator before block sync starts and consumed by the
// reservation table.  All methods are safe for concurrent access.
type HeaderQueue struct {
	mtx     sync.Mutex
	headers []header
	invalid bool
}

// NewHeaderQueue returns an empty header queue.
func NewHeaderQueue() *HeaderQueue {
	return &HeaderQueue{}
}

// Size returns the number of queued headers.
func (q *HeaderQueue) Size() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.headers)
}

// Enqueue appends a header at the end of the queue.  Heights must be
// monotonically increasing; a regression fails with operation failed.
func (q *HeaderQueue) Enqueue(hash *chainhash.Hash, height uint64) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.invalid {
		return network.CodeError(network.ErrOperationFailed)
	}

	if last := len(q.headers); last > 0 &&
		height <= q.headers[last-1].height {
		return network.CodeError(network.ErrOperationFailed)
	}

	q.headers = append(q.headers, header{height: height, hash: *hash})
	return nil
}

// Front removes and returns the earliest-height entry.  An empty queue fails
// with not found.
func (q *HeaderQueue) Front() (*chainhash.Hash, uint64, error) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if len(q.headers) == 0 {
		return nil, 0, network.CodeError(network.ErrNotFound)
	}

	front := q.headers[0]
	q.headers = q.headers[1:]
	return &front.hash, front.height, nil
}

// Invalidate clears the queue and fails all subsequent enqueues, signaling
// downstream that the header range was abandoned.
func (q *HeaderQueue) Invalidate() {
	q.mtx.Lock()
	q.headers = nil
	q.invalid = true
	q.mtx.Unlock()
}
