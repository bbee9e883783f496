// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"github.com/mvs-org/mvsd/wire"
)

// BlockChain is the downstream collaborator which ingests synced blocks.
// The reservation table guarantees Store is called with strictly increasing
// heights; implementations must be idempotent on (height, hash).
type BlockChain interface {
	// Store ingests the block at the given height and reports the result
	// through handler.
	Store(block *wire.MsgBlock, height uint64, handler func(error))
}
