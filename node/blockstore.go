// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"bytes"
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/mvs-org/mvsd/network"
	"github.com/mvs-org/mvsd/wire"
)

// Key prefixes for the block store namespace.
var (
	blockKeyPrefix = []byte("b") // blockKeyPrefix + height -> block bytes
	tipKey         = []byte("tip")
)

// BlockStore is a leveldb-backed BlockChain implementation.  Blocks are
// keyed by height; a duplicate store of the same (height, hash) succeeds
// without a rewrite while a conflicting hash at an existing height fails.
type BlockStore struct {
	db *leveldb.DB
}

// NewBlockStore opens (creating if necessary) a block store at the given
// path.
func NewBlockStore(path string) (*BlockStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, network.MakeError(network.ErrFileSystem, err.Error())
	}
	return &BlockStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BlockStore) Close() error {
	return s.db.Close()
}

// blockKey renders the key for a height.
func blockKey(height uint64) []byte {
	key := make([]byte, len(blockKeyPrefix)+8)
	copy(key, blockKeyPrefix)
	binary.BigEndian.PutUint64(key[len(blockKeyPrefix):], height)
	return key
}

// Store implements BlockChain.  It is idempotent on (height, hash).
func (s *BlockStore) Store(block *wire.MsgBlock, height uint64,
	handler func(error)) {

	raw, err := block.BlockBytes()
	if err != nil {
		handler(network.MakeError(network.ErrOperationFailed,
			err.Error()))
		return
	}

	key := blockKey(height)
	existing, err := s.db.Get(key, nil)
	switch err {
	case nil:
		if bytes.Equal(existing, raw) {
			// Duplicate store of the same block.
			handler(nil)
			return
		}
		handler(network.MakeError(network.ErrOperationFailed,
			"conflicting block at stored height"))
		return
	case leveldb.ErrNotFound:
	default:
		handler(network.MakeError(network.ErrFileSystem, err.Error()))
		return
	}

	batch := new(leveldb.Batch)
	batch.Put(key, raw)

	var tip [8]byte
	binary.BigEndian.PutUint64(tip[:], height)
	batch.Put(tipKey, tip[:])

	if err := s.db.Write(batch, nil); err != nil {
		handler(network.MakeError(network.ErrFileSystem, err.Error()))
		return
	}
	handler(nil)
}

// Fetch returns the block stored at the height.
func (s *BlockStore) Fetch(height uint64) (*wire.MsgBlock, error) {
	raw, err := s.db.Get(blockKey(height), nil)
	if err == leveldb.ErrNotFound {
		return nil, network.CodeError(network.ErrNotFound)
	}
	if err != nil {
		return nil, network.MakeError(network.ErrFileSystem, err.Error())
	}

	var block wire.MsgBlock
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, network.MakeError(network.ErrOperationFailed,
			err.Error())
	}
	return &block, nil
}

// Height returns the highest stored height, or not found for an empty store.
func (s *BlockStore) Height() (uint64, error) {
	raw, err := s.db.Get(tipKey, nil)
	if err == leveldb.ErrNotFound {
		return 0, network.CodeError(network.ErrNotFound)
	}
	if err != nil {
		return 0, network.MakeError(network.ErrFileSystem, err.Error())
	}
	return binary.BigEndian.Uint64(raw), nil
}
