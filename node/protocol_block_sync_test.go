// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package node

import (
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/mvs-org/mvsd/network"
	"github.com/mvs-org/mvsd/wire"
)

// syncTestSettings returns node settings with a short per-block bound.
func syncTestSettings() *Settings {
	settings := DefaultSettings()
	settings.ChannelBlock = 2 * time.Second
	return settings
}

// pipeSyncChannel returns a started channel and the remote pipe end.
func pipeSyncChannel(t *testing.T) (*network.Channel, net.Conn,
	*network.Settings) {
	t.Helper()

	netSettings := network.DefaultSettings()
	netSettings.ChannelHeartbeat = time.Hour
	netSettings.ChannelInactivity = time.Hour

	local, remote := net.Pipe()
	channel, err := network.NewChannel(local, netSettings, false)
	require.NoError(t, err)
	channel.Start()
	return channel, remote, netSettings
}

// serveBlocks answers getdata requests on the remote pipe end with the
// matching blocks.
func serveBlocks(t *testing.T, conn net.Conn, netSettings *network.Settings,
	blocks map[uint64]*wire.MsgBlock) {
	t.Helper()

	byHash := make(map[wire.InvVect]*wire.MsgBlock, len(blocks))
	for _, block := range blocks {
		iv := wire.InvVect{Type: wire.InvTypeBlock,
			Hash: block.BlockHash()}
		byHash[iv] = block
	}

	go func() {
		for {
			msg, _, err := wire.ReadMessage(conn,
				netSettings.Protocol, netSettings.Net)
			if err != nil {
				return
			}
			request, ok := msg.(*wire.MsgGetData)
			if !ok {
				continue
			}
			for _, iv := range request.InvList {
				block, ok := byHash[*iv]
				if !ok {
					continue
				}
				if err := wire.WriteMessage(conn, block,
					netSettings.Protocol,
					netSettings.Net); err != nil {
					return
				}
			}
		}
	}()
}

// TestProtocolBlockSyncDrains verifies a slot downloads to empty against a
// serving peer and the chain sees every height in order.
func TestProtocolBlockSyncDrains(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	chain := &fakeChain{}
	table, blocks := buildTable(t, 6, 1, chain)
	slot := table.Table()[0]

	channel, remote, netSettings := pipeSyncChannel(t)
	defer remote.Close()
	serveBlocks(t, remote, netSettings, blocks)

	result := make(chan error, 1)
	NewProtocolBlockSync(channel, syncTestSettings(), slot).Start(
		func(err error) {
			result <- err
		})
	channel.BeginReceiving()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("slot did not drain")
	}

	require.True(t, slot.Empty())
	require.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, chain.stored())

	channel.Stop(nil)
}

// TestProtocolBlockSyncTimeout verifies a stalling peer fails the slot with
// a channel timeout so the session can retry it elsewhere.
func TestProtocolBlockSyncTimeout(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	chain := &fakeChain{}
	table, _ := buildTable(t, 4, 1, chain)
	slot := table.Table()[0]

	channel, remote, _ := pipeSyncChannel(t)
	defer remote.Close()

	settings := syncTestSettings()
	settings.ChannelBlock = 200 * time.Millisecond

	result := make(chan error, 1)
	NewProtocolBlockSync(channel, settings, slot).Start(func(err error) {
		result <- err
	})
	channel.BeginReceiving()

	select {
	case err := <-result:
		require.True(t, network.IsCode(err, network.ErrChannelTimeout))
	case <-time.After(5 * time.Second):
		t.Fatal("timeout did not fire")
	}

	// The slot keeps its work for the retry.
	require.Equal(t, 4, slot.Size())

	channel.Stop(nil)
}

// TestProtocolBlockSyncEmptySlot verifies an empty slot completes
// immediately.
func TestProtocolBlockSyncEmptySlot(t *testing.T) {
	defer leaktest.Check(t)()

	chain := &fakeChain{}
	table, blocks := buildTable(t, 2, 2, chain)
	slot := table.Table()[0]
	require.True(t, slot.Import(blocks[0]))

	channel, remote, _ := pipeSyncChannel(t)
	defer remote.Close()

	result := make(chan error, 1)
	NewProtocolBlockSync(channel, syncTestSettings(), slot).Start(
		func(err error) {
			result <- err
		})
	require.NoError(t, <-result)

	channel.Stop(nil)
}
