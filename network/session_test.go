// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/mvs-org/mvsd/wire"
)

// scriptedPeer drives the remote end of a pipe through the version handshake
// the way a well-behaved peer would: read the incoming version, answer with
// its own version and a verack, then consume the verack.
func scriptedPeer(t *testing.T, conn net.Conn, settings *Settings,
	nonce uint64) {
	t.Helper()

	go func() {
		// Their version.
		msg, _, err := wire.ReadMessage(conn, settings.Protocol,
			settings.Net)
		if err != nil {
			return
		}
		if _, ok := msg.(*wire.MsgVersion); !ok {
			return
		}

		// Our version.
		me := &wire.NetAddress{IP: net.ParseIP("10.0.0.9"), Port: 5251}
		you := &wire.NetAddress{IP: net.ParseIP("10.0.0.1"), Port: 5251}
		version := wire.NewMsgVersion(me, you, nonce, 100)
		version.UserAgent = "/other:1.0/"
		version.Services = wire.SFNodeNetwork
		if err := wire.WriteMessage(conn, version, settings.Protocol,
			settings.Net); err != nil {
			return
		}

		// Our verack, then theirs.
		if err := wire.WriteMessage(conn, wire.NewMsgVerAck(),
			settings.Protocol, settings.Net); err != nil {
			return
		}
		wire.ReadMessage(conn, settings.Protocol, settings.Net)
	}()
}

// TestSessionHandshakeSuccess registers a channel against a well-behaved
// scripted peer and verifies the version protocol completes, the peer
// version lands on the channel, and the handshake beats its deadline.
func TestSessionHandshakeSuccess(t *testing.T) {
	defer leaktest.Check(t)()

	settings := testSettings()
	p2p := NewP2P(settings)
	session := NewSession(p2p, false)

	channel, remote := pipeChannel(t, settings)
	defer remote.Close()

	scriptedPeer(t, remote, settings, 0xAAAA)

	started := make(chan error, 1)
	stopped := make(chan error, 1)
	session.RegisterChannel(channel,
		func(err error) { started <- err },
		func(err error) { stopped <- err })

	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(settings.ChannelHandshake):
		t.Fatal("handshake missed its deadline")
	}

	version := channel.PeerVersion()
	require.NotNil(t, version)
	require.Equal(t, uint64(0xAAAA), version.Nonce)
	require.Equal(t, "/other:1.0/", version.UserAgent)
	require.Equal(t, int32(100), version.LastBlock)

	// The nonce reservation is released once the channel is started.
	require.False(t, p2p.isPending(channel.Nonce()))
	require.Equal(t, 1, p2p.ConnectionCount())

	channel.Stop(nil)
	require.True(t, IsCode(<-stopped, ErrChannelStopped))
	require.Equal(t, 0, p2p.ConnectionCount())
}

// TestSessionSelfConnect verifies a peer echoing one of our own pending
// nonces is rejected with accept failed and leaves no pending residue.
func TestSessionSelfConnect(t *testing.T) {
	defer leaktest.Check(t)()

	settings := testSettings()
	p2p := NewP2P(settings)
	session := NewSession(p2p, false)

	channel, remote := pipeChannel(t, settings)
	defer remote.Close()

	// The scripted peer claims our own channel nonce: a self connection.
	scriptedPeer(t, remote, settings, channel.Nonce())

	started := make(chan error, 1)
	stopped := make(chan error, 1)
	session.RegisterChannel(channel,
		func(err error) { started <- err },
		func(err error) { stopped <- err })

	err := <-started
	require.True(t, IsCode(err, ErrAcceptFailed))

	<-stopped
	require.False(t, p2p.isPending(channel.Nonce()))
	require.Equal(t, 0, p2p.ConnectionCount())
	require.Equal(t, 0, p2p.HostPool().Count())
}

// TestSessionDuplicateNonce verifies the pending filter rejects a second
// registration carrying an already reserved nonce.
func TestSessionDuplicateNonce(t *testing.T) {
	defer leaktest.Check(t)()

	settings := testSettings()
	p2p := NewP2P(settings)
	session := NewSession(p2p, false)

	channel, remote := pipeChannel(t, settings)
	defer remote.Close()

	require.True(t, p2p.pend(channel.Nonce()))

	started := make(chan error, 1)
	session.RegisterChannel(channel,
		func(err error) { started <- err },
		func(error) {})

	require.True(t, IsCode(<-started, ErrAcceptFailed))
}
