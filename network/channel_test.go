// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/mvs-org/mvsd/wire"
)

// testSettings returns settings suitable for pipe-backed channel tests.
func testSettings() *Settings {
	settings := DefaultSettings()
	settings.ChannelHandshake = time.Second
	settings.ChannelGermination = time.Second
	settings.ChannelHeartbeat = time.Hour
	settings.ChannelInactivity = time.Hour
	return settings
}

// pipeChannel returns a started channel and the remote end of its pipe.
func pipeChannel(t *testing.T, settings *Settings) (*Channel, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	channel, err := NewChannel(local, settings, false)
	require.NoError(t, err)
	channel.Start()
	return channel, remote
}

// remoteWrite frames a message onto the remote end of the pipe.
func remoteWrite(t *testing.T, conn net.Conn, msg wire.Message,
	settings *Settings) {
	t.Helper()

	err := wire.WriteMessage(conn, msg, settings.Protocol, settings.Net)
	require.NoError(t, err)
}

// TestChannelSubscriptionOrder verifies subscribers fire in registration
// order and that returning false detaches a subscription.
func TestChannelSubscriptionOrder(t *testing.T) {
	defer leaktest.Check(t)()

	settings := testSettings()
	channel, remote := pipeChannel(t, settings)
	defer remote.Close()

	var mtx sync.Mutex
	var order []int
	seen := make(chan struct{}, 16)

	channel.Subscribe(wire.CmdPing, func(wire.Message) bool {
		mtx.Lock()
		order = append(order, 1)
		mtx.Unlock()
		seen <- struct{}{}
		// Detach after the first message.
		return false
	})
	channel.Subscribe(wire.CmdPing, func(wire.Message) bool {
		mtx.Lock()
		order = append(order, 2)
		mtx.Unlock()
		seen <- struct{}{}
		return true
	})
	channel.BeginReceiving()

	remoteWrite(t, remote, wire.NewMsgPing(1), settings)
	<-seen
	<-seen
	remoteWrite(t, remote, wire.NewMsgPing(2), settings)
	<-seen

	mtx.Lock()
	require.Equal(t, []int{1, 2, 2}, order)
	mtx.Unlock()

	channel.Stop(nil)
	waitForStop(t, channel)
}

// TestChannelSendOrder verifies sends are delivered and completed in
// submission order.
func TestChannelSendOrder(t *testing.T) {
	defer leaktest.Check(t)()

	settings := testSettings()
	channel, remote := pipeChannel(t, settings)
	defer remote.Close()

	// Drain the remote end, recording the delivered nonce order.
	received := make(chan uint64, 3)
	go func() {
		for i := 0; i < 3; i++ {
			msg, _, err := wire.ReadMessage(remote,
				settings.Protocol, settings.Net)
			if err != nil {
				return
			}
			received <- msg.(*wire.MsgPing).Nonce
		}
	}()

	var mtx sync.Mutex
	var completions []uint64
	var wg sync.WaitGroup
	for i := uint64(1); i <= 3; i++ {
		i := i
		wg.Add(1)
		channel.Send(wire.NewMsgPing(i), func(err error) {
			require.NoError(t, err)
			mtx.Lock()
			completions = append(completions, i)
			mtx.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	require.Equal(t, uint64(1), <-received)
	require.Equal(t, uint64(2), <-received)
	require.Equal(t, uint64(3), <-received)

	mtx.Lock()
	require.Equal(t, []uint64{1, 2, 3}, completions)
	mtx.Unlock()

	channel.Stop(nil)
	waitForStop(t, channel)
}

// TestChannelStop verifies the stop contract: pending sends complete with an
// error, the stop subscription fires exactly once with the cause, and a late
// stop subscription observes the cause immediately.
func TestChannelStop(t *testing.T) {
	defer leaktest.Check(t)()

	settings := testSettings()
	channel, remote := pipeChannel(t, settings)
	defer remote.Close()

	stops := make(chan error, 2)
	channel.SubscribeStop(func(err error) {
		stops <- err
	})

	// Nobody reads the remote end, so this send is parked when the stop
	// lands.
	sendErr := make(chan error, 1)
	channel.Send(wire.NewMsgPing(1), func(err error) {
		sendErr <- err
	})

	channel.Stop(codeError(ErrChannelTimeout))

	require.Error(t, <-sendErr)

	err := <-stops
	require.True(t, IsCode(err, ErrChannelTimeout))

	// A second stop is a no-op; the subscription must not fire again.
	channel.Stop(codeError(ErrBadStream))
	select {
	case err := <-stops:
		t.Fatalf("stop subscription fired twice: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// A late subscription observes the original cause immediately.
	late := make(chan error, 1)
	channel.SubscribeStop(func(err error) {
		late <- err
	})
	require.True(t, IsCode(<-late, ErrChannelTimeout))

	// Sends after stop complete with the stop error.
	channel.Send(wire.NewMsgPing(2), func(err error) {
		sendErr <- err
	})
	require.True(t, IsCode(<-sendErr, ErrChannelTimeout))
}

// TestChannelBadStream verifies a frame with a corrupt checksum stops the
// channel with a bad stream error.
func TestChannelBadStream(t *testing.T) {
	defer leaktest.Check(t)()

	settings := testSettings()
	channel, remote := pipeChannel(t, settings)
	defer remote.Close()

	stops := make(chan error, 1)
	channel.SubscribeStop(func(err error) {
		stops <- err
	})
	channel.BeginReceiving()

	// A correctly framed ping with one checksum byte flipped.
	frame := frameBytes(t, wire.NewMsgPing(7), settings)
	frame[20] ^= 0xff
	go remote.Write(frame)

	require.True(t, IsCode(<-stops, ErrBadStream))
}

// TestChannelMisbehaviorBan verifies crossing the misbehavior threshold bans
// the authority and stops the channel.
func TestChannelMisbehaviorBan(t *testing.T) {
	defer leaktest.Check(t)()

	settings := testSettings()
	channel, remote := pipeChannel(t, settings)
	defer remote.Close()

	banned := make(chan Authority, 1)
	channel.SetOnBan(func(authority Authority) {
		banned <- authority
	})

	stops := make(chan error, 1)
	channel.SubscribeStop(func(err error) {
		stops <- err
	})

	require.False(t, channel.Misbehaving(50, "first strike"))

	// The score is a plain signed accumulator, so good behavior can earn
	// credit back.
	require.False(t, channel.Misbehaving(-20, "credit"))
	require.Equal(t, int32(30), channel.MisbehaviorScore())

	require.True(t, channel.Misbehaving(70, "second strike"))

	require.Equal(t, channel.Authority(), <-banned)
	require.True(t, IsCode(<-stops, ErrBadStream))
}

// frameBytes renders a framed message to raw bytes.
func frameBytes(t *testing.T, msg wire.Message, settings *Settings) []byte {
	t.Helper()

	var buf writerBuffer
	err := wire.WriteMessage(&buf, msg, settings.Protocol, settings.Net)
	require.NoError(t, err)
	return buf.bytes
}

// writerBuffer is a trivial io.Writer collecting bytes.
type writerBuffer struct {
	bytes []byte
}

func (w *writerBuffer) Write(p []byte) (int, error) {
	w.bytes = append(w.bytes, p...)
	return len(p), nil
}

// waitForStop blocks until the channel's stop notification has fired.
func waitForStop(t *testing.T, channel *Channel) {
	t.Helper()

	done := make(chan struct{})
	channel.SubscribeStop(func(error) {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for channel stop")
	}
}
