// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"sync"
	"time"

	"github.com/mvs-org/mvsd/wire"
)

// ProtocolPing keeps a channel alive.  It answers inbound pings with pongs,
// sends a nonced ping every heartbeat, and stops the channel when the echoed
// pong does not arrive before the next beat.
type ProtocolPing struct {
	*Protocol
	settings *Settings

	mtx          sync.Mutex
	pingNonce    uint64 // nonzero while a pong is outstanding
	ticker       *time.Ticker
	tickerStop   chan struct{}
	tickerOnce   sync.Once
	tickerClosed sync.Once
}

// NewProtocolPing returns a ping protocol for the channel.
func NewProtocolPing(channel *Channel, settings *Settings) *ProtocolPing {
	return &ProtocolPing{
		Protocol:   newProtocol(channel, "ping"),
		settings:   settings,
		tickerStop: make(chan struct{}),
	}
}

// Start begins the keepalive loop.  Ping runs for the life of the channel
// and has no completion handler.
func (p *ProtocolPing) Start() {
	p.Subscribe(wire.CmdPing, p.handleReceivePing)
	p.Subscribe(wire.CmdPong, p.handleReceivePong)
	p.SubscribeStop(func(error) {
		p.tickerClosed.Do(func() { close(p.tickerStop) })
	})

	p.tickerOnce.Do(func() {
		p.ticker = time.NewTicker(p.settings.ChannelHeartbeat)
		go p.beat()
	})
}

// beat sends a ping each heartbeat and enforces that the previous ping was
// answered.
func (p *ProtocolPing) beat() {
	defer p.ticker.Stop()

	for {
		select {
		case <-p.tickerStop:
			return
		case <-p.ticker.C:
			p.mtx.Lock()
			outstanding := p.pingNonce
			p.mtx.Unlock()

			if outstanding != 0 {
				log.Debugf("Peer [%v] missed ping %d",
					p.Authority(), outstanding)
				p.Stop(codeError(ErrChannelTimeout))
				return
			}

			nonce, err := wire.RandomUint64()
			if err != nil {
				log.Errorf("Not sending ping to [%v]: %v",
					p.Authority(), err)
				continue
			}

			p.mtx.Lock()
			p.pingNonce = nonce
			p.mtx.Unlock()

			p.Send(wire.NewMsgPing(nonce), nil)
		}
	}
}

func (p *ProtocolPing) handleReceivePing(msg wire.Message) bool {
	if p.Stopped() {
		return false
	}

	ping, ok := msg.(*wire.MsgPing)
	if !ok {
		return false
	}

	// Echo the nonce so the peer can match the reply.
	p.Send(wire.NewMsgPong(ping.Nonce), nil)
	return true
}

func (p *ProtocolPing) handleReceivePong(msg wire.Message) bool {
	if p.Stopped() {
		return false
	}

	pong, ok := msg.(*wire.MsgPong)
	if !ok {
		return false
	}

	p.mtx.Lock()
	expected := p.pingNonce
	p.pingNonce = 0
	p.mtx.Unlock()

	if expected == 0 || pong.Nonce != expected {
		p.Misbehaving(10, "unsolicited or mismatched pong")
	}
	return true
}
