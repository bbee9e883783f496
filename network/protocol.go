// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"sync"
	"time"

	"github.com/mvs-org/mvsd/wire"
)

// EventHandler receives the result of a protocol step or completion.
type EventHandler func(err error)

// Synchronize returns a handler which must be invoked count times before
// final fires exactly once with success.  When clearErrors is false the
// first error fires final immediately with that error; when true errors are
// counted like successes and suppressed.  The returned handler is idempotent
// past the firing threshold.  The name is used for logging only.
func Synchronize(final EventHandler, count int, name string,
	clearErrors bool) EventHandler {

	var mtx sync.Mutex
	done := false
	remaining := count

	if count <= 0 {
		return func(error) {
			mtx.Lock()
			fire := !done
			done = true
			mtx.Unlock()
			if fire {
				final(nil)
			}
		}
	}

	return func(err error) {
		mtx.Lock()
		if done {
			mtx.Unlock()
			return
		}

		if err != nil && !clearErrors {
			done = true
			mtx.Unlock()
			log.Tracef("Synchronizer %s fired early: %v", name, err)
			final(err)
			return
		}

		remaining--
		if remaining > 0 {
			mtx.Unlock()
			return
		}
		done = true
		mtx.Unlock()

		log.Tracef("Synchronizer %s complete", name)
		final(nil)
	}
}

// Protocol is the base for any state machine attached to a channel.  It
// scopes subscriptions and sends to the channel, carries the step-event
// plumbing concrete protocols drive through SetEvent, and owns an optional
// deadline timer.
//
// A protocol is attached to exactly one channel and is not reusable.
type Protocol struct {
	channel *Channel
	name    string

	eventMtx sync.Mutex
	event    EventHandler

	timerMtx sync.Mutex
	timer    *time.Timer
}

// newProtocol returns a protocol base bound to the channel.
func newProtocol(channel *Channel, name string) *Protocol {
	return &Protocol{
		channel: channel,
		name:    name,
	}
}

// NewProtocolBase returns a protocol base bound to the channel, for protocol
// implementations living outside this package.
func NewProtocolBase(channel *Channel, name string) *Protocol {
	return newProtocol(channel, name)
}

// StartTimed installs the step-event handler, wires the channel stop into
// it, and arms the deadline timer.  See start.
func (p *Protocol) StartTimed(duration time.Duration, event EventHandler) {
	p.start(duration, event)
}

// ResetTimer re-arms the deadline timer, for protocols whose bound applies
// per step rather than overall.
func (p *Protocol) ResetTimer(duration time.Duration) {
	p.resetTimer(duration)
}

// CancelTimer stops the deadline timer.
func (p *Protocol) CancelTimer() {
	p.cancelTimer()
}

// Name returns the protocol name, for logging purposes.
func (p *Protocol) Name() string {
	return p.name
}

// Authority returns the address of the channel.
func (p *Protocol) Authority() Authority {
	return p.channel.Authority()
}

// Nonce returns the channel nonce.
func (p *Protocol) Nonce() uint64 {
	return p.channel.Nonce()
}

// Channel returns the channel the protocol is attached to.
func (p *Protocol) Channel() *Channel {
	return p.channel
}

// PeerVersion returns the peer version message attached to the channel.
func (p *Protocol) PeerVersion() *wire.MsgVersion {
	return p.channel.PeerVersion()
}

// SetPeerVersion attaches the peer version message to the channel.
func (p *Protocol) SetPeerVersion(msg *wire.MsgVersion) {
	p.channel.SetPeerVersion(msg)
}

// Stopped returns whether the protocol's channel has stopped.
func (p *Protocol) Stopped() bool {
	return p.channel.Stopped()
}

// Stop stops the channel and thereby the protocol.
func (p *Protocol) Stop(err error) {
	p.channel.Stop(err)
}

// Misbehaving adds to the channel misbehavior score.
func (p *Protocol) Misbehaving(howmuch int32, reason string) bool {
	return p.channel.Misbehaving(howmuch, reason)
}

// Subscribe forwards to the channel.  The subscription dies with the
// channel, so no explicit unsubscribe exists.
func (p *Protocol) Subscribe(command string, handler MessageHandler) {
	p.channel.Subscribe(command, handler)
}

// SubscribeStop forwards to the channel stop subscription.
func (p *Protocol) SubscribeStop(handler StopHandler) {
	p.channel.SubscribeStop(handler)
}

// Send forwards to the channel.
func (p *Protocol) Send(msg wire.Message, done func(error)) {
	p.channel.Send(msg, done)
}

// SetEvent signals one step of a multi-step completion to the handler
// installed by start.
func (p *Protocol) SetEvent(err error) {
	p.eventMtx.Lock()
	event := p.event
	p.eventMtx.Unlock()

	if event != nil {
		event(err)
	}
}

// start installs the step-event handler, wires the channel stop into it, and
// arms the deadline timer when duration is positive.  The installed handler
// is expected to be a Synchronize product, so late timer or stop firings past
// completion are absorbed by its idempotence.
func (p *Protocol) start(duration time.Duration, event EventHandler) {
	p.eventMtx.Lock()
	p.event = event
	p.eventMtx.Unlock()

	p.SubscribeStop(func(err error) {
		p.cancelTimer()
		event(err)
	})

	if duration > 0 {
		p.timerMtx.Lock()
		p.timer = time.AfterFunc(duration, func() {
			log.Debugf("Protocol %s timed out on [%v]", p.name,
				p.Authority())
			event(codeError(ErrChannelTimeout))
		})
		p.timerMtx.Unlock()
	}
}

// resetTimer re-arms the deadline timer with the duration, for protocols
// whose bound applies per step rather than overall.
func (p *Protocol) resetTimer(duration time.Duration) {
	p.timerMtx.Lock()
	if p.timer != nil {
		p.timer.Reset(duration)
	}
	p.timerMtx.Unlock()
}

// cancelTimer stops the deadline timer.  Completion paths call this so the
// timer cannot outlive the protocol.
func (p *Protocol) cancelTimer() {
	p.timerMtx.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.timerMtx.Unlock()
}
