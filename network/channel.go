// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"container/list"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/mvs-org/mvsd/wire"
)

const (
	// banThreshold is the misbehavior score at which a peer is banned and
	// its channel stopped, following the convention Bitcoin-family nodes
	// share.
	banThreshold = 100

	// warnThreshold is the misbehavior score past which every further
	// offense is logged loudly.
	warnThreshold = banThreshold / 2
)

// MessageHandler is invoked for each inbound message of a subscribed command.
// Returning true keeps the subscription; returning false detaches it.
type MessageHandler func(msg wire.Message) bool

// StopHandler is invoked exactly once when a channel stops, with the error
// that caused the stop.
type StopHandler func(err error)

// subscription binds a handler to inbound messages of one command.
type subscription struct {
	handler MessageHandler
}

// outMsg carries a queued message and its completion callback through the
// queue and write handlers.
type outMsg struct {
	msg  wire.Message
	done func(error)
}

// readMsg carries the result of a single framed read.
type readMsg struct {
	msg wire.Message
	n   int
	err error
}

// NOTE: The overall data flow of a channel is split across three goroutines.
// Inbound messages are read by inHandler and fanned out to subscriptions in
// registration order.  Outbound messages flow through two goroutines,
// queueHandler and outHandler: the first lets callers queue messages quickly
// regardless of whether the channel is currently sending, the second owns the
// socket writes.  The split preserves submission order while keeping Send
// non-blocking in the common case.

// Channel is a full-duplex framed connection to one peer.  It owns its
// transport socket exclusively, delivers sends in submission order, fans
// inbound messages out to typed subscriptions, and latches stopped exactly
// once.
type Channel struct {
	conn     net.Conn
	settings *Settings

	// These fields are set at creation time and never modified, so they
	// are safe to read from concurrently without a mutex.
	nonce     uint64
	authority Authority
	inbound   bool

	// onBan is invoked when the misbehavior score crosses the threshold,
	// before the channel is stopped.
	onBan func(Authority)

	versionMtx  sync.RWMutex
	peerVersion *wire.MsgVersion

	statsMtx      sync.RWMutex
	bytesReceived uint64
	bytesSent     uint64
	lastRecv      time.Time
	lastSend      time.Time

	// score is the misbehavior accumulator, manipulated atomically.
	score int32

	subMtx   sync.Mutex
	subs     map[string][]*subscription
	stopSubs []StopHandler
	notified bool

	stopOnce sync.Once
	stopMtx  sync.Mutex
	stopErr  error
	quit     chan struct{}

	readOnce sync.Once

	sendQueue chan outMsg
	sendChan  chan outMsg

	wg sync.WaitGroup
}

// NewChannel returns a channel wrapping the given connection.  The channel
// does not touch the socket until Start is called, and does not read from it
// until BeginReceiving is called, which gives the owning session a window to
// attach handshake subscriptions without racing the peer.
func NewChannel(conn net.Conn, settings *Settings, inbound bool) (*Channel, error) {
	nonce, err := wire.RandomUint64()
	if err != nil {
		return nil, err
	}

	return &Channel{
		conn:      conn,
		settings:  settings,
		nonce:     nonce,
		authority: AuthorityFromAddr(conn.RemoteAddr()),
		inbound:   inbound,
		subs:      make(map[string][]*subscription),
		quit:      make(chan struct{}),
		sendQueue: make(chan outMsg),
		sendChan:  make(chan outMsg),
	}, nil
}

// String returns the channel's authority and directionality as a
// human-readable string.
func (c *Channel) String() string {
	if c.inbound {
		return c.authority.String() + " (inbound)"
	}
	return c.authority.String() + " (outbound)"
}

// Nonce returns the locally chosen nonce identifying this channel.  The
// nonce doubles as the self-connection detector via the version handshake.
func (c *Channel) Nonce() uint64 {
	return c.nonce
}

// Authority returns the peer's (host, port) pair.
func (c *Channel) Authority() Authority {
	return c.authority
}

// Inbound returns whether the channel was accepted rather than dialed.
func (c *Channel) Inbound() bool {
	return c.inbound
}

// PeerVersion returns the version message the peer sent during the
// handshake, or nil before the handshake completes.
func (c *Channel) PeerVersion() *wire.MsgVersion {
	c.versionMtx.RLock()
	defer c.versionMtx.RUnlock()
	return c.peerVersion
}

// SetPeerVersion attaches the peer's version message to the channel.
func (c *Channel) SetPeerVersion(msg *wire.MsgVersion) {
	c.versionMtx.Lock()
	c.peerVersion = msg
	c.versionMtx.Unlock()
}

// protocolVersion returns the negotiated protocol version: the lower of ours
// and the peer's once the handshake has delivered one.
func (c *Channel) protocolVersion() uint32 {
	pver := c.settings.Protocol
	c.versionMtx.RLock()
	if v := c.peerVersion; v != nil && uint32(v.ProtocolVersion) < pver {
		pver = uint32(v.ProtocolVersion)
	}
	c.versionMtx.RUnlock()
	return pver
}

// SetOnBan installs the callback invoked when the misbehavior threshold is
// crossed.  It must be set before Start.
func (c *Channel) SetOnBan(fn func(Authority)) {
	c.onBan = fn
}

// Start spins up the channel's outbound machinery.  Reading does not begin
// until BeginReceiving.
func (c *Channel) Start() {
	c.wg.Add(2)
	go c.queueHandler()
	go c.outHandler()
}

// BeginReceiving starts the inbound read pump.  It is idempotent.
func (c *Channel) BeginReceiving() {
	c.readOnce.Do(func() {
		c.wg.Add(1)
		go c.inHandler()
	})
}

// Stopped returns whether the channel has been stopped.
func (c *Channel) Stopped() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

// StopError returns the error the channel was stopped with, or nil while the
// channel is live.
func (c *Channel) StopError() error {
	c.stopMtx.Lock()
	defer c.stopMtx.Unlock()
	return c.stopErr
}

// Stop latches the channel stopped with the given cause, closes the socket,
// fails every queued send, and — strictly after all pending completions have
// fired — notifies stop subscribers exactly once.  A nil err records a
// voluntary stop.
func (c *Channel) Stop(err error) {
	c.stopOnce.Do(func() {
		if err == nil {
			err = codeError(ErrChannelStopped)
		}

		c.stopMtx.Lock()
		c.stopErr = err
		c.stopMtx.Unlock()

		log.Debugf("Stopping channel %v: %v", c, err)

		close(c.quit)
		c.conn.Close()

		// Notify stop subscribers only after the handler goroutines
		// have drained, so every pending send completion observes its
		// error first.
		go func() {
			c.wg.Wait()
			c.notifyStop(err)
		}()
	})
}

// notifyStop fires the stop subscriptions in registration order.
func (c *Channel) notifyStop(err error) {
	c.subMtx.Lock()
	if c.notified {
		c.subMtx.Unlock()
		return
	}
	c.notified = true
	handlers := c.stopSubs
	c.stopSubs = nil
	c.subs = make(map[string][]*subscription)
	c.subMtx.Unlock()

	for _, handler := range handlers {
		handler(err)
	}
}

// Subscribe registers a handler for inbound messages of the given command.
// Handlers for one command fire in registration order; a handler returning
// false is detached.  After the channel stops no handler fires again.
func (c *Channel) Subscribe(command string, handler MessageHandler) {
	c.subMtx.Lock()
	defer c.subMtx.Unlock()
	if c.notified {
		return
	}
	c.subs[command] = append(c.subs[command], &subscription{handler: handler})
}

// SubscribeStop registers a handler which fires exactly once when the channel
// stops.  If the channel has already stopped and notified, the handler fires
// immediately with the stop cause.
func (c *Channel) SubscribeStop(handler StopHandler) {
	c.subMtx.Lock()
	if c.notified {
		c.subMtx.Unlock()
		handler(c.StopError())
		return
	}
	c.stopSubs = append(c.stopSubs, handler)
	c.subMtx.Unlock()
}

// Send queues msg for delivery to the peer.  The done callback, which may be
// nil, is invoked with the delivery result; completions fire in submission
// order.  A send on a stopped channel completes with the stop error.
func (c *Channel) Send(msg wire.Message, done func(error)) {
	if c.Stopped() {
		if done != nil {
			err := c.StopError()
			go done(err)
		}
		return
	}

	select {
	case c.sendQueue <- outMsg{msg: msg, done: done}:
	case <-c.quit:
		if done != nil {
			err := c.StopError()
			go done(err)
		}
	}
}

// Misbehaving adds howmuch to the channel's misbehavior score, a plain
// signed accumulator.  A negative value credits the peer back.  Crossing the
// ban threshold bans the peer's authority and stops the channel with a bad
// stream error.  It returns true when the channel was stopped.
func (c *Channel) Misbehaving(howmuch int32, reason string) bool {
	score := atomic.AddInt32(&c.score, howmuch)
	if score >= warnThreshold {
		log.Warnf("Misbehaving peer %v: %s -- score %d", c, reason, score)
	}
	if score < banThreshold {
		return false
	}

	if c.onBan != nil {
		c.onBan(c.authority)
	}
	c.Stop(makeError(ErrBadStream, "misbehavior threshold exceeded: "+reason))
	return true
}

// MisbehaviorScore returns the current accumulator value.
func (c *Channel) MisbehaviorScore() int32 {
	return atomic.LoadInt32(&c.score)
}

// queueHandler handles the queuing of outgoing data for the channel.  It runs
// as a muxer for outside callers so sends return quickly regardless of
// whether the channel is currently sending.  Order is preserved: the pending
// list drains strictly FIFO into the out handler.
func (c *Channel) queueHandler() {
	defer c.wg.Done()

	pending := list.New()

	// failRemaining completes every undelivered send with the stop error.
	failRemaining := func() {
		err := c.StopError()
		for e := pending.Front(); e != nil; e = e.Next() {
			om := e.Value.(outMsg)
			if om.done != nil {
				om.done(err)
			}
		}
		for {
			select {
			case om := <-c.sendQueue:
				if om.done != nil {
					om.done(err)
				}
			default:
				return
			}
		}
	}

	for {
		// Drain the front of the pending list into the out handler
		// whenever it is ready for more.
		if front := pending.Front(); front != nil {
			select {
			case <-c.quit:
				failRemaining()
				return
			case c.sendChan <- front.Value.(outMsg):
				pending.Remove(front)
				continue
			case om := <-c.sendQueue:
				pending.PushBack(om)
				continue
			}
		}

		select {
		case <-c.quit:
			failRemaining()
			return
		case om := <-c.sendQueue:
			pending.PushBack(om)
		}
	}
}

// outHandler owns all socket writes for the channel.
func (c *Channel) outHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.quit:
			return
		case om := <-c.sendChan:
			err := c.writeMessage(om.msg)
			if om.done != nil {
				om.done(err)
			}
			if err != nil {
				c.Stop(err)
				return
			}
		}
	}
}

// inHandler reads framed messages off the socket and fans them out to
// subscribers until the channel stops.
func (c *Channel) inHandler() {
	defer c.wg.Done()

	idle := c.settings.ChannelInactivity
	if idle <= 0 {
		idle = time.Hour
	}

	for {
		read := make(chan readMsg, 1)
		go func() {
			n, msg, _, err := wire.ReadMessageN(c.conn,
				c.protocolVersion(), c.settings.Net)
			read <- readMsg{msg: msg, n: n, err: err}
		}()

		select {
		case <-c.quit:
			return
		case rm := <-read:
			if !c.handleRead(rm) {
				return
			}
		case <-time.After(idle):
			log.Debugf("Channel %v idle for %v -- stopping", c, idle)
			c.Stop(codeError(ErrChannelTimeout))
			return
		}
	}
}

// handleRead processes the result of a single framed read and reports
// whether the read pump should continue.
func (c *Channel) handleRead(rm readMsg) bool {
	if rm.err != nil {
		// Unknown messages are tolerated for forward compatibility;
		// everything else poisons the stream.
		if rm.err == wire.ErrUnknownMessage {
			log.Debugf("Ignoring unknown message from %v", c)
			return true
		}

		if c.Stopped() || rm.err == io.EOF {
			c.Stop(codeError(ErrChannelStopped))
			return false
		}

		if _, ok := rm.err.(*wire.MessageError); ok {
			log.Debugf("Malformed frame from %v: %v", c, rm.err)
			c.Stop(makeError(ErrBadStream, rm.err.Error()))
			return false
		}

		c.Stop(rm.err)
		return false
	}

	c.statsMtx.Lock()
	c.bytesReceived += uint64(rm.n)
	c.lastRecv = time.Now()
	c.statsMtx.Unlock()

	log.Tracef("%v", newLogClosure(func() string {
		return "Received " + rm.msg.Command() + " from " + c.String() +
			"\n" + spew.Sdump(rm.msg)
	}))

	c.dispatch(rm.msg)
	return true
}

// dispatch fans a message out to the command's subscribers in registration
// order, dropping subscriptions whose handler returns false.
func (c *Channel) dispatch(msg wire.Message) {
	command := msg.Command()

	c.subMtx.Lock()
	handlers := c.subs[command]
	c.subMtx.Unlock()

	if len(handlers) == 0 {
		log.Debugf("No subscriber for %v from %v", command, c)
		return
	}

	var detached []*subscription
	for _, sub := range handlers {
		if !sub.handler(msg) {
			detached = append(detached, sub)
		}
	}

	if len(detached) == 0 {
		return
	}

	c.subMtx.Lock()
	live := c.subs[command][:0]
	for _, sub := range c.subs[command] {
		keep := true
		for _, gone := range detached {
			if sub == gone {
				keep = false
				break
			}
		}
		if keep {
			live = append(live, sub)
		}
	}
	c.subs[command] = live
	c.subMtx.Unlock()
}

// writeMessage frames and writes a single message to the socket.
func (c *Channel) writeMessage(msg wire.Message) error {
	log.Tracef("%v", newLogClosure(func() string {
		return "Sending " + msg.Command() + " to " + c.String()
	}))

	n, err := wire.WriteMessageN(c.conn, msg, c.protocolVersion(),
		c.settings.Net)

	c.statsMtx.Lock()
	c.bytesSent += uint64(n)
	c.lastSend = time.Now()
	c.statsMtx.Unlock()

	return err
}

// BytesReceived returns the total number of bytes read from the peer.
func (c *Channel) BytesReceived() uint64 {
	c.statsMtx.RLock()
	defer c.statsMtx.RUnlock()
	return c.bytesReceived
}

// BytesSent returns the total number of bytes written to the peer.
func (c *Channel) BytesSent() uint64 {
	c.statsMtx.RLock()
	defer c.statsMtx.RUnlock()
	return c.bytesSent
}
