// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"net"
	"strconv"
	"sync/atomic"
)

// Acceptor listens for inbound connections, producing channels.
type Acceptor struct {
	settings *Settings
	banlist  *BanList
	listener net.Listener
	stopped  int32
}

// NewAcceptor returns an acceptor for the given settings and ban list.
func NewAcceptor(settings *Settings, banlist *BanList) *Acceptor {
	return &Acceptor{
		settings: settings,
		banlist:  banlist,
	}
}

// Listen binds the acceptor to the given TCP port on all interfaces.
func (a *Acceptor) Listen(port uint16) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("",
		strconv.Itoa(int(port))))
	if err != nil {
		return makeError(ErrOperationFailed, "listen failed: "+err.Error())
	}
	a.listener = listener
	return nil
}

// Accept runs the accept loop, invoking handler for each inbound connection
// until the acceptor stops.  Connections from blocked addresses are closed
// without producing a channel.  Accept blocks and is normally run on its own
// goroutine.
func (a *Acceptor) Accept(handler ChannelHandler) {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&a.stopped) != 0 {
				handler(codeError(ErrServiceStopped), nil)
				return
			}
			log.Errorf("Accept failed: %v", err)
			handler(makeError(ErrAcceptFailed, err.Error()), nil)
			return
		}

		authority := AuthorityFromAddr(conn.RemoteAddr())
		if a.banlist != nil && a.banlist.Blocked(authority) {
			log.Debugf("Dropping inbound connection from blocked "+
				"address %v", authority)
			conn.Close()
			continue
		}

		channel, err := NewChannel(conn, a.settings, true)
		if err != nil {
			conn.Close()
			handler(err, nil)
			continue
		}

		channel.Start()
		handler(nil, channel)
	}
}

// Stop closes the listener, terminating the accept loop.
func (a *Acceptor) Stop() {
	atomic.StoreInt32(&a.stopped, 1)
	if a.listener != nil {
		a.listener.Close()
	}
}
