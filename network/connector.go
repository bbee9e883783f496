// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"net"
	"sync/atomic"

	"github.com/btcsuite/go-socks/socks"
)

// ChannelHandler is invoked with the result of an asynchronous connect or
// accept: a started channel on success, an error otherwise.
type ChannelHandler func(err error, channel *Channel)

// Connector dials outbound peers, producing channels.  Dials are asynchronous;
// direct dials are bounded by the configured connect timeout, while dials
// through a SOCKS5 proxy are not.  Blocked addresses fail without a socket
// ever being opened.
type Connector struct {
	settings *Settings
	banlist  *BanList
	stopped  int32
}

// NewConnector returns a connector for the given settings and ban list.
func NewConnector(settings *Settings, banlist *BanList) *Connector {
	return &Connector{
		settings: settings,
		banlist:  banlist,
	}
}

// Stop causes all subsequent connects to fail with a service stopped error.
func (x *Connector) Stop() {
	atomic.StoreInt32(&x.stopped, 1)
}

func (x *Connector) isStopped() bool {
	return atomic.LoadInt32(&x.stopped) != 0
}

// Connect dials the authority and invokes handler with the resulting channel.
// The returned channel's outbound machinery is started; reading has not
// begun, which leaves the caller a window to attach handshake subscriptions.
func (x *Connector) Connect(authority Authority, handler ChannelHandler) {
	if x.isStopped() {
		handler(codeError(ErrServiceStopped), nil)
		return
	}

	if x.banlist != nil && x.banlist.Blocked(authority) {
		log.Debugf("Refusing to dial blocked address %v", authority)
		handler(codeError(ErrAddressBlocked), nil)
		return
	}

	go func() {
		conn, err := x.dial(authority)
		if err != nil {
			handler(err, nil)
			return
		}

		if x.isStopped() {
			conn.Close()
			handler(codeError(ErrServiceStopped), nil)
			return
		}

		channel, err := NewChannel(conn, x.settings, false)
		if err != nil {
			conn.Close()
			handler(err, nil)
			return
		}

		channel.Start()
		handler(nil, channel)
	}()
}

// dial opens the TCP connection, optionally through the configured SOCKS5
// proxy.
func (x *Connector) dial(authority Authority) (net.Conn, error) {
	if x.settings.Proxy != "" {
		proxy := &socks.Proxy{
			Addr: x.settings.Proxy,
		}
		return proxy.Dial("tcp", authority.String())
	}
	return net.DialTimeout("tcp", authority.String(), x.settings.ConnectTimeout)
}
