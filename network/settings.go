// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/mvs-org/mvsd/wire"
)

// Authority identifies a peer's listening socket as a (host, port) pair,
// independent of its transient services bitmask.
type Authority struct {
	Host string
	Port uint16
}

// String returns the authority in host:port form.
func (a Authority) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IsZero returns whether the authority is the zero value.
func (a Authority) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// NetAddress converts the authority to a wire network address carrying the
// given services.
func (a Authority) NetAddress(services wire.ServiceFlag) *wire.NetAddress {
	ip := net.ParseIP(a.Host)
	if ip == nil {
		ip = net.IPv4zero
	}
	return wire.NewNetAddressIPPort(ip, a.Port, services)
}

// ParseAuthority parses a host:port string into an Authority.
func ParseAuthority(s string) (Authority, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Authority{}, fmt.Errorf("malformed authority %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Authority{}, fmt.Errorf("malformed port in %q: %w", s, err)
	}
	return Authority{Host: host, Port: uint16(port)}, nil
}

// AuthorityFromAddr extracts an Authority from a network address.
func AuthorityFromAddr(addr net.Addr) Authority {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Authority{}
	}
	port, _ := strconv.ParseUint(portStr, 10, 16)
	return Authority{Host: host, Port: uint16(port)}
}

// AuthorityFromNetAddress extracts an Authority from a wire network address.
func AuthorityFromNetAddress(na *wire.NetAddress) Authority {
	return Authority{Host: na.IP.String(), Port: na.Port}
}

// Settings is the configuration surface the networking core consumes.  It is
// populated by the application from whatever configuration mechanism it uses;
// the core never parses configuration itself.
type Settings struct {
	// Net identifies which Metaverse network messages belong to.
	Net wire.MetaverseNet

	// Protocol is the advertised protocol version.
	Protocol uint32

	// Services is the local services bitmask advertised in the version
	// handshake.
	Services wire.ServiceFlag

	// UserAgent is the user agent advertised in the version handshake.
	UserAgent string

	// RelayTransactions indicates the remote peer should announce
	// transactions to us.
	RelayTransactions bool

	// HostPoolCapacity bounds the number of known peer addresses retained.
	// Zero disables seeding entirely.
	HostPoolCapacity uint32

	// Seeds are contacted to bootstrap the host pool when it is empty.
	Seeds []Authority

	// Self is the authority to advertise to peers.  A zero port means
	// "don't advertise".
	Self Authority

	// OutboundConnections caps concurrent outbound channels.
	OutboundConnections uint32

	// InboundConnections caps concurrent inbound channels.  Zero disables
	// the acceptor.
	InboundConnections uint32

	// ManualAttemptLimit caps retries for manually configured peers.
	// Zero retries forever.
	ManualAttemptLimit uint32

	// Peers are manually configured peer endpoints.
	Peers []Authority

	// ConnectTimeout bounds an outbound dial.
	ConnectTimeout time.Duration

	// ChannelHandshake bounds the version negotiation.
	ChannelHandshake time.Duration

	// ChannelGermination bounds a seed channel's address harvest.
	ChannelGermination time.Duration

	// ChannelHeartbeat is the ping cadence; a pong must arrive before the
	// next beat.
	ChannelHeartbeat time.Duration

	// ChannelInactivity bounds the time without any inbound traffic on a
	// channel before it is dropped.
	ChannelInactivity time.Duration

	// Blacklist lists CIDR ranges which are never dialed and whose inbound
	// connections are dropped.
	Blacklist []string

	// Proxy optionally routes outbound dials through a SOCKS5 proxy given
	// as host:port.
	Proxy string

	// HostsFile optionally persists the host pool across restarts.
	HostsFile string
}

// DefaultSettings returns the settings used when the application does not
// override them.
func DefaultSettings() *Settings {
	return &Settings{
		Net:                 wire.MainNet,
		Protocol:            wire.ProtocolVersion,
		Services:            wire.SFNodeNetwork,
		UserAgent:           wire.DefaultUserAgent,
		RelayTransactions:   true,
		HostPoolCapacity:    1000,
		OutboundConnections: 8,
		InboundConnections:  128,
		ManualAttemptLimit:  0,
		ConnectTimeout:      5 * time.Second,
		ChannelHandshake:    30 * time.Second,
		ChannelGermination:  30 * time.Second,
		ChannelHeartbeat:    5 * time.Minute,
		ChannelInactivity:   30 * time.Minute,
	}
}
