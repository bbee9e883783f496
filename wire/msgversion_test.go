// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"net"
	"strings"
	"testing"
)

// TestVersion tests the MsgVersion API.
func TestVersion(t *testing.T) {
	pver := ProtocolVersion

	you := &NetAddress{Services: SFNodeNetwork,
		IP: net.ParseIP("192.168.0.1"), Port: 5251}
	me := &NetAddress{Services: SFNodeNetwork,
		IP: net.ParseIP("127.0.0.1"), Port: 5251}
	nonce, err := RandomUint64()
	if err != nil {
		t.Errorf("RandomUint64: error generating nonce: %v", err)
	}
	msg := NewMsgVersion(me, you, nonce, 100)
	if msg.ProtocolVersion != int32(pver) {
		t.Errorf("NewMsgVersion: wrong protocol version - got %v, "+
			"want %v", msg.ProtocolVersion, pver)
	}

	// Ensure we get the correct values back out.
	if !msg.AddrMe.IP.Equal(me.IP) {
		t.Errorf("NewMsgVersion: wrong local address - got %v, "+
			"want %v", msg.AddrMe.IP, me.IP)
	}
	if msg.Nonce != nonce {
		t.Errorf("NewMsgVersion: wrong nonce - got %v, want %v",
			msg.Nonce, nonce)
	}
	if msg.UserAgent != DefaultUserAgent {
		t.Errorf("NewMsgVersion: wrong user agent - got %v, want %v",
			msg.UserAgent, DefaultUserAgent)
	}
	if msg.LastBlock != 100 {
		t.Errorf("NewMsgVersion: wrong last block - got %v, want %v",
			msg.LastBlock, 100)
	}

	// Version message should not have any services set by default.
	if msg.HasService(SFNodeUTXO) {
		t.Errorf("HasService: SFNodeUTXO service is set")
	}

	// Ensure adding the full service node flag works.
	msg.AddService(SFNodeNetwork)
	if msg.Services != SFNodeNetwork {
		t.Errorf("AddService: wrong services - got %v, want %v",
			msg.Services, SFNodeNetwork)
	}
	if !msg.HasService(SFNodeNetwork) {
		t.Errorf("HasService: SFNodeNetwork service not set")
	}

	// Ensure the command is expected value.
	wantCmd := "version"
	if cmd := msg.Command(); cmd != wantCmd {
		t.Errorf("NewMsgVersion: wrong command - got %v want %v",
			cmd, wantCmd)
	}

	// Ensure user agents longer than the max are rejected.
	msg.UserAgent = "/" + strings.Repeat("t", MaxUserAgentLen) + "/"
	var buf bytes.Buffer
	if err := msg.Encode(&buf, pver); err == nil {
		t.Errorf("Encode: did not reject oversized user agent")
	}
}

// TestVersionRelayEncoding ensures the relay flag is only encoded for
// protocol versions which know it.
func TestVersionRelayEncoding(t *testing.T) {
	you := &NetAddress{Services: SFNodeNetwork,
		IP: net.ParseIP("192.168.0.1"), Port: 5251}
	me := &NetAddress{Services: SFNodeNetwork,
		IP: net.ParseIP("127.0.0.1"), Port: 5251}
	msg := NewMsgVersion(me, you, 1, 0)
	msg.DisableRelayTx = true

	var newBuf bytes.Buffer
	if err := msg.Encode(&newBuf, RelayVersion); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var oldBuf bytes.Buffer
	if err := msg.Encode(&oldBuf, RelayVersion-1); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// The relay flag is exactly one byte.
	if newBuf.Len() != oldBuf.Len()+1 {
		t.Errorf("relay flag encoding - new %d bytes, old %d bytes",
			newBuf.Len(), oldBuf.Len())
	}

	// A decode of the old encoding defaults to relaying.
	var decoded MsgVersion
	if err := decoded.Decode(bytes.NewBuffer(oldBuf.Bytes()),
		RelayVersion-1); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.DisableRelayTx {
		t.Errorf("Decode: relay disabled without the wire field")
	}

	// A decode of the new encoding observes the flag.
	decoded = MsgVersion{}
	if err := decoded.Decode(bytes.NewBuffer(newBuf.Bytes()),
		RelayVersion); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.DisableRelayTx {
		t.Errorf("Decode: relay flag lost")
	}
}
