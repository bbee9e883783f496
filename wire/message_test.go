// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
)

// makeHeader is a convenience function to make a message header in the form
// of a byte slice.  It is used to force errors when reading messages.
func makeHeader(mnet MetaverseNet, command string,
	payloadLen uint32, checksum uint32) []byte {

	// The length of a message header is the magic 4 bytes + command 12
	// bytes + payload length 4 bytes + checksum 4 bytes.
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf, uint32(mnet))
	copy(buf[4:], []byte(command))
	binary.LittleEndian.PutUint32(buf[16:], payloadLen)
	binary.LittleEndian.PutUint32(buf[20:], checksum)
	return buf
}

// TestMessage tests the Read/WriteMessage API round trip for every message
// type the sync core speaks.
func TestMessage(t *testing.T) {
	pver := ProtocolVersion

	// Create the various types of messages to test.  The version message
	// carries its addresses without timestamps on the wire, so build them
	// with zero timestamps to survive the round-trip comparison.
	you := &NetAddress{Services: SFNodeNetwork,
		IP: net.ParseIP("192.168.0.1"), Port: 5251}
	me := &NetAddress{Services: SFNodeNetwork,
		IP: net.ParseIP("127.0.0.1"), Port: 5251}
	msgVersion := NewMsgVersion(me, you, 123123, 0)

	stamped := NewNetAddressTimestamp(time.Unix(0x495fab29, 0),
		SFNodeNetwork, net.ParseIP("192.168.0.1"), 5251)
	msgVerAck := NewMsgVerAck()
	msgGetAddr := NewMsgGetAddr()
	msgAddr := NewMsgAddr()
	msgAddr.AddAddress(stamped)
	msgPing := NewMsgPing(123123)
	msgPong := NewMsgPong(123123)
	msgGetBlocks := NewMsgGetBlocks(&chainhash.Hash{})
	msgBlock := &testBlock
	msgInv := NewMsgInv()
	msgGetData := NewMsgGetData()
	msgReject := NewMsgReject("block", RejectDuplicate, "duplicate block")

	tests := []struct {
		in    Message      // Value to encode
		out   Message      // Expected decoded value
		pver  uint32       // Protocol version for wire encoding
		mnet  MetaverseNet // Network to use for wire encoding
		bytes int          // Expected num bytes read/written
	}{
		{msgVersion, msgVersion, pver, MainNet, 127},
		{msgVerAck, msgVerAck, pver, MainNet, 24},
		{msgGetAddr, msgGetAddr, pver, MainNet, 24},
		{msgAddr, msgAddr, pver, MainNet, 55},
		{msgPing, msgPing, pver, MainNet, 32},
		{msgPong, msgPong, pver, MainNet, 32},
		{msgGetBlocks, msgGetBlocks, pver, MainNet, 61},
		{msgBlock, msgBlock, pver, MainNet, 234},
		{msgInv, msgInv, pver, MainNet, 25},
		{msgGetData, msgGetData, pver, MainNet, 25},
		{msgReject, msgReject, pver, MainNet, 79},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		// Encode to wire format.
		var buf bytes.Buffer
		nw, err := WriteMessageN(&buf, test.in, test.pver, test.mnet)
		if err != nil {
			t.Errorf("WriteMessage #%d error %v", i, err)
			continue
		}

		// Ensure the number of bytes written match the expected value.
		if nw != test.bytes {
			t.Errorf("WriteMessage #%d unexpected num bytes "+
				"written - got %d, want %d", i, nw, test.bytes)
		}

		// Decode from wire format.
		rbuf := bytes.NewReader(buf.Bytes())
		nr, msg, _, err := ReadMessageN(rbuf, test.pver, test.mnet)
		if err != nil {
			t.Errorf("ReadMessage #%d error %v, msg %v", i, err,
				spew.Sdump(msg))
			continue
		}
		if !reflect.DeepEqual(msg, test.out) {
			t.Errorf("ReadMessage #%d\n got: %v want: %v", i,
				spew.Sdump(msg), spew.Sdump(test.out))
			continue
		}

		// Ensure the number of bytes read match the expected value.
		if nr != test.bytes {
			t.Errorf("ReadMessage #%d unexpected num bytes read - "+
				"got %d, want %d", i, nr, test.bytes)
		}
	}
}

// TestReadMessageWireErrors performs negative tests against reading wire
// messages to confirm malformed frames are rejected as expected.
func TestReadMessageWireErrors(t *testing.T) {
	pver := ProtocolVersion

	// Wire encoded bytes for a message which exceeds the max overall
	// message payload length.
	exceedMaxPayloadBytes := makeHeader(MainNet, "getaddr",
		MaxMessagePayload+1, 0)

	// Wire encoded bytes for a command which is invalid utf-8.
	badCommandBytes := makeHeader(MainNet, "bogus", 0, 0)
	badCommandBytes[4] = 0x81

	// Wire encoded bytes for a command which is valid, but not supported.
	unsupportedCommandBytes := makeHeader(MainNet, "bogus", 0, 0)

	// Wire encoded bytes for a message from the wrong network.
	wrongNetBytes := makeHeader(TestNet, "getaddr", 0, 0)

	// Wire encoded bytes for a message whose checksum does not match its
	// payload: a valid verack frame with a corrupted checksum field.
	var vabuf bytes.Buffer
	if err := WriteMessage(&vabuf, NewMsgVerAck(), pver, MainNet); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	badChecksumBytes := vabuf.Bytes()
	badChecksumBytes[20] ^= 0xff

	tests := []struct {
		buf     []byte       // Wire encoding
		pver    uint32       // Protocol version for wire encoding
		mnet    MetaverseNet // Network for wire encoding
		wantErr bool         // Expected *MessageError
	}{
		{exceedMaxPayloadBytes, pver, MainNet, true},
		{badCommandBytes, pver, MainNet, true},
		{wrongNetBytes, pver, MainNet, true},
		{badChecksumBytes, pver, MainNet, true},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		rbuf := bytes.NewReader(test.buf)
		_, _, _, err := ReadMessageN(rbuf, test.pver, test.mnet)
		if err == nil {
			t.Errorf("ReadMessage #%d unexpected success", i)
			continue
		}
		if _, ok := err.(*MessageError); ok != test.wantErr {
			t.Errorf("ReadMessage #%d wrong error type <%T> %v", i,
				err, err)
		}
	}

	// An unsupported command surfaces as ErrUnknownMessage, not a
	// *MessageError, so callers can tolerate it.
	rbuf := bytes.NewReader(unsupportedCommandBytes)
	if _, _, _, err := ReadMessageN(rbuf, pver, MainNet); err != ErrUnknownMessage {
		t.Errorf("ReadMessage unknown command - got %v, want %v", err,
			ErrUnknownMessage)
	}
}

// testBlock is a basic block with two minimal transactions, used across the
// codec tests.
var testBlock = MsgBlock{
	Header: BlockHeader{
		Version: 1,
		PrevBlock: chainhash.Hash{
			0x11, 0x22, 0x33, 0x44,
		},
		MerkleRoot: chainhash.Hash{
			0x55, 0x66, 0x77, 0x88,
		},
		Timestamp: time.Unix(0x495fab29, 0),
		Bits:      0x1d00ffff,
		Nonce:     0x9962e301,
	},
	Transactions: []*MsgTx{
		{
			Version: 1,
			TxIn: []*TxIn{
				{
					PreviousOutPoint: OutPoint{Index: 0xffffffff},
					SignatureScript:  []byte{0x04, 0x31, 0xdc, 0x00, 0x1b},
					Sequence:         0xffffffff,
				},
			},
			TxOut: []*TxOut{
				{
					Value:    0x12a05f200,
					PkScript: []byte{0x51},
				},
			},
			LockTime: 0,
		},
		{
			Version: 1,
			TxIn: []*TxIn{
				{
					PreviousOutPoint: OutPoint{
						Hash:  chainhash.Hash{0x01},
						Index: 0,
					},
					SignatureScript: []byte{0x51},
					Sequence:        0xffffffff,
				},
			},
			TxOut: []*TxOut{
				{
					Value:    0x5f5e100,
					PkScript: []byte{0x51, 0x52},
				},
			},
			LockTime: 0,
		},
	},
}
