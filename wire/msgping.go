// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgPing implements the Message interface and represents a ping message.
//
// It is used primarily to confirm that a connection is still valid.  A
// transmission error is typically interpreted as a closed connection and that
// the peer should be removed.  The ping carries a nonce which the remote peer
// echoes back in its pong so the reply can be matched to the request.
type MsgPing struct {
	// Unique value associated with message that is used to identify
	// specific ping message.
	Nonce uint64
}

// Decode decodes r using the protocol version pver into the receiver.
func (msg *MsgPing) Decode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// Encode encodes the receiver to w using the protocol version pver.
func (msg *MsgPing) Encode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.Nonce)
}

// Command returns the protocol command string for the message.
func (msg *MsgPing) Command() string {
	return CmdPing
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgPing) MaxPayloadLength(pver uint32) uint32 {
	// Nonce 8 bytes.
	return 8
}

// NewMsgPing returns a new ping message that conforms to the Message
// interface.
func NewMsgPing(nonce uint64) *MsgPing {
	return &MsgPing{Nonce: nonce}
}
