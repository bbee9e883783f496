// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgPong implements the Message interface and represents a pong message
// which is used primarily to confirm that a connection is still valid in
// response to a ping message (MsgPing).
type MsgPong struct {
	// Unique value associated with message that is used to identify
	// specific ping message.
	Nonce uint64
}

// Decode decodes r using the protocol version pver into the receiver.
func (msg *MsgPong) Decode(r io.Reader, pver uint32) error {
	return readElement(r, &msg.Nonce)
}

// Encode encodes the receiver to w using the protocol version pver.
func (msg *MsgPong) Encode(w io.Writer, pver uint32) error {
	return writeElement(w, msg.Nonce)
}

// Command returns the protocol command string for the message.
func (msg *MsgPong) Command() string {
	return CmdPong
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgPong) MaxPayloadLength(pver uint32) uint32 {
	// Nonce 8 bytes.
	return 8
}

// NewMsgPong returns a new pong message that conforms to the Message
// interface.
func NewMsgPong(nonce uint64) *MsgPong {
	return &MsgPong{Nonce: nonce}
}
