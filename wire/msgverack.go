// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgVerAck defines a verack message which is used for a peer to acknowledge
// a version message (MsgVersion) after it has used the information to
// negotiate parameters.  It implements the Message interface.
//
// This message has no payload.
type MsgVerAck struct{}

// Decode decodes r using the protocol version pver into the receiver.
func (msg *MsgVerAck) Decode(r io.Reader, pver uint32) error {
	return nil
}

// Encode encodes the receiver to w using the protocol version pver.
func (msg *MsgVerAck) Encode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgVerAck) Command() string {
	return CmdVerAck
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgVerAck) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgVerAck returns a new verack message that conforms to the Message
// interface.
func NewMsgVerAck() *MsgVerAck {
	return &MsgVerAck{}
}
