// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "io"

// MsgGetAddr implements the Message interface and represents a getaddr
// message.  It is used to request a list of known active peers on the network
// from a peer to help identify potential nodes.  The list is returned via one
// or more addr messages (MsgAddr).
//
// This message has no payload.
type MsgGetAddr struct{}

// Decode decodes r using the protocol version pver into the receiver.
func (msg *MsgGetAddr) Decode(r io.Reader, pver uint32) error {
	return nil
}

// Encode encodes the receiver to w using the protocol version pver.
func (msg *MsgGetAddr) Encode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgGetAddr) Command() string {
	return CmdGetAddr
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgGetAddr) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgGetAddr returns a new getaddr message that conforms to the Message
// interface.
func NewMsgGetAddr() *MsgGetAddr {
	return &MsgGetAddr{}
}
