// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ProtocolVersion is the latest protocol version this package supports
	// and advertises.
	ProtocolVersion uint32 = 70012

	// RelayVersion is the protocol version which added the relay flag to
	// the version message.
	RelayVersion uint32 = 70001

	// RejectVersion is the protocol version which added the reject message.
	RejectVersion uint32 = 70002

	// UTXOVersion is the protocol version which added the getutxo service
	// bit.
	UTXOVersion uint32 = 70004

	// BloomVersion is the protocol version which added the bloom filter
	// service bit.
	BloomVersion uint32 = 70011
)

// ServiceFlag identifies services supported by a Metaverse node.
type ServiceFlag uint64

const (
	// SFNodeNetwork is a flag used to indicate a node is capable of serving
	// the full block chain.
	SFNodeNetwork ServiceFlag = 1 << iota

	// SFNodeUTXO is a flag used to indicate a node is capable of responding
	// to the getutxo protocol request.
	SFNodeUTXO

	// SFNodeBloom is a flag used to indicate a node is capable and willing
	// to handle bloom-filtered connections.
	SFNodeBloom
)

// serviceFlagNames pairs each known service bit with its constant name, in
// bit order, so String renders deterministically.
var serviceFlagNames = []struct {
	flag ServiceFlag
	name string
}{
	{SFNodeNetwork, "SFNodeNetwork"},
	{SFNodeUTXO, "SFNodeUTXO"},
	{SFNodeBloom, "SFNodeBloom"},
}

// String returns the ServiceFlag in human-readable form: the known bits by
// name, pipe separated, with any unrecognized remainder rendered once in hex
// at the end.
func (f ServiceFlag) String() string {
	if f == 0 {
		return "0x0"
	}

	parts := make([]string, 0, len(serviceFlagNames)+1)
	rest := f
	for _, entry := range serviceFlagNames {
		if rest&entry.flag != 0 {
			parts = append(parts, entry.name)
			rest &^= entry.flag
		}
	}
	if rest != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(parts, "|")
}

// MetaverseNet represents which Metaverse network a message belongs to.
type MetaverseNet uint32

// Constants used to indicate the message's network.  They can also be used to
// seek to the next message when a stream's state is unknown, but this is
// unreliable because the magic values are not guaranteed to not appear within
// the payload.
const (
	// MainNet represents the main Metaverse network.
	MainNet MetaverseNet = 0x4d53564d

	// TestNet represents the Metaverse test network.
	TestNet MetaverseNet = 0x73766d74
)

// String returns the MetaverseNet in human-readable form.  Unknown magic
// values render in hex, since that is how they appear in captures.
func (n MetaverseNet) String() string {
	switch n {
	case MainNet:
		return "MainNet"
	case TestNet:
		return "TestNet"
	}
	return fmt.Sprintf("MetaverseNet(%#08x)", uint32(n))
}
