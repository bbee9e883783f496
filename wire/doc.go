// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the Metaverse peer-to-peer wire protocol.

Metaverse extends the Bitcoin protocol, so the framing is identical: every
message begins with a 24-byte header consisting of the network magic, a
12-byte null-padded command, the payload length, and a checksum computed as
the first four bytes of the double-SHA256 of the payload.  All integers are
little endian with the exception of port numbers, which follow the Bitcoin
convention of big endian.

At a high level, the package provides:

  - Message, the interface implemented by every protocol message
  - ReadMessageN/WriteMessageN for reading and writing framed messages with
    byte accounting
  - Concrete types for the messages the sync core speaks: version, verack,
    ping, pong, getaddr, addr, getblocks, getdata, inv, block and reject

Errors returned by this package are the raw underlying I/O error,
ErrUnknownMessage for a well-formed frame whose command is not recognized, or
a *MessageError wrapping a violation of a protocol rule (bad magic, oversize
payload, checksum mismatch, malformed field).  Callers use the distinction to
decide whether the stream itself is poisoned.
*/
package wire
