// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"
)

// TestVarIntWire tests wire encode and decode for variable length integers
// across the discriminant boundaries.
func TestVarIntWire(t *testing.T) {
	pver := ProtocolVersion

	tests := []struct {
		in  uint64 // Value to encode
		buf []byte // Wire encoding
	}{
		// Single byte
		{0, []byte{0x00}},
		// Max single byte
		{0xfc, []byte{0xfc}},
		// Min 2-byte
		{0xfd, []byte{0xfd, 0xfd, 0x00}},
		// Max 2-byte
		{0xffff, []byte{0xfd, 0xff, 0xff}},
		// Min 4-byte
		{0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
		// Max 4-byte
		{0xffffffff, []byte{0xfe, 0xff, 0xff, 0xff, 0xff}},
		// Min 8-byte
		{0x100000000,
			[]byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		var buf bytes.Buffer
		err := WriteVarInt(&buf, pver, test.in)
		if err != nil {
			t.Errorf("WriteVarInt #%d error %v", i, err)
			continue
		}
		if !bytes.Equal(buf.Bytes(), test.buf) {
			t.Errorf("WriteVarInt #%d\n got: %x want: %x", i,
				buf.Bytes(), test.buf)
			continue
		}

		rbuf := bytes.NewReader(test.buf)
		val, err := ReadVarInt(rbuf, pver)
		if err != nil {
			t.Errorf("ReadVarInt #%d error %v", i, err)
			continue
		}
		if val != test.in {
			t.Errorf("ReadVarInt #%d got: %d want: %d", i, val,
				test.in)
		}
	}
}

// TestVarIntNonCanonical ensures variable length integers that are not
// encoded canonically are rejected.
func TestVarIntNonCanonical(t *testing.T) {
	pver := ProtocolVersion

	tests := []struct {
		name string
		in   []byte
	}{
		{"0 encoded with 3 bytes", []byte{0xfd, 0x00, 0x00}},
		{"max single-byte encoded with 3 bytes", []byte{0xfd, 0xfc, 0x00}},
		{"0 encoded with 5 bytes", []byte{0xfe, 0x00, 0x00, 0x00, 0x00}},
		{"0 encoded with 9 bytes", []byte{0xff, 0, 0, 0, 0, 0, 0, 0, 0}},
	}

	for i, test := range tests {
		rbuf := bytes.NewReader(test.in)
		val, err := ReadVarInt(rbuf, pver)
		if _, ok := err.(*MessageError); !ok {
			t.Errorf("ReadVarInt #%d (%s) unexpected result %d, "+
				"err %v", i, test.name, val, err)
		}
	}
}

// TestVarStringWire tests wire encode and decode for variable length strings.
func TestVarStringWire(t *testing.T) {
	pver := ProtocolVersion

	str256 := string(bytes.Repeat([]byte{'t'}, 256))
	tests := []struct {
		in  string
		buf []byte
	}{
		{"", []byte{0x00}},
		{"Test", append([]byte{0x04}, []byte("Test")...)},
		{str256, append([]byte{0xfd, 0x00, 0x01},
			[]byte(str256)...)},
	}

	for i, test := range tests {
		var buf bytes.Buffer
		err := WriteVarString(&buf, pver, test.in)
		if err != nil {
			t.Errorf("WriteVarString #%d error %v", i, err)
			continue
		}
		if !bytes.Equal(buf.Bytes(), test.buf) {
			t.Errorf("WriteVarString #%d\n got: %x want: %x", i,
				buf.Bytes(), test.buf)
			continue
		}

		rbuf := bytes.NewReader(test.buf)
		val, err := ReadVarString(rbuf, pver, MaxMessagePayload)
		if err != nil {
			t.Errorf("ReadVarString #%d error %v", i, err)
			continue
		}
		if val != test.in {
			t.Errorf("ReadVarString #%d got: %s want: %s", i, val,
				test.in)
		}
	}

	// Bounded reads refuse oversized strings before allocating.
	rbuf := bytes.NewReader([]byte{0xfd, 0x00, 0x01})
	if _, err := ReadVarString(rbuf, pver, 255); err == nil {
		t.Errorf("ReadVarString did not enforce the bound")
	}
}
