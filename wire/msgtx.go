// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// TxVersion is the current latest supported transaction version.
	TxVersion = 1

	// MaxTxInSequenceNum is the maximum sequence number the sequence field
	// of a transaction input can be.
	MaxTxInSequenceNum uint32 = 0xffffffff

	// maxTxInPerMessage is the maximum number of transactions inputs that
	// a transaction which fits into a message could possibly have.
	maxTxInPerMessage = (MaxMessagePayload / minTxInPayload) + 1

	// maxTxOutPerMessage is the maximum number of transactions outputs
	// that a transaction which fits into a message could possibly have.
	maxTxOutPerMessage = (MaxMessagePayload / minTxOutPayload) + 1

	// minTxInPayload is the minimum payload size for a transaction input.
	// PreviousOutPoint.Hash + PreviousOutPoint.Index 4 bytes + Varint for
	// SignatureScript length 1 byte + Sequence 4 bytes.
	minTxInPayload = 9 + chainhash.HashSize

	// minTxOutPayload is the minimum payload size for a transaction
	// output.  Value 8 bytes + Varint for PkScript length 1 byte.
	minTxOutPayload = 9

	// minTxPayload is the minimum payload size for a transaction.  Note
	// that any realistically usable transaction must have at least one
	// input or output, but that is a consensus rule which this package
	// does not enforce.
	minTxPayload = 10

	// maxScriptSize is the maximum length a script in a transaction input
	// or output can be.  Scripts are not evaluated here, but the bound
	// keeps a malicious peer from forcing huge allocations.
	maxScriptSize = 10000
)

// OutPoint defines a Metaverse data type that is used to track previous
// transaction outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// NewOutPoint returns a new transaction outpoint point with the provided
// hash and index.
func NewOutPoint(hash *chainhash.Hash, index uint32) *OutPoint {
	return &OutPoint{
		Hash:  *hash,
		Index: index,
	}
}

// String returns the OutPoint in the human-readable form "hash:index".
func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Hash, o.Index)
}

// TxIn defines a Metaverse transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

// NewTxIn returns a new transaction input with the provided previous outpoint
// point and signature script with a default sequence of MaxTxInSequenceNum.
func NewTxIn(prevOut *OutPoint, signatureScript []byte) *TxIn {
	return &TxIn{
		PreviousOutPoint: *prevOut,
		SignatureScript:  signatureScript,
		Sequence:         MaxTxInSequenceNum,
	}
}

// TxOut defines a Metaverse transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// NewTxOut returns a new transaction output with the provided transaction
// value and public key script.
func NewTxOut(value int64, pkScript []byte) *TxOut {
	return &TxOut{
		Value:    value,
		PkScript: pkScript,
	}
}

// MsgTx implements the Message interface and represents a transaction
// message.  Transactions are carried inside block messages during sync; the
// codec round-trips them byte for byte but performs no script evaluation or
// signature checking.
type MsgTx struct {
	Version  uint32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// AddTxIn adds a transaction input to the message.
func (msg *MsgTx) AddTxIn(ti *TxIn) {
	msg.TxIn = append(msg.TxIn, ti)
}

// AddTxOut adds a transaction output to the message.
func (msg *MsgTx) AddTxOut(to *TxOut) {
	msg.TxOut = append(msg.TxOut, to)
}

// TxHash generates the hash for the transaction.
func (msg *MsgTx) TxHash() chainhash.Hash {
	// Encode the transaction and calculate double sha256 on the result.
	// Ignore the error returns since the only way the encode could fail
	// is being out of memory or due to nil pointers, both of which would
	// cause a run-time panic.
	buf := bytes.NewBuffer(make([]byte, 0, msg.SerializeSize()))
	_ = msg.Serialize(buf)
	return chainhash.DoubleHashH(buf.Bytes())
}

// Decode decodes r using the protocol version pver into the receiver.
func (msg *MsgTx) Decode(r io.Reader, pver uint32) error {
	err := readElement(r, &msg.Version)
	if err != nil {
		return err
	}

	count, err := ReadVarInt(r, pver)
	if err != nil {
		return err
	}

	// Prevent more input transactions than could possibly fit into a
	// message.  It would be possible to cause memory exhaustion and panics
	// without a sane upper bound on this count.
	if count > uint64(maxTxInPerMessage) {
		str := fmt.Sprintf("too many input transactions to fit into "+
			"max message size [count %d, max %d]", count,
			maxTxInPerMessage)
		return messageError("MsgTx.Decode", str)
	}

	msg.TxIn = make([]*TxIn, 0, count)
	for i := uint64(0); i < count; i++ {
		ti := TxIn{}
		err = readTxIn(r, pver, &ti)
		if err != nil {
			return err
		}
		msg.TxIn = append(msg.TxIn, &ti)
	}

	count, err = ReadVarInt(r, pver)
	if err != nil {
		return err
	}

	// Prevent more output transactions than could possibly fit into a
	// message.
	if count > uint64(maxTxOutPerMessage) {
		str := fmt.Sprintf("too many output transactions to fit into "+
			"max message size [count %d, max %d]", count,
			maxTxOutPerMessage)
		return messageError("MsgTx.Decode", str)
	}

	msg.TxOut = make([]*TxOut, 0, count)
	for i := uint64(0); i < count; i++ {
		to := TxOut{}
		err = readTxOut(r, pver, &to)
		if err != nil {
			return err
		}
		msg.TxOut = append(msg.TxOut, &to)
	}

	return readElement(r, &msg.LockTime)
}

// Encode encodes the receiver to w using the protocol version pver.
func (msg *MsgTx) Encode(w io.Writer, pver uint32) error {
	err := writeElement(w, msg.Version)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, pver, uint64(len(msg.TxIn)))
	if err != nil {
		return err
	}

	for _, ti := range msg.TxIn {
		err = writeTxIn(w, pver, ti)
		if err != nil {
			return err
		}
	}

	err = WriteVarInt(w, pver, uint64(len(msg.TxOut)))
	if err != nil {
		return err
	}

	for _, to := range msg.TxOut {
		err = writeTxOut(w, pver, to)
		if err != nil {
			return err
		}
	}

	return writeElement(w, msg.LockTime)
}

// Serialize encodes the transaction to w using a format that is suitable for
// long-term storage such as a database.
func (msg *MsgTx) Serialize(w io.Writer) error {
	// At the current time, there is no difference between the wire encoding
	// at protocol version 0 and the stable long-term storage format.
	return msg.Encode(w, 0)
}

// Deserialize decodes a transaction from r into the receiver using a format
// that is suitable for long-term storage such as a database.
func (msg *MsgTx) Deserialize(r io.Reader) error {
	return msg.Decode(r, 0)
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction.
func (msg *MsgTx) SerializeSize() int {
	// Version 4 bytes + LockTime 4 bytes + serialized varint size for the
	// number of transaction inputs and outputs.
	n := 8 + VarIntSerializeSize(uint64(len(msg.TxIn))) +
		VarIntSerializeSize(uint64(len(msg.TxOut)))

	for _, txIn := range msg.TxIn {
		// Outpoint hash 32 bytes + index 4 bytes + sequence 4 bytes +
		// serialized varint size for the length of the signature
		// script + signature script bytes.
		n += 40 + VarIntSerializeSize(uint64(len(txIn.SignatureScript))) +
			len(txIn.SignatureScript)
	}

	for _, txOut := range msg.TxOut {
		// Value 8 bytes + serialized varint size for the length of the
		// public key script + public key script bytes.
		n += 8 + VarIntSerializeSize(uint64(len(txOut.PkScript))) +
			len(txOut.PkScript)
	}

	return n
}

// Command returns the protocol command string for the message.
func (msg *MsgTx) Command() string {
	return "tx"
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgTx) MaxPayloadLength(pver uint32) uint32 {
	return MaxMessagePayload
}

// NewMsgTx returns a new tx message that conforms to the Message interface.
// The return instance has a default version of TxVersion and there are no
// transaction inputs or outputs.
func NewMsgTx() *MsgTx {
	return &MsgTx{
		Version: TxVersion,
		TxIn:    make([]*TxIn, 0, 8),
		TxOut:   make([]*TxOut, 0, 8),
	}
}

// readScript reads a variable length byte array used for transaction scripts.
func readScript(r io.Reader, pver uint32, fieldName string) ([]byte, error) {
	count, err := ReadVarInt(r, pver)
	if err != nil {
		return nil, err
	}

	if count > maxScriptSize {
		str := fmt.Sprintf("%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxScriptSize)
		return nil, messageError("readScript", str)
	}

	b := make([]byte, count)
	_, err = io.ReadFull(r, b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// writeScript writes a variable length byte array used for transaction
// scripts.
func writeScript(w io.Writer, pver uint32, script []byte) error {
	err := WriteVarInt(w, pver, uint64(len(script)))
	if err != nil {
		return err
	}
	_, err = w.Write(script)
	return err
}

// readOutPoint reads the next sequence of bytes from r as an OutPoint.
func readOutPoint(r io.Reader, pver uint32, op *OutPoint) error {
	return readElements(r, &op.Hash, &op.Index)
}

// writeOutPoint encodes op to the protocol encoding for an OutPoint to w.
func writeOutPoint(w io.Writer, pver uint32, op *OutPoint) error {
	return writeElements(w, &op.Hash, op.Index)
}

// readTxIn reads the next sequence of bytes from r as a transaction input.
func readTxIn(r io.Reader, pver uint32, ti *TxIn) error {
	err := readOutPoint(r, pver, &ti.PreviousOutPoint)
	if err != nil {
		return err
	}

	ti.SignatureScript, err = readScript(r, pver, "transaction input "+
		"signature script")
	if err != nil {
		return err
	}

	return readElement(r, &ti.Sequence)
}

// writeTxIn encodes ti to the protocol encoding for a transaction input to w.
func writeTxIn(w io.Writer, pver uint32, ti *TxIn) error {
	err := writeOutPoint(w, pver, &ti.PreviousOutPoint)
	if err != nil {
		return err
	}

	err = writeScript(w, pver, ti.SignatureScript)
	if err != nil {
		return err
	}

	return writeElement(w, ti.Sequence)
}

// readTxOut reads the next sequence of bytes from r as a transaction output.
func readTxOut(r io.Reader, pver uint32, to *TxOut) error {
	err := readElement(r, &to.Value)
	if err != nil {
		return err
	}

	to.PkScript, err = readScript(r, pver, "transaction output public "+
		"key script")
	return err
}

// writeTxOut encodes to into the protocol encoding for a transaction output
// to w.
func writeTxOut(w io.Writer, pver uint32, to *TxOut) error {
	err := writeElement(w, to.Value)
	if err != nil {
		return err
	}

	return writeScript(w, pver, to.PkScript)
}
