// Copyright (c) 2018-2024 The mvsd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package network

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of network error.  The numeric values are part
// of the external interface and must remain stable.
type ErrorCode int

// These constants are used to identify a specific network Error.
const (
	// ErrChannelStopped indicates a channel was stopped voluntarily.
	ErrChannelStopped ErrorCode = iota + 1

	// ErrChannelTimeout indicates a bounded operation on a channel did not
	// complete within its deadline.
	ErrChannelTimeout

	// ErrAcceptFailed indicates a channel could not be registered due to a
	// pending-nonce conflict or a detected self-connection.
	ErrAcceptFailed

	// ErrAddressBlocked indicates the peer address is banned or matches a
	// configured blacklist entry.
	ErrAddressBlocked

	// ErrBadStream indicates a malformed frame was received or the peer
	// crossed the misbehavior threshold.
	ErrBadStream

	// ErrOperationFailed indicates a logical failure, such as seeding with
	// no usable seeds.
	ErrOperationFailed

	// ErrNotFound indicates a requested entry does not exist, such as
	// fetching from an empty host pool.
	ErrNotFound

	// ErrNotSatisfied indicates assigned work was stolen by another slot.
	ErrNotSatisfied

	// ErrOperationCanceled indicates the operation was abandoned due to
	// shutdown.
	ErrOperationCanceled

	// ErrFileSystem indicates a failure reported by a storage collaborator.
	ErrFileSystem

	// ErrServiceStopped indicates the owning service is no longer running.
	ErrServiceStopped
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrChannelStopped:    "channel stopped",
	ErrChannelTimeout:    "channel timed out",
	ErrAcceptFailed:      "accept failed",
	ErrAddressBlocked:    "address blocked",
	ErrBadStream:         "bad stream",
	ErrOperationFailed:   "operation failed",
	ErrNotFound:          "object does not exist",
	ErrNotSatisfied:      "not satisfied",
	ErrOperationCanceled: "operation canceled",
	ErrFileSystem:        "file system error",
	ErrServiceStopped:    "service stopped",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error identifies a network error.  It carries a stable numeric code along
// with a short message suitable for callers which surface errors to users.
type Error struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return e.ErrorCode.String()
}

// makeError creates an Error given a set of arguments.
func makeError(c ErrorCode, desc string) Error {
	return Error{ErrorCode: c, Description: desc}
}

// codeError creates an Error for the given code with the default description.
func codeError(c ErrorCode) Error {
	return Error{ErrorCode: c, Description: c.String()}
}

// MakeError creates an Error given a set of arguments.
func MakeError(c ErrorCode, desc string) Error {
	return makeError(c, desc)
}

// CodeError creates an Error for the given code with the default description.
func CodeError(c ErrorCode) Error {
	return codeError(c)
}

// CodeOf returns the ErrorCode of err when err wraps a network Error and zero
// otherwise.
func CodeOf(err error) ErrorCode {
	var e Error
	if errors.As(err, &e) {
		return e.ErrorCode
	}
	return 0
}

// IsCode returns whether err wraps a network Error with the given code.
func IsCode(err error, c ErrorCode) bool {
	return CodeOf(err) == c
}

// response is the JSON shape consumed by command-line callers.
type response struct {
	Code   int         `json:"code"`
	Error  string      `json:"error"`
	Result interface{} `json:"result"`
}

// MarshalResponse renders a (result, error) pair into the stable JSON shape
// consumed by command-line callers: {"code":0,"error":"","result":...} on
// success and {"code":N,"error":"...","result":null} on failure.
func MarshalResponse(result interface{}, err error) ([]byte, error) {
	if err != nil {
		return json.Marshal(&response{
			Code:   int(CodeOf(err)),
			Error:  err.Error(),
			Result: nil,
		})
	}
	return json.Marshal(&response{Code: 0, Error: "", Result: result})
}
