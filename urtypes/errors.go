// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package urtypes

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrMalformedBinary indicates that the input is not a well formed
	// binary item.
	ErrMalformedBinary ErrorCode = iota

	// ErrUnexpectedTag indicates that a value carries a different tag than
	// the one required at its position, or no tag where one is required.
	ErrUnexpectedTag

	// ErrUnsupportedScriptType indicates a script expression tag that has
	// no reconstructor.
	ErrUnsupportedScriptType

	// ErrMissingField indicates that a required map field is absent.
	ErrMissingField

	// ErrInvalidField indicates a field of the wrong kind or with a value
	// out of range.
	ErrInvalidField

	// ErrInvalidKeyEncoding indicates key bytes that are not a valid
	// secp256k1 point or scalar.
	ErrInvalidKeyEncoding
)

// errorCodeStrings maps error codes to their names.
var errorCodeStrings = map[ErrorCode]string{
	ErrMalformedBinary:       "ErrMalformedBinary",
	ErrUnexpectedTag:         "ErrUnexpectedTag",
	ErrUnsupportedScriptType: "ErrUnsupportedScriptType",
	ErrMissingField:          "ErrMissingField",
	ErrInvalidField:          "ErrInvalidField",
	ErrInvalidKeyEncoding:    "ErrInvalidKeyEncoding",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}

	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error identifies a decoding error. It has an error code, a descriptive
// message and an optional underlying error.
type Error struct {
	Code ErrorCode
	Desc string
	Err  error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Desc + ": " + e.Err.Error()
	}

	return e.Desc
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// newError creates an Error given a set of arguments.
func newError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Desc: desc, Err: err}
}

// errorf creates an Error with a formatted description and no underlying
// error.
func errorf(c ErrorCode, format string, args ...any) Error {
	return newError(c, fmt.Sprintf(format, args...), nil)
}

// IsError returns whether err is an Error, or wraps one, with a matching
// error code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Code == code
}
