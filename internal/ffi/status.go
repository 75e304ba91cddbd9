// Package ffi implements the stable C ABI facade: a thin wrapper around
// the parameter engine that validates instance handles, converts errors
// to a small status enum, and follows the (buffer, max_len, out_len)
// string/blob marshalling convention a C caller expects. The actual cgo
// export shim lives in cmd/paramstoreffi; this package holds the logic
// so it can be unit tested without cgo.
package ffi

import (
	"errors"
)

// Status mirrors two-value C ABI status enum.
type Status int32

const (
	StatusOk Status = iota
	StatusError
)

// statusFor classifies an engine error into the C ABI's binary status.
// The core distinguishes error kinds (ErrConst, ErrValidation,...)
// internally; the C ABI boundary only ever reports Ok or Error — callers
// needing the reason should use the richer Go API directly.
func statusFor(err error) Status {
	if err == nil {
		return StatusOk
	}
	return StatusError
}

var (
	// ErrInvalidHandle is returned (and mapped to StatusError) when a
	// caller presents a handle that was never registered or was already
	// released. Instance pointers are validated before use; a null or
	// unrecognized pointer is an error, never a crash.
	ErrInvalidHandle = errors.New("ffi: invalid instance handle")
)
