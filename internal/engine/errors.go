package engine

import "errors"

// Error kinds the engine raises.
var (
	ErrInvalidInstance = errors.New("engine: invalid or stale instance")
	ErrLockTimeout = errors.New("engine: lock acquisition timed out")
	ErrInvalidID = errors.New("engine: parameter id out of range")
	ErrConst = errors.New("engine: parameter is const")
	ErrReadonly = errors.New("engine: parameter is readonly from the external surface")
	ErrInternal = errors.New("engine: parameter is internal, not exposed externally")
	ErrValidation = errors.New("engine: value failed validation")
	ErrTypeMismatch = errors.New("engine: value type does not match parameter type")
	ErrIO = errors.New("engine: durable store I/O failure")
	ErrBusy = errors.New("engine: durable store busy timeout exceeded")
)
