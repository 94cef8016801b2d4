package dberrors

import "errors"

var (
	// ErrDataEmpty is returned when a non-empty batch is required.
	ErrDataEmpty = errors.New("kipdb: data empty")

	// ErrNotMatchCmd is returned when the sparse-index record of an
	// SSTable is not a Set command.
	ErrNotMatchCmd = errors.New("kipdb: command does not match")

	// ErrKeyNotFound is returned when no framed record exists at the
	// expected offset.
	ErrKeyNotFound = errors.New("kipdb: key not found")

	ErrVersionMismatch = errors.New("kipdb: unsupported table version")
)
