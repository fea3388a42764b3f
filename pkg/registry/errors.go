package registry

import "errors"

var (
	// ErrUnknownConnection is returned for ids with no registry entry.
	ErrUnknownConnection = errors.New("registry: unknown connection")

	// ErrInvalidSnapshot is returned when snapshot data cannot be decoded.
	ErrInvalidSnapshot = errors.New("registry: invalid snapshot")
)
