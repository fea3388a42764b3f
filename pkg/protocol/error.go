package protocol

import "errors"

// Codec errors.
var (
	// ErrInvalidNamespace is returned when a namespace is empty or contains
	// an empty segment.
	ErrInvalidNamespace = errors.New("protocol: invalid namespace")

	// ErrEncode wraps serializer failures during Pack.
	ErrEncode = errors.New("protocol: encode failed")
)
