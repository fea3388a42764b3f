package client

import "errors"

var (
	// ErrReservedNamespace is returned when publishing or subscribing to a
	// name the client reserves for its own lifecycle events.
	ErrReservedNamespace = errors.New("client: reserved namespace")

	// ErrNotConnected is returned when sending without an open connection.
	ErrNotConnected = errors.New("client: not connected")

	// ErrAlreadyConnected is returned by Connect on a connecting or open
	// client.
	ErrAlreadyConnected = errors.New("client: already connected")

	// ErrClosed is returned when Close ran while a dial was in flight.
	ErrClosed = errors.New("client: closed")

	// ErrInvalidURL is returned when the server URL cannot be parsed.
	ErrInvalidURL = errors.New("client: invalid url")

	// ErrReconnectFailed is emitted with EventError when
	// BackoffConfig.MaxAttempts is exhausted.
	ErrReconnectFailed = errors.New("client: reconnect attempts exhausted")
)
