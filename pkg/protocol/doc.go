// Package protocol implements the nsbus wire framing.
//
// A frame carries one namespace and one payload. The namespace is a
// dot-delimited list of segments ("person.name.first"); the payload is any
// value the configured serializer can encode. Many namespaces share a single
// WebSocket connection, one frame per binary message.
//
// # Wire Format
//
// A frame is a serialized array whose last element is the payload and whose
// leading elements are the namespace segments:
//
//	["person", "name", {"first": "John", "last": "Smith"}]
//
// decodes to namespace "person.name" with the map as payload. An array with a
// single element is a namespace without payload (payload is nil). The default
// serializer is MessagePack.
//
// # Control Namespaces
//
//   - connect (server → client): payload is the connection id
//   - reconnect (server → client): payload is the connection id
//   - _sub (client → server): payload is a pattern or a list of patterns
//   - _unsub (client → server): payload is a pattern
//
// # Decoding
//
// Unpack never fails loudly. Bytes that do not decode to a non-empty array,
// or whose segments leave an empty namespace segment, are reported as absent
// and callers drop them.
package protocol
