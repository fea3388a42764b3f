package protocol

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeFunc serializes a frame array into bytes.
type EncodeFunc func(v any) ([]byte, error)

// DecodeFunc deserializes bytes into a generic value. Arrays must come back
// as []any for the codec to recognize them as frames.
type DecodeFunc func(data []byte) (any, error)

// Serializer is the encode/decode pair used by a Codec.
type Serializer struct {
	Encode EncodeFunc
	Decode DecodeFunc
}

// MsgpackSerializer returns the default MessagePack serializer.
//
// Numbers decode loosely (int64, uint64, float64) and maps decode to
// map[string]any, so payloads come back in a small, predictable set of
// types regardless of the encoded width.
func MsgpackSerializer() Serializer {
	return Serializer{
		Encode: msgpack.Marshal,
		Decode: decodeMsgpack,
	}
}

func decodeMsgpack(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.DecodeInterfaceLoose()
}
