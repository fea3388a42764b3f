package protocol

import "fmt"

// Message is a decoded frame.
type Message struct {
	Namespace string
	Payload   any
}

// Codec packs and unpacks frames with a pluggable serializer.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	serializer Serializer
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithSerializer replaces the default MessagePack serializer. Nil functions
// in s keep their defaults.
func WithSerializer(s Serializer) CodecOption {
	return func(c *Codec) {
		if s.Encode != nil {
			c.serializer.Encode = s.Encode
		}
		if s.Decode != nil {
			c.serializer.Decode = s.Decode
		}
	}
}

// NewCodec creates a Codec.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{serializer: MsgpackSerializer()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = NewCodec()

// DefaultCodec returns the shared MessagePack codec.
func DefaultCodec() *Codec {
	return defaultCodec
}

// Pack encodes namespace and payload into a single frame.
//
// The namespace is split on the delimiter and the payload appended as the
// last array element. An error means the frame cannot be sent.
func (c *Codec) Pack(namespace string, payload any) ([]byte, error) {
	if !ValidNamespace(namespace) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, namespace)
	}
	segments := Split(namespace)
	frame := make([]any, 0, len(segments)+1)
	for _, seg := range segments {
		frame = append(frame, seg)
	}
	frame = append(frame, payload)

	data, err := c.encode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncode, namespace, err)
	}
	return data, nil
}

func (c *Codec) encode(frame []any) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("serializer panic: %v", r)
		}
	}()
	return c.serializer.Encode(frame)
}

// Unpack decodes a frame. It reports false when data does not decode to a
// non-empty array or the namespace segments do not form a valid namespace;
// it never panics.
func (c *Codec) Unpack(data []byte) (msg Message, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			msg, ok = Message{}, false
		}
	}()

	if len(data) == 0 {
		return Message{}, false
	}
	decoded, err := c.serializer.Decode(data)
	if err != nil {
		return Message{}, false
	}
	items, isList := decoded.([]any)
	if !isList || len(items) == 0 {
		return Message{}, false
	}

	if len(items) == 1 {
		ns := segmentString(items[0])
		if !ValidNamespace(ns) {
			return Message{}, false
		}
		return Message{Namespace: ns}, true
	}

	head := items[:len(items)-1]
	segments := make([]string, len(head))
	for i, seg := range head {
		segments[i] = segmentString(seg)
	}
	ns := Join(segments)
	if !ValidNamespace(ns) {
		return Message{}, false
	}
	return Message{Namespace: ns, Payload: items[len(items)-1]}, true
}

func segmentString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// Pack encodes a frame with the default codec.
func Pack(namespace string, payload any) ([]byte, error) {
	return defaultCodec.Pack(namespace, payload)
}

// Unpack decodes a frame with the default codec.
func Unpack(data []byte) (Message, bool) {
	return defaultCodec.Unpack(data)
}
