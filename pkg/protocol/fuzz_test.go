package protocol

import "testing"

// FuzzUnpack checks that arbitrary bytes never panic the decoder.
func FuzzUnpack(f *testing.F) {
	valid, _ := Pack("a.b.c", map[string]any{"k": "v"})
	f.Add(valid)
	f.Add([]byte{0x90})
	f.Add([]byte{0x91, 0xa1, 'x'})
	f.Add([]byte{0xdd, 0xff, 0xff, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Should not panic
		_, _ = Unpack(data)
	})
}

// FuzzPackUnpack checks the round-trip law for valid namespaces.
func FuzzPackUnpack(f *testing.F) {
	f.Add("a.b", "payload")
	f.Add("x", "")

	f.Fuzz(func(t *testing.T, ns string, payload string) {
		if !ValidNamespace(ns) {
			return
		}
		data, err := Pack(ns, payload)
		if err != nil {
			t.Fatalf("Pack(%q) error: %v", ns, err)
		}
		msg, ok := Unpack(data)
		if !ok {
			t.Fatalf("Unpack reported absent for %q", ns)
		}
		if msg.Namespace != ns || msg.Payload != payload {
			t.Fatalf("round trip mismatch: got %+v", msg)
		}
	})
}
