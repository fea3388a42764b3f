package protocol

import "testing"

func BenchmarkPack(b *testing.B) {
	payload := map[string]any{"first": "John", "last": "Smith", "age": 42}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Pack("person.name.first", payload); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUnpack(b *testing.B) {
	data, err := Pack("person.name.first", map[string]any{"first": "John", "last": "Smith"})
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := Unpack(data); !ok {
			b.Fatal("unpack failed")
		}
	}
}
