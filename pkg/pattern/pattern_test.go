package pattern

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		namespace string
		pattern   string
		want      bool
	}{
		// exact
		{"a", "a", true},
		{"a.b", "a.b", true},
		{"a.b", "a.c", false},
		{"a", "b", false},
		{"a.b", "a", false},
		{"a", "a.b", false},

		// single-level wildcard
		{"a.b.c", "a.*.c", true},
		{"a.b.c", "a.*", false},
		{"a.b", "a.*", true},
		{"a", "a.*", false},
		{"a.b", "b.*", false},
		{"toclient.hello", "toclient.*", true},
		{"a.b.c", "*.*.*", true},
		{"a.b", "*.*.*", false},
		{"a", "*", true},

		// multi-level wildcard
		{"a.b.c", "a.**", true},
		{"a", "a.**", true},
		{"a", "**", true},
		{"a.b.c.d", "**", true},
		{"b.c", "a.**", false},
		{"a.b.c", "a.**.c", true},
		{"a.x.y.c", "a.**.c", true},
		{"a.c", "a.**.c", false},
		{"b.c", "**.b.c", false},
		{"x.b.c", "**.b.c", true},
		{"a", "a.**.**", false},
		{"a.x.y.d", "a.**.c", false},
		{"a.b.c.b.c", "**.b.c", true},
		{"a.b.c", "**.*", true},
		{"a.b", "a.**.**", true},

		// empties
		{"", "", true},
		{"", "*", false},
		{"a", "", false},
	}

	for _, tt := range tests {
		if got := Match(tt.namespace, tt.pattern); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.namespace, tt.pattern, got, tt.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	subs := []string{"connect", "reconnect", "toclient.*"}
	if !MatchAny("toclient.hello", subs) {
		t.Error("expected toclient.hello to match")
	}
	if MatchAny("other", subs) {
		t.Error("expected other not to match")
	}
	if MatchAny("x", nil) {
		t.Error("nil pattern list should match nothing")
	}
}

func TestIsWildcard(t *testing.T) {
	for p, want := range map[string]bool{
		"a":      false,
		"a.*":    true,
		"**":     true,
		"a*b":    false,
		"a.b*.c": false,
		"a.**.c": true,
	} {
		if got := IsWildcard(p); got != want {
			t.Errorf("IsWildcard(%q) = %v, want %v", p, got, want)
		}
	}
}

func BenchmarkMatchWildcard(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Match("a.b.c.d.e.f", "a.**.f")
	}
}

func BenchmarkMatchExact(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Match("a.b.c.d.e.f", "a.b.c.d.e.f")
	}
}
