package registry

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(&Config{}, nil)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestResolveIdentity(t *testing.T) {
	// sha1("user:pass")
	const want = "b2619aa1529dfdc4248e6edbf3c1b2a2b014cf6d"
	got := ResolveIdentity("user:pass", true)
	if got != want {
		t.Fatalf("ResolveIdentity() = %s, want %s", got, want)
	}
	if got != ResolveIdentity("user:pass", true) {
		t.Error("same credential produced different ids")
	}
	if got == ResolveIdentity("other", true) {
		t.Error("different credentials produced the same id")
	}

	a := ResolveIdentity("", false)
	b := ResolveIdentity("", false)
	if a == b {
		t.Error("absent credentials produced the same id")
	}
	if len(a) != 40 {
		t.Errorf("anonymous id length = %d, want 40", len(a))
	}
}

func TestResolveIdentity_EmptyCredentialPresent(t *testing.T) {
	// An empty but present credential is still deterministic.
	if ResolveIdentity("", true) != "da39a3ee5e6b4b0d3255bfef95601890afd80709" {
		t.Errorf("ResolveIdentity(\"\", true) = %s", ResolveIdentity("", true))
	}
}

func TestUpsert_NewAndReconnect(t *testing.T) {
	r := newTestRegistry(t)
	t1 := &fakeTransport{}
	t2 := &fakeTransport{}

	if !r.Upsert("a", t1) {
		t.Fatal("first Upsert() = false, want true")
	}
	subs, _ := r.Subscriptions("a")
	if !reflect.DeepEqual(subs, []string{"connect", "reconnect"}) {
		t.Errorf("default subscriptions = %v", subs)
	}

	if _, err := r.AddSubscriptions("a", "chat.*"); err != nil {
		t.Fatal(err)
	}

	if r.Upsert("a", t2) {
		t.Fatal("second Upsert() = true, want false")
	}
	if !t1.isClosed() {
		t.Error("replaced transport was not closed")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	subs, _ = r.Subscriptions("a")
	if !reflect.DeepEqual(subs, []string{"connect", "reconnect", "chat.*"}) {
		t.Errorf("subscriptions after reconnect = %v", subs)
	}
	tr, ok := r.Transport("a")
	if !ok || tr != t2 {
		t.Error("Transport() did not return the replacing transport")
	}

	st := r.Stats()
	if st.TotalNew != 1 || st.TotalReconnect != 1 || st.Open != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestMarkClosed_ResetsSubscriptions(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert("a", &fakeTransport{})
	r.AddSubscriptions("a", "x", "y")
	r.MarkClosed("a")

	info, ok := r.Get("a")
	if !ok {
		t.Fatal("entry removed on close")
	}
	if info.Open {
		t.Error("entry still open")
	}
	if !reflect.DeepEqual(info.Subscriptions, []string{"connect", "reconnect"}) {
		t.Errorf("subscriptions after close = %v", info.Subscriptions)
	}
	if info.ClosedAt.IsZero() {
		t.Error("ClosedAt not set")
	}

	r.MarkClosed("missing")
}

func TestRelease_SupersededTransport(t *testing.T) {
	r := newTestRegistry(t)
	old := &fakeTransport{}
	cur := &fakeTransport{}
	r.Upsert("a", old)
	r.Upsert("a", cur)

	if r.Release("a", old) {
		t.Error("Release(old) = true, want false")
	}
	if info, _ := r.Get("a"); !info.Open {
		t.Error("superseded release closed the entry")
	}
	if !r.Release("a", cur) {
		t.Error("Release(current) = false, want true")
	}
	if info, _ := r.Get("a"); info.Open {
		t.Error("entry still open after release")
	}
	if r.Release("missing", cur) {
		t.Error("Release on unknown id = true")
	}
}

func TestAddSubscriptions_Idempotent(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert("a", &fakeTransport{})

	r.AddSubscriptions("a", "x")
	got, err := r.AddSubscriptions("a", "x", "", "y", "x")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"connect", "reconnect", "x", "y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AddSubscriptions() = %v, want %v", got, want)
	}

	if _, err := r.AddSubscriptions("missing", "x"); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("err = %v, want ErrUnknownConnection", err)
	}
}

func TestRemoveSubscription(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert("a", &fakeTransport{})
	r.AddSubscriptions("a", "x", "y")

	removed, err := r.RemoveSubscription("a", "x")
	if err != nil || !removed {
		t.Fatalf("RemoveSubscription() = %v, %v", removed, err)
	}
	removed, _ = r.RemoveSubscription("a", "x")
	if removed {
		t.Error("second RemoveSubscription() = true")
	}
	subs, _ := r.Subscriptions("a")
	if !reflect.DeepEqual(subs, []string{"connect", "reconnect", "y"}) {
		t.Errorf("subscriptions = %v", subs)
	}
	if _, err := r.RemoveSubscription("missing", "x"); !errors.Is(err, ErrUnknownConnection) {
		t.Errorf("err = %v, want ErrUnknownConnection", err)
	}
}

func TestForEachOpen(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert("a", &fakeTransport{})
	r.Upsert("b", &fakeTransport{})
	r.Upsert("c", &fakeTransport{})
	r.MarkClosed("b")

	var ids []string
	r.ForEachOpen(func(c OpenConn) {
		ids = append(ids, c.ID)
		// Re-entrant calls must not deadlock.
		r.AddSubscriptions(c.ID, "z")
	})
	if len(ids) != 2 {
		t.Fatalf("visited %v, want 2 open entries", ids)
	}
	for _, id := range ids {
		if id == "b" {
			t.Error("closed entry visited")
		}
	}
	if r.OpenCount() != 2 {
		t.Errorf("OpenCount() = %d, want 2", r.OpenCount())
	}
}

func TestList_Sorted(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert("b", &fakeTransport{})
	r.Upsert("a", &fakeTransport{})
	list := r.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("List() = %+v", list)
	}
}

func TestEvictClosed(t *testing.T) {
	var evicted []string
	r := New(&Config{
		EvictAfter:      time.Minute,
		CleanupInterval: time.Hour,
		OnEvict:         func(ids []string) { evicted = append(evicted, ids...) },
	}, nil)
	defer r.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	r.Upsert("open", &fakeTransport{})
	r.Upsert("closed", &fakeTransport{})
	r.MarkClosed("closed")

	if got := r.EvictClosed(base.Add(30 * time.Second)); len(got) != 0 {
		t.Errorf("early eviction removed %v", got)
	}
	got := r.EvictClosed(base.Add(2 * time.Minute))
	if !reflect.DeepEqual(got, []string{"closed"}) {
		t.Errorf("EvictClosed() = %v, want [closed]", got)
	}
	if !reflect.DeepEqual(evicted, []string{"closed"}) {
		t.Errorf("OnEvict got %v", evicted)
	}
	if _, ok := r.Get("open"); !ok {
		t.Error("open entry evicted")
	}
	if r.Stats().TotalEvicted != 1 {
		t.Errorf("TotalEvicted = %d, want 1", r.Stats().TotalEvicted)
	}
}

func TestEvictClosed_Disabled(t *testing.T) {
	r := newTestRegistry(t)
	r.Upsert("a", &fakeTransport{})
	r.MarkClosed("a")
	if got := r.EvictClosed(time.Now().Add(24 * time.Hour)); got != nil {
		t.Errorf("EvictClosed() with eviction disabled = %v", got)
	}
}

func TestCleanupLoop(t *testing.T) {
	done := make(chan []string, 1)
	r := New(&Config{
		EvictAfter:      time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
		OnEvict:         func(ids []string) { done <- ids },
	}, nil)
	defer r.Close()

	r.Upsert("a", &fakeTransport{})
	r.MarkClosed("a")

	select {
	case ids := <-done:
		if !reflect.DeepEqual(ids, []string{"a"}) {
			t.Errorf("evicted %v", ids)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup loop did not evict")
	}
}

func TestClose_Idempotent(t *testing.T) {
	r := New(nil, nil)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := newTestRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ResolveIdentity(string(rune('a'+i)), true)
			for j := 0; j < 100; j++ {
				tr := &fakeTransport{}
				r.Upsert(id, tr)
				r.AddSubscriptions(id, "x")
				r.ForEachOpen(func(OpenConn) {})
				r.Release(id, tr)
			}
		}(i)
	}
	wg.Wait()
	if r.Len() != 8 {
		t.Errorf("Len() = %d, want 8", r.Len())
	}
}
