package registry

import (
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/nsbus/pkg/protocol"
)

// Transport is the send side of one physical connection.
type Transport interface {
	// Send writes one binary frame.
	Send(data []byte) error

	// Close closes the underlying connection.
	Close() error
}

type entry struct {
	id            string
	transport     Transport
	open          bool
	subscriptions []string
	connectedAt   time.Time
	closedAt      time.Time
	connects      uint64
}

// OpenConn is a point-in-time view of an open entry, handed to ForEachOpen.
type OpenConn struct {
	ID            string
	Transport     Transport
	Subscriptions []string
}

// ConnInfo describes an entry for inspection.
type ConnInfo struct {
	ID            string    `json:"id"`
	Open          bool      `json:"open"`
	Subscriptions []string  `json:"subscriptions"`
	ConnectedAt   time.Time `json:"connected_at"`
	ClosedAt      time.Time `json:"closed_at,omitempty"`
	Connects      uint64    `json:"connects"`
}

// Stats contains aggregated registry statistics.
type Stats struct {
	Entries        int    `json:"entries"`
	Open           int    `json:"open"`
	TotalNew       uint64 `json:"total_new"`
	TotalReconnect uint64 `json:"total_reconnect"`
	TotalEvicted   uint64 `json:"total_evicted"`
}

// Registry is the connection table. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	config *Config
	logger *slog.Logger

	totalNew       atomic.Uint64
	totalReconnect atomic.Uint64
	totalEvicted   atomic.Uint64

	closeOnce   sync.Once
	done        chan struct{}
	cleanupDone chan struct{}

	now func() time.Time
}

// New creates a Registry and starts its eviction loop when eviction is
// enabled. Call Close to stop it.
func New(config *Config, logger *slog.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		entries:     make(map[string]*entry),
		config:      config,
		logger:      logger.With("component", "registry"),
		done:        make(chan struct{}),
		cleanupDone: make(chan struct{}),
		now:         time.Now,
	}

	if config.EvictAfter > 0 {
		go r.cleanupLoop()
	} else {
		close(r.cleanupDone)
	}
	return r
}

// Upsert registers transport under id and marks the entry open.
//
// A new entry starts with the default subscriptions. An existing entry keeps
// its subscriptions and has its previous transport replaced and closed.
// Upsert reports whether the entry was created.
func (r *Registry) Upsert(id string, transport Transport) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	var replaced Transport
	if !ok {
		e = &entry{
			id:            id,
			subscriptions: protocol.DefaultSubscriptions(),
		}
		r.entries[id] = e
	} else if e.transport != nil && e.transport != transport {
		replaced = e.transport
	}
	e.transport = transport
	e.open = true
	e.connectedAt = r.now()
	e.closedAt = time.Time{}
	e.connects++
	r.mu.Unlock()

	if replaced != nil {
		if err := replaced.Close(); err != nil {
			r.logger.Debug("close replaced transport", "conn_id", id, "error", err)
		}
	}

	if ok {
		r.totalReconnect.Add(1)
	} else {
		r.totalNew.Add(1)
	}
	return !ok
}

// MarkClosed marks the entry closed and resets its subscriptions to the
// default set. Unknown ids are ignored.
func (r *Registry) MarkClosed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		r.closeLocked(e)
	}
}

// Release marks the entry closed only when transport is still its current
// transport. A transport superseded by a reconnect returns false and leaves
// the entry untouched.
func (r *Registry) Release(id string, transport Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.transport != transport {
		return false
	}
	r.closeLocked(e)
	return true
}

func (r *Registry) closeLocked(e *entry) {
	e.open = false
	e.transport = nil
	e.subscriptions = protocol.DefaultSubscriptions()
	e.closedAt = r.now()
}

// AddSubscriptions unions patterns into the entry's subscriptions and
// returns the resulting set. Empty patterns are ignored.
func (r *Registry) AddSubscriptions(id string, patterns ...string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	for _, p := range patterns {
		if p == "" || slices.Contains(e.subscriptions, p) {
			continue
		}
		e.subscriptions = append(e.subscriptions, p)
	}
	return slices.Clone(e.subscriptions), nil
}

// RemoveSubscription deletes every subscription equal to pattern and
// reports whether any was removed.
func (r *Registry) RemoveSubscription(id, pattern string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false, ErrUnknownConnection
	}
	before := len(e.subscriptions)
	e.subscriptions = slices.DeleteFunc(e.subscriptions, func(s string) bool { return s == pattern })
	return len(e.subscriptions) != before, nil
}

// Subscriptions returns a copy of the entry's subscriptions.
func (r *Registry) Subscriptions(id string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(e.subscriptions), true
}

// ForEachOpen calls fn for every open entry. The entries are copied before
// iteration, so fn may call back into the registry.
func (r *Registry) ForEachOpen(fn func(OpenConn)) {
	r.mu.RLock()
	open := make([]OpenConn, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.open || e.transport == nil {
			continue
		}
		open = append(open, OpenConn{
			ID:            e.id,
			Transport:     e.transport,
			Subscriptions: slices.Clone(e.subscriptions),
		})
	}
	r.mu.RUnlock()

	for _, c := range open {
		fn(c)
	}
}

// Transport returns the current transport for id, if open.
func (r *Registry) Transport(id string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || !e.open {
		return nil, false
	}
	return e.transport, true
}

// Get returns a description of the entry for id.
func (r *Registry) Get(id string) (ConnInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return ConnInfo{}, false
	}
	return e.info(), true
}

// List returns every entry sorted by id.
func (r *Registry) List() []ConnInfo {
	r.mu.RLock()
	out := make([]ConnInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *entry) info() ConnInfo {
	return ConnInfo{
		ID:            e.id,
		Open:          e.open,
		Subscriptions: slices.Clone(e.subscriptions),
		ConnectedAt:   e.connectedAt,
		ClosedAt:      e.closedAt,
		Connects:      e.connects,
	}
}

// Len returns the number of entries, open or closed.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// OpenCount returns the number of open entries.
func (r *Registry) OpenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.open {
			n++
		}
	}
	return n
}

// Stats returns aggregated registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	entries := len(r.entries)
	open := 0
	for _, e := range r.entries {
		if e.open {
			open++
		}
	}
	r.mu.RUnlock()

	return Stats{
		Entries:        entries,
		Open:           open,
		TotalNew:       r.totalNew.Load(),
		TotalReconnect: r.totalReconnect.Load(),
		TotalEvicted:   r.totalEvicted.Load(),
	}
}

// EvictClosed removes entries closed for longer than EvictAfter as of now
// and returns their ids.
func (r *Registry) EvictClosed(now time.Time) []string {
	if r.config.EvictAfter <= 0 {
		return nil
	}

	r.mu.Lock()
	var evicted []string
	for id, e := range r.entries {
		if e.open || e.closedAt.IsZero() {
			continue
		}
		if now.Sub(e.closedAt) > r.config.EvictAfter {
			delete(r.entries, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	if len(evicted) > 0 {
		sort.Strings(evicted)
		r.totalEvicted.Add(uint64(len(evicted)))
		r.logger.Debug("evicted closed connections", "count", len(evicted))
		if r.config.OnEvict != nil {
			r.config.OnEvict(evicted)
		}
	}
	return evicted
}

// cleanupLoop periodically evicts closed entries.
func (r *Registry) cleanupLoop() {
	defer close(r.cleanupDone)

	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.EvictClosed(r.now())
		case <-r.done:
			return
		}
	}
}

// Close stops the eviction loop. Entries and transports are left as they
// are; the server closes transports itself during shutdown.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	<-r.cleanupDone
	return nil
}
