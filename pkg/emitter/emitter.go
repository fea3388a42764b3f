// Package emitter provides the local event dispatch table used by the server
// and client session handlers.
//
// Handlers are registered against a pattern (a namespace that may contain
// "*" and "**" wildcards) and invoked, in registration order, for every
// emitted event whose name matches. Matching uses pkg/pattern, the same rules
// the server applies when fanning out published frames.
package emitter

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/vango-dev/nsbus/pkg/pattern"
)

// Event is a single local notification.
type Event struct {
	// Name is the namespace or lifecycle name the event was emitted under.
	Name string

	// Payload is the decoded frame payload, or the connection id for
	// lifecycle events.
	Payload any

	// ConnID identifies the originating connection on the server side.
	ConnID string

	// Err is set for error events.
	Err error
}

// Handler receives events.
type Handler func(Event)

// ListenerID identifies a registered handler for removal.
type ListenerID uint64

// Hook observes listener registration changes for a pattern.
// For add hooks, first is true when the pattern had no listeners before.
// For remove hooks, last is true when the pattern has no listeners left.
//
// Hook calls are delivered one at a time in the order the table changed.
// A hook must not call back into the Emitter.
type Hook func(pattern string, edge bool)

type listener struct {
	id      ListenerID
	pattern string
	handler Handler
	once    bool
}

// Emitter is a pattern-keyed dispatch table. It is safe for concurrent use.
type Emitter struct {
	// hookMu is held from a table change until its hook returns so hooks
	// observe changes in order. It is acquired before mu.
	hookMu sync.Mutex

	mu        sync.RWMutex
	listeners []*listener
	nextID    ListenerID

	onAdd    Hook
	onRemove Hook
	logger   *slog.Logger
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithAddHook sets a hook called after a listener is added.
func WithAddHook(h Hook) Option {
	return func(e *Emitter) { e.onAdd = h }
}

// WithRemoveHook sets a hook called after a listener is removed.
func WithRemoveHook(h Hook) Option {
	return func(e *Emitter) { e.onRemove = h }
}

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) { e.logger = l }
}

// New creates an Emitter.
func New(opts ...Option) *Emitter {
	e := &Emitter{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// On registers h for events matching p.
func (e *Emitter) On(p string, h Handler) ListenerID {
	return e.add(p, h, false)
}

// Once registers h for the next event matching p only.
func (e *Emitter) Once(p string, h Handler) ListenerID {
	return e.add(p, h, true)
}

func (e *Emitter) add(p string, h Handler, once bool) ListenerID {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	first := e.countLocked(p) == 0
	e.listeners = append(e.listeners, &listener{id: id, pattern: p, handler: h, once: once})
	hook := e.onAdd
	e.mu.Unlock()

	if hook != nil {
		hook(p, first)
	}
	return id
}

// Off removes the listener registered under p with the given id.
// It reports whether a listener was removed.
func (e *Emitter) Off(p string, id ListenerID) bool {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()

	e.mu.Lock()
	removed := false
	for i, l := range e.listeners {
		if l.id == id && l.pattern == p {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			removed = true
			break
		}
	}
	last := removed && e.countLocked(p) == 0
	hook := e.onRemove
	e.mu.Unlock()

	if removed && hook != nil {
		hook(p, last)
	}
	return removed
}

// RemoveAll removes every listener registered under p and returns how many
// were removed.
func (e *Emitter) RemoveAll(p string) int {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()

	e.mu.Lock()
	kept := e.listeners[:0]
	removed := 0
	for _, l := range e.listeners {
		if l.pattern == p {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(e.listeners); i++ {
		e.listeners[i] = nil
	}
	e.listeners = kept
	hook := e.onRemove
	e.mu.Unlock()

	if removed > 0 && hook != nil {
		hook(p, true)
	}
	return removed
}

// ListenerCount returns the number of listeners registered under p.
func (e *Emitter) ListenerCount(p string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.countLocked(p)
}

// Patterns returns the distinct registered patterns in registration order.
func (e *Emitter) Patterns() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	seen := make(map[string]struct{}, len(e.listeners))
	out := make([]string, 0, len(e.listeners))
	for _, l := range e.listeners {
		if _, ok := seen[l.pattern]; ok {
			continue
		}
		seen[l.pattern] = struct{}{}
		out = append(out, l.pattern)
	}
	return out
}

func (e *Emitter) countLocked(p string) int {
	n := 0
	for _, l := range e.listeners {
		if l.pattern == p {
			n++
		}
	}
	return n
}

// Emit dispatches ev to every matching handler and returns how many ran.
// Handlers run synchronously on the caller's goroutine; a panicking handler
// is logged and does not stop the remaining handlers. Once listeners are
// removed, and their remove hooks delivered, before any handler runs.
func (e *Emitter) Emit(ev Event) int {
	e.hookMu.Lock()
	e.mu.Lock()
	var matched []*listener
	var spent []string
	kept := e.listeners[:0]
	for _, l := range e.listeners {
		if !pattern.Match(ev.Name, l.pattern) {
			kept = append(kept, l)
			continue
		}
		matched = append(matched, l)
		if l.once {
			spent = append(spent, l.pattern)
			continue
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(e.listeners); i++ {
		e.listeners[i] = nil
	}
	e.listeners = kept

	var lastFlags []bool
	if len(spent) > 0 {
		lastFlags = make([]bool, len(spent))
		for i, p := range spent {
			lastFlags[i] = e.countLocked(p) == 0
		}
	}
	hook := e.onRemove
	e.mu.Unlock()

	if hook != nil {
		for i, p := range spent {
			hook(p, lastFlags[i])
		}
	}
	e.hookMu.Unlock()

	for _, l := range matched {
		e.invoke(l, ev)
	}
	return len(matched)
}

func (e *Emitter) invoke(l *listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panic",
				"event", ev.Name,
				"pattern", l.pattern,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	l.handler(ev)
}
