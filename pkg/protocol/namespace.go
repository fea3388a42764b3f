package protocol

import "strings"

// Delimiter separates namespace segments.
const Delimiter = "."

// Control namespaces.
const (
	NamespaceConnect     = "connect"
	NamespaceReconnect   = "reconnect"
	NamespaceSubscribe   = "_sub"
	NamespaceUnsubscribe = "_unsub"
)

// DefaultSubscriptions returns the control namespaces every connection is
// subscribed to. The returned slice is freshly allocated.
func DefaultSubscriptions() []string {
	return []string{NamespaceConnect, NamespaceReconnect}
}

// IsControl reports whether ns is one of the protocol control namespaces.
func IsControl(ns string) bool {
	switch ns {
	case NamespaceConnect, NamespaceReconnect, NamespaceSubscribe, NamespaceUnsubscribe:
		return true
	}
	return false
}

// Split returns the segments of a namespace in order.
func Split(ns string) []string {
	return strings.Split(ns, Delimiter)
}

// Join joins segments back into a namespace.
func Join(segments []string) string {
	return strings.Join(segments, Delimiter)
}

// ValidNamespace reports whether ns has at least one segment and no empty
// segments.
func ValidNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for _, seg := range Split(ns) {
		if seg == "" {
			return false
		}
	}
	return true
}

// Patterns coerces a subscribe payload into a list of patterns. A single
// string becomes a one-element list; lists keep their string elements in
// order. Anything else yields nil.
func Patterns(payload any) []string {
	switch v := payload.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
