// Package pattern matches namespaces against subscription patterns.
//
// Patterns are namespaces whose segments may be wildcards:
//
//   - "*" matches exactly one segment
//   - "**" at the end of a pattern matches the remaining segments, including
//     none
//   - "**" anywhere else matches one or more segments
//
// "a.*.c" matches "a.b.c" but not "a.b.b.c"; "a.**" matches "a", "a.b" and
// "a.b.c"; "a.**.c" matches "a.b.c" and "a.x.y.c" but not "a.c". Any other
// segment only matches itself.
package pattern

import "strings"

// Wildcard segments.
const (
	Single = "*"
	Multi  = "**"
)

const delimiter = "."

// Match reports whether namespace matches pattern.
//
// Matching is linear in the number of segments for patterns with at most one
// "**"; additional "**" segments only add a single backtrack point each, so
// there is no exponential blow-up.
func Match(namespace, pattern string) bool {
	if namespace == pattern {
		return true
	}
	if namespace == "" || pattern == "" {
		return false
	}
	if !IsWildcard(pattern) {
		return false
	}
	return matchSegments(strings.Split(namespace, delimiter), strings.Split(pattern, delimiter))
}

// MatchAny reports whether namespace matches any of patterns.
func MatchAny(namespace string, patterns []string) bool {
	for _, p := range patterns {
		if Match(namespace, p) {
			return true
		}
	}
	return false
}

// IsWildcard reports whether pattern contains a wildcard segment.
func IsWildcard(pattern string) bool {
	if !strings.Contains(pattern, Single) {
		return false
	}
	for _, seg := range strings.Split(pattern, delimiter) {
		if seg == Single || seg == Multi {
			return true
		}
	}
	return false
}

func matchSegments(ns, pat []string) bool {
	last := len(pat) - 1
	n, p := 0, 0
	// Position of the last inner "**" seen and the namespace index it
	// resumed at. An inner "**" always consumes at least one segment.
	starP, starN := -1, 0

	for n < len(ns) {
		switch {
		case p == last && pat[p] == Multi:
			return true
		case p < len(pat) && pat[p] == Multi:
			starP, starN = p, n+1
			n++
			p++
		case p < len(pat) && (pat[p] == Single || pat[p] == ns[n]):
			n++
			p++
		case starP >= 0:
			starN++
			n = starN
			p = starP + 1
		default:
			return false
		}
	}
	return p == len(pat) || (p == last && pat[p] == Multi)
}
