// Package category models product category hierarchies as explicit path
// segments instead of raw slash-delimited strings, so prefix matching is
// exact per segment ("/sh" never matches "/shirt").
package category

import "strings"

// Path is an ordered list of category segments, root first.
// The zero value is the empty path, which every path has as a prefix.
type Path []string

// ParsePath splits a slash-delimited category string into segments.
// Leading and trailing slashes are ignored; empty segments are dropped.
func ParsePath(s string) Path {
	parts := strings.Split(s, "/")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			p = append(p, part)
		}
	}
	return p
}

// String renders the path back to its slash-delimited form.
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	return "/" + strings.Join(p, "/")
}

// IsZero reports whether the path has no segments.
func (p Path) IsZero() bool {
	return len(p) == 0
}

// HasPrefix reports whether prefix is a segment-wise prefix of p.
// Every segment of prefix must equal the corresponding segment of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, seg := range prefix {
		if p[i] != seg {
			return false
		}
	}
	return true
}

// Equal reports whether p and other have identical segments.
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}
