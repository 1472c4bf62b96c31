// Package page deduplicates page identities by name and memoizes their
// outgoing and incoming link sets.
package page

import (
	"context"
	"slices"
	"strings"
)

// Direction selects one of a page's two neighbor sets.
type Direction int

const (
	// Outgoing is the set of pages a page links to.
	Outgoing Direction = iota
	// Incoming is the set of pages that claim to link to a page.
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// LinkProvider fetches raw neighbor names for a page. Implementations filter
// out links that do not point at traversable content pages; the registry
// takes care of self links and the caller's forbidden list.
type LinkProvider interface {
	Outgoing(ctx context.Context, name string) ([]string, error)
	Incoming(ctx context.Context, name string) ([]string, error)
}

// RandomNamer is implemented by providers that can pick a random page.
type RandomNamer interface {
	RandomName(ctx context.Context) (string, error)
}

// Normalize returns the canonical form of a page name: surrounding space is
// trimmed and inner spaces become underscores.
func Normalize(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// PathString renders a path as "A -> B -> C".
func PathString(path []string) string {
	return strings.Join(path, " -> ")
}

// Forbidden is a set of page names that must never be entered, plus namespace
// prefixes: a name starting with "<prefix>:" is forbidden too.
type Forbidden struct {
	names    map[string]struct{}
	prefixes []string
}

// NewForbidden builds a forbidden filter from exact names and namespace prefixes.
func NewForbidden(names, prefixes []string) Forbidden {
	f := Forbidden{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if n = Normalize(n); n != "" {
			f.names[n] = struct{}{}
		}
	}
	for _, p := range prefixes {
		if p = Normalize(p); p != "" {
			f.prefixes = append(f.prefixes, p+":")
		}
	}
	return f
}

// With returns a copy of f that also forbids names.
func (f Forbidden) With(names ...string) Forbidden {
	out := Forbidden{
		names:    make(map[string]struct{}, len(f.names)+len(names)),
		prefixes: slices.Clone(f.prefixes),
	}
	for n := range f.names {
		out.names[n] = struct{}{}
	}
	for _, n := range names {
		if n = Normalize(n); n != "" {
			out.names[n] = struct{}{}
		}
	}
	return out
}

// Allows reports whether name may appear in a neighbor set.
func (f Forbidden) Allows(name string) bool {
	if _, ok := f.names[name]; ok {
		return false
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return true
}

// Names returns the exact forbidden names, sorted.
func (f Forbidden) Names() []string {
	out := make([]string, 0, len(f.names))
	for n := range f.names {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
