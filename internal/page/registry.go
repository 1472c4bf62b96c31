package page

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Page is the single record a registry keeps for a name.
type Page struct {
	Name  string
	links [2]linkSet
}

// linkSet is one memoized neighbor set. Names are kept sorted so membership
// is a binary search and iteration order is stable.
type linkSet struct {
	loaded    bool
	names     []string
	retracted map[string]struct{}
}

func (s *linkSet) retract(name string) {
	if s.retracted == nil {
		s.retracted = make(map[string]struct{})
	}
	s.retracted[name] = struct{}{}
	if i, ok := slices.BinarySearch(s.names, name); ok {
		s.names = slices.Delete(s.names, i, i+1)
	}
}

// Registry maps names to Page records and memoizes their neighbor sets.
// It is safe for concurrent use; concurrent fetches for the same page and
// direction are collapsed into one provider call.
type Registry struct {
	provider  LinkProvider
	forbidden Forbidden

	mu    sync.Mutex
	pages map[string]*Page
	group singleflight.Group
}

// NewRegistry creates a registry that fetches through provider and drops
// neighbors rejected by forbidden.
func NewRegistry(provider LinkProvider, forbidden Forbidden) *Registry {
	return &Registry{
		provider:  provider,
		forbidden: forbidden,
		pages:     make(map[string]*Page),
	}
}

// Page returns the record for name, creating it on first lookup. Lookup does
// not apply the forbidden filter.
func (r *Registry) Page(name string) *Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pageLocked(Normalize(name))
}

func (r *Registry) pageLocked(name string) *Page {
	p, ok := r.pages[name]
	if !ok {
		p = &Page{Name: name}
		r.pages[name] = p
	}
	return p
}

// Len returns the number of distinct pages seen.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

// Outgoing returns the pages name links to.
func (r *Registry) Outgoing(ctx context.Context, name string) ([]string, error) {
	return r.Neighbors(ctx, name, Outgoing)
}

// Incoming returns the pages that claim to link to name.
func (r *Registry) Incoming(ctx context.Context, name string) ([]string, error) {
	return r.Neighbors(ctx, name, Incoming)
}

// Neighbors returns a sorted copy of the neighbor set of name in direction
// dir, fetching it from the provider on first use.
func (r *Registry) Neighbors(ctx context.Context, name string, dir Direction) ([]string, error) {
	p := r.Page(name)

	r.mu.Lock()
	if set := &p.links[dir]; set.loaded {
		out := slices.Clone(set.names)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	_, err, _ := r.group.Do(dir.String()+"\x00"+p.Name, func() (any, error) {
		r.mu.Lock()
		loaded := p.links[dir].loaded
		r.mu.Unlock()
		if loaded {
			return nil, nil
		}

		raw, err := r.fetch(ctx, p.Name, dir)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		set := &p.links[dir]
		set.names = r.filter(p.Name, raw, set.retracted)
		set.loaded = true
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(p.links[dir].names), nil
}

func (r *Registry) fetch(ctx context.Context, name string, dir Direction) ([]string, error) {
	var (
		raw []string
		err error
	)
	if dir == Incoming {
		raw, err = r.provider.Incoming(ctx, name)
	} else {
		raw, err = r.provider.Outgoing(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s links of %q: %w", dir, name, err)
	}
	return raw, nil
}

// filter normalizes raw names and removes self links, forbidden names,
// retracted names and duplicates.
func (r *Registry) filter(self string, raw []string, retracted map[string]struct{}) []string {
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		n = Normalize(n)
		if n == "" || n == self || !r.forbidden.Allows(n) {
			continue
		}
		if _, gone := retracted[n]; gone {
			continue
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// HasOutgoing reports whether to is in the outgoing set of from.
func (r *Registry) HasOutgoing(ctx context.Context, from, to string) (bool, error) {
	out, err := r.Outgoing(ctx, from)
	if err != nil {
		return false, err
	}
	_, ok := slices.BinarySearch(out, Normalize(to))
	return ok, nil
}

// InvalidateEdge retracts the edge from -> to: to leaves the outgoing set of
// from and from leaves the incoming set of to. Retractions are remembered, so
// a set loaded later will not bring the edge back. Retracting an edge that is
// not cached leaves the cached sets unchanged but still filters the edge out
// of those sets once they load.
func (r *Registry) InvalidateEdge(from, to string) {
	from, to = Normalize(from), Normalize(to)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageLocked(from).links[Outgoing].retract(to)
	r.pageLocked(to).links[Incoming].retract(from)
}

// Prefetch loads the dir neighbor sets of names concurrently with at most
// workers fetches in flight, and waits for all of them.
func (r *Registry) Prefetch(ctx context.Context, names []string, dir Direction, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, n := range names {
		g.Go(func() error {
			_, err := r.Neighbors(ctx, n, dir)
			return err
		})
	}
	return g.Wait()
}
