// Package pagetest provides an in-memory link provider for tests.
package pagetest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
)

// Provider serves a hand-built link graph. Incoming sets are derived from the
// forward edges plus any extra claims added with Claim, which model stale or
// indirect backlinks that a forward crawl would not confirm.
type Provider struct {
	mu     sync.Mutex
	out    map[string][]string
	claims map[string][]string
	fail   map[string]error
	calls  map[string]int
	random []string
}

// New builds a provider from edges written as "A->B".
func New(edges ...string) *Provider {
	p := &Provider{
		out:    make(map[string][]string),
		claims: make(map[string][]string),
		fail:   make(map[string]error),
		calls:  make(map[string]int),
	}
	for _, e := range edges {
		from, to, ok := strings.Cut(e, "->")
		if !ok {
			panic("pagetest: malformed edge " + e)
		}
		p.Link(strings.TrimSpace(from), strings.TrimSpace(to))
	}
	return p
}

// Link adds a real edge from -> to.
func (p *Provider) Link(from, to string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out[from] = append(p.out[from], to)
}

// Claim makes from appear in the incoming set of to without a forward edge.
func (p *Provider) Claim(from, to string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claims[to] = append(p.claims[to], from)
}

// Fail makes every fetch for name return err.
func (p *Provider) Fail(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail[name] = err
}

// SetRandom sets the names RandomName cycles through.
func (p *Provider) SetRandom(names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.random = names
}

// Calls returns how many times the given direction ("outgoing" or
// "incoming") of name was fetched.
func (p *Provider) Calls(dir, name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[dir+":"+name]
}

func (p *Provider) Outgoing(_ context.Context, name string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["outgoing:"+name]++
	if err := p.fail[name]; err != nil {
		return nil, err
	}
	return slices.Clone(p.out[name]), nil
}

func (p *Provider) Incoming(_ context.Context, name string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["incoming:"+name]++
	if err := p.fail[name]; err != nil {
		return nil, err
	}
	var in []string
	for from, tos := range p.out {
		if slices.Contains(tos, name) {
			in = append(in, from)
		}
	}
	in = append(in, p.claims[name]...)
	slices.Sort(in)
	return in, nil
}

func (p *Provider) RandomName(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.random) == 0 {
		return "", errors.New("pagetest: no random names")
	}
	name := p.random[0]
	p.random = append(p.random[1:], name)
	return name, nil
}
