// Package cache persists fetched link sets between runs. A Store keeps
// neighbor lists by key; Provider wraps a page.LinkProvider and consults a
// Store before fetching.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
)

// Store keeps neighbor lists by key. Get reports false for keys that are
// missing or expired.
type Store interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Put(ctx context.Context, key string, names []string) error
	Close() error
}

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wikiexplorer",
	Subsystem: "cache",
	Name:      "lookups_total",
	Help:      "Link cache lookups, by direction and result.",
}, []string{"direction", "result"})

// Provider serves link sets from a Store and falls back to the wrapped
// provider on a miss. Store failures are logged and never fail a lookup.
type Provider struct {
	next      page.LinkProvider
	store     Store
	namespace string
	log       *slog.Logger
}

// NewProvider wraps next. Keys are prefixed with namespace, which must
// identify everything that changes the fetched sets, such as the wiki
// language and extraction settings.
func NewProvider(next page.LinkProvider, store Store, namespace string, log *slog.Logger) *Provider {
	return &Provider{next: next, store: store, namespace: namespace, log: logging.OrDiscard(log)}
}

func (p *Provider) Outgoing(ctx context.Context, name string) ([]string, error) {
	return p.lookup(ctx, name, page.Outgoing)
}

func (p *Provider) Incoming(ctx context.Context, name string) ([]string, error) {
	return p.lookup(ctx, name, page.Incoming)
}

// RandomName delegates to the wrapped provider. Random picks are not cached.
func (p *Provider) RandomName(ctx context.Context) (string, error) {
	rn, ok := p.next.(page.RandomNamer)
	if !ok {
		return "", fmt.Errorf("provider %T cannot pick random pages", p.next)
	}
	return rn.RandomName(ctx)
}

// Key returns the store key for the dir link set of name.
func (p *Provider) Key(name string, dir page.Direction) string {
	return p.namespace + "/" + dir.String() + "/" + page.Normalize(name)
}

func (p *Provider) lookup(ctx context.Context, name string, dir page.Direction) ([]string, error) {
	key := p.Key(name, dir)
	names, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.log.Warn("cache read", slog.String("key", key), slog.String("error", err.Error()))
	}
	if ok {
		lookups.WithLabelValues(dir.String(), "hit").Inc()
		return names, nil
	}
	lookups.WithLabelValues(dir.String(), "miss").Inc()

	if dir == page.Incoming {
		names, err = p.next.Incoming(ctx, name)
	} else {
		names, err = p.next.Outgoing(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, key, names); err != nil {
		p.log.Warn("cache write", slog.String("key", key), slog.String("error", err.Error()))
	}
	return names, nil
}

// Page names never contain newlines, so a list is stored one name per line.
func encode(names []string) []byte {
	return []byte(strings.Join(names, "\n"))
}

func decode(data []byte) []string {
	if len(data) == 0 {
		return []string{}
	}
	return strings.Split(string(data), "\n")
}
