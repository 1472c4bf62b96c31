package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/YuvalRubins/WikiExplorer/internal/graph"
	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
)

// Validator confirms candidate paths edge by edge against the registry's
// outgoing sets and retracts edges that turn out to be false.
type Validator struct {
	registry *page.Registry
	graph    *graph.Graph
	start    string
	end      string
	log      *slog.Logger
}

// NewValidator creates a validator for paths from start to end in g.
func NewValidator(registry *page.Registry, g *graph.Graph, start, end string, log *slog.Logger) *Validator {
	return &Validator{registry: registry, graph: g, start: start, end: end, log: logging.OrDiscard(log)}
}

// Validate reports whether every step of path is a real forward link. Each
// false edge found is removed from the graph and retracted from the
// registry, so the caller can look for another route in the corrected graph.
// A path that does not run from start to end is a programming error and
// yields ErrBrokenPath.
func (v *Validator) Validate(ctx context.Context, path []string) (bool, error) {
	if len(path) == 0 || path[0] != v.start || path[len(path)-1] != v.end {
		return false, fmt.Errorf("%w: %s", ErrBrokenPath, page.PathString(path))
	}

	valid := true
	for i := 0; i+1 < len(path); i++ {
		from, to := path[i], path[i+1]
		ok, err := v.registry.HasOutgoing(ctx, from, to)
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
		if ok {
			continue
		}
		v.graph.RemoveEdge(from, to)
		v.registry.InvalidateEdge(from, to)
		edgesRetracted.Inc()
		v.log.Warn("retracted claimed link", slog.String("from", from), slog.String("to", to))
		valid = false
	}
	return valid, nil
}
