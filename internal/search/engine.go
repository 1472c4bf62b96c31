// Package search finds a chain of links between two pages by expanding a
// frontier forward from the start and another backward from the end, each
// steered toward the other by label similarity.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/YuvalRubins/WikiExplorer/internal/graph"
	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/similarity"
)

var (
	// ErrProviderUnavailable wraps failures to load a neighbor set.
	ErrProviderUnavailable = errors.New("link provider unavailable")
	// ErrOracleUnavailable wraps failures of the similarity oracle.
	ErrOracleUnavailable = errors.New("similarity oracle unavailable")
	// ErrBrokenPath reports a candidate path that does not join start and end.
	ErrBrokenPath = errors.New("candidate path does not join start and end")
)

// State is the lifecycle of a search.
type State int

const (
	Running State = iota
	Found
	Exhausted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Options tune a search.
type Options struct {
	// MaxPathLength bounds the result path, counted in nodes. Zero means
	// unbounded.
	MaxPathLength int
	// PrefetchWorkers, when positive, loads the neighbor sets of freshly
	// discovered nodes concurrently before they are ranked.
	PrefetchWorkers int
	Logger          *slog.Logger
	// OnProgress is called after every step.
	OnProgress func(Progress)
}

// Progress describes the state after one step: the current representatives
// of both frontiers and the partial paths reaching them.
type Progress struct {
	Step       int
	Direction  page.Direction
	Source     string
	Target     string
	SourcePath []string
	TargetPath []string
}

// Result is the outcome of a finished search.
type Result struct {
	State State    `json:"state"`
	Path  []string `json:"path,omitempty"`
	Steps int      `json:"steps"`
	Nodes int      `json:"nodes"`
	Edges int      `json:"edges"`
}

// side holds one frontier and the names it has enqueued.
type side struct {
	dir      page.Direction
	frontier Frontier
	seen     map[string]struct{}
	current  string
	// valid reports whether a node is still connected to this side's root
	// within the per-side bound.
	valid func(string) bool
}

// Engine runs one bidirectional search. It is not safe for concurrent use.
type Engine struct {
	registry  *page.Registry
	oracle    similarity.Oracle
	graph     *graph.Graph
	validator *Validator
	opts      Options
	log       *slog.Logger

	start, end string
	fwd, bwd   *side

	steps int
	state State
	path  []string
	// unvalidated is set while a candidate path may be waiting in the graph
	// because the last validation failed.
	unvalidated bool
}

// New prepares a search from start to end. Both frontiers are seeded and
// ranked against each other; a search whose start equals its end is already
// Found.
func New(ctx context.Context, registry *page.Registry, oracle similarity.Oracle, start, end string, opts Options) (*Engine, error) {
	log := logging.OrDiscard(opts.Logger)
	start, end = page.Normalize(start), page.Normalize(end)
	if start == "" || end == "" {
		return nil, errors.New("start and end must not be empty")
	}

	g := graph.New()
	g.AddNode(start)
	g.AddNode(end)

	e := &Engine{
		registry:  registry,
		oracle:    oracle,
		graph:     g,
		validator: NewValidator(registry, g, start, end, log),
		opts:      opts,
		log:       log.With(slog.String("start", start), slog.String("end", end)),
		start:     start,
		end:       end,
	}

	// A path of L nodes splits into at most ceil(L/2) on each side.
	maxHops := -1
	if opts.MaxPathLength > 0 {
		maxHops = (opts.MaxPathLength+1)/2 - 1
	}
	e.fwd = &side{
		dir:     page.Outgoing,
		seen:    map[string]struct{}{start: {}},
		current: start,
		valid: func(n string) bool {
			_, ok := g.Distance(start, n, maxHops)
			return ok
		},
	}
	e.bwd = &side{
		dir:     page.Incoming,
		seen:    map[string]struct{}{end: {}},
		current: end,
		valid: func(n string) bool {
			_, ok := g.Distance(n, end, maxHops)
			return ok
		},
	}

	if start == end {
		e.finish(Found, []string{start})
		return e, nil
	}

	if w, ok := oracle.(similarity.Warmer); ok {
		if err := w.Warm(ctx, []string{start, end}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
		}
	}
	rs, err := Rank(ctx, oracle, start, end)
	if err != nil {
		return nil, err
	}
	rt, err := Rank(ctx, oracle, end, start)
	if err != nil {
		return nil, err
	}
	e.fwd.frontier.Push(Entry{Rank: rs, Node: start, Counterpart: end})
	e.bwd.frontier.Push(Entry{Rank: rt, Node: end, Counterpart: start})
	return e, nil
}

// Rank scores node against counterpart. Lower ranks are expanded first.
func Rank(ctx context.Context, oracle similarity.Oracle, node, counterpart string) (float64, error) {
	s, err := oracle.Similarity(ctx, node, counterpart)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	return -s, nil
}

// State returns the current state.
func (e *Engine) State() State { return e.state }

// Path returns the found path, or nil while the search is not Found.
func (e *Engine) Path() []string {
	if e.state != Found {
		return nil
	}
	return append([]string(nil), e.path...)
}

// Steps returns the number of completed steps.
func (e *Engine) Steps() int { return e.steps }

// Graph returns the link graph discovered so far.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Result returns a snapshot of the outcome so far.
func (e *Engine) Result() Result {
	return Result{
		State: e.state,
		Path:  e.Path(),
		Steps: e.steps,
		Nodes: e.graph.NodeCount(),
		Edges: e.graph.EdgeCount(),
	}
}

// Run steps until the search is Found or Exhausted. The context is checked
// between steps.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	for e.state == Running {
		if err := ctx.Err(); err != nil {
			return e.Result(), err
		}
		if _, err := e.Step(ctx); err != nil {
			return e.Result(), err
		}
	}
	return e.Result(), nil
}

// Step expands one frontier: forward on even steps, backward on odd ones.
// After the expansion every candidate path through the graph is validated
// until one holds, none remains or the shortest one is too long. A step that
// fails with a provider or oracle error leaves the search Running and can be
// retried.
func (e *Engine) Step(ctx context.Context) (State, error) {
	if e.state != Running {
		return e.state, nil
	}
	if err := ctx.Err(); err != nil {
		return e.state, err
	}
	if e.unvalidated {
		if err := e.validate(ctx); err != nil {
			return e.state, err
		}
		if e.state != Running {
			return e.state, nil
		}
	}

	active, opposing := e.fwd, e.bwd
	if e.steps%2 == 1 {
		active, opposing = e.bwd, e.fwd
	}

	ok, err := e.expand(ctx, active, opposing)
	if err != nil {
		return e.state, err
	}
	if !ok {
		e.finish(Exhausted, nil)
		return e.state, nil
	}

	e.steps++
	searchSteps.WithLabelValues(active.dir.String()).Inc()
	e.report(active.dir)

	if err := e.validate(ctx); err != nil {
		return e.state, err
	}
	return e.state, nil
}

// expand advances active by one node. It reports false when either frontier
// has run dry. A failed expansion leaves both frontiers and seen-sets as they
// were, so the step can be retried.
func (e *Engine) expand(ctx context.Context, active, opposing *side) (bool, error) {
	anchor, ok := e.anchor(opposing)
	if !ok {
		return false, nil
	}
	top, ok, err := e.next(ctx, active, anchor)
	if err != nil || !ok {
		return false, err
	}
	node := top.Node

	batch, neighbors, err := e.rankNeighbors(ctx, active, node, anchor)
	if err != nil {
		active.frontier.Push(top)
		return false, err
	}

	for _, b := range batch {
		active.seen[b.Node] = struct{}{}
	}
	active.frontier.Merge(batch)
	opposing.current = anchor
	active.current = node
	for _, n := range neighbors {
		if active.dir == page.Outgoing {
			e.graph.AddEdge(node, n)
		} else {
			e.graph.AddEdge(n, node)
		}
	}

	e.log.Debug("expanded",
		slog.String("direction", active.dir.String()),
		slog.String("node", node),
		slog.String("anchor", anchor),
		slog.Int("neighbors", len(neighbors)),
		slog.Int("fresh", len(batch)),
	)
	return true, nil
}

// rankNeighbors loads the neighbors of node in the direction of s and ranks
// those s has not enqueued yet against anchor. It does not modify s.
func (e *Engine) rankNeighbors(ctx context.Context, s *side, node, anchor string) ([]Entry, []string, error) {
	neighbors, err := e.registry.Neighbors(ctx, node, s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	var fresh []string
	for _, n := range neighbors {
		if _, seen := s.seen[n]; !seen {
			fresh = append(fresh, n)
		}
	}
	if len(fresh) == 0 {
		return nil, neighbors, nil
	}

	if e.opts.PrefetchWorkers > 0 {
		if err := e.registry.Prefetch(ctx, fresh, s.dir, e.opts.PrefetchWorkers); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
		}
	}
	if w, ok := e.oracle.(similarity.Warmer); ok {
		if err := w.Warm(ctx, append(fresh, anchor)); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
		}
	}

	batch := make([]Entry, 0, len(fresh))
	for _, n := range fresh {
		r, err := Rank(ctx, e.oracle, n, anchor)
		if err != nil {
			return nil, nil, err
		}
		batch = append(batch, Entry{Rank: r, Node: n, Counterpart: anchor})
	}
	return batch, neighbors, nil
}

// anchor returns the best node of s that is still connected to its root,
// discarding disconnected ones on the way.
func (e *Engine) anchor(s *side) (string, bool) {
	for {
		top, ok := s.frontier.Peek()
		if !ok {
			return "", false
		}
		if s.valid(top.Node) {
			return top.Node, true
		}
		s.frontier.Pop()
		delete(s.seen, top.Node)
		staleEntries.WithLabelValues("dropped").Inc()
	}
}

// next pops the best entry of s that is connected to its root and was ranked
// against anchor. Entries ranked against an older anchor are ranked again
// and pushed back; disconnected ones are dropped. If ranking fails the
// popped entry is pushed back unchanged.
func (e *Engine) next(ctx context.Context, s *side, anchor string) (Entry, bool, error) {
	for {
		top, ok := s.frontier.Pop()
		if !ok {
			return Entry{}, false, nil
		}
		if !s.valid(top.Node) {
			delete(s.seen, top.Node)
			staleEntries.WithLabelValues("dropped").Inc()
			continue
		}
		if top.Counterpart == anchor {
			return top, true, nil
		}
		r, err := Rank(ctx, e.oracle, top.Node, anchor)
		if err != nil {
			s.frontier.Push(top)
			return Entry{}, false, err
		}
		s.frontier.Push(Entry{Rank: r, Node: top.Node, Counterpart: anchor})
		staleEntries.WithLabelValues("reranked").Inc()
	}
}

// validate checks candidate paths until one holds, none exists or the
// shortest candidate is longer than allowed.
func (e *Engine) validate(ctx context.Context) error {
	e.unvalidated = true
	for {
		path, ok := e.graph.ShortestPath(e.start, e.end)
		if !ok {
			e.unvalidated = false
			return nil
		}
		valid, err := e.validator.Validate(ctx, path)
		if err != nil {
			return err
		}
		if !valid {
			continue
		}
		e.unvalidated = false
		if e.opts.MaxPathLength > 0 && len(path) > e.opts.MaxPathLength {
			e.log.Debug("path too long", slog.Int("length", len(path)), slog.String("path", page.PathString(path)))
			return nil
		}
		e.finish(Found, path)
		return nil
	}
}

func (e *Engine) report(dir page.Direction) {
	if e.opts.OnProgress == nil {
		return
	}
	sp, ok := e.graph.ShortestPath(e.start, e.fwd.current)
	if !ok {
		sp = []string{e.fwd.current}
	}
	tp, ok := e.graph.ShortestPath(e.bwd.current, e.end)
	if !ok {
		tp = []string{e.bwd.current}
	}
	e.opts.OnProgress(Progress{
		Step:       e.steps,
		Direction:  dir,
		Source:     e.fwd.current,
		Target:     e.bwd.current,
		SourcePath: sp,
		TargetPath: tp,
	})
}

func (e *Engine) finish(state State, path []string) {
	e.state = state
	e.path = path
	searchesFinished.WithLabelValues(state.String()).Inc()
	attrs := []any{slog.Int("steps", e.steps), slog.Int("nodes", e.graph.NodeCount())}
	if state == Found {
		attrs = append(attrs, slog.String("path", page.PathString(path)))
	}
	e.log.Info("search "+state.String(), attrs...)
}
