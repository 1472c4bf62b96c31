// Package explorer assembles a link provider, cache, similarity oracle and
// search engine from configuration, and runs searches for the command-line,
// HTTP and MCP front ends.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/YuvalRubins/WikiExplorer/internal/cache"
	"github.com/YuvalRubins/WikiExplorer/internal/config"
	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/mdwiki"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/ratelimit"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
	"github.com/YuvalRubins/WikiExplorer/internal/similarity"
	"github.com/YuvalRubins/WikiExplorer/internal/wiki"
)

// RandomPage as a start or end name picks a random page.
const RandomPage = "*"

var (
	// ErrUnknownBackend is returned for a backend name New does not know.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrNoRandom is returned when the backend cannot pick random pages.
	ErrNoRandom = errors.New("backend cannot pick random pages")
)

// Request describes one search.
type Request struct {
	Start string `json:"start"`
	End   string `json:"end"`
	// Forbidden names are never entered, in addition to the configured ones.
	Forbidden []string `json:"forbidden,omitempty"`
	// MaxPathLength overrides the configured bound when positive.
	MaxPathLength int `json:"max_path_length,omitempty"`
}

// Result is the outcome of a search.
type Result struct {
	Start string `json:"start"`
	End   string `json:"end"`
	search.Result
	Elapsed time.Duration `json:"elapsed"`
}

// Options tune searches run by an Explorer.
type Options struct {
	MaxPathLength   int
	PrefetchWorkers int
	Logger          *slog.Logger
	// URLFor, when set, renders the address of a page.
	URLFor func(name string) string
}

// Explorer runs searches against one backend. It is safe for concurrent
// use; every search gets its own registry, so retractions and request
// forbidden lists never leak between searches.
type Explorer struct {
	provider  page.LinkProvider
	oracle    similarity.Oracle
	forbidden page.Forbidden
	opts      Options
	log       *slog.Logger

	closers []func() error
}

// NewWithProvider creates an Explorer over an existing provider.
func NewWithProvider(provider page.LinkProvider, oracle similarity.Oracle, forbidden page.Forbidden, opts Options) *Explorer {
	opts.Logger = logging.OrDiscard(opts.Logger)
	return &Explorer{
		provider:  provider,
		oracle:    oracle,
		forbidden: forbidden,
		opts:      opts,
		log:       opts.Logger,
	}
}

// New builds an Explorer from configuration.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Explorer, error) {
	log = logging.OrDiscard(log)
	x := &Explorer{log: log}

	var (
		base      page.LinkProvider
		namespace string
		forbidden page.Forbidden
		urlFor    func(string) string
	)
	switch cfg.Backend {
	case config.BackendWiki, "":
		lang, err := wiki.LanguageFor(cfg.Language)
		if err != nil {
			return nil, err
		}
		limiter := ratelimit.New(cfg.RequestsPerSecond, cfg.Burst)
		x.closers = append(x.closers, func() error { limiter.Stop(); return nil })
		client, err := wiki.NewClient(wiki.Options{
			Language:   lang,
			NoNavBoxes: cfg.NoNavBoxes,
			HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
			Limiter:    limiter,
			Logger:     log,
		})
		if err != nil {
			return nil, err
		}
		base, namespace, urlFor = client, client.Variant(), client.URLFor
		forbidden = wiki.Forbidden(cfg.Forbidden...)
	case config.BackendMarkdown:
		w, err := mdwiki.Open(cfg.MarkdownRoot, log)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(cfg.MarkdownRoot)
		if err != nil {
			abs = cfg.MarkdownRoot
		}
		base, namespace = w, "md:"+abs
		forbidden = page.NewForbidden(cfg.Forbidden, nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		x.Close()
		return nil, err
	}
	provider := base
	if store != nil {
		x.closers = append(x.closers, store.Close)
		provider = cache.NewProvider(base, store, namespace, log)
	}

	oracle, err := newOracle(cfg)
	if err != nil {
		x.Close()
		return nil, err
	}

	x.provider = provider
	x.oracle = oracle
	x.forbidden = forbidden
	x.opts = Options{
		MaxPathLength:   cfg.MaxPathLength,
		PrefetchWorkers: cfg.PrefetchWorkers,
		Logger:          log,
		URLFor:          urlFor,
	}
	log.Debug("explorer ready",
		slog.String("backend", cfg.Backend),
		slog.String("oracle", cfg.Oracle),
		slog.String("cache", cfg.Cache),
	)
	return x, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (cache.Store, error) {
	switch cfg.Cache {
	case config.CacheNone, "":
		return nil, nil
	case config.CacheFile:
		return cache.NewFileStore(filepath.Join(cfg.CacheDir, "links"), cfg.CacheTTL), nil
	case config.CacheBadger:
		return cache.OpenBadger(cache.BadgerConfig{
			Path:       filepath.Join(cfg.CacheDir, "badger"),
			TTL:        cfg.CacheTTL,
			GCInterval: 5 * time.Minute,
			Logger:     log,
		})
	case config.CacheRedis:
		return cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.CacheTTL)
	default:
		return nil, fmt.Errorf("unknown cache %q", cfg.Cache)
	}
}

func newOracle(cfg *config.Config) (similarity.Oracle, error) {
	switch cfg.Oracle {
	case config.OracleTokens, "":
		return similarity.TokenOracle{}, nil
	case config.OracleOpenAI:
		return similarity.NewVectorOracle(similarity.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)), nil
	case config.OracleService:
		return similarity.NewVectorOracle(similarity.NewServiceEmbedder(cfg.EmbeddingURL)), nil
	default:
		return nil, fmt.Errorf("unknown oracle %q", cfg.Oracle)
	}
}

// Close releases the cache and background workers.
func (x *Explorer) Close() error {
	var errs []error
	for i := len(x.closers) - 1; i >= 0; i-- {
		errs = append(errs, x.closers[i]())
	}
	x.closers = nil
	return errors.Join(errs...)
}

// URLFor returns the address of a page, or "" when the backend has none.
func (x *Explorer) URLFor(name string) string {
	if x.opts.URLFor == nil {
		return ""
	}
	return x.opts.URLFor(name)
}

// Random returns a random page name.
func (x *Explorer) Random(ctx context.Context) (string, error) {
	rn, ok := x.provider.(page.RandomNamer)
	if !ok {
		return "", ErrNoRandom
	}
	for range 10 {
		name, err := rn.RandomName(ctx)
		if err != nil {
			return "", err
		}
		if name = page.Normalize(name); x.forbidden.Allows(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: only forbidden pages drawn", ErrNoRandom)
}

// Links returns the filtered neighbor set of name in direction dir.
func (x *Explorer) Links(ctx context.Context, name string, dir page.Direction) ([]string, error) {
	reg := page.NewRegistry(x.provider, x.forbidden)
	names, err := reg.Neighbors(ctx, name, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrProviderUnavailable, err)
	}
	return names, nil
}

// Search finds a path for req. A start or end of "*" is replaced by a
// random page. onProgress, if not nil, is called after every step. A found
// path is checked edge by edge once more before it is returned.
func (x *Explorer) Search(ctx context.Context, req Request, onProgress func(search.Progress)) (Result, error) {
	begin := time.Now()
	start, err := x.resolve(ctx, req.Start)
	if err != nil {
		return Result{}, err
	}
	end, err := x.resolve(ctx, req.End)
	if err != nil {
		return Result{}, err
	}
	out := Result{Start: start, End: end}

	maxLen := x.opts.MaxPathLength
	if req.MaxPathLength > 0 {
		maxLen = req.MaxPathLength
	}
	reg := page.NewRegistry(x.provider, x.forbidden.With(req.Forbidden...))
	log := x.log.With(slog.String("start", start), slog.String("end", end))
	log.Info("search started", slog.Int("max_path_length", maxLen))

	engine, err := search.New(ctx, reg, x.oracle, start, end, search.Options{
		MaxPathLength:   maxLen,
		PrefetchWorkers: x.opts.PrefetchWorkers,
		Logger:          x.log,
		OnProgress:      onProgress,
	})
	if err != nil {
		return out, err
	}
	out.Result, err = engine.Run(ctx)
	out.Elapsed = time.Since(begin)
	if err != nil {
		return out, err
	}
	if out.State == search.Found {
		if err := Verify(ctx, reg, out.Path); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (x *Explorer) resolve(ctx context.Context, name string) (string, error) {
	if name == RandomPage {
		return x.Random(ctx)
	}
	name = page.Normalize(name)
	if name == "" {
		return "", errors.New("page name must not be empty")
	}
	return name, nil
}

// Verify checks that every step of path is an outgoing link in reg.
func Verify(ctx context.Context, reg *page.Registry, path []string) error {
	for i := 0; i+1 < len(path); i++ {
		ok, err := reg.HasOutgoing(ctx, path[i], path[i+1])
		if err != nil {
			return fmt.Errorf("%w: %w", search.ErrProviderUnavailable, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s does not link to %s", search.ErrBrokenPath, path[i], path[i+1])
		}
	}
	return nil
}
