// Package handler serves path searches over HTTP: a server-sent event stream
// of search progress, and JSON endpoints for paths, links and random pages.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YuvalRubins/WikiExplorer/internal/auth"
	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/ratelimit"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
)

// Searcher is the part of explorer.Explorer the handler uses.
type Searcher interface {
	Search(ctx context.Context, req explorer.Request, onProgress func(search.Progress)) (explorer.Result, error)
	Links(ctx context.Context, name string, dir page.Direction) ([]string, error)
	Random(ctx context.Context) (string, error)
	URLFor(name string) string
}

var httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "wikiexplorer",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests served, by route and status code.",
}, []string{"route", "code"})

// Options configures a Handler.
type Options struct {
	Logger *slog.Logger
	// SearchTimeout bounds a single search. Zero means no bound.
	SearchTimeout time.Duration
	// Limiter throttles the JSON API per client. Nil means unlimited.
	Limiter *ratelimit.Limiter
	// Tokens guards searches and lookups. Nil leaves them open.
	Tokens *auth.TokenStore
}

// Handler serves the HTTP API. At most one streamed search runs at a time;
// a new /run request stops the previous one.
type Handler struct {
	explorer Searcher
	opts     Options
	log      *slog.Logger

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
}

// New creates a handler around x.
func New(x Searcher, opts Options) *Handler {
	opts.Logger = logging.OrDiscard(opts.Logger)
	return &Handler{explorer: x, opts: opts, log: opts.Logger}
}

// Routes returns the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		if h.opts.Limiter != nil {
			r.Use(h.opts.Limiter.Middleware)
		}
		r.With(h.require(auth.OpSearch)).Get("/run", h.run)
		r.Route("/api", func(r chi.Router) {
			r.With(h.require(auth.OpSearch)).Get("/path", h.path)
			r.With(h.require(auth.OpLinks)).Get("/links/*", h.links)
			r.With(h.require(auth.OpRandom)).Get("/random", h.random)
		})
	})
	return r
}

func (h *Handler) require(operation string) func(http.Handler) http.Handler {
	if h.opts.Tokens == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.opts.Tokens.Require(operation)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseRequest reads start, end, forbidden (comma separated) and max from
// the query string.
func parseRequest(r *http.Request) (explorer.Request, error) {
	q := r.URL.Query()
	req := explorer.Request{
		Start: strings.TrimSpace(q.Get("start")),
		End:   strings.TrimSpace(q.Get("end")),
	}
	if req.Start == "" || req.End == "" {
		return req, errors.New("start and end are required")
	}
	for _, f := range strings.Split(q.Get("forbidden"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			req.Forbidden = append(req.Forbidden, f)
		}
	}
	if m := q.Get("max"); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid max %q", m)
		}
		req.MaxPathLength = n
	}
	return req, nil
}

// pathResponse is the JSON form of a search result.
type pathResponse struct {
	explorer.Result
	Text string   `json:"text,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

func (h *Handler) newPathResponse(res explorer.Result) pathResponse {
	out := pathResponse{Result: res}
	if len(res.Path) > 0 {
		out.Text = page.PathString(res.Path)
		for _, n := range res.Path {
			if u := h.explorer.URLFor(n); u != "" {
				out.URLs = append(out.URLs, u)
			}
		}
	}
	return out
}

func (h *Handler) path(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := h.searchContext(r.Context())
	defer cancel()

	res, err := h.explorer.Search(ctx, req, nil)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, h.newPathResponse(res))
}

func (h *Handler) links(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("page name is required"))
		return
	}
	dir := page.Outgoing
	switch r.URL.Query().Get("dir") {
	case "", "outgoing":
	case "incoming":
		dir = page.Incoming
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid dir %q", r.URL.Query().Get("dir")))
		return
	}

	names, err := h.explorer.Links(r.Context(), name, dir)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      page.Normalize(name),
		"direction": dir.String(),
		"links":     names,
	})
}

func (h *Handler) random(w http.ResponseWriter, r *http.Request) {
	name, err := h.explorer.Random(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "url": h.explorer.URLFor(name)})
}

func (h *Handler) searchContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.opts.SearchTimeout > 0 {
		return context.WithTimeout(parent, h.opts.SearchTimeout)
	}
	return context.WithCancel(parent)
}

// begin registers a new streamed search, stopping the running one. It
// returns the id of the stopped search, if any, and a func to call when the
// new search ends.
func (h *Handler) begin(ctx context.Context) (context.Context, string, string, func()) {
	ctx, cancel := h.searchContext(ctx)
	id := uuid.NewString()

	h.mu.Lock()
	prev := h.current
	if h.cancel != nil {
		h.cancel()
	}
	h.current, h.cancel = id, cancel
	h.mu.Unlock()

	done := func() {
		h.mu.Lock()
		if h.current == id {
			h.current, h.cancel = "", nil
		}
		h.mu.Unlock()
		cancel()
	}
	return ctx, id, prev, done
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, explorer.ErrNoRandom):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, search.ErrProviderUnavailable), errors.Is(err, search.ErrOracleUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		h.log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
