// Package ratelimit provides keyed token-bucket rate limiting: per host for
// outbound wiki requests and per client for the HTTP server.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func (e *entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

func (e *entry) idleSince(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastSeen)
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	rate  rate.Limit
	burst int
	keys  sync.Map // map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Limiter that allows r events per second per key with the
// given burst size. A non-positive r disables limiting. A background
// goroutine evicts keys idle for five minutes; call Stop to release it.
func New(r float64, burst int) *Limiter {
	lim := rate.Limit(r)
	if r <= 0 {
		lim = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:  lim,
		burst: burst,
		stop:  make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *Limiter) get(key string) *entry {
	now := time.Now()
	v, _ := l.keys.LoadOrStore(key, &entry{
		limiter:  rate.NewLimiter(l.rate, l.burst),
		lastSeen: now,
	})
	e := v.(*entry)
	e.touch(now)
	return e
}

// Allow reports whether an event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).limiter.Allow()
}

// Wait blocks until an event for key may happen or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).limiter.Wait(ctx)
}

// Stop terminates the background cleanup goroutine. It is safe to call more
// than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

const staleAfter = 5 * time.Minute

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

func (l *Limiter) evict(now time.Time) {
	l.keys.Range(func(key, value any) bool {
		if value.(*entry).idleSince(now) > staleAfter {
			l.keys.Delete(key)
		}
		return true
	})
}

// Middleware rejects requests with 429 once a client exceeds its budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the IP portion of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
