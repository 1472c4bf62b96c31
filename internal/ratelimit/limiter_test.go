package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllow(t *testing.T) {
	// 1 request/sec, burst of 2
	l := New(1, 2)
	defer l.Stop()

	if !l.Allow("en.wikipedia.org") {
		t.Fatal("first request should be allowed")
	}
	if !l.Allow("en.wikipedia.org") {
		t.Fatal("second request (burst) should be allowed")
	}
	if l.Allow("en.wikipedia.org") {
		t.Fatal("third request should be denied (burst exhausted)")
	}
}

func TestSeparateKeys(t *testing.T) {
	l := New(1, 1)
	defer l.Stop()

	if !l.Allow("en.wikipedia.org") {
		t.Fatal("first key first request should be allowed")
	}
	if l.Allow("en.wikipedia.org") {
		t.Fatal("first key second request should be denied")
	}
	if !l.Allow("he.wikipedia.org") {
		t.Fatal("second key first request should be allowed")
	}
}

func TestUnlimited(t *testing.T) {
	l := New(0, 0)
	defer l.Stop()

	for i := 0; i < 100; i++ {
		if !l.Allow("host") {
			t.Fatalf("request %d denied with limiting disabled", i)
		}
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(0.001, 1)
	defer l.Stop()

	if err := l.Wait(context.Background(), "host"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "host"); err == nil {
		t.Fatal("second wait should fail before a token is available")
	}
}

func TestEvictStale(t *testing.T) {
	l := New(1, 1)
	defer l.Stop()

	l.Allow("old")
	l.evict(time.Now().Add(staleAfter + time.Second))

	if _, ok := l.keys.Load("old"); ok {
		t.Fatal("stale key should be evicted")
	}
	// An evicted key starts with a fresh bucket.
	if !l.Allow("old") {
		t.Fatal("evicted key should be allowed again")
	}
}

func TestStopTwice(t *testing.T) {
	l := New(1, 1)
	l.Stop()
	l.Stop()
}

func TestMiddleware(t *testing.T) {
	l := New(1, 1)
	defer l.Stop()

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/path", nil)
	req.RemoteAddr = "10.0.0.1:4000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		want   string
	}{
		{"ipv4 with port", "192.168.1.1:12345", "192.168.1.1"},
		{"ipv6 with port", "[::1]:443", "::1"},
		{"ipv6 with zone", "[fe80::1%eth0]:443", "fe80::1%eth0"},
		{"no port", "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP(%q) = %q, want %q", tt.remote, got, tt.want)
			}
		})
	}
}
