package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Will-Jameson/portfolio-website/internal/auth"
	"github.com/Will-Jameson/portfolio-website/internal/db"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimiterPerIP(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Limit(okHandler)

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := 0; i < 2; i++ {
		if code := hit("10.0.0.1:5000"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := hit("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for same ip on another port, got %d", code)
	}
	if code := hit("10.0.0.2:5000"); code != http.StatusOK {
		t.Fatalf("other ip must not be limited, got %d", code)
	}

	now = now.Add(time.Minute + time.Second)
	if code := hit("10.0.0.1:5000"); code != http.StatusOK {
		t.Fatalf("window must reset, got %d", code)
	}
	rl.cleanup()
	if _, ok := rl.attempts["10.0.0.2"]; ok {
		t.Fatalf("stale entry must be swept")
	}
}

func TestRequireSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gate := auth.NewGate(db.NewMemory(0), db.NewMemory(0), []byte("secret"), nil)
	h := RequireSession(gate, "/login.html")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := gate.TakeRedirect(ctx); got != "" {
		t.Fatalf("api requests must not record a redirect, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/editor?id=abc", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login.html" {
		t.Fatalf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if got := gate.TakeRedirect(ctx); got != "/admin/editor?id=abc" {
		t.Fatalf("expected location to be recorded, got %q", got)
	}

	res := gate.Login(ctx, "letmein!", false)
	if !res.Success {
		t.Fatalf("login: %+v", res)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: res.Token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie session: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer session: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/drafts", nil)
	req.Header.Set("Authorization", "Bearer not-the-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: expected 401, got %d", rec.Code)
	}
}
