package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// *For any* limit, exactly limit requests pass inside one window.
func TestProperty_RateLimiterAllowsExactlyLimit(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 20).Draw(t, "limit")
		extra := rapid.IntRange(1, 10).Draw(t, "extra")

		rl := NewRateLimiter(limit, time.Hour)
		allowed := 0
		for i := 0; i < limit+extra; i++ {
			if rl.Allow("k") {
				allowed++
			}
		}
		if allowed != limit {
			t.Fatalf("expected %d allowed, got %d", limit, allowed)
		}
		if rl.Remaining("k") != 0 {
			t.Fatalf("expected 0 remaining, got %d", rl.Remaining("k"))
		}
	})
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("expected first two requests to pass")
	}
	if rl.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if got := rl.Reset("a"); !got.Equal(now.Add(time.Minute)) {
		t.Errorf("unexpected reset %v", got)
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("a") {
		t.Fatal("expected request after window to pass")
	}
	if rl.Remaining("b") != 2 {
		t.Errorf("keys should be independent")
	}
}

func TestRegistrationRateLimiter_Handler(t *testing.T) {
	rl := NewRegistrationRateLimiter()
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/registrations", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < RegistrationLimit; i++ {
		rec := do("203.0.113.7:4000")
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i+1, rec.Code)
		}
	}

	// Different source port, same client
	rec := do("203.0.113.7:5000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}

	if rec := do("198.51.100.1:4000"); rec.Code != http.StatusCreated {
		t.Errorf("other clients should not be limited, got %d", rec.Code)
	}
}

func TestPreviewRateLimiter_Handler(t *testing.T) {
	rl := NewPreviewRateLimiter()
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < PreviewLimit; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/subdomains/preview", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subdomains/preview", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "30" {
		t.Errorf("expected limit header 30, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}
}
