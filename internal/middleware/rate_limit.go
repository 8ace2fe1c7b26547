package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/welldanyogia/colancer-registry/internal/api"
)

// CodeRateLimited is returned when a client exceeds its request budget
const CodeRateLimited = "TOO_MANY_REQUESTS"

// RateLimiter implements a sliding-window in-memory rate limiter
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter. Call Start to evict stale keys
// in the background.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Start evicts stale keys every window until stop is closed
func (rl *RateLimiter) Start(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(rl.window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-stop:
				return
			}
		}
	}()
}

// Allow records a request for key and reports whether it fits in the window
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.prune(key)
	if len(valid) >= rl.limit {
		return false
	}
	rl.requests[key] = append(valid, rl.now())
	return true
}

// Remaining returns the number of remaining requests for a key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	remaining := rl.limit - len(rl.prune(key))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset returns when the oldest request for key leaves the window
func (rl *RateLimiter) Reset(key string) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.prune(key)
	if len(valid) == 0 {
		return rl.now()
	}
	return valid[0].Add(rl.window)
}

// prune drops timestamps outside the window. Caller holds mu.
func (rl *RateLimiter) prune(key string) []time.Time {
	windowStart := rl.now().Add(-rl.window)
	requests := rl.requests[key]

	i := 0
	for i < len(requests) && !requests[i].After(windowStart) {
		i++
	}
	valid := requests[i:]
	if len(valid) == 0 {
		delete(rl.requests, key)
		return nil
	}
	rl.requests[key] = valid
	return valid
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key := range rl.requests {
		rl.prune(key)
	}
}

// IPRateLimiter limits requests per client IP
type IPRateLimiter struct {
	limiter *RateLimiter
}

// Registration limits: 5 attempts per IP per hour. Every attempt costs a
// proof verification round trip upstream.
const (
	RegistrationLimit  = 5
	RegistrationWindow = time.Hour
)

// Preview limits: 30 previews per IP per minute. Each preview runs the
// allocator against the database.
const (
	PreviewLimit  = 30
	PreviewWindow = time.Minute
)

// NewIPRateLimiter creates a per-IP limiter allowing limit requests per window
func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	return &IPRateLimiter{limiter: NewRateLimiter(limit, window)}
}

// NewRegistrationRateLimiter creates the per-IP registration limiter
func NewRegistrationRateLimiter() *IPRateLimiter {
	return NewIPRateLimiter(RegistrationLimit, RegistrationWindow)
}

// NewPreviewRateLimiter creates the per-IP name preview limiter
func NewPreviewRateLimiter() *IPRateLimiter {
	return NewIPRateLimiter(PreviewLimit, PreviewWindow)
}

// Limiter exposes the underlying limiter
func (rl *IPRateLimiter) Limiter() *RateLimiter {
	return rl.limiter
}

// Handler rate limits requests by client IP and sets X-RateLimit headers
func (rl *IPRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)

		allowed := rl.limiter.Allow(key)
		resetTime := rl.limiter.Reset(key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limiter.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.limiter.Remaining(key)))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			writeRateLimitError(w, resetTime)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware has
// already rewritten RemoteAddr from proxy headers when it is mounted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitError writes a 429 Too Many Requests response
func writeRateLimitError(w http.ResponseWriter, resetTime time.Time) {
	retryAfter := resetTime.Unix() - time.Now().Unix()
	if retryAfter < 0 {
		retryAfter = 0
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	api.WriteError(w, http.StatusTooManyRequests, CodeRateLimited,
		"Rate limit exceeded. Please try again later.",
		map[string][]string{"retry_after": {strconv.FormatInt(retryAfter, 10)}})
}
