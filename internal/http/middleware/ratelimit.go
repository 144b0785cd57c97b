package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter counts hits per key in fixed windows. Requests are keyed by
// route and client, so one limiter can guard several action routes without
// one route starving the others.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	now     func() time.Time
	buckets map[string]window
}

type window struct {
	hits    int
	resetAt time.Time
}

func NewRateLimiter(limit int, per time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if per <= 0 {
		per = time.Minute
	}
	return &RateLimiter{
		window:  per,
		limit:   limit,
		now:     time.Now,
		buckets: make(map[string]window),
	}
}

// Allow records a hit for key. A nil limiter allows everything.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.take(key)
	return ok
}

// AllowRequest records a hit for r's route and client. When refused it
// also reports how long until the client's window resets.
func (rl *RateLimiter) AllowRequest(r *http.Request) (bool, time.Duration) {
	return rl.take(requestKey(r))
}

func requestKey(r *http.Request) string {
	route := r.Pattern
	if route == "" {
		route = r.Method + " " + r.URL.Path
	}
	return route + "|" + ClientIP(r)
}

func (rl *RateLimiter) take(key string) (bool, time.Duration) {
	if rl == nil {
		return true, 0
	}
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.buckets[key]
	if !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(rl.window)}
	}
	if w.hits >= rl.limit {
		rl.buckets[key] = w
		return false, w.resetAt.Sub(now)
	}
	w.hits++
	rl.buckets[key] = w

	if len(rl.buckets) > rl.limit*50 {
		for k, b := range rl.buckets {
			if !now.Before(b.resetAt) {
				delete(rl.buckets, k)
			}
		}
	}
	return true, 0
}

// Limit answers 429 with Retry-After once the client exceeds rl on the route.
func Limit(rl *RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := rl.AllowRequest(r); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// ClientIP trusts proxy headers, which is only right behind a reverse proxy.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		ip := strings.TrimSpace(parts[0])
		if ip != "" {
			return ip
		}
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
