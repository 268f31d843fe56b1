package main

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"qbeAdmin/internal/utils"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	clients    map[string]*clientLimiter
	mutex      sync.Mutex
	cleanupTTL time.Duration
	now        func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per client with bursts of burst
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:      rate.Limit(rps),
		burst:      burst,
		clients:    make(map[string]*clientLimiter),
		cleanupTTL: 10 * time.Minute,
		now:        time.Now,
	}
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	now := rl.now()

	rl.mutex.Lock()
	client, exists := rl.clients[ip]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = client
	}
	client.lastSeen = now
	rl.mutex.Unlock()

	return client.limiter.AllowN(now, 1)
}

// Cleanup drops clients that have been idle longer than the cleanup TTL
func (rl *RateLimiter) Cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for ip, client := range rl.clients {
		if now.Sub(client.lastSeen) > rl.cleanupTTL {
			delete(rl.clients, ip)
		}
	}
}

// StartCleanupRoutine runs Cleanup every interval until stop is closed
func (rl *RateLimiter) StartCleanupRoutine(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}

// RateLimitMiddleware answers 429 once a client exceeds its limiter
func RateLimitMiddleware(limiters map[string]*RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			category := getLimiterCategory(r.URL.Path)
			limiter, ok := limiters[category]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ip := getRealIP(r)
			if !limiter.Allow(ip) {
				zerolog.Ctx(r.Context()).Warn().
					Str("ip", ip).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("category", category).
					Msg("Rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(1))
				utils.RespondWithError(w, r, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewLimiters builds the per-category limiters. Login endpoints get a fifth
// of the general rate.
func NewLimiters(rps float64, burst int) map[string]*RateLimiter {
	authBurst := burst / 5
	if authBurst < 1 {
		authBurst = 1
	}
	return map[string]*RateLimiter{
		"auth":    NewRateLimiter(rps/5, authBurst),
		"api":     NewRateLimiter(rps, burst),
		"general": NewRateLimiter(rps, burst),
	}
}

func getLimiterCategory(path string) string {
	switch {
	case path == "/login" || path == "/auth/callback":
		return "auth"
	case strings.HasPrefix(path, "/api/"):
		return "api"
	case path == "/metrics" || path == "/healthz":
		return "none"
	default:
		return "general"
	}
}

// getRealIP returns the peer address of r. Forwarding headers are ignored.
func getRealIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
