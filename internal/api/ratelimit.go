package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientRateLimiter applies a per-client token bucket keyed by remote
// address. Buckets idle past cleanupTTL are dropped.
type ClientRateLimiter struct {
	mu         sync.RWMutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	rate       rate.Limit
	burst      int
	cleanupTTL time.Duration
}

// NewClientRateLimiter builds a limiter allowing rpm requests per minute
// with the given burst per client.
func NewClientRateLimiter(rpm, burst int) *ClientRateLimiter {
	if rpm <= 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = 10
	}

	crl := &ClientRateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		rate:       rate.Limit(float64(rpm) / 60.0),
		burst:      burst,
		cleanupTTL: 10 * time.Minute,
	}

	go crl.cleanupLoop()

	return crl
}

// Allow reports whether the given client may proceed.
func (crl *ClientRateLimiter) Allow(client string) bool {
	return crl.getLimiter(client).Allow()
}

// Middleware rejects over-limit clients with 429 before the handler runs.
func (crl *ClientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !crl.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (crl *ClientRateLimiter) getLimiter(client string) *rate.Limiter {
	crl.mu.RLock()
	limiter, exists := crl.limiters[client]
	crl.mu.RUnlock()

	if exists {
		crl.mu.Lock()
		crl.lastAccess[client] = time.Now()
		crl.mu.Unlock()
		return limiter
	}

	crl.mu.Lock()
	defer crl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = crl.limiters[client]; exists {
		crl.lastAccess[client] = time.Now()
		return limiter
	}

	limiter = rate.NewLimiter(crl.rate, crl.burst)
	crl.limiters[client] = limiter
	crl.lastAccess[client] = time.Now()

	return limiter
}

func (crl *ClientRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(crl.cleanupTTL / 2)
	defer ticker.Stop()

	for range ticker.C {
		crl.cleanup()
	}
}

func (crl *ClientRateLimiter) cleanup() {
	crl.mu.Lock()
	defer crl.mu.Unlock()

	now := time.Now()
	for client, last := range crl.lastAccess {
		if now.Sub(last) > crl.cleanupTTL {
			delete(crl.limiters, client)
			delete(crl.lastAccess, client)
		}
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
