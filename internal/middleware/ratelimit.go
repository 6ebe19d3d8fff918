package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zerocas99/zenload/internal/config"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	limiters   = make(map[string]*ipLimiter)
	limitersMu sync.Mutex
)

// RateLimit is a per-IP token bucket sized from the configured window.
func RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !limiterFor(ip).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "Too many requests. Please slow down.",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limiterFor(ip string) *rate.Limiter {
	limitersMu.Lock()
	defer limitersMu.Unlock()

	l, ok := limiters[ip]
	if !ok {
		perSecond := rate.Limit(float64(config.RateLimitMax) / config.RateLimitWindow.Seconds())
		l = &ipLimiter{limiter: rate.NewLimiter(perSecond, config.RateLimitMax)}
		limiters[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// StartRateLimitCleanup evicts limiters for IPs idle past the window.
func StartRateLimitCleanup() {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		for range ticker.C {
			limitersMu.Lock()
			cutoff := time.Now().Add(-3 * config.RateLimitWindow)
			for ip, l := range limiters {
				if l.lastSeen.Before(cutoff) {
					delete(limiters, ip)
				}
			}
			limitersMu.Unlock()
		}
	}()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
