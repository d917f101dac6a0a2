package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierPublic RateLimitTier = "public"
	// TierLogin guards sign-up and login against credential stuffing.
	TierLogin RateLimitTier = "login"
)

const rateLimitMessage = "Too many requests from this IP, please try again later"

// loginWindow is the period the login budget is spread over.
const loginWindow = 15 * time.Minute

// RateLimiter keeps one token bucket per tier and client IP.
type RateLimiter struct {
	store          *limiterStore
	trustedProxies []string
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		store:          newLimiterStore(cfg),
		trustedProxies: cfg.TrustedProxyCIDRs,
	}
}

// Handler limits requests in the given tier. A tier with a non-positive
// limit is unlimited.
func (rl *RateLimiter) Handler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" {
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.store.limiter(tier, clientKey(r, rl.trustedProxies))
			if limiter == nil || limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", strconv.Itoa(int(rl.store.refill(tier).Seconds())))
			problem.WriteResponse(w, http.StatusTooManyRequests, problem.Response{Message: rateLimitMessage})
		})
	}
}

// Close stops the background cleanup of idle buckets.
func (rl *RateLimiter) Close() {
	rl.store.Stop()
}

type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limits    map[RateLimitTier]int
	stopOnce  sync.Once
	stopClean chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	store := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		limits: map[RateLimitTier]int{
			TierPublic: cfg.PublicPerMinute,
			TierLogin:  cfg.LoginPer15Minutes,
		},
		stopClean: make(chan struct{}),
	}

	go store.cleanupLoop()

	return store
}

// refill is how long one token takes to come back in tier.
func (s *limiterStore) refill(tier RateLimitTier) time.Duration {
	limit := s.limits[tier]
	if limit <= 0 {
		return 0
	}
	if tier == TierLogin {
		return loginWindow / time.Duration(limit)
	}
	return time.Minute / time.Duration(limit)
}

func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	limit := s.limits[tier]
	if limit <= 0 {
		return nil
	}

	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	// Burst is the full budget; tokens come back evenly across the window.
	limiter := rate.NewLimiter(rate.Every(s.refill(tier)), limit)
	s.limiters[lookup] = &limiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}
	return limiter
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.stopClean:
			return
		}
	}
}

// cleanup drops buckets idle for longer than the login window; a bucket
// that old has fully refilled in every tier.
func (s *limiterStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > loginWindow {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopClean) })
}

// clientKey is the client IP. X-Forwarded-For and X-Real-IP are honoured
// only when the connection comes from a trusted proxy.
func clientKey(r *http.Request, trustedProxyCIDRs []string) string {
	if r == nil {
		return ""
	}

	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrustedProxy(remoteIP, trustedProxyCIDRs) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}

	return remoteIP
}

func isTrustedProxy(ip string, trustedCIDRs []string) bool {
	if len(trustedCIDRs) == 0 {
		return false
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, cidrStr := range trustedCIDRs {
		_, cidr, err := net.ParseCIDR(strings.TrimSpace(cidrStr))
		if err != nil {
			continue
		}
		if cidr.Contains(parsedIP) {
			return true
		}
	}

	return false
}
