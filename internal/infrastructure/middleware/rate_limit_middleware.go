package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"workhub/pkg/cache"
	"workhub/pkg/config"
	apperrors "workhub/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused bucket is kept before it is swept.
const limiterIdleTTL = 10 * time.Minute

// KeyedLimiter holds one token bucket per key, usually a client address.
// Buckets idle for longer than limiterIdleTTL are forgotten.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets *cache.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func NewKeyedLimiter(limit rate.Limit, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		buckets: cache.New[string, *rate.Limiter](limiterIdleTTL),
		limit:   limit,
		burst:   burst,
	}
}

func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
	}
	l.buckets.Set(key, b)
	l.mu.Unlock()

	return b.Allow()
}

func (l *KeyedLimiter) Stop() {
	l.buckets.Stop()
}

// NewConnectionLimiter limits websocket handshakes per IP. It returns nil
// when rate limiting is disabled.
func NewConnectionLimiter(cfg *config.Config) *KeyedLimiter {
	perMinute := cfg.RateLimiting.WebSocket.ConnectionsPerMinute
	if !cfg.RateLimiting.Enabled || perMinute <= 0 {
		return nil
	}
	return NewKeyedLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// ClientIP prefers the first hop of X-Forwarded-For over the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware throttles REST calls per client IP and caps the
// number of requests in flight. Rejections go through the error envelope.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.RateLimiting
	if !rl.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	perIP := NewKeyedLimiter(rate.Limit(rl.HTTP.RequestsPerSecond), rl.HTTP.Burst)

	var inFlight chan struct{}
	if rl.HTTP.MaxConcurrent > 0 {
		inFlight = make(chan struct{}, rl.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if !perIP.Allow(ClientIP(c.Request)) {
			c.Header("Retry-After", "1")
			_ = c.Error(apperrors.NewRateLimitError())
			c.Abort()
			return
		}

		if inFlight != nil {
			select {
			case inFlight <- struct{}{}:
				defer func() { <-inFlight }()
			default:
				_ = c.Error(apperrors.NewServiceUnavailableError("Too many concurrent requests"))
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
