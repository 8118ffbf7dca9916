package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"workhub/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Test that when rate limiting is disabled, middleware lets all requests through.
func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false

	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()), NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w1 := httptest.NewRecorder()
	req1, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected status 200 on second request, got %d", w2.Code)
	}
}

// Test basic per-IP rate limiting behaviour.
func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()), NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// First request should pass.
	w1 := httptest.NewRecorder()
	req1, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected status 200 for first request, got %d", w1.Code)
	}

	// Second immediate request from same "IP" should be limited.
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/test", nil)
	router.ServeHTTP(w2, req2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 for second request, got %d", w2.Code)
	}
	if body := w2.Body.String(); body != `{"error":"TooManyRequests","message":"Rate limit exceeded"}` {
		t.Fatalf("unexpected body %s", body)
	}

	// A different client address has its own bucket.
	w3 := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodGet, "/test", nil)
	req3.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	router.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Fatalf("expected status 200 for other client, got %d", w3.Code)
	}
}

func TestConnectionLimiter(t *testing.T) {
	cfg := config.DefaultConfig()
	if NewConnectionLimiter(cfg) != nil {
		t.Fatal("expected nil limiter when rate limiting is disabled")
	}

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 2
	limiter := NewConnectionLimiter(cfg)
	defer limiter.Stop()
	if !limiter.Allow("198.51.100.1") || !limiter.Allow("198.51.100.1") {
		t.Fatal("expected burst of two handshakes to pass")
	}
	if limiter.Allow("198.51.100.1") {
		t.Fatal("expected third handshake within a minute to be limited")
	}
	if !limiter.Allow("198.51.100.2") {
		t.Fatal("expected other address to pass")
	}
}



func TestHTTPRateLimitMiddleware_MaxConcurrent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 100
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 1

	entered := make(chan struct{})
	release := make(chan struct{})
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()), NewHTTPRateLimitMiddleware(cfg))
	router.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.Status(http.StatusOK)
	})
	router.GET("/fast", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	done := make(chan int)
	go func() {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
		done <- w.Code
	}()
	<-entered

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fast", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 while a request is in flight, got %d", w.Code)
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected status 200 for slow request, got %d", code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:51000"
	if got := ClientIP(r); got != "192.0.2.10" {
		t.Fatalf("ClientIP() = %q, want peer address", got)
	}

	r.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := ClientIP(r); got != "192.0.2.10" {
		t.Fatalf("ClientIP() = %q, want peer address for bad header", got)
	}

	r.Header.Set("X-Forwarded-For", " 2001:db8::1 , 10.0.0.1")
	if got := ClientIP(r); got != "2001:db8::1" {
		t.Fatalf("ClientIP() = %q, want first forwarded hop", got)
	}
}
