package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupTestRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})
	return router
}

func serve(router *gin.Engine, method, origin, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/test", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	}
	if remote != "" {
		req.RemoteAddr = remote
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORSWildcard(t *testing.T) {
	router := setupTestRouter(CORS(DefaultCORSConfig()))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantHeader bool
	}{
		{name: "simple GET with origin", method: http.MethodGet, origin: "http://localhost:3000", wantStatus: http.StatusOK, wantHeader: true},
		{name: "preflight", method: http.MethodOptions, origin: "http://localhost:3000", wantStatus: http.StatusNoContent, wantHeader: true},
		{name: "no origin header", method: http.MethodGet, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.origin, "")
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantHeader {
				assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSAllowList(t *testing.T) {
	cfg := DefaultCORSConfig("https://app.example.com", "")
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowOrigins)
	assert.True(t, cfg.AllowCredentials)

	router := setupTestRouter(CORS(cfg))

	w := serve(router, http.MethodGet, "https://app.example.com", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = serve(router, http.MethodGet, "https://evil.example.com", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
	assert.False(t, cfg.AllowCredentials)
	assert.Contains(t, cfg.AllowMethods, "PATCH")
	assert.Contains(t, cfg.AllowHeaders, "Authorization")
	assert.Equal(t, 12*time.Hour, cfg.MaxAge)
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))

	for i := 0; i < 2; i++ {
		w := serve(router, http.MethodGet, "", "192.168.1.1:1234")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should succeed", i+1)
	}

	w := serve(router, http.MethodGet, "", "192.168.1.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitDifferentClients(t *testing.T) {
	router := setupTestRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "", "192.168.1.1:1234").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "", "192.168.1.2:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "", "192.168.1.1:1234").Code)
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	now := time.Now()
	v := &visitors{
		cfg:     RateLimitConfig{RequestsPerSecond: 1, Burst: 1},
		now:     func() time.Time { return now },
		clients: make(map[string]*visitor),
		swept:   now,
	}

	v.get("10.0.0.1")
	v.get("10.0.0.2")
	assert.Equal(t, 2, v.size())

	now = now.Add(idleTTL + time.Second)
	v.get("10.0.0.3")
	assert.Equal(t, 1, v.size())
}

func TestGlobalRateLimit(t *testing.T) {
	router := setupTestRouter(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "", "192.168.1.1:1234").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "", "192.168.1.2:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "", "192.168.1.3:1234").Code)
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	assert.Equal(t, 100, cfg.RequestsPerSecond)
	assert.Equal(t, 200, cfg.Burst)
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter(RateLimit(DefaultRateLimitConfig()))
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}
