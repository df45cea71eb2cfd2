package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(handlers...)
	router.GET("/json/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func get(router http.Handler, remote string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/json/version", nil)
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitPerClient(t *testing.T) {
	router := newRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", nil).Code)
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1001", nil).Code)

	w := get(router, "10.0.0.1:1002", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Other clients keep their own budget
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.2:1000", nil).Code)
}

func TestRateLimitForgetsIdleClients(t *testing.T) {
	clock := time.Unix(0, 0)
	router := newRouter(rateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}, func() time.Time { return clock }))

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1000", nil).Code)

	clock = clock.Add(idleClientTTL + time.Second)
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1000", nil).Code)
}

func TestCORSAllowsAnyOriginWithoutCredentials(t *testing.T) {
	router := newRouter(CORS(DefaultCORSConfig()))

	w := get(router, "127.0.0.1:1000", http.Header{"Origin": {"http://example.com"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
