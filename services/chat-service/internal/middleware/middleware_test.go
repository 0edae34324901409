package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", JwtAuth(testSecret), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func doGet(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJwtAuth(t *testing.T) {
	r := newAuthRouter()

	token, err := IssueToken(testSecret, "u-1", time.Hour)
	require.NoError(t, err)

	w := doGet(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", w.Body.String())

	t.Run("missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", "").Code)
	})
	t.Run("wrong scheme", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", "Token "+token).Code)
	})
	t.Run("wrong secret", func(t *testing.T) {
		other, err := IssueToken("other", "u-1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", "Bearer "+other).Code)
	})
	t.Run("expired", func(t *testing.T) {
		old, err := IssueToken(testSecret, "u-1", -time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, doGet(r, "/me", "Bearer "+old).Code)
	})
}

func TestJwtAuthAcceptsOpenID(t *testing.T) {
	claims := jwt.MapClaims{
		"openid": "wx-openid",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	w := doGet(newAuthRouter(), "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wx-openid", w.Body.String())
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.GET("/ping", RateLimit(client, "test:", 1, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// capacity is 2*qps
	assert.Equal(t, http.StatusNoContent, doGet(r, "/ping", "").Code)
	w := doGet(r, "/ping", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))

	w = doGet(r, "/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.True(t, mr.Exists("test:rate_limit:ip:192.0.2.1"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	r := gin.New()
	r.GET("/ping", RateLimit(client, "test:", 1, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, doGet(r, "/ping", "").Code)
	}
}

func TestAccessLogKeepsStatus(t *testing.T) {
	r := gin.New()
	r.Use(AccessLog(zap.NewNop()))
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	assert.Equal(t, http.StatusNotFound, doGet(r, "/missing", "").Code)
}
