package middleware

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abrham-amplitude/solana-ticket/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLocalOnly(t *testing.T) {
	_, office, err := net.ParseCIDR("10.1.0.0/16")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/x", LocalOnly(office), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, "127.0.0.1:5000").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "[::1]:5000").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "10.1.2.3:5000").Code)

	rec := serve(r, "203.0.113.9:5000")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"forbidden"`)
}

func TestRateLimiterAllow(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := NewRateLimiter(rdb, "airdrop", 2, time.Hour, utils.NewLogger("test", "error"))
	key := "ratelimit:airdrop:1.2.3.4"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Hour).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectIncr(key).SetVal(3)

	for i, want := range []bool{true, true, false} {
		ok, err := rl.Allow(t.Context(), "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "hit %d", i+1)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiterMiddleware(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := NewRateLimiter(rdb, "airdrop", 1, time.Hour, utils.NewLogger("test", "error"))
	key := "ratelimit:airdrop:192.0.2.1"

	r := gin.New()
	r.POST("/x", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Hour).SetVal(true)
	assert.Equal(t, http.StatusNoContent, serve(r, "192.0.2.1:1").Code)

	mock.ExpectIncr(key).SetVal(2)
	rec := serve(r, "192.0.2.1:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"kind":"rate_limited"`)

	// redis down: fail open
	mock.ExpectIncr(key).SetErr(errors.New("connection refused"))
	assert.Equal(t, http.StatusNoContent, serve(r, "192.0.2.1:1").Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

type observed struct {
	route  string
	method string
	status int
}

type recorder struct{ got []observed }

func (r *recorder) ObserveHTTP(route, method string, status int, _ time.Duration) {
	r.got = append(r.got, observed{route, method, status})
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	obs := &recorder{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/tickets/value/:address", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/tickets/value/abc", "/tickets/value/def", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	require.Len(t, obs.got, 3)
	assert.Equal(t, observed{"/tickets/value/:address", http.MethodGet, http.StatusOK}, obs.got[0])
	assert.Equal(t, obs.got[0], obs.got[1])
	assert.Equal(t, observed{"unmatched", http.MethodGet, http.StatusNotFound}, obs.got[2])
}
