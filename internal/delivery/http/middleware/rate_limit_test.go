package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newThrottledHandler(t *testing.T, exempt ...string) http.Handler {
	t.Helper()
	rl := NewRateLimiter(context.Background(), 1, 1, time.Minute, time.Minute)
	t.Cleanup(rl.Shutdown)

	return rl.Middleware(exempt...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(handler http.Handler, path string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = "203.0.113.7:4242"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_ThrottlesBurstsPerIP(t *testing.T) {
	handler := newThrottledHandler(t)

	assert.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/orders"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(handler, "/api/v1/orders"))
}

func TestRateLimiter_ExemptPrefixBypassesLimit(t *testing.T) {
	handler := newThrottledHandler(t, "/api/v1/webhooks/")

	// Carrier retries arrive in bursts and must all be answered.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/webhooks/carrier/shipment"))
	}

	// Other routes still pay the toll.
	assert.Equal(t, http.StatusOK, doRequest(handler, "/api/v1/orders"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(handler, "/api/v1/orders"))
}
