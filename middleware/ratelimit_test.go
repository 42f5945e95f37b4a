package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeRateStore struct {
	counts  map[string]int64
	expired map[string]time.Duration
	err     error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: make(map[string]int64), expired: make(map[string]time.Duration)}
}

func (f *fakeRateStore) Incr(_ context.Context, key string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.expired[key] = ttl
	return nil
}

func rateLimitedHandler(store RateLimitStore, limit int) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return RateLimit(store, limit, time.Minute, zerolog.Nop())(next)
}

func doRequest(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	store := newFakeRateStore()
	h := rateLimitedHandler(store, 3)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, "203.0.113.7").Code)
	}
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	store := newFakeRateStore()
	h := rateLimitedHandler(store, 2)

	doRequest(h, "203.0.113.7")
	doRequest(h, "203.0.113.7")
	w := doRequest(h, "203.0.113.7")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRateLimitPerClient(t *testing.T) {
	store := newFakeRateStore()
	h := rateLimitedHandler(store, 1)

	assert.Equal(t, http.StatusOK, doRequest(h, "203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "203.0.113.8").Code, "a different client has its own budget")
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "203.0.113.7").Code)
}

func TestRateLimitSetsWindowOnFirstHit(t *testing.T) {
	store := newFakeRateStore()
	h := rateLimitedHandler(store, 5)

	doRequest(h, "203.0.113.7")
	doRequest(h, "203.0.113.7")

	assert.Len(t, store.expired, 1, "the window TTL is set once per key")
	assert.Equal(t, time.Minute, store.expired["ratelimit:203.0.113.7:/api/links"])
}

func TestRateLimitFailsOpen(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	h := rateLimitedHandler(store, 1)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, "203.0.113.7").Code)
	}
}
