package admission_control

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aryangodara/admission_control/stats"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStrategy struct {
	overloaded bool
	err        error
	users      []string
	weights    []int
}

func (f *fixedStrategy) RecordEvent(_ context.Context, user string, weight int) error {
	f.users = append(f.users, user)
	f.weights = append(f.weights, weight)
	return f.err
}

func (f *fixedStrategy) IsOverloaded(context.Context) (bool, error) {
	return f.overloaded, nil
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, stats.Event) error {
	return errors.New("redis down")
}

func TestMethodWeight(t *testing.T) {
	tt := []struct {
		method string
		weight int
	}{
		{method: http.MethodGet, weight: 1},
		{method: http.MethodHead, weight: 1},
		{method: "get", weight: 1},
		{method: http.MethodPut, weight: 3},
		{method: http.MethodPost, weight: 3},
		{method: http.MethodDelete, weight: 3},
	}

	for _, ts := range tt {
		r := httptest.NewRequest(ts.method, "http://example/", nil)
		assert.Equal(t, ts.weight, MethodWeight(r), ts.method)
	}
}

func TestRemoteAddrExtractor(t *testing.T) {
	extractor := NewRemoteAddrExtractor()

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "127.0.0.1:5555"
	user, err := extractor.Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", user)

	r.RemoteAddr = "[::1]:5555"
	user, err = extractor.Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "::1", user)

	r.RemoteAddr = "pipe"
	user, err = extractor.Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "pipe", user)

	r.RemoteAddr = ""
	_, err = extractor.Extract(r)
	assert.Error(t, err)
}

func TestHttpHeaderExtractor(t *testing.T) {
	extractor := NewHttpHeaderExtractor("X-Client-ID", "X-Tenant")

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set("X-Client-ID", " client ")
	r.Header.Set("X-Tenant", "tenant")
	user, err := extractor.Extract(r)
	require.NoError(t, err)
	assert.Equal(t, "client-tenant", user)

	r.Header.Del("X-Tenant")
	_, err = extractor.Extract(r)
	assert.Error(t, err)
}

func TestHTTPRateLimiterHandler(t *testing.T) {
	tt := []struct {
		desc       string
		method     string
		remoteAddr string
		strategy   *fixedStrategy
		extractor  Extractor
		weight     WeightFunc
		status     int
		state      string
		nextCalled bool
		outcome    stats.Outcome
		user       string
		weightSeen int
	}{
		{
			desc:       "forwards allowed reads with weight 1",
			method:     http.MethodGet,
			remoteAddr: "ip-address:1234",
			strategy:   &fixedStrategy{},
			status:     http.StatusOK,
			state:      "Allow",
			nextCalled: true,
			outcome:    stats.Allowed,
			user:       "ip-address",
			weightSeen: 1,
		},
		{
			desc:       "rejects writes with 429 when overloaded",
			method:     http.MethodPost,
			remoteAddr: "ip-address:1234",
			strategy:   &fixedStrategy{overloaded: true},
			status:     http.StatusTooManyRequests,
			state:      "Deny",
			nextCalled: false,
			outcome:    stats.Rejected,
			user:       "ip-address",
			weightSeen: 3,
		},
		{
			desc:       "returns 400 when the user cannot be extracted",
			method:     http.MethodGet,
			remoteAddr: "ip-address:1234",
			strategy:   &fixedStrategy{},
			extractor:  NewHttpHeaderExtractor("X-Client-ID"),
			status:     http.StatusBadRequest,
			nextCalled: false,
			outcome:    stats.Invalid,
		},
		{
			desc:       "returns 400 for weights out of range",
			method:     http.MethodGet,
			remoteAddr: "ip-address:1234",
			strategy:   &fixedStrategy{},
			weight:     func(*http.Request) int { return 101 },
			status:     http.StatusBadRequest,
			nextCalled: false,
			outcome:    stats.Invalid,
		},
		{
			desc:       "returns 500 when the strategy fails",
			method:     http.MethodGet,
			remoteAddr: "ip-address:1234",
			strategy:   &fixedStrategy{err: &NotImplementedError{Capability: "RecordEvent"}},
			status:     http.StatusInternalServerError,
			nextCalled: false,
			user:       "ip-address",
			weightSeen: 1,
		},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			recorder := stats.NewMemoryRecorder(stats.WithTrackUsers(true))

			calls := 0
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(w, "success")
			})

			h := NewHTTPRateLimiterHandler(next, &RateLimiterConfig{
				Extractor: ts.extractor,
				Weight:    ts.weight,
				Limiter:   NewRateLimiter(ts.strategy),
				Stats:     recorder,
			})

			r := httptest.NewRequest(ts.method, "http://example/", nil)
			r.RemoteAddr = ts.remoteAddr
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, ts.status, w.Code)
			assert.Equal(t, ts.state, w.Header().Get(rateLimitingState))
			assert.NotEmpty(t, w.Header().Get(requestIDHeader))
			assert.Equal(t, ts.nextCalled, calls == 1)

			if ts.user != "" {
				assert.Equal(t, []string{ts.user}, ts.strategy.users)
				assert.Equal(t, []int{ts.weightSeen}, ts.strategy.weights)
			} else {
				assert.Empty(t, ts.strategy.users)
			}

			totals, err := recorder.Totals(context.Background())
			require.NoError(t, err)
			var want stats.Counters
			switch ts.outcome {
			case stats.Allowed:
				want.Allowed = 1
			case stats.Rejected:
				want.Rejected = 1
			case stats.Invalid:
				want.Invalid = 1
			}
			assert.Equal(t, want, totals)
		})
	}
}

func TestHTTPRateLimiterHandler_PropagatesRequestID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := NewHTTPRateLimiterHandler(next, &RateLimiterConfig{
		Limiter: NewRateLimiter(&fixedStrategy{}),
	})

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestHTTPRateLimiterHandler_IgnoresStatsFailures(t *testing.T) {
	var logs bytes.Buffer
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := NewHTTPRateLimiterHandler(next, &RateLimiterConfig{
		Limiter: NewRateLimiter(&fixedStrategy{}),
		Stats:   failingRecorder{},
		Logger:  zerolog.New(&logs),
	})

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, logs.String(), "failed to record admission decision")
	assert.Contains(t, logs.String(), "redis down")
}
