package rate_limiting_strategies

import (
	"context"
	"github.com/aryangodara/admission_control"
	"golang.org/x/time/rate"
	"sync"
	"time"
)

var (
	_ admission_control.Strategy = &tokenBucketLimiter{}
	_ Loader                     = &tokenBucketLimiter{}
)

type tokenBucketLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	limiter *rate.Limiter
}

// NewTokenBucketLimiter creates a local token bucket holding maxWeightAllowedInWindow tokens
// and refilling it completely over windowSizeInSeconds. The system is overloaded while the
// bucket is in deficit.
func NewTokenBucketLimiter(maxWeightAllowedInWindow, windowSizeInSeconds int, now func() time.Time) (admission_control.Strategy, error) {
	if err := validateLimits(maxWeightAllowedInWindow, windowSizeInSeconds); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}

	refill := rate.Limit(float64(maxWeightAllowedInWindow) / float64(windowSizeInSeconds))

	return &tokenBucketLimiter{
		now:     now,
		limiter: rate.NewLimiter(refill, maxWeightAllowedInWindow),
	}, nil
}

func (t *tokenBucketLimiter) thresholdPassed(now time.Time) bool {
	return t.limiter.TokensAt(now) < 0
}

func (t *tokenBucketLimiter) RecordEvent(_ context.Context, _ string, weight int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.thresholdPassed(now) {
		return nil
	}

	// a single event never takes more than a full bucket
	if burst := t.limiter.Burst(); weight > burst {
		weight = burst
	}
	t.limiter.ReserveN(now, weight)
	return nil
}

func (t *tokenBucketLimiter) IsOverloaded(_ context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.thresholdPassed(t.now()), nil
}

// Load reports the tokens consumed from a full bucket.
func (t *tokenBucketLimiter) Load() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.limiter.Burst() - int(t.limiter.TokensAt(t.now()))
}
