package rate_limiting_strategies

import (
	"context"
	"github.com/aryangodara/admission_control"
	"sync"
	"time"
)

var (
	_ admission_control.Strategy = &fixedWindowLimiter{}
	_ Loader                     = &fixedWindowLimiter{}
)

type fixedWindowLimiter struct {
	mu    sync.Mutex
	clock func() time.Time
	start time.Time

	// index of the window the total belongs to
	window int64
	total  int

	maxWeightAllowedInWindow int
	windowSize               time.Duration
}

// NewFixedWindowLimiter creates a local limiter that sums weight over consecutive windows of
// windowSizeInSeconds, starting over at every window boundary.
func NewFixedWindowLimiter(maxWeightAllowedInWindow, windowSizeInSeconds int, now func() time.Time) (admission_control.Strategy, error) {
	if err := validateLimits(maxWeightAllowedInWindow, windowSizeInSeconds); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}

	return &fixedWindowLimiter{
		clock:                    now,
		start:                    now(),
		maxWeightAllowedInWindow: maxWeightAllowedInWindow,
		windowSize:               time.Duration(windowSizeInSeconds) * time.Second,
	}, nil
}

func (f *fixedWindowLimiter) roll() {
	elapsed := f.clock().Sub(f.start)
	if elapsed < 0 {
		elapsed = 0
	}

	if current := int64(elapsed / f.windowSize); current != f.window {
		f.window = current
		f.total = 0
	}
}

func (f *fixedWindowLimiter) thresholdPassed() bool {
	f.roll()
	return f.total > f.maxWeightAllowedInWindow
}

func (f *fixedWindowLimiter) RecordEvent(_ context.Context, _ string, weight int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.thresholdPassed() {
		return nil
	}

	f.total += weight
	return nil
}

func (f *fixedWindowLimiter) IsOverloaded(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.thresholdPassed(), nil
}

func (f *fixedWindowLimiter) Load() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.roll()
	return f.total
}
