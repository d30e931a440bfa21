package rate_limiting_strategies

import (
	"context"
	"github.com/aryangodara/admission_control"
	"sync"
	"time"
)

var (
	_ admission_control.Strategy = &slidingWindowLimiter{}
	_ Loader                     = &slidingWindowLimiter{}
)

// bucketKey coalesces every event of one user within one second.
type bucketKey struct {
	user   string
	second int64
}

type slidingWindowLimiter struct {
	mu     sync.Mutex
	clock  func() time.Time
	start  time.Time
	events map[bucketKey]int

	maxWeightAllowedInWindow int
	windowSizeInSeconds      int64
}

// NewSlidingWindowLimiter creates a local sliding window limiter that rejects once the weight
// recorded over the last windowSizeInSeconds exceeds maxWeightAllowedInWindow.
func NewSlidingWindowLimiter(maxWeightAllowedInWindow, windowSizeInSeconds int, now func() time.Time) (admission_control.Strategy, error) {
	if err := validateLimits(maxWeightAllowedInWindow, windowSizeInSeconds); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}

	return &slidingWindowLimiter{
		clock:                    now,
		start:                    now(),
		events:                   make(map[bucketKey]int),
		maxWeightAllowedInWindow: maxWeightAllowedInWindow,
		windowSizeInSeconds:      int64(windowSizeInSeconds),
	}, nil
}

// now returns the whole seconds elapsed since the limiter was created.
func (s *slidingWindowLimiter) now() int64 {
	elapsed := s.clock().Sub(s.start)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / time.Second)
}

// prune erases the buckets that fell out of the window.
func (s *slidingWindowLimiter) prune() {
	beginOfWindow := s.now() - s.windowSizeInSeconds
	if beginOfWindow < 0 {
		beginOfWindow = 0
	}

	for key := range s.events {
		if key.second < beginOfWindow {
			delete(s.events, key)
		}
	}
}

func (s *slidingWindowLimiter) load() int {
	s.prune()

	total := 0
	for _, weight := range s.events {
		total += weight
	}
	return total
}

func (s *slidingWindowLimiter) thresholdPassed() bool {
	return s.load() > s.maxWeightAllowedInWindow
}

// RecordEvent adds weight to the bucket of the current second. It depends on the overload
// check: once the threshold is passed nothing is recorded, which keeps the store bounded.
func (s *slidingWindowLimiter) RecordEvent(_ context.Context, user string, weight int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.thresholdPassed() {
		return nil
	}

	s.events[bucketKey{user: user, second: s.now()}] += weight
	return nil
}

// IsOverloaded sums the weight of every user in the window and compares it to the threshold.
func (s *slidingWindowLimiter) IsOverloaded(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.thresholdPassed(), nil
}

func (s *slidingWindowLimiter) Load() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}
