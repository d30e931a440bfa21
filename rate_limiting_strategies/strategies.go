package rate_limiting_strategies

import (
	"errors"
	"fmt"
	"github.com/aryangodara/admission_control"
	"time"
)

const (
	// MaxWindowSizeInSeconds is one day.
	MaxWindowSizeInSeconds = 60 * 60 * 24
	MaxAllowedWeight       = 10_000_000
)

const (
	SlidingWindow = "sliding_window"
	FixedWindow   = "fixed_window"
	TokenBucket   = "token_bucket"
)

var (
	ErrWindowTooLarge        = errors.New("window size too large")
	ErrAllowedWeightTooLarge = errors.New("allowed weight too large")
	ErrInvalidWindowSize     = errors.New("window size must be positive")
	ErrInvalidAllowedWeight  = errors.New("allowed weight must be positive")
	ErrUnknownStrategy       = errors.New("unknown strategy")
)

// Loader is implemented by strategies that can report the load currently counted against the threshold.
type Loader interface {
	Load() int
}

// New builds the strategy registered under kind. An empty kind selects the sliding window.
func New(kind string, maxWeightAllowedInWindow, windowSizeInSeconds int, now func() time.Time) (admission_control.Strategy, error) {
	switch kind {
	case "", SlidingWindow:
		return NewSlidingWindowLimiter(maxWeightAllowedInWindow, windowSizeInSeconds, now)
	case FixedWindow:
		return NewFixedWindowLimiter(maxWeightAllowedInWindow, windowSizeInSeconds, now)
	case TokenBucket:
		return NewTokenBucketLimiter(maxWeightAllowedInWindow, windowSizeInSeconds, now)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, kind)
	}
}

func validateLimits(maxWeightAllowedInWindow, windowSizeInSeconds int) error {
	if windowSizeInSeconds > MaxWindowSizeInSeconds {
		return fmt.Errorf("%w: %d > %d", ErrWindowTooLarge, windowSizeInSeconds, MaxWindowSizeInSeconds)
	}
	if maxWeightAllowedInWindow > MaxAllowedWeight {
		return fmt.Errorf("%w: %d > %d", ErrAllowedWeightTooLarge, maxWeightAllowedInWindow, MaxAllowedWeight)
	}
	if windowSizeInSeconds <= 0 {
		return ErrInvalidWindowSize
	}
	if maxWeightAllowedInWindow <= 0 {
		return ErrInvalidAllowedWeight
	}
	return nil
}
