package admission_control

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	_ Strategy = UnimplementedStrategy{}
)

const (
	// MinWeight and MaxWeight bound the cost of a single unit of work.
	MinWeight = 1
	MaxWeight = 100
)

var (
	ErrInvalidUser    = errors.New("invalid user")
	ErrInvalidWeight  = errors.New("invalid weight")
	ErrNotImplemented = errors.New("not implemented")
)

// NotImplementedError is returned when a strategy is missing one of its capabilities.
type NotImplementedError struct {
	Capability string
}

func (e *NotImplementedError) Error() string {
	return e.Capability + " not implemented"
}

// Is makes every NotImplementedError match ErrNotImplemented.
func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// State represents the result of admission control.
type State int64

const (
	Deny State = iota
	Allow
)

// State strings for HTTP headers
var stateStrings = map[State]string{
	Allow: "Allow",
	Deny:  "Deny",
}

func (s State) String() string {
	return stateStrings[s]
}

// Strategy interface defines the contract for admission control strategies.
//
// RecordEvent registers one unit of work of the given weight for user.
// IsOverloaded reports whether the accumulated load exceeds the configured threshold.
type Strategy interface {
	RecordEvent(ctx context.Context, user string, weight int) error
	IsOverloaded(ctx context.Context) (bool, error)
}

// UnimplementedStrategy can be embedded by strategies that are built up incrementally.
// Every capability that is not overridden fails with a NotImplementedError naming it.
type UnimplementedStrategy struct{}

func (UnimplementedStrategy) RecordEvent(context.Context, string, int) error {
	return &NotImplementedError{Capability: "RecordEvent"}
}

func (UnimplementedStrategy) IsOverloaded(context.Context) (bool, error) {
	return false, &NotImplementedError{Capability: "IsOverloaded"}
}

// RateLimiter validates units of work and asks its Strategy whether they should be rejected.
type RateLimiter struct {
	mu       sync.Mutex
	strategy Strategy
}

// NewRateLimiter creates a RateLimiter backed by strategy.
func NewRateLimiter(strategy Strategy) *RateLimiter {
	return &RateLimiter{strategy: strategy}
}

// ShouldReject records one unit of work and returns true if the system is overloaded.
// The event is always recorded before the decision is made, and concurrent calls are
// serialized so that each record/check pair is atomic.
func (l *RateLimiter) ShouldReject(ctx context.Context, user string, weight int) (bool, error) {
	if user == "" {
		return false, ErrInvalidUser
	}
	if weight < MinWeight || weight > MaxWeight {
		return false, fmt.Errorf("%w: %d is not in [%d, %d]", ErrInvalidWeight, weight, MinWeight, MaxWeight)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.strategy.RecordEvent(ctx, user, weight); err != nil {
		return false, fmt.Errorf("failed to record event for user %v: %w", user, err)
	}

	overloaded, err := l.strategy.IsOverloaded(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check overload: %w", err)
	}

	return overloaded, nil
}
