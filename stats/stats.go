// Package stats records admission decisions taken by the HTTP adapter.
//
// It only observes decisions, it never feeds them back into a limiter.
package stats

import (
	"context"
	"time"
)

// Outcome of one admission decision.
type Outcome string

const (
	Allowed  Outcome = "allowed"
	Rejected Outcome = "rejected"
	Invalid  Outcome = "invalid"
)

// Event is one admission decision.
type Event struct {
	RequestID string
	User      string
	Weight    int
	Outcome   Outcome

	Method string
	Path   string

	At time.Time
}

// Counters aggregates decisions per outcome.
type Counters struct {
	Allowed  int64 `json:"allowed"`
	Rejected int64 `json:"rejected"`
	Invalid  int64 `json:"invalid"`
}

func (c *Counters) add(o Outcome, n int64) {
	switch o {
	case Allowed:
		c.Allowed += n
	case Rejected:
		c.Rejected += n
	case Invalid:
		c.Invalid += n
	}
}

// Recorder persists admission decisions. Callers treat errors as best-effort.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Reader exposes the aggregated decisions.
type Reader interface {
	Totals(ctx context.Context) (Counters, error)
}

func route(ev Event) string {
	return ev.Method + " " + ev.Path
}
