// Package stats records admission decisions. Recording is best effort: the
// middleware logs a Record error and carries on with the decision it made.
package stats

import (
	"context"
	"errors"
	"time"
)

// Event is one admission decision. Key and Path can be high-cardinality;
// backends decide how much of them to keep.
type Event struct {
	Policy     string
	Key        string
	Admitted   bool
	FailedOpen bool
	Method     string
	Path       string
	At         time.Time
}

// Recorder persists decision events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Multi fans an event out to several recorders. Every recorder is called even
// if an earlier one fails; the errors are joined.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Outcome classifies ev as "admitted", "rejected" or "failed_open".
func Outcome(ev Event) string {
	switch {
	case ev.FailedOpen:
		return "failed_open"
	case ev.Admitted:
		return "admitted"
	default:
		return "rejected"
	}
}
