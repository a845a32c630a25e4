// Package ratelimit provides fixed-window admission control for the TrustElect
// API. A shared counter Store tracks hits per key and window; Policy instances
// (login, api, voting, ballot, results) derive keys from request identity and
// turn the returned count into an admit/reject Decision. Middleware adapts a
// Policy to net/http and writes the standard RateLimit-* headers.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidWindow is returned for windows that are not a positive whole
	// number of milliseconds.
	ErrInvalidWindow = errors.New("window must be a positive number of milliseconds")

	// ErrInvalidLimit is returned for a non-positive request limit.
	ErrInvalidLimit = errors.New("max requests must be positive")

	// ErrPrefixOverlap is returned when two policies would share key space.
	ErrPrefixOverlap = errors.New("policy key prefixes overlap")

	// ErrInvalidPrefix is returned for empty prefixes or prefixes containing
	// the key separator.
	ErrInvalidPrefix = errors.New("invalid policy key prefix")
)

// Store counts hits per key inside fixed windows. Implementations must be safe
// for concurrent use and must never lose an increment within a window.
type Store interface {
	// Increment records one hit for key in the window containing now and
	// returns the window's running total and the instant the window ends.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Hit, error)
}

// Hit is the result of a single Increment.
type Hit struct {
	TotalHits int64
	ResetTime time.Time
}

// Decision is the outcome of Policy.Check.
type Decision struct {
	Admit      bool
	Policy     string
	Key        string
	TotalHits  int64
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
	Message    string

	// FailedOpen is set when the decision defaulted to Admit because the key
	// could not be derived or the store failed.
	FailedOpen bool
}

// ValidateWindow checks that window is usable as a fixed-window length.
func ValidateWindow(window time.Duration) error {
	if window <= 0 || window%time.Millisecond != 0 {
		return ErrInvalidWindow
	}
	return nil
}

// windowBounds returns floor(now/window) in milliseconds and the absolute end
// of that window.
func windowBounds(now time.Time, window time.Duration) (int64, time.Time) {
	windowMs := window.Milliseconds()
	nowMs := now.UnixMilli()
	index := nowMs / windowMs
	if nowMs%windowMs != 0 && nowMs < 0 {
		index--
	}
	return index, time.UnixMilli((index + 1) * windowMs)
}
