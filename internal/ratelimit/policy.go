package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const keySeparator = ":"

// Policy guards one route class: a window length, a limit per window, a key
// derivation and the message returned on rejection. All policies of a process
// share one Store.
type Policy struct {
	name        string
	prefix      string
	window      time.Duration
	maxRequests int
	keyFunc     KeyFunc
	message     string
	store       Store
}

// PolicyConfig is one row of the policy table.
type PolicyConfig struct {
	Name        string
	Prefix      string
	Window      time.Duration
	MaxRequests int
	Key         KeyFunc

	// Message is the rejection text. A %s verb is replaced with the
	// humanized window ("15 minutes").
	Message string
}

// NewPolicy validates cfg and binds it to store.
func NewPolicy(store Store, cfg PolicyConfig) (*Policy, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("policy name is required")
	}
	if cfg.Prefix == "" || strings.Contains(cfg.Prefix, keySeparator) {
		return nil, fmt.Errorf("policy %q: %w: %q", cfg.Name, ErrInvalidPrefix, cfg.Prefix)
	}
	if err := ValidateWindow(cfg.Window); err != nil {
		return nil, fmt.Errorf("policy %q: %w", cfg.Name, err)
	}
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("policy %q: %w", cfg.Name, ErrInvalidLimit)
	}
	if cfg.Key == nil {
		return nil, fmt.Errorf("policy %q: key function is required", cfg.Name)
	}

	message := cfg.Message
	if strings.Contains(message, "%s") {
		message = fmt.Sprintf(message, humanizeWindow(cfg.Window))
	}

	return &Policy{
		name:        cfg.Name,
		prefix:      cfg.Prefix,
		window:      cfg.Window,
		maxRequests: cfg.MaxRequests,
		keyFunc:     cfg.Key,
		message:     message,
		store:       store,
	}, nil
}

// MustPolicy is like NewPolicy but panics on invalid configuration. Use it
// for tables fixed at compile time.
func MustPolicy(store Store, cfg PolicyConfig) *Policy {
	p, err := NewPolicy(store, cfg)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Name() string              { return p.name }
func (p *Policy) Prefix() string            { return p.prefix }
func (p *Policy) Window() time.Duration     { return p.window }
func (p *Policy) MaxRequests() int          { return p.maxRequests }
func (p *Policy) Message() string           { return p.message }

// RetryAfter is the window rounded up to whole seconds, never below one.
func (p *Policy) RetryAfter() time.Duration {
	secs := (p.window + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}

// Key returns the full store key for id.
func (p *Policy) Key(id Identity) string {
	return p.prefix + keySeparator + p.keyFunc(id.WithFallbacks())
}

// Check counts the request and decides whether it may proceed. The increment
// happens before the comparison, so the counter reflects attempts, and the
// request that reaches MaxRequests is still admitted.
//
// Check never fails: a panicking key function or a store error yields Admit
// with FailedOpen set.
func (p *Policy) Check(ctx context.Context, id Identity, now time.Time) (d Decision) {
	_, resetAt := windowBounds(now, p.window)
	d = Decision{
		Admit:      true,
		Policy:     p.name,
		Limit:      p.maxRequests,
		Remaining:  p.maxRequests,
		ResetTime:  resetAt,
		RetryAfter: p.RetryAfter(),
		Message:    p.message,
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Rate limit check panicked, failing open",
				"policy", p.name,
				"panic", r,
			)
			d.Admit = true
			d.FailedOpen = true
			d.Remaining = p.maxRequests
		}
	}()

	d.Key = p.Key(id)

	hit, err := p.store.Increment(ctx, d.Key, p.window, now)
	if err != nil {
		slog.Error("Rate limit store failed, failing open",
			"policy", p.name,
			"key", d.Key,
			"error", err,
		)
		d.FailedOpen = true
		return d
	}

	d.TotalHits = hit.TotalHits
	d.ResetTime = hit.ResetTime
	d.Remaining = int(max(0, int64(p.maxRequests)-hit.TotalHits))
	d.Admit = hit.TotalHits <= int64(p.maxRequests)
	return d
}

// humanizeWindow renders a window for user-facing messages, using the largest
// unit that divides it evenly.
func humanizeWindow(window time.Duration) string {
	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case window%time.Hour == 0:
		return unit(int64(window/time.Hour), "hour")
	case window%time.Minute == 0:
		return unit(int64(window/time.Minute), "minute")
	case window%time.Second == 0:
		return unit(int64(window/time.Second), "second")
	default:
		return unit(window.Milliseconds(), "millisecond")
	}
}
