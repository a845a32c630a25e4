package ratelimit

import (
	"fmt"
	"time"

	"trustguard/internal/models"
)

// DefaultPolicies returns the policy table of the TrustElect API. Prefixes are
// pairwise distinct so all five can share one store.
func DefaultPolicies() []PolicyConfig {
	return []PolicyConfig{
		{
			Name:        models.PolicyLogin,
			Prefix:      "login",
			Window:      15 * time.Minute,
			MaxRequests: 10,
			Key:         LoginKey,
			Message:     "Too many login attempts. Please try again after %s.",
		},
		{
			Name:        models.PolicyAPI,
			Prefix:      "api",
			Window:      time.Minute,
			MaxRequests: 200,
			Key:         APIKey,
			Message:     "Too many requests. Please slow down and try again in %s.",
		},
		{
			Name:        models.PolicyVoting,
			Prefix:      "vote",
			Window:      5 * time.Minute,
			MaxRequests: 3,
			Key:         VoteKey,
			Message:     "Too many vote submissions. Please wait %s before trying again.",
		},
		{
			Name:        models.PolicyBallot,
			Prefix:      "ballot",
			Window:      time.Minute,
			MaxRequests: 20,
			Key:         BallotKey,
			Message:     "Too many ballot requests. Please wait %s before trying again.",
		},
		{
			Name:        models.PolicyResults,
			Prefix:      "results",
			Window:      30 * time.Second,
			MaxRequests: 60,
			Key:         ResultsKey,
			Message:     "Too many results requests. Please wait %s before refreshing.",
		},
	}
}

// PoliciesFromConfig applies the window/limit overrides of cfg to the default
// table. Overrides for unknown policy names are rejected.
func PoliciesFromConfig(cfg models.RateLimitConfig) ([]PolicyConfig, error) {
	defs := DefaultPolicies()
	known := make(map[string]int, len(defs))
	for i, d := range defs {
		known[d.Name] = i
	}

	for name, override := range cfg.Policies {
		i, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown policy %q", name)
		}
		if override.Window != 0 {
			defs[i].Window = override.Window
		}
		if override.MaxRequests != 0 {
			defs[i].MaxRequests = override.MaxRequests
		}
	}
	return defs, nil
}

// PolicySet holds the configured policies bound to one shared store.
type PolicySet struct {
	store    Store
	policies []*Policy
	byName   map[string]*Policy
}

// NewPolicySet builds every policy in defs on top of store. Duplicate names
// and duplicate prefixes are configuration errors.
func NewPolicySet(store Store, defs []PolicyConfig) (*PolicySet, error) {
	set := &PolicySet{
		store:  store,
		byName: make(map[string]*Policy, len(defs)),
	}
	prefixes := make(map[string]string, len(defs))

	for _, def := range defs {
		p, err := NewPolicy(store, def)
		if err != nil {
			return nil, err
		}
		if _, dup := set.byName[p.name]; dup {
			return nil, fmt.Errorf("duplicate policy name %q", p.name)
		}
		// Prefixes cannot contain the separator, so "prefix:" strings only
		// collide when the prefixes are equal.
		if other, dup := prefixes[p.prefix]; dup {
			return nil, fmt.Errorf("policies %q and %q: %w", other, p.name, ErrPrefixOverlap)
		}
		prefixes[p.prefix] = p.name
		set.byName[p.name] = p
		set.policies = append(set.policies, p)
	}
	return set, nil
}

// Get returns the policy with the given name.
func (s *PolicySet) Get(name string) (*Policy, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// MustGet returns the named policy or panics. For wiring code that was built
// from DefaultPolicies.
func (s *PolicySet) MustGet(name string) *Policy {
	p, ok := s.byName[name]
	if !ok {
		panic(fmt.Sprintf("ratelimit: policy %q not configured", name))
	}
	return p
}

// Policies returns the policies in table order.
func (s *PolicySet) Policies() []*Policy {
	out := make([]*Policy, len(s.policies))
	copy(out, s.policies)
	return out
}

// Store returns the shared counter store.
func (s *PolicySet) Store() Store {
	return s.store
}

// Info describes the table for the admin endpoint.
func (s *PolicySet) Info() []models.PolicyInfo {
	out := make([]models.PolicyInfo, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, models.PolicyInfo{
			Name:              p.name,
			Prefix:            p.prefix,
			WindowMs:          p.window.Milliseconds(),
			MaxRequests:       p.maxRequests,
			RetryAfterSeconds: int(p.RetryAfter() / time.Second),
			Message:           p.message,
		})
	}
	return out
}
