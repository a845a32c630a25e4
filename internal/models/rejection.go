package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Rejection is one audit-log entry: a request a policy turned away with 429.
type Rejection struct {
	ID         string    `json:"id"`
	Policy     string    `json:"policy"`
	Key        string    `json:"key"`
	IP         string    `json:"ip"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	TotalHits  int64     `json:"total_hits"`
	Limit      int       `json:"limit"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RejectionFilter narrows a rejection listing. Zero values mean "no filter";
// Limit <= 0 falls back to DefaultRejectionLimit.
type RejectionFilter struct {
	Policy string
	Since  time.Time
	Limit  int
}

const (
	DefaultRejectionLimit = 100
	MaxRejectionLimit     = 1000
)

// NewRejection stamps a new rejection with a random id.
func NewRejection(policy, key, ip, method, path string, totalHits int64, limit int, at time.Time) *Rejection {
	return &Rejection{
		ID:         uuid.NewString(),
		Policy:     policy,
		Key:        key,
		IP:         ip,
		Method:     method,
		Path:       path,
		TotalHits:  totalHits,
		Limit:      limit,
		OccurredAt: at.UTC(),
	}
}

func (r *Rejection) Validate() error {
	if r.ID == "" {
		return errors.New("rejection id cannot be empty")
	}
	if r.Policy == "" {
		return errors.New("rejection policy cannot be empty")
	}
	if r.Key == "" {
		return errors.New("rejection key cannot be empty")
	}
	if r.OccurredAt.IsZero() {
		return errors.New("rejection timestamp cannot be zero")
	}
	return nil
}

// Matches reports whether r passes the policy and since filters.
func (f RejectionFilter) Matches(r *Rejection) bool {
	if f.Policy != "" && r.Policy != f.Policy {
		return false
	}
	if !f.Since.IsZero() && r.OccurredAt.Before(f.Since) {
		return false
	}
	return true
}

// EffectiveLimit clamps Limit into [1, MaxRejectionLimit].
func (f RejectionFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultRejectionLimit
	case f.Limit > MaxRejectionLimit:
		return MaxRejectionLimit
	default:
		return f.Limit
	}
}
