// Package models - API response types and error handling.
// This file defines the outgoing response structures of the gateway and its
// admin endpoints.
//
// Response Design Principles:
// - The 429 body keeps the exact shape TrustElect clients already parse
// - Gateway-originated errors share one structure with machine-readable codes
// - RFC3339 timestamps for international compatibility
package models

import (
	"time"
)

// RateLimitResponse is the body returned with every 429. Clients read
// RetryAfter (seconds) to decide when to try again.
type RateLimitResponse struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// ErrorResponse provides structured error information for failures the
// gateway itself produces (upstream down, panics, bad admin queries).
type ErrorResponse struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Code      string            `json:"code,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PolicyInfo describes one configured policy on GET /admin/policies.
type PolicyInfo struct {
	Name              string `json:"name"`
	Prefix            string `json:"prefix"`
	WindowMs          int64  `json:"window_ms"`
	MaxRequests       int    `json:"max_requests"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	Message           string `json:"message"`
}

type ListPoliciesResponse struct {
	Policies []PolicyInfo `json:"policies"`
}

// DecisionCounters is the allowed/denied pair used by the stats endpoint.
type DecisionCounters struct {
	Admitted   int64 `json:"admitted"`
	Rejected   int64 `json:"rejected"`
	FailedOpen int64 `json:"failed_open"`
}

type StatsResponse struct {
	Total    DecisionCounters            `json:"total"`
	ByPolicy map[string]DecisionCounters `json:"by_policy"`
	ByKey    map[string]DecisionCounters `json:"by_key,omitempty"`
}

type ListRejectionsResponse struct {
	Rejections []*Rejection `json:"rejections"`
	Count      int          `json:"count"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Standard HTTP Error Codes
const (
	ErrorCodeBadRequest         = "BAD_REQUEST"          // 400: Invalid request format
	ErrorCodeNotFound           = "NOT_FOUND"            // 404: Route doesn't exist
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"   // 405: Wrong method
	ErrorCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"  // 429: Policy rejected the request
	ErrorCodeInternalError      = "INTERNAL_ERROR"       // 500: Server-side error
	ErrorCodeBadGateway         = "BAD_GATEWAY"          // 502: Upstream failed
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"  // 503: Dependency down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// NewRateLimitResponse builds the 429 body from a policy message and its
// retry hint.
func NewRateLimitResponse(message string, retryAfter time.Duration) *RateLimitResponse {
	return &RateLimitResponse{
		Message:    message,
		RetryAfter: int(retryAfter / time.Second),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

// AddComponent records a component's health. A non-healthy component marks the
// whole response degraded.
func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status != StatusHealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}
