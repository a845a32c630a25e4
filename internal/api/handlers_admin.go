package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"trustguard/internal/models"
)

// ListPolicies returns the configured policy table
// GET /admin/policies
func (h *Handlers) ListPolicies(w http.ResponseWriter, r *http.Request) {
	response := &models.ListPoliciesResponse{Policies: []models.PolicyInfo{}}
	if h.policies != nil {
		response.Policies = h.policies.Info()
	}
	h.writeJSONResponse(w, http.StatusOK, response)
}

// Stats returns the decision counters of this instance
// GET /admin/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable,
			"Decision statistics are not enabled")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, h.stats.Snapshot())
}

// ClusterStats returns decision totals shared by all instances
// GET /admin/stats/cluster
func (h *Handlers) ClusterStats(w http.ResponseWriter, r *http.Request) {
	if h.cluster == nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable,
			"Shared statistics backend is not configured")
		return
	}
	totals, err := h.cluster.Totals(r.Context())
	if err != nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable, err.Error())
		return
	}
	h.writeJSONResponse(w, http.StatusOK, totals)
}

// ListRejections returns the rejection log, newest first
// GET /admin/rejections?policy=login&since=2026-01-01T00:00:00Z&limit=50
func (h *Handlers) ListRejections(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeServiceUnavailable,
			"Rejection log is not configured")
		return
	}

	filter, err := h.parseRejectionFilter(r)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, err.Error())
		return
	}

	rejections, err := h.storage.Rejections(r.Context(), filter)
	if err != nil {
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError,
			"Failed to read rejection log")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, &models.ListRejectionsResponse{
		Rejections: rejections,
		Count:      len(rejections),
	})
}

type queryError string

func (e queryError) Error() string { return string(e) }

func (h *Handlers) parseRejectionFilter(r *http.Request) (models.RejectionFilter, error) {
	var filter models.RejectionFilter
	q := r.URL.Query()

	if policy := strings.TrimSpace(q.Get("policy")); policy != "" {
		if h.policies != nil {
			if _, ok := h.policies.Get(policy); !ok {
				return filter, queryError("unknown policy: " + policy)
			}
		}
		filter.Policy = policy
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, queryError("since must be an RFC3339 timestamp")
		}
		filter.Since = t
	}

	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return filter, queryError("limit must be a positive integer")
		}
		filter.Limit = n
	}

	return filter, nil
}
