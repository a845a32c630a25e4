package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbe(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected int
	}{
		{"healthy", http.StatusOK, `{"status":"healthy"}`, 0},
		{"degraded still serves traffic", http.StatusOK, `{"status":"degraded"}`, 0},
		{"unhealthy", http.StatusOK, `{"status":"unhealthy"}`, 1},
		{"server error", http.StatusInternalServerError, `{"status":"healthy"}`, 1},
		{"not json", http.StatusOK, `ok`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var userAgent string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				userAgent = r.UserAgent()
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			assert.Equal(t, tt.expected, probe(srv.Client(), srv.URL+"/health"))
			assert.True(t, strings.HasPrefix(userAgent, "trustguard-healthcheck/"), userAgent)
		})
	}
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	assert.Equal(t, 1, probe(srv.Client(), target))
}
