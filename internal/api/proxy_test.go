package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustguard/internal/models"
)

func TestNewProxy_ForwardsRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Seen-Path", r.URL.RequestURI())
		w.Header().Set("X-Seen-Forwarded-For", r.Header.Get("X-Forwarded-For"))
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}))
	defer upstream.Close()

	proxy, err := NewProxy(models.UpstreamConfig{URL: upstream.URL})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/auth/login?next=%2Fdashboard", strings.NewReader(`{"email":"a@b.com"}`))
	req.RemoteAddr = "203.0.113.9:4321"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	rr := httptest.NewRecorder()
	proxy.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, `{"email":"a@b.com"}`, rr.Body.String())
	assert.Equal(t, "/api/auth/login?next=%2Fdashboard", rr.Header().Get("X-Seen-Path"))
	assert.Equal(t, "198.51.100.1, 203.0.113.9", rr.Header().Get("X-Seen-Forwarded-For"))
}

func TestNewProxy_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	proxy, err := NewProxy(models.UpstreamConfig{URL: url})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	proxy.ServeHTTP(rr, httptest.NewRequest("GET", "/api/elections", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Equal(t, models.ErrorCodeBadGateway, errResp.Code)
}

func TestNewProxy_InvalidURL(t *testing.T) {
	tests := []string{"", "localhost:5000/api", "://missing-scheme", "/relative"}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := NewProxy(models.UpstreamConfig{URL: raw})
			assert.Error(t, err)
		})
	}
}
