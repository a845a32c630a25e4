// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the gateway's /health endpoint returns HTTP 200
// with a healthy or degraded status, and 1 otherwise. Compile with
// CGO_ENABLED=0 for a fully static binary.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"trustguard/internal/models"
	"trustguard/internal/version"
)

var (
	url     = flag.String("url", "http://localhost:8080/health", "Health endpoint to probe")
	timeout = flag.Duration("timeout", 3*time.Second, "Request timeout")
)

func main() {
	flag.Parse()
	os.Exit(probe(&http.Client{Timeout: *timeout}, *url))
}

func probe(client *http.Client, target string) int {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return 1
	}
	req.Header.Set("User-Agent", version.GetInfo().UserAgent("healthcheck"))

	resp, err := client.Do(req)
	if err != nil {
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}

	var health models.HealthCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return 1
	}
	if health.Status == models.StatusUnhealthy {
		return 1
	}
	return 0
}
