package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"trustguard/internal/models"
)

// NewProxy returns a reverse proxy forwarding admitted requests to the
// upstream. X-Forwarded-For from the client is kept and the client address
// appended. Upstream failures are answered with 502 and a JSON error body.
func NewProxy(cfg models.UpstreamConfig) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream url must be absolute: %q", cfg.URL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Header["X-Forwarded-For"] = pr.In.Header["X-Forwarded-For"]
			pr.SetXForwarded()
		},
		FlushInterval: cfg.FlushInterval,
		ErrorHandler:  proxyErrorHandler,
	}, nil
}

func proxyErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, r.Context().Err()) {
		// client went away
		slog.Debug("Upstream request canceled", "method", r.Method, "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	slog.Error("Upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusBadGateway, models.NewErrorResponse("Upstream service unavailable", models.ErrorCodeBadGateway))
}
