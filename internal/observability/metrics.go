package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer is the operator-facing listener: Prometheus metrics and the
// admin endpoints, on a port separate from the public gateway.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a server serving the Prometheus handler at path
// and admin for every other route. Either may be absent: metrics are only
// served when provider has an exporter, and admin may be nil.
func NewMetricsServer(port int, path string, provider *Provider, admin http.Handler) *MetricsServer {
	mux := http.NewServeMux()

	if g := provider.Gatherer(); g != nil {
		mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{
			ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
		}))
	}
	if admin != nil {
		mux.Handle("/", admin)
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the routing of the server, for tests.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}

// Start begins serving metrics in a blocking call.
// Returns http.ErrServerClosed on graceful shutdown.
func (ms *MetricsServer) Start() error {
	slog.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
