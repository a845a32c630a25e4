package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"trustguard/internal/models"
	"trustguard/internal/ratelimit"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health"
			}),
		))
	}
}

// Guard returns the admission middleware of the named policy.
type Guard func(policy string) func(http.Handler) http.Handler

// NewGuard builds one middleware per policy of set, sharing opts. A nil set
// yields a guard that admits everything.
func NewGuard(set *ratelimit.PolicySet, opts ...ratelimit.MiddlewareOption) Guard {
	if set == nil {
		return func(string) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler { return next }
		}
	}

	byName := make(map[string]func(http.Handler) http.Handler)
	for _, p := range set.Policies() {
		byName[p.Name()] = ratelimit.Middleware(p, opts...)
	}
	return func(policy string) func(http.Handler) http.Handler {
		mw, ok := byName[policy]
		if !ok {
			panic("api: no rate limit policy named " + policy)
		}
		return mw
	}
}

// SetupRoutes configures the public gateway routes. Every /api route is
// guarded by exactly one policy before reaching upstream. Paths are
// canonicalized before matching, see canonicalPath.
func SetupRoutes(handlers *Handlers, upstream http.Handler, guard Guard, opts ...RouteOption) http.Handler {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	router.Handle("/api/auth/login", guard(models.PolicyLogin)(upstream)).Methods("POST")
	router.Handle("/api/elections/{electionId}/vote", guard(models.PolicyVoting)(upstream)).Methods("POST")
	router.Handle("/api/elections/{electionId}/ballot", guard(models.PolicyBallot)(upstream)).Methods("GET")
	router.Handle("/api/elections/{electionId}/results", guard(models.PolicyResults)(upstream)).Methods("GET")

	// everything else under /api, including other methods on the routes above
	router.PathPrefix("/api/").Handler(guard(models.PolicyAPI)(upstream))
	router.Handle("/api", guard(models.PolicyAPI)(upstream))

	router.PathPrefix("/").Handler(upstream)

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	return canonicalPaths(router)
}

var guardedPath = regexp.MustCompile(`(?i)^/api/(?:auth/login|elections/([^/]+)/(vote|ballot|results))$`)

// canonicalPath maps case and trailing-slash variants of /api paths onto the
// registered routes, as the upstream router treats them as the same endpoint.
// Only the static segments are lowercased; election ids keep their case.
func canonicalPath(p string) string {
	if len(p) < 4 || !strings.EqualFold(p[:4], "/api") || (len(p) > 4 && p[4] != '/') {
		return p
	}
	p = "/api" + strings.TrimRight(p[4:], "/")

	m := guardedPath.FindStringSubmatch(p)
	switch {
	case m == nil:
		return p
	case m[1] == "":
		return "/api/auth/login"
	default:
		return "/api/elections/" + m[1] + "/" + strings.ToLower(m[2])
	}
}

// canonicalPaths rewrites the request path with canonicalPath before routing.
func canonicalPaths(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := canonicalPath(r.URL.Path)
		if p == r.URL.Path {
			next.ServeHTTP(w, r)
			return
		}
		r2 := new(http.Request)
		*r2 = *r
		r2.URL = new(url.URL)
		*r2.URL = *r.URL
		r2.URL.Path = p
		r2.URL.RawPath = ""
		next.ServeHTTP(w, r2)
	})
}

// SetupAdminRoutes configures the read-only admin endpoints served next to
// the metrics endpoint.
func SetupAdminRoutes(handlers *Handlers) *mux.Router {
	router := mux.NewRouter()

	admin := router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/policies", handlers.ListPolicies).Methods("GET")
	admin.HandleFunc("/stats", handlers.Stats).Methods("GET")
	admin.HandleFunc("/stats/cluster", handlers.ClusterStats).Methods("GET")
	admin.HandleFunc("/rejections", handlers.ListRejections).Methods("GET")
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Not found", models.ErrorCodeNotFound))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	router.Use(recoveryMiddleware)

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, models.NewErrorResponse("Method not allowed", models.ErrorCodeMethodNotAllowed))
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr)
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError,
					models.NewErrorResponse("Internal server error", models.ErrorCodeInternalError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
