package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"trustguard/internal/models"
	"trustguard/internal/stats"
)

// maxIdentityBody caps how much of a JSON body is buffered to find identity
// fields. The rest of the body is streamed through untouched.
const maxIdentityBody = 64 << 10

// auditTimeout bounds the rejection-log write done after a 429 is flushed.
const auditTimeout = 2 * time.Second

// RejectionLog stores rejected requests for later inspection.
type RejectionLog interface {
	RecordRejection(ctx context.Context, r *models.Rejection) error
}

// IdentityExtractor builds the Identity of an incoming request.
type IdentityExtractor func(r *http.Request) Identity

type middlewareConfig struct {
	extract  IdentityExtractor
	recorder stats.Recorder
	audit    RejectionLog
	now      func() time.Time
	sampler  *rate.Limiter
}

type MiddlewareOption func(*middlewareConfig)

// WithIdentityExtractor replaces the default extractor, which uses RemoteAddr
// only and the X-User-ID header.
func WithIdentityExtractor(fn IdentityExtractor) MiddlewareOption {
	return func(c *middlewareConfig) { c.extract = fn }
}

// WithRecorder reports every decision to rec.
func WithRecorder(rec stats.Recorder) MiddlewareOption {
	return func(c *middlewareConfig) { c.recorder = rec }
}

// WithRejectionLog stores every rejection in log.
func WithRejectionLog(log RejectionLog) MiddlewareOption {
	return func(c *middlewareConfig) { c.audit = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MiddlewareOption {
	return func(c *middlewareConfig) { c.now = now }
}

// WithLogSampling limits "Rate limit exceeded" warnings to perSecond with the
// given burst. Rejections past the budget are still counted and audited.
func WithLogSampling(perSecond float64, burst int) MiddlewareOption {
	return func(c *middlewareConfig) { c.sampler = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// Middleware returns HTTP middleware enforcing policy. It always sets the
// RateLimit-Limit, RateLimit-Remaining and RateLimit-Reset headers. On
// rejection it answers 429 with Retry-After and a {"message","retryAfter"}
// body and does not call next.
func Middleware(policy *Policy, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		extract:  NewIdentityExtractor(nil, "X-User-ID"),
		recorder: stats.Nop{},
		now:      time.Now,
		sampler:  rate.NewLimiter(rate.Limit(5), 20),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := cfg.now()
			id := safeExtract(cfg.extract, r, policy.Name())
			decision := policy.Check(r.Context(), id, now)

			setRateLimitHeaders(w.Header(), decision, now)

			if err := cfg.recorder.Record(r.Context(), stats.Event{
				Policy:     decision.Policy,
				Key:        decision.Key,
				Admitted:   decision.Admit,
				FailedOpen: decision.FailedOpen,
				Method:     r.Method,
				Path:       r.URL.Path,
				At:         now,
			}); err != nil {
				slog.Warn("Failed to record rate limit decision", "policy", decision.Policy, "error", err)
			}

			if decision.Admit {
				next.ServeHTTP(w, r)
				return
			}

			retryAfterSecs := int(decision.RetryAfter / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
			writeRejection(w, decision)

			if cfg.sampler == nil || cfg.sampler.Allow() {
				slog.Warn("Rate limit exceeded",
					"policy", decision.Policy,
					"key", decision.Key,
					"total_hits", decision.TotalHits,
					"limit", decision.Limit,
					"retry_after", retryAfterSecs,
				)
			}

			if cfg.audit != nil {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
				defer cancel()
				rej := models.NewRejection(decision.Policy, decision.Key, id.IP, r.Method, r.URL.Path,
					decision.TotalHits, decision.Limit, now)
				if err := cfg.audit.RecordRejection(ctx, rej); err != nil {
					slog.Warn("Failed to store rejection", "policy", decision.Policy, "error", err)
				}
			}
		})
	}
}

// writeRejection sends the complete 429 with a Content-Length and flushes it
// before the caller goes on to audit.
func writeRejection(w http.ResponseWriter, d Decision) {
	body, err := json.Marshal(models.NewRateLimitResponse(d.Message, d.RetryAfter))
	if err != nil {
		slog.Error("Error encoding rate limit response", "policy", d.Policy, "error", err)
	}
	body = append(body, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusTooManyRequests)
	if _, err := w.Write(body); err != nil {
		return
	}
	if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Debug("Failed to flush rate limit response", "policy", d.Policy, "error", err)
	}
}

// safeExtract runs the extractor and falls back to an empty Identity (which
// becomes all fallback literals) if it panics.
func safeExtract(extract IdentityExtractor, r *http.Request, policy string) (id Identity) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Identity extraction panicked, using fallbacks", "policy", policy, "panic", rec)
			id = Identity{}
		}
	}()
	return extract(r)
}

func setRateLimitHeaders(h http.Header, d Decision, now time.Time) {
	resetSecs := int64(math.Ceil(d.ResetTime.Sub(now).Seconds()))
	if resetSecs < 0 {
		resetSecs = 0
	}
	h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("RateLimit-Reset", strconv.FormatInt(resetSecs, 10))
}

// NewIdentityExtractor returns the extractor used by the gateway:
//   - IP from ClientIP with the given trusted proxies
//   - user id from userIDHeader
//   - email, studentId and electionId from a JSON body
//   - electionId from the route variable of the same name, which wins over the body
//   - studentId from X-Student-ID when the body has none
func NewIdentityExtractor(trusted *TrustedProxies, userIDHeader string) IdentityExtractor {
	return func(r *http.Request) Identity {
		body := jsonBodyFields(r)
		id := Identity{
			IP:         ClientIP(r, trusted),
			UserID:     strings.TrimSpace(r.Header.Get(userIDHeader)),
			Email:      strings.ToLower(body["email"]),
			StudentID:  body["studentId"],
			ElectionID: body["electionId"],
		}
		if id.StudentID == "" {
			id.StudentID = strings.TrimSpace(r.Header.Get("X-Student-ID"))
		}
		if v := mux.Vars(r)["electionId"]; v != "" {
			id.ElectionID = v
		}
		return id
	}
}

// jsonBodyFields reads the scalar top-level fields of a JSON body and restores
// r.Body so the upstream receives it unchanged.
func jsonBodyFields(r *http.Request) map[string]string {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxIdentityBody))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}
	if err != nil || len(buf) == maxIdentityBody {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		if s := scalarString(v); s != "" {
			fields[k] = s
		}
	}
	return fields
}

func scalarString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}
