package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsboard/incident-gateway/internal/httpx"
	"github.com/opsboard/incident-gateway/internal/monitoring"
)

// msgAuthRequired is the exact body the SPA matches on to redirect to the
// login screen. Do not reword without coordinating a frontend release.
const msgAuthRequired = "Authentication required. No token found."

type tokenKey struct{}

func withToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// tokenFrom returns the upstream token placed in the context by the session
// guard. Empty outside guarded routes.
func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// requestAudit assigns each request an ID, times it, and records the outcome
// to the log, the metrics counters, and the audit store. Handlers annotate
// the in-flight event via monitoring.EventFrom.
func (g *Gateway) requestAudit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			// Health probes arrive every few hundred ms; auditing them
			// would drown the real traffic.
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		evt := &monitoring.RequestEvent{
			RequestID: uuid.New().String(),
			Timestamp: start,
			Method:    r.Method,
			Path:      r.URL.Path,
			ClientIP:  r.RemoteAddr,
			Outcome:   monitoring.OutcomeOK,
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(monitoring.WithEvent(r.Context(), evt)))

		evt.StatusCode = ww.Status()
		if evt.StatusCode == 0 {
			// A hijacked upgrade writes its 101 on the raw connection,
			// where the wrapper cannot see it.
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				evt.StatusCode = http.StatusSwitchingProtocols
			} else {
				evt.StatusCode = http.StatusOK
			}
		}
		evt.DurationMs = time.Since(start).Milliseconds()

		success := evt.StatusCode < 400
		g.metrics.RecordRequest(success)

		logEvent := log.Info()
		if !success {
			logEvent = log.Warn()
		}
		logEvent.
			Str("request_id", evt.RequestID).
			Str("method", evt.Method).
			Str("path", evt.Path).
			Int("status", evt.StatusCode).
			Str("outcome", string(evt.Outcome)).
			Int64("duration_ms", evt.DurationMs).
			Msg("request")

		// Detach from the request context: the client may already be gone.
		auditCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		g.audit.Record(auditCtx, evt)
	})
}

// requireSession rejects requests without a session cookie before anything
// reaches upstream. The rejected request produces no upstream traffic at all.
func (g *Gateway) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := g.sessions.Read(r)
		if err != nil {
			g.metrics.RecordAuthRejection()
			if evt := monitoring.EventFrom(r.Context()); evt != nil {
				evt.Outcome = monitoring.OutcomeAuthRequired
			}
			httpx.Error(w, http.StatusUnauthorized, msgAuthRequired)
			return
		}

		next.ServeHTTP(w, r.WithContext(withToken(r.Context(), token)))
	})
}
