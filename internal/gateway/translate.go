// Response translation - upstream results become browser responses here.
//
// DESIGN: The rules, in order:
//   - no response at all          -> 500 "Incident service is unreachable."
//   - 401/403                     -> revoke cookie, mirror status, re-login message
//   - 2xx, empty body             -> mirror status
//   - 2xx, valid JSON             -> mirror status and body verbatim
//   - 2xx, non-JSON               -> 500 including the raw text for diagnosis
//   - anything else               -> mirror status; mirror body when it carries
//     an "error" field, otherwise synthesize the operation's fallback message
//
// Login and register bypass the 401/403 rule (handlers_auth.go): a wrong
// password is an upstream 401 but must read as "bad credentials", not
// "session expired".
package gateway

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/opsboard/incident-gateway/internal/httpx"
	"github.com/opsboard/incident-gateway/internal/monitoring"
	"github.com/opsboard/incident-gateway/internal/upstream"
)

const (
	msgSessionExpired = "Session expired or invalid token. Please log in again."
	msgUnreachable    = "Incident service is unreachable."
)

// rawTextLimit caps how much of a malformed upstream body is echoed back.
const rawTextLimit = 2048

// annotate marks the in-flight audit event with the upstream verdict.
func annotate(r *http.Request, upstreamStatus int, outcome monitoring.Outcome) {
	if evt := monitoring.EventFrom(r.Context()); evt != nil {
		evt.UpstreamStatus = upstreamStatus
		evt.Outcome = outcome
	}
}

// translateProtected renders an upstream result for a guarded operation,
// including the token-rejection rule. Returns true when upstream answered
// 2xx, so callers know a mutation actually happened.
func (g *Gateway) translateProtected(w http.ResponseWriter, r *http.Request, res *upstream.Result, err error, fallback string) bool {
	if err != nil {
		g.writeUnreachable(w, r, err)
		return false
	}

	// The upstream said the token is no good. The cookie is now a liability:
	// clear it so the browser falls back to the login screen.
	if res.Status == http.StatusUnauthorized || res.Status == http.StatusForbidden {
		g.sessions.Revoke(w)
		g.metrics.RecordSessionRevoked()
		annotate(r, res.Status, monitoring.OutcomeSessionExpired)
		httpx.Error(w, res.Status, msgSessionExpired)
		return false
	}

	return g.mirror(w, r, res, fallback)
}

// mirror forwards an upstream result without touching the session. Used
// directly by login/register, and by translateProtected for everything the
// 401/403 rule doesn't catch.
func (g *Gateway) mirror(w http.ResponseWriter, r *http.Request, res *upstream.Result, fallback string) bool {
	if res.Success() {
		if len(res.Body) == 0 {
			annotate(r, res.Status, monitoring.OutcomeOK)
			w.WriteHeader(res.Status)
			return true
		}
		if !gjson.ValidBytes(res.Body) {
			g.metrics.RecordUpstreamError()
			annotate(r, res.Status, monitoring.OutcomeBadUpstreamPayload)
			log.Error().
				Int("upstream_status", res.Status).
				Int("body_size", len(res.Body)).
				Msg("upstream success with non-JSON body")
			httpx.Error(w, http.StatusInternalServerError,
				fmt.Sprintf("Upstream returned a non-JSON response: %s", truncate(res.Body, rawTextLimit)))
			return false
		}
		annotate(r, res.Status, monitoring.OutcomeOK)
		httpx.WriteRaw(w, res.Status, res.Body)
		return true
	}

	g.metrics.RecordUpstreamError()
	annotate(r, res.Status, monitoring.OutcomeUpstreamError)

	// Mirror the upstream's own error body when it has one; otherwise the
	// browser gets this operation's fallback message.
	if gjson.ValidBytes(res.Body) && gjson.GetBytes(res.Body, "error").Exists() {
		httpx.WriteRaw(w, res.Status, res.Body)
		return false
	}
	httpx.Error(w, res.Status, fallback)
	return false
}

// writeUnreachable reports a network-level failure to reach upstream.
func (g *Gateway) writeUnreachable(w http.ResponseWriter, r *http.Request, err error) {
	g.metrics.RecordUpstreamUnreachable()
	annotate(r, 0, monitoring.OutcomeUnreachable)
	log.Error().Err(err).Str("path", r.URL.Path).Msg("upstream unreachable")
	httpx.Error(w, http.StatusInternalServerError, msgUnreachable)
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
