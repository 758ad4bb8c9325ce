// Authentication handlers - login, register, logout.
//
// Login is the only place the upstream token crosses the gateway in the
// clear: it arrives in the upstream body, goes straight into the cookie,
// and is never echoed to the browser.
package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/opsboard/incident-gateway/internal/httpx"
	"github.com/opsboard/incident-gateway/internal/monitoring"
)

const (
	msgLoginOK   = "Login successful."
	msgLoggedOut = "Logged out."
)

// handleLogin forwards credentials upstream and, on success, seals the
// returned token into the session cookie.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	res, err := g.upstream.Login(r.Context(), body)
	if err != nil {
		g.writeUnreachable(w, r, err)
		return
	}

	if !res.Success() {
		// Wrong credentials and the like: mirror, never the session-expired
		// message, and never a cookie.
		g.mirror(w, r, res, "Login failed.")
		return
	}

	token := gjson.GetBytes(res.Body, "token")
	if token.Type != gjson.String || token.Str == "" {
		// Upstream claims success but sent nothing to authenticate with.
		g.metrics.RecordUpstreamError()
		annotate(r, res.Status, monitoring.OutcomeBadUpstreamPayload)
		log.Error().Int("upstream_status", res.Status).Msg("login success without token")
		httpx.Error(w, http.StatusInternalServerError, "Login failed: upstream returned no token.")
		return
	}

	g.sessions.Issue(w, token.Str)
	g.metrics.RecordSessionIssued()
	annotate(r, res.Status, monitoring.OutcomeOK)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": msgLoginOK})
}

// handleRegister mirrors the upstream's answer. Registration does not log
// the user in; any token the upstream volunteers is scrubbed before the
// body reaches the browser.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	res, err := g.upstream.Register(r.Context(), body)
	if err != nil {
		g.writeUnreachable(w, r, err)
		return
	}

	if res.Success() && len(res.Body) > 0 && gjson.ValidBytes(res.Body) {
		if scrubbed, serr := sjson.DeleteBytes(res.Body, "token"); serr == nil {
			res.Body = scrubbed
		}
	}

	g.mirror(w, r, res, "Registration failed.")
}

// handleLogout clears the session cookie. Purely local: the upstream has no
// logout operation, and the token simply ages out there.
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	g.sessions.Revoke(w)
	g.metrics.RecordSessionRevoked()
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": msgLoggedOut})
}
