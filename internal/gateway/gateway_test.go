package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/incident-gateway/internal/config"
	"github.com/opsboard/incident-gateway/internal/upstream"
)

const (
	testUser  = "amy"
	testPass  = "s3cret"
	testToken = "tok-amy-1"
)

// fakeIncidentAPI is an in-memory stand-in for the upstream service. It
// enforces bearer auth the way the real API does and keeps incidents in a
// map so round-trip tests can assert on stored state.
type fakeIncidentAPI struct {
	*httptest.Server

	mu        sync.Mutex
	incidents map[string]map[string]any
	nextID    int
	calls     int

	// omitLoginToken makes login report success without a token.
	omitLoginToken bool
}

func newFakeIncidentAPI(t *testing.T) *fakeIncidentAPI {
	t.Helper()
	f := &fakeIncidentAPI{incidents: map[string]map[string]any{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeIncidentAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeIncidentAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	writeJSON := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/login":
		var creds struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Username != testUser || creds.Password != testPass {
			writeJSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		if f.omitLoginToken {
			writeJSON(http.StatusOK, map[string]string{"message": "ok"})
			return
		}
		writeJSON(http.StatusOK, map[string]string{"token": testToken})
		return

	case r.Method == http.MethodPost && r.URL.Path == "/register":
		writeJSON(http.StatusCreated, map[string]string{
			"id":       "u-1",
			"username": testUser,
			"token":    "freshly-minted-token",
		})
		return
	}

	// Everything below requires the bearer token.
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		writeJSON(http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		return
	}

	id := ""
	if parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/"); len(parts) == 2 {
		id = parts[1]
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/incidents":
		list := make([]map[string]any, 0, len(f.incidents))
		for _, inc := range f.incidents {
			list = append(list, inc)
		}
		writeJSON(http.StatusOK, list)

	case r.Method == http.MethodPost && r.URL.Path == "/incidents":
		var fields map[string]any
		_ = json.NewDecoder(r.Body).Decode(&fields)
		f.nextID++
		incID := fmt.Sprintf("inc-%d", f.nextID)
		fields["id"] = incID
		fields["status"] = "open"
		f.incidents[incID] = fields
		writeJSON(http.StatusCreated, fields)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/incidents/"):
		inc, ok := f.incidents[id]
		if !ok {
			writeJSON(http.StatusNotFound, map[string]string{"error": "Incident not found"})
			return
		}
		writeJSON(http.StatusOK, inc)

	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/incidents/"):
		inc, ok := f.incidents[id]
		if !ok {
			writeJSON(http.StatusNotFound, map[string]string{"error": "Incident not found"})
			return
		}
		var fields map[string]any
		_ = json.NewDecoder(r.Body).Decode(&fields)
		for k, v := range fields {
			inc[k] = v
		}
		writeJSON(http.StatusOK, inc)

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/incidents/"):
		if _, ok := f.incidents[id]; !ok {
			writeJSON(http.StatusNotFound, map[string]string{"error": "Incident not found"})
			return
		}
		delete(f.incidents, id)
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/escalate/"):
		inc, ok := f.incidents[id]
		if !ok {
			writeJSON(http.StatusNotFound, map[string]string{"error": "Incident not found"})
			return
		}
		inc["severity"] = "escalated"
		writeJSON(http.StatusOK, inc)

	default:
		writeJSON(http.StatusNotFound, map[string]string{"error": "No such route"})
	}
}

// tripwire is an upstream that must never be reached.
func tripwire(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("upstream contacted unexpectedly: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGateway(t *testing.T, upstreamURL string) *Gateway {
	t.Helper()
	cfg := config.Default()
	cfg.Upstream.BaseURL = upstreamURL
	cfg.Upstream.Timeout = config.Duration(2 * time.Second)
	require.NoError(t, cfg.Validate())

	client := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout.Std())
	return New(cfg, client, nil)
}

func sessionCookie(value string) *http.Cookie {
	return &http.Cookie{Name: "incident_session", Value: value}
}

func do(router http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func clearedCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "incident_session" && c.MaxAge < 0 {
			return c
		}
	}
	return nil
}

// =============================================================================
// Session guard
// =============================================================================

func TestProtectedRoutesRequireSession(t *testing.T) {
	guard := tripwire(t)
	router := newTestGateway(t, guard.URL).Router()

	routes := []struct{ method, path string }{
		{http.MethodGet, "/incidents"},
		{http.MethodGet, "/incidents/inc-1"},
		{http.MethodPost, "/incidents"},
		{http.MethodPut, "/incidents/inc-1"},
		{http.MethodDelete, "/incidents/inc-1"},
		{http.MethodPost, "/escalate/inc-1"},
		{http.MethodGet, "/events"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := do(router, rt.method, rt.path, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"Authentication required. No token found."}`, rec.Body.String())
		})
	}
}

func TestEmptyCookieIsNoSession(t *testing.T) {
	guard := tripwire(t)
	router := newTestGateway(t, guard.URL).Router()

	rec := do(router, http.MethodGet, "/incidents", "", sessionCookie(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// Login / register / logout
// =============================================================================

func TestLoginSetsSessionCookie(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()

	rec := do(router, http.MethodPost, "/login", `{"username":"amy","password":"s3cret"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Login successful."}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), testToken)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "incident_session", c.Name)
	assert.Equal(t, testToken, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)
	assert.False(t, c.Secure) // development config
}

func TestLoginBadCredentialsMirrorsUpstream(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()

	rec := do(router, http.MethodPost, "/login", `{"username":"amy","password":"wrong"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())
	// Bad credentials are not an expired session.
	assert.NotContains(t, rec.Body.String(), "Session expired")
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginSuccessWithoutTokenIsFailure(t *testing.T) {
	api := newFakeIncidentAPI(t)
	api.omitLoginToken = true
	router := newTestGateway(t, api.URL).Router()

	rec := do(router, http.MethodPost, "/login", `{"username":"amy","password":"s3cret"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no token")
	assert.Empty(t, rec.Result().Cookies())
}

func TestRegisterMirrorsButScrubsToken(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()

	rec := do(router, http.MethodPost, "/register", `{"username":"amy","password":"s3cret"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"u-1","username":"amy"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "freshly-minted-token")
	// Registration does not log in.
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogoutIsLocalAndClearsCookie(t *testing.T) {
	guard := tripwire(t)
	router := newTestGateway(t, guard.URL).Router()

	rec := do(router, http.MethodPost, "/logout", "", sessionCookie(testToken))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Logged out."}`, rec.Body.String())
	require.NotNil(t, clearedCookie(t, rec), "logout must clear the session cookie")
}

// =============================================================================
// Token rejection translation
// =============================================================================

func TestUpstreamTokenRejectionClearsCookieAndMirrorsStatus(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":"Invalid token"}`))
			}))
			defer srv.Close()

			router := newTestGateway(t, srv.URL).Router()
			rec := do(router, http.MethodGet, "/incidents", "", sessionCookie("stale-token"))

			assert.Equal(t, status, rec.Code)
			assert.JSONEq(t,
				`{"error":"Session expired or invalid token. Please log in again."}`,
				rec.Body.String())
			assert.NotNil(t, clearedCookie(t, rec), "stale cookie must be revoked")
		})
	}
}

// =============================================================================
// Incident round trips
// =============================================================================

func TestCreateThenListRoundTrip(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()
	cookie := sessionCookie(testToken)

	created := do(router, http.MethodPost, "/incidents",
		`{"title":"Server down","reporter":"alice","type":"outage"}`, cookie)
	require.Equal(t, http.StatusCreated, created.Code)

	var inc map[string]any
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &inc))
	assert.Equal(t, "Server down", inc["title"])
	assert.NotEmpty(t, inc["id"])

	listed := do(router, http.MethodGet, "/incidents", "", cookie)
	require.Equal(t, http.StatusOK, listed.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(listed.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Server down", list[0]["title"])
	assert.Equal(t, "alice", list[0]["reporter"])
	assert.Equal(t, "outage", list[0]["type"])
}

func TestDeleteMissingIncidentMirrorsUpstream(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()

	rec := do(router, http.MethodDelete, "/incidents/no-such-id", "", sessionCookie(testToken))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Incident not found"}`, rec.Body.String())
}

func TestDeleteMirrorsEmptyNoContent(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()
	cookie := sessionCookie(testToken)

	created := do(router, http.MethodPost, "/incidents", `{"title":"Flaky disk"}`, cookie)
	var inc map[string]any
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &inc))

	rec := do(router, http.MethodDelete, "/incidents/"+inc["id"].(string), "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestUpdateIsIdempotent(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()
	cookie := sessionCookie(testToken)

	created := do(router, http.MethodPost, "/incidents", `{"title":"DB down"}`, cookie)
	var inc map[string]any
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &inc))
	id := inc["id"].(string)

	update := `{"title":"DB down","description":"primary unreachable"}`
	first := do(router, http.MethodPut, "/incidents/"+id, update, cookie)
	require.Equal(t, http.StatusOK, first.Code)
	second := do(router, http.MethodPut, "/incidents/"+id, update, cookie)
	require.Equal(t, http.StatusOK, second.Code)

	got := do(router, http.MethodGet, "/incidents/"+id, "", cookie)
	require.Equal(t, http.StatusOK, got.Code)
	assert.JSONEq(t, first.Body.String(), got.Body.String())
	assert.JSONEq(t, second.Body.String(), got.Body.String())
}

func TestEscalateIncident(t *testing.T) {
	api := newFakeIncidentAPI(t)
	g := newTestGateway(t, api.URL)
	router := g.Router()
	cookie := sessionCookie(testToken)

	created := do(router, http.MethodPost, "/incidents", `{"title":"Paging storm"}`, cookie)
	var inc map[string]any
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &inc))
	id := inc["id"].(string)

	sub := g.Events().Subscribe(4)
	defer g.Events().Unsubscribe(sub)

	rec := do(router, http.MethodPost, "/escalate/"+id, "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "escalated")

	select {
	case evt := <-sub:
		assert.Equal(t, "incident.escalated", evt.Type)
		assert.JSONEq(t, fmt.Sprintf(`{"incident_id":%q}`, id), string(evt.Data))
	case <-time.After(time.Second):
		t.Fatal("no escalation event published")
	}
}

func TestCreateWithoutIDPublishesNothing(t *testing.T) {
	// An upstream that accepts the create but returns no id gives
	// subscribers nothing to fetch, so no event goes out.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"accepted"}`))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv.URL)
	router := g.Router()

	sub := g.Events().Subscribe(4)
	defer g.Events().Unsubscribe(sub)

	rec := do(router, http.MethodPost, "/incidents", `{"title":"Orphan"}`, sessionCookie(testToken))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Publishes happen inside the handler, so anything sent is already
	// buffered by now.
	select {
	case evt := <-sub:
		t.Fatalf("unexpected event published: %s %s", evt.Type, evt.Data)
	default:
	}
}

// =============================================================================
// Payload validation
// =============================================================================

func TestCreateValidation(t *testing.T) {
	guard := tripwire(t)
	router := newTestGateway(t, guard.URL).Router()
	cookie := sessionCookie(testToken)

	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"reporter":"alice"}`},
		{"blank title", `{"title":"   "}`},
		{"unknown field", `{"title":"x","severity":"high"}`},
		{"not json", `not even json`},
		{"wrong type", `{"title":42}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/incidents", tt.body, cookie)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestUpdateValidation(t *testing.T) {
	guard := tripwire(t)
	router := newTestGateway(t, guard.URL).Router()
	cookie := sessionCookie(testToken)

	tests := []struct {
		name string
		body string
	}{
		{"no fields", `{}`},
		{"blank title", `{"title":""}`},
		{"unknown field", `{"assignee":"bob"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPut, "/incidents/inc-1", tt.body, cookie)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// =============================================================================
// Failure translation
// =============================================================================

func TestUpstreamConnectionFailure(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	router := newTestGateway(t, dead.URL).Router()
	cookie := sessionCookie(testToken)

	rec := do(router, http.MethodGet, "/incidents", "", cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Incident service is unreachable."}`, rec.Body.String())

	// The process keeps serving after the fault.
	again := do(router, http.MethodPost, "/logout", "")
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestNonJSONUpstreamSuccessBecomes500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>proxy error page</html>"))
	}))
	defer srv.Close()

	router := newTestGateway(t, srv.URL).Router()
	rec := do(router, http.MethodGet, "/incidents", "", sessionCookie(testToken))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "non-JSON")
	assert.Contains(t, rec.Body.String(), "proxy error page")
}

func TestUpstreamErrorWithoutBodyGetsFallbackMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	router := newTestGateway(t, srv.URL).Router()
	rec := do(router, http.MethodPost, "/incidents", `{"title":"x"}`, sessionCookie(testToken))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to create incident"}`, rec.Body.String())
}

// =============================================================================
// Operational endpoints
// =============================================================================

func TestHealthz(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()

	rec := do(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	// Health must not touch the incident API.
	assert.Zero(t, api.callCount())
}

func TestStatsIsLoopbackOnly(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "203.0.113.9:4711"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "127.0.0.1:4711"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "uptime")
}

// An external peer must not open the gate by claiming a loopback origin in
// forwarded-for style headers; only the socket peer counts.
func TestStatsIgnoresForwardedHeaders(t *testing.T) {
	api := newFakeIncidentAPI(t)
	router := newTestGateway(t, api.URL).Router()

	headers := []string{"X-Real-IP", "X-Forwarded-For", "True-Client-IP"}
	for _, header := range headers {
		t.Run(header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			req.RemoteAddr = "203.0.113.9:4711"
			req.Header.Set(header, "127.0.0.1")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestMetricsCountAuthRejections(t *testing.T) {
	guard := tripwire(t)
	g := newTestGateway(t, guard.URL)
	router := g.Router()

	do(router, http.MethodGet, "/incidents", "")
	do(router, http.MethodGet, "/incidents", "")

	stats := g.Metrics().Stats()
	assert.Equal(t, int64(2), stats["auth_rejections"])
	assert.Equal(t, int64(2), stats["requests"])
	assert.Equal(t, int64(0), stats["successes"])
}
