package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsboard/incident-gateway/internal/config"
	"github.com/opsboard/incident-gateway/internal/monitoring"
	"github.com/opsboard/incident-gateway/internal/stream"
	"github.com/opsboard/incident-gateway/internal/upstream"
)

func wsTarget(srvURL string) string {
	return "ws" + strings.TrimPrefix(srvURL, "http") + "/events"
}

func TestEventsStreamDeliversIncidentChanges(t *testing.T) {
	api := newFakeIncidentAPI(t)
	g := newTestGateway(t, api.URL)
	srv := httptest.NewServer(g.Router())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Cookie", "incident_session="+testToken)
	conn, _, err := websocket.Dial(ctx, wsTarget(srv.URL), &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// The greeting arrives once the subscription is live, so anything
	// created after it must show up on the socket.
	var greeting stream.Event
	require.NoError(t, wsjson.Read(ctx, conn, &greeting))
	assert.Equal(t, "ready", greeting.Type)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/incidents",
		strings.NewReader(`{"title":"Cache stampede"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sessionCookie(testToken))
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var evt stream.Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, stream.EventIncidentCreated, evt.Type)
	assert.Contains(t, string(evt.Data), "incident_id")
	assert.NotEmpty(t, evt.At)
}

// A completed upgrade writes its 101 on the hijacked connection, past the
// wrapped response writer. The audit row must still say 101, not the 200
// fallback for handlers that never set a status.
func TestEventsAuditRecordsUpgradeStatus(t *testing.T) {
	api := newFakeIncidentAPI(t)

	store, err := monitoring.OpenAudit(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.Upstream.BaseURL = api.URL
	cfg.Upstream.Timeout = config.Duration(2 * time.Second)
	require.NoError(t, cfg.Validate())
	client := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout.Std())
	g := New(cfg, client, store)

	srv := httptest.NewServer(g.Router())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Cookie", "incident_session="+testToken)
	conn, _, err := websocket.Dial(ctx, wsTarget(srv.URL), &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)

	var greeting stream.Event
	require.NoError(t, wsjson.Read(ctx, conn, &greeting))
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))

	// The row lands once the handler unwinds on the server side.
	require.Eventually(t, func() bool {
		events, err := store.Recent(context.Background(), 10)
		if err != nil {
			return false
		}
		for _, evt := range events {
			if evt.Path == "/events" {
				return evt.StatusCode == http.StatusSwitchingProtocols
			}
		}
		return false
	}, 3*time.Second, 25*time.Millisecond, "no /events audit row with status 101")
}

func TestEventsRejectsAnonymousDial(t *testing.T) {
	api := newFakeIncidentAPI(t)
	srv := httptest.NewServer(newTestGateway(t, api.URL).Router())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsTarget(srv.URL), nil)
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "unexpected")
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWSOriginPatterns(t *testing.T) {
	assert.Empty(t, wsOriginPatterns(nil))
	assert.Equal(t,
		[]string{"app.example.com", "localhost:3000"},
		wsOriginPatterns([]string{"https://app.example.com", "http://localhost:3000"}))
	// Values that are not URLs pass through as literal patterns.
	assert.Equal(t, []string{"*.example.com"}, wsOriginPatterns([]string{"*.example.com"}))
}
