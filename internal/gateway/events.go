// Websocket change feed - GET /events.
//
// Subscribed SPA tabs learn that an incident changed and re-fetch through
// the guarded REST routes. The socket itself sits behind the session guard,
// and events never carry incident bodies, so it adds no second data path
// around the cookie.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/opsboard/incident-gateway/internal/config"
	"github.com/opsboard/incident-gateway/internal/stream"
)

const eventWriteTimeout = 5 * time.Second

func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if patterns := wsOriginPatterns(g.cfg.CORS.AllowedOrigins); len(patterns) > 0 {
		opts.OriginPatterns = patterns
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := g.events.Subscribe(config.DefaultEventBuffer)
	defer g.events.Unsubscribe(sub)

	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", nil))

	// Drain client frames so pings are answered and closure is noticed.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// wsOriginPatterns reduces configured CORS origins to the host patterns the
// websocket handshake matches against.
func wsOriginPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		if origin != "" {
			out = append(out, origin)
		}
	}
	return out
}
