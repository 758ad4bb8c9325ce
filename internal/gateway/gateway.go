// Package gateway is the HTTP surface between the incident SPA and the
// upstream incident-management API.
//
// DESIGN: The browser never holds the upstream bearer token. The gateway
// exchanges credentials for a token on login, seals it in an HttpOnly
// cookie, and re-attaches it as a Bearer header on every proxied call:
//
//	browser ── cookie ──> gateway ── Authorization: Bearer ──> upstream
//
// FILES:
//   - gateway.go:           Gateway struct, router, lifecycle
//   - middleware.go:        Request IDs, audit recording, session guard
//   - translate.go:         Upstream response -> browser response rules
//   - handlers_auth.go:     login / register / logout
//   - handlers_incident.go: Incident CRUD and escalate
//   - events.go:            Websocket change feed
//   - stats.go:             Health and operational metrics
package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/opsboard/incident-gateway/internal/config"
	"github.com/opsboard/incident-gateway/internal/httpx"
	"github.com/opsboard/incident-gateway/internal/monitoring"
	"github.com/opsboard/incident-gateway/internal/session"
	"github.com/opsboard/incident-gateway/internal/stream"
	"github.com/opsboard/incident-gateway/internal/upstream"
)

// Gateway wires the session codec, upstream client, and monitoring together
// behind one router. All fields are set at construction and read-only
// afterwards, so one Gateway safely serves concurrent requests.
type Gateway struct {
	cfg      *config.Config
	upstream *upstream.Client
	sessions *session.Codec
	metrics  *monitoring.Collector
	audit    *monitoring.AuditStore
	events   *stream.Hub

	server *http.Server
}

// New builds a Gateway from its collaborators. audit may be nil (disabled).
func New(cfg *config.Config, client *upstream.Client, audit *monitoring.AuditStore) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		upstream: client,
		sessions: session.NewCodec(cfg.Session.CookieName, cfg.Session.TTL.Std(), cfg.IsProduction()),
		metrics:  monitoring.NewCollector(),
		audit:    audit,
		events:   stream.NewHub(),
	}

	g.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      g.Router(),
		ReadTimeout:  config.DefaultReadTimeout,
		WriteTimeout: config.DefaultWriteTimeout,
	}

	return g
}

// Router assembles the route table. Every browser-facing operation binds
// 1:1 to an upstream operation; the session guard wraps exactly the
// operations that need a token, and nothing else.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()

	// RemoteAddr stays the socket peer. Forwarded-for style headers are
	// client-controllable and must not reach the loopback gate on /stats
	// or the audit trail's client_ip column.
	r.Use(middleware.Recoverer)
	r.Use(g.requestAudit)
	r.Use(httpx.SecurityHeaders)
	r.Use(httpx.CORS(g.cfg.CORS.AllowedOrigins))

	// Public: authentication entry points.
	r.Post("/login", g.handleLogin)
	r.Post("/register", g.handleRegister)
	r.Post("/logout", g.handleLogout)

	// Public: operational endpoints.
	r.Get("/healthz", g.handleHealth)
	r.Get("/stats", g.handleStats)

	// Protected: everything that reaches upstream incident data.
	r.Group(func(r chi.Router) {
		r.Use(g.requireSession)

		r.Get("/incidents", g.handleListIncidents)
		r.Post("/incidents", g.handleCreateIncident)
		r.Get("/incidents/{id}", g.handleGetIncident)
		r.Put("/incidents/{id}", g.handleUpdateIncident)
		r.Delete("/incidents/{id}", g.handleDeleteIncident)
		r.Post("/escalate/{id}", g.handleEscalateIncident)

		if g.cfg.Events.Enabled {
			r.Get("/events", g.handleEvents)
		}
	})

	return r
}

// Start runs the HTTP server. It blocks until Shutdown or a listener error.
func (g *Gateway) Start() error {
	log.Info().
		Str("addr", g.cfg.ListenAddr).
		Str("upstream", g.cfg.Upstream.BaseURL).
		Bool("events", g.cfg.Events.Enabled).
		Msg("gateway listening")

	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	log.Info().Msg("gateway shutting down")
	return g.server.Shutdown(ctx)
}

// Metrics exposes the collector, mainly for tests.
func (g *Gateway) Metrics() *monitoring.Collector { return g.metrics }

// Events exposes the change-notification hub.
func (g *Gateway) Events() *stream.Hub { return g.events }
