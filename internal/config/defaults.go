// Package config - defaults.go centralizes default values and limits.
package config

import "time"

// =============================================================================
// SERVER
// =============================================================================

// DefaultListenAddr is the address the gateway binds when none is configured.
const DefaultListenAddr = ":8080"

// DefaultReadTimeout bounds how long a browser may take to send a request.
const DefaultReadTimeout = 15 * time.Second

// DefaultWriteTimeout bounds response writing, sized so a slow upstream call
// plus translation still fits.
const DefaultWriteTimeout = 30 * time.Second

// DefaultShutdownTimeout is how long graceful shutdown waits for in-flight
// requests before the process exits anyway.
const DefaultShutdownTimeout = 10 * time.Second

// MaxRequestBodySize caps browser request bodies. Incident payloads are small
// JSON documents; anything near this limit is abuse.
const MaxRequestBodySize = 1 * 1024 * 1024

// =============================================================================
// UPSTREAM
// =============================================================================

// DefaultUpstreamTimeout is the per-call deadline for upstream requests.
// The upstream owns no bound of its own, so a hung call would otherwise pin
// the browser request forever.
const DefaultUpstreamTimeout = 10 * time.Second

// =============================================================================
// SESSION
// =============================================================================

// DefaultSessionTTL is the fixed lifetime of the session cookie.
const DefaultSessionTTL = time.Hour

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "incident_session"

// =============================================================================
// EVENTS
// =============================================================================

// DefaultEventBuffer is the per-subscriber event channel capacity.
const DefaultEventBuffer = 64
