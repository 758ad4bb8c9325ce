// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - Outcome:      Classifies how a request through the gateway ended
//   - RequestEvent: Audit data for each request
package monitoring

import (
	"context"
	"time"
)

// =============================================================================
// OUTCOME TYPES - Used by translator and audit
// =============================================================================

// Outcome classifies how the gateway resolved a request.
type Outcome string

const (
	// OutcomeOK: upstream answered 2xx and the response was mirrored.
	OutcomeOK Outcome = "ok"
	// OutcomeAuthRequired: rejected at the guard, no upstream call made.
	OutcomeAuthRequired Outcome = "auth_required"
	// OutcomeSessionExpired: upstream said 401/403, the cookie was revoked.
	OutcomeSessionExpired Outcome = "session_expired"
	// OutcomeUpstreamError: upstream answered an error status.
	OutcomeUpstreamError Outcome = "upstream_error"
	// OutcomeBadUpstreamPayload: upstream said 2xx but the body was not JSON.
	OutcomeBadUpstreamPayload Outcome = "bad_upstream_payload"
	// OutcomeUnreachable: the upstream could not be reached at all.
	OutcomeUnreachable Outcome = "unreachable"
	// OutcomeBadRequest: rejected by local payload validation.
	OutcomeBadRequest Outcome = "bad_request"
)

// =============================================================================
// EVENT TYPES - Structured data for audit recording
// =============================================================================

// RequestEvent captures a request through the gateway. It records routing
// metadata only: request and response bodies are never audited, and tokens
// never appear here.
type RequestEvent struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	ClientIP       string    `json:"client_ip"`
	StatusCode     int       `json:"status_code"`
	UpstreamStatus int       `json:"upstream_status,omitempty"`
	Outcome        Outcome   `json:"outcome"`
	DurationMs     int64     `json:"duration_ms"`
}

type eventKey struct{}

// WithEvent attaches a request event to the context so handlers and the
// translator can annotate it as the request progresses.
func WithEvent(ctx context.Context, evt *RequestEvent) context.Context {
	return context.WithValue(ctx, eventKey{}, evt)
}

// EventFrom returns the request event attached to the context, or nil.
func EventFrom(ctx context.Context) *RequestEvent {
	evt, _ := ctx.Value(eventKey{}).(*RequestEvent)
	return evt
}
