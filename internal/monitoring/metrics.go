// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:  Total and successful request counts
//   - auth_rejections:     Requests stopped at the session guard
//   - sessions:            Cookies issued on login, revoked on logout/expiry
//   - upstream:            Error responses and connection failures
//
// For production, export these to Prometheus or similar.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector collects operational metrics.
type Collector struct {
	startedAt time.Time

	// Request counters
	requests       atomic.Int64
	successes      atomic.Int64
	authRejections atomic.Int64

	// Session counters
	sessionsIssued  atomic.Int64
	sessionsRevoked atomic.Int64

	// Upstream counters
	upstreamErrors      atomic.Int64
	upstreamUnreachable atomic.Int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{startedAt: time.Now()}
}

// RecordRequest records a completed request.
func (c *Collector) RecordRequest(success bool) {
	c.requests.Add(1)
	if success {
		c.successes.Add(1)
	}
}

// RecordAuthRejection records a request stopped at the session guard.
func (c *Collector) RecordAuthRejection() { c.authRejections.Add(1) }

// RecordSessionIssued records a session cookie set after login.
func (c *Collector) RecordSessionIssued() { c.sessionsIssued.Add(1) }

// RecordSessionRevoked records a session cookie cleared, whether by logout
// or by an upstream token rejection.
func (c *Collector) RecordSessionRevoked() { c.sessionsRevoked.Add(1) }

// RecordUpstreamError records an upstream error response.
func (c *Collector) RecordUpstreamError() { c.upstreamErrors.Add(1) }

// RecordUpstreamUnreachable records a failed upstream connection.
func (c *Collector) RecordUpstreamUnreachable() { c.upstreamUnreachable.Add(1) }

// StartedAt returns when the metrics collector was created.
func (c *Collector) StartedAt() time.Time { return c.startedAt }

// Stats returns current metrics as a flat map.
func (c *Collector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":             c.requests.Load(),
		"successes":            c.successes.Load(),
		"auth_rejections":      c.authRejections.Load(),
		"sessions_issued":      c.sessionsIssued.Load(),
		"sessions_revoked":     c.sessionsRevoked.Load(),
		"upstream_errors":      c.upstreamErrors.Load(),
		"upstream_unreachable": c.upstreamUnreachable.Load(),
	}
}

// FullStats returns all metrics in a structured format for the /stats endpoint.
func (c *Collector) FullStats() StatsResponse {
	uptime := time.Since(c.startedAt)
	requests := c.requests.Load()
	successes := c.successes.Load()

	return StatsResponse{
		Uptime:        formatDuration(uptime),
		UptimeSeconds: int64(uptime.Seconds()),
		StartedAt:     c.startedAt.Format(time.RFC3339),
		Requests: RequestStats{
			Total:          requests,
			Successful:     successes,
			Failed:         requests - successes,
			AuthRejections: c.authRejections.Load(),
		},
		Sessions: SessionStats{
			Issued:  c.sessionsIssued.Load(),
			Revoked: c.sessionsRevoked.Load(),
		},
		Upstream: UpstreamStats{
			Errors:      c.upstreamErrors.Load(),
			Unreachable: c.upstreamUnreachable.Load(),
		},
	}
}

// StatsResponse is the structured response for the /stats endpoint.
type StatsResponse struct {
	Uptime        string        `json:"uptime"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartedAt     string        `json:"started_at"`
	Requests      RequestStats  `json:"requests"`
	Sessions      SessionStats  `json:"sessions"`
	Upstream      UpstreamStats `json:"upstream"`
}

// RequestStats holds request count metrics.
type RequestStats struct {
	Total          int64 `json:"total"`
	Successful     int64 `json:"successful"`
	Failed         int64 `json:"failed"`
	AuthRejections int64 `json:"auth_rejections"`
}

// SessionStats holds session cookie metrics.
type SessionStats struct {
	Issued  int64 `json:"issued"`
	Revoked int64 `json:"revoked"`
}

// UpstreamStats holds upstream health metrics.
type UpstreamStats struct {
	Errors      int64 `json:"errors"`
	Unreachable int64 `json:"unreachable"`
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
