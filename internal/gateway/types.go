// Incident payload schema - the one place the gateway inspects a request
// body instead of passing it through.
//
// DESIGN: Upstream shape is not trusted implicitly: the draft is validated
// at the boundary, then the browser's original bytes are forwarded, so
// field ordering and formatting survive the trip.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opsboard/incident-gateway/internal/config"
	"github.com/opsboard/incident-gateway/internal/httpx"
	"github.com/opsboard/incident-gateway/internal/monitoring"
)

// IncidentDraft is the browser-supplied incident payload. Pointer fields
// distinguish "absent" from "empty", which matters for partial updates.
type IncidentDraft struct {
	Title       *string `json:"title"`
	Reporter    *string `json:"reporter"`
	Type        *string `json:"type"`
	Description *string `json:"description"`
	ResourceID  *string `json:"resource_id"`
}

// decodeDraft parses a draft strictly: unknown fields are rejected rather
// than silently forwarded upstream.
func decodeDraft(body []byte) (*IncidentDraft, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var draft IncidentDraft
	if err := dec.Decode(&draft); err != nil {
		return nil, fmt.Errorf("invalid incident payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid incident payload: trailing data")
	}
	return &draft, nil
}

// validateCreate checks the draft can become a new incident.
func (d *IncidentDraft) validateCreate() error {
	if d.Title == nil || strings.TrimSpace(*d.Title) == "" {
		return fmt.Errorf("incident title is required")
	}
	return nil
}

// validateUpdate checks the draft changes at least something.
func (d *IncidentDraft) validateUpdate() error {
	if d.Title != nil && strings.TrimSpace(*d.Title) == "" {
		return fmt.Errorf("incident title must not be empty")
	}
	if d.Title == nil && d.Reporter == nil && d.Type == nil && d.Description == nil && d.ResourceID == nil {
		return fmt.Errorf("no updatable fields provided")
	}
	return nil
}

// readBody buffers a capped request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		annotate(r, 0, monitoring.OutcomeBadRequest)
		httpx.Error(w, http.StatusBadRequest, "Failed to read request body.")
		return nil, false
	}
	return body, true
}

// rejectDraft reports a local validation failure. Nothing was sent upstream.
func rejectDraft(w http.ResponseWriter, r *http.Request, err error) {
	annotate(r, 0, monitoring.OutcomeBadRequest)
	httpx.Error(w, http.StatusBadRequest, upperFirst(err.Error())+".")
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
