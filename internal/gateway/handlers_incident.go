// Incident handlers - the guarded CRUD and escalate operations.
//
// Each handler is one upstream call translated for the browser, plus a
// change notification on successful mutations so other tabs refresh.
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/opsboard/incident-gateway/internal/stream"
)

func (g *Gateway) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	res, err := g.upstream.ListIncidents(r.Context(), tokenFrom(r.Context()))
	g.translateProtected(w, r, res, err, "Failed to fetch incidents")
}

func (g *Gateway) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := g.upstream.GetIncident(r.Context(), tokenFrom(r.Context()), id)
	g.translateProtected(w, r, res, err, "Failed to fetch incident")
}

func (g *Gateway) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	draft, err := decodeDraft(body)
	if err == nil {
		err = draft.validateCreate()
	}
	if err != nil {
		rejectDraft(w, r, err)
		return
	}

	res, uerr := g.upstream.CreateIncident(r.Context(), tokenFrom(r.Context()), body)
	if g.translateProtected(w, r, res, uerr, "Failed to create incident") {
		// Only create derives the id from the response body; an upstream
		// that omits it gets no notification rather than an empty id.
		if id := gjson.GetBytes(res.Body, "id").String(); id != "" {
			g.events.Publish(stream.IncidentEvent(stream.EventIncidentCreated, id))
		}
	}
}

func (g *Gateway) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	draft, err := decodeDraft(body)
	if err == nil {
		err = draft.validateUpdate()
	}
	if err != nil {
		rejectDraft(w, r, err)
		return
	}

	res, uerr := g.upstream.UpdateIncident(r.Context(), tokenFrom(r.Context()), id, body)
	if g.translateProtected(w, r, res, uerr, "Failed to update incident") {
		g.events.Publish(stream.IncidentEvent(stream.EventIncidentUpdated, id))
	}
}

func (g *Gateway) handleDeleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := g.upstream.DeleteIncident(r.Context(), tokenFrom(r.Context()), id)
	if g.translateProtected(w, r, res, err, "Failed to delete incident") {
		g.events.Publish(stream.IncidentEvent(stream.EventIncidentDeleted, id))
	}
}

func (g *Gateway) handleEscalateIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := g.upstream.EscalateIncident(r.Context(), tokenFrom(r.Context()), id)
	if g.translateProtected(w, r, res, err, "Failed to escalate incident") {
		g.events.Publish(stream.IncidentEvent(stream.EventIncidentEscalated, id))
	}
}
