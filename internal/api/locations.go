package api

import (
	"net/http"
	"time"

	"github.com/erazemk/tracky/internal/live"
	"github.com/erazemk/tracky/internal/model"
	"github.com/erazemk/tracky/internal/workflow"
)

// LocationsHandler serves the tracker location ledger.
type LocationsHandler struct {
	Service *workflow.Service
	Hub     *live.Hub
}

// Append handles POST /api/trackers/{id}/locations.
func (h *LocationsHandler) Append(w http.ResponseWriter, r *http.Request) {
	var in workflow.LocationInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.Service.AppendLocation(r.Context(), actor(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, p)
}

func parseBound(r *http.Request, name string) (time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// History handles GET /api/trackers/{id}/locations?from=&to=.
func (h *LocationsHandler) History(w http.ResponseWriter, r *http.Request) {
	from, ok := parseBound(r, "from")
	if !ok {
		jsonError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
		return
	}
	to, ok := parseBound(r, "to")
	if !ok {
		jsonError(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
		return
	}

	points, err := h.Service.LocationHistory(r.Context(), actor(r), r.PathValue("id"), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, points)
}

// Live handles GET /api/trackers/{id}/locations/live, a websocket stream of
// newly appended points.
func (h *LocationsHandler) Live(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Service.Get(r.Context(), actor(r), model.KindTracker, id); err != nil {
		writeError(w, r, err)
		return
	}
	h.Hub.Serve(w, r, id)
}
