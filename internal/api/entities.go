package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/tracky/internal/imaging"
	"github.com/erazemk/tracky/internal/model"
	"github.com/erazemk/tracky/internal/workflow"
)

// EntitiesHandler serves one entity kind.
type EntitiesHandler struct {
	Service        *workflow.Service
	Kind           model.Kind
	MaxUploadBytes int64
}

type createRequest struct {
	ID string `json:"id"`
	model.Changes
}

// etag renders a revision as a strong entity tag.
func etag(rev int64) string {
	return `"` + strconv.FormatInt(rev, 10) + `"`
}

// ifMatch parses the If-Match header into a revision. A missing header is 0.
func ifMatch(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	if v == "" {
		return 0, nil
	}
	v = strings.TrimPrefix(v, "W/")
	rev, err := strconv.ParseInt(strings.Trim(v, `"`), 10, 64)
	if err != nil || rev <= 0 {
		return 0, fmt.Errorf("%w: malformed If-Match %q", model.ErrInvalidArgument, r.Header.Get("If-Match"))
	}
	return rev, nil
}

func (h *EntitiesHandler) respond(w http.ResponseWriter, status int, e *model.Entity) {
	w.Header().Set("ETag", etag(e.Revision))
	jsonResponse(w, status, e)
}

func actor(r *http.Request) model.Actor {
	return GetClaims(r.Context()).Actor()
}

// readBody returns the JSON document and optional image of a write. JSON
// bodies carry the document directly; multipart bodies carry it in the
// "data" field next to an "image" file.
func (h *EntitiesHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, *imaging.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	defer r.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: reading body: %w", model.ErrInvalidArgument, err)
		}
		return data, nil, nil
	}

	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("%w: file too large or invalid multipart form", model.ErrInvalidArgument)
	}
	data := []byte(r.FormValue("data"))

	file, _, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return data, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading image: %w", model.ErrInvalidArgument, err)
	}
	defer file.Close()

	img, err := imaging.Process(file)
	if err != nil {
		return nil, nil, err
	}
	return data, img, nil
}

func decodeStrict(data []byte, target any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}
	return nil
}

// List handles GET /api/{kind}s.
func (h *EntitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.Filter{
		State:     model.ApprovalState(q.Get("state")),
		TrackerID: q.Get("tracker_id"),
		CreatedBy: q.Get("created_by"),
	}
	if v := q.Get("approved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "approved must be true or false")
			return
		}
		filter.Approved = &b
	}
	if filter.State != "" && !filter.State.Valid() {
		jsonError(w, http.StatusBadRequest, "unknown state")
		return
	}

	entities, err := h.Service.List(r.Context(), actor(r), h.Kind, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, entities)
}

// Create handles POST /api/{kind}s.
func (h *EntitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	data, img, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createRequest
	if err := decodeStrict(data, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := h.Service.Create(r.Context(), actor(r), h.Kind, workflow.CreateInput{
		ID:      req.ID,
		Changes: req.Changes,
		Image:   img,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, e)
}

// Get handles GET /api/{kind}s/{id}.
func (h *EntitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.Get(r.Context(), actor(r), h.Kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, e)
}

// Update handles PATCH /api/{kind}s/{id}.
func (h *EntitiesHandler) Update(w http.ResponseWriter, r *http.Request) {
	rev, err := ifMatch(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, img, err := h.readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var changes model.Changes
	if err := decodeStrict(data, &changes); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := h.Service.Update(r.Context(), actor(r), h.Kind, r.PathValue("id"), rev, workflow.UpdateInput{
		Changes: changes,
		Image:   img,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, e)
}

// Delete handles DELETE /api/{kind}s/{id}.
func (h *EntitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), actor(r), h.Kind, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestEdit handles POST /api/{kind}s/{id}/request-edit.
func (h *EntitiesHandler) RequestEdit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	changes, err := model.DecodeChanges(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := h.Service.RequestEdit(r.Context(), actor(r), h.Kind, r.PathValue("id"), *changes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, e)
}

// ApproveEdit handles POST /api/{kind}s/{id}/approve-edit.
func (h *EntitiesHandler) ApproveEdit(w http.ResponseWriter, r *http.Request) {
	rev, err := ifMatch(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.Service.ApproveEdit(r.Context(), actor(r), h.Kind, r.PathValue("id"), rev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, e)
}

// Approve handles POST /api/{kind}s/{id}/approve.
func (h *EntitiesHandler) Approve(w http.ResponseWriter, r *http.Request) {
	rev, err := ifMatch(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.Service.Approve(r.Context(), actor(r), h.Kind, r.PathValue("id"), rev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, e)
}
