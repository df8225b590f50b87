package members

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	plog "github.com/pingcap/log"
	"go.uber.org/zap"
)

const maxRequestBytes = 1 << 20

type memberRequest struct {
	ID     *string `json:"id"`
	Name   *string `json:"name"`
	Gender *string `json:"gender"`
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the /members routes on top of a Store.
type Handler struct {
	store Store
	mux   *http.ServeMux
}

func NewHandler(store Store) *Handler {
	h := &Handler{store: store, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /members", h.list)
	h.mux.HandleFunc("POST /members", h.create)
	h.mux.HandleFunc("GET /members/{id}", h.get)
	h.mux.HandleFunc("PUT /members/{id}", h.update)
	h.mux.HandleFunc("DELETE /members/{id}", h.delete)
	h.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.List(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if ValidateID(id) != nil {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	m, err := h.store.Get(r.Context(), id)
	switch {
	case IsNotFound(err):
		writeError(w, http.StatusNotFound, "Member not found")
	case err != nil:
		h.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, m)
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMember(w, r)
	if !ok {
		return
	}
	if req.Name == nil || req.Gender == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: name, gender")
		return
	}
	m := Member{Name: *req.Name, Gender: *req.Gender}
	if req.ID != nil {
		m.ID = *req.ID
	} else {
		m.ID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.store.Create(r.Context(), m)
	switch {
	case IsExists(err):
		writeError(w, http.StatusConflict, "Member already exists")
	case err != nil:
		h.internalError(w, r, err)
	default:
		w.Header().Set("Location", "/members/"+m.ID)
		writeJSON(w, http.StatusCreated, messageResponse{Message: "Member created successfully", ID: m.ID})
	}
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if ValidateID(id) != nil {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	req, ok := decodeMember(w, r)
	if !ok {
		return
	}
	if req.Name == nil || req.Gender == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: name, gender")
		return
	}
	if req.ID != nil && *req.ID != id {
		writeError(w, http.StatusBadRequest, "ID in body does not match path")
		return
	}
	m := Member{ID: id, Name: *req.Name, Gender: *req.Gender}
	if err := m.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.store.Update(r.Context(), m)
	switch {
	case IsNotFound(err):
		writeError(w, http.StatusNotFound, "Member not found")
	case err != nil:
		h.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, messageResponse{Message: "Member updated successfully", ID: id})
	}
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if ValidateID(id) != nil {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	err := h.store.Delete(r.Context(), id)
	switch {
	case IsNotFound(err):
		writeError(w, http.StatusNotFound, "Member not found")
	case err != nil:
		h.internalError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, messageResponse{Message: "Member deleted successfully", ID: id})
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	plog.Error("members request failed",
		zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// decodeMember writes a 400 and returns false when the body is not a JSON object.
func decodeMember(w http.ResponseWriter, r *http.Request) (memberRequest, bool) {
	var req memberRequest
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return req, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		plog.Warn("write response failed", zap.Error(errors.Trace(err)))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
