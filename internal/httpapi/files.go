package httpapi

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
	"github.com/pyrohost/pyro-node-agent/internal/fileservice"
)

type filesHandler struct {
	files  *fileservice.Service
	logger *slog.Logger
}

// List handles GET /api/servers/{serverId}/files?path=.
func (h *filesHandler) List(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	entries, err := h.files.List(id, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Read handles GET /api/servers/{serverId}/files/content?path=.
func (h *filesHandler) Read(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	content, err := h.files.Read(id, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(content) //nolint:errcheck // client disconnect, nothing to recover
}

// Write handles PUT /api/servers/{serverId}/files/content?path=, replacing
// the file wholesale with the request body.
func (h *filesHandler) Write(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, h.logger, apperr.NewBadRequest("path query parameter is required", nil))
		return
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, h.logger, apperr.NewBadRequest("failed to read request body", err))
		return
	}

	if err := h.files.Write(id, path, content); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Update handles PATCH /api/servers/{serverId}/files/content?path=,
// replacing the file's content but first backing up the existing one.
func (h *filesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, h.logger, apperr.NewBadRequest("path query parameter is required", nil))
		return
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, h.logger, apperr.NewBadRequest("failed to read request body", err))
		return
	}

	if err := h.files.Update(id, path, content); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/servers/{serverId}/files/content?path=.
func (h *filesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	if err := h.files.Delete(id, r.URL.Query().Get("path")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pathPairRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Copy handles POST /api/servers/{serverId}/files/copy.
func (h *filesHandler) Copy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")

	var req pathPairRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.files.Copy(id, req.Source, req.Destination); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rename handles POST /api/servers/{serverId}/files/rename.
func (h *filesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")

	var req pathPairRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.files.Rename(id, req.Source, req.Destination); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
