package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pyrohost/pyro-node-agent/internal/eggs"
)

type eggsHandler struct {
	eggs   *eggs.Registry
	logger *slog.Logger
}

// List handles GET /api/eggs.
func (h *eggsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eggs.List())
}

// Get handles GET /api/eggs/{eggId}.
func (h *eggsHandler) Get(w http.ResponseWriter, r *http.Request) {
	egg, err := h.eggs.Get(chi.URLParam(r, "eggId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, egg)
}

// Put handles PUT /api/eggs/{eggId}: create-or-update, per §4.2.
func (h *eggsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var egg eggs.Egg
	if err := decodeJSON(r, &egg); err != nil {
		writeError(w, h.logger, err)
		return
	}
	egg.ID = chi.URLParam(r, "eggId")

	if err := h.eggs.Put(&egg); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, egg)
}

// Delete handles DELETE /api/eggs/{eggId}.
func (h *eggsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.eggs.Delete(chi.URLParam(r, "eggId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
