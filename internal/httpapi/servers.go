package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
	"github.com/pyrohost/pyro-node-agent/internal/instance"
	"github.com/pyrohost/pyro-node-agent/internal/lifecycle"
)

type serversHandler struct {
	lifecycle *lifecycle.Manager
	configs   *instance.Store
	logger    *slog.Logger
}

type configureRequest struct {
	EggID     string            `json:"eggId"`
	Port      int               `json:"port"`
	Plan      instance.Plan     `json:"plan"`
	Location  string            `json:"location"`
	Name      string            `json:"name"`
	Game      string            `json:"game"`
	Variables map[string]string `json:"variables"`
}

// Configure handles POST /api/servers/{serverId}/configure.
func (h *serversHandler) Configure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")

	var req configureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	cfg, err := h.lifecycle.Configure(r.Context(), id, req.EggID, req.Port, req.Plan, req.Location, req.Name, req.Game, req.Variables)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *serversHandler) Install(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	if err := h.lifecycle.Install(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *serversHandler) Reinstall(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	if err := h.lifecycle.Reinstall(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *serversHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	if err := h.lifecycle.Start(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *serversHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	if err := h.lifecycle.Stop(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *serversHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	if err := h.lifecycle.Restart(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *serversHandler) Kill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	if err := h.lifecycle.Kill(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *serversHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	if err := h.lifecycle.Delete(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commandRequest struct {
	Command string `json:"command"`
}

func (h *serversHandler) SendCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")

	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Command == "" {
		writeError(w, h.logger, apperr.NewBadRequest("command must not be empty", nil))
		return
	}

	if err := h.lifecycle.SendCommand(r.Context(), id, req.Command); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *serversHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")
	stats, err := h.lifecycle.GetStats(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *serversHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")

	lines := 0
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			lines = parsed
		}
	}

	records, err := h.lifecycle.GetLogs(id, lines)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
