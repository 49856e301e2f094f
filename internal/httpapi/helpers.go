package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
)

// writeJSON serializes payload to JSON and writes it with the given
// status code, centralizing the Content-Type/WriteHeader/Write sequence
// every handler would otherwise repeat - the same role the teacher's
// writeJsonAndRespond plays.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	w.Write(body) //nolint:errcheck // a write failure here means the client already disconnected
}

// writeError translates err into the apperr-mapped status code and a
// user-safe JSON body, logging the underlying error server-side first.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	message := apperr.MessageOf(err)

	logger.Error("request error", "kind", kind, "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads and unmarshals the request body into v, returning a
// BadRequest apperr on any failure.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.NewBadRequest("invalid request body", err)
	}
	return nil
}
