package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, 201, map[string]string{"id": "abc"})

	if rec.Code != 201 {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if body["id"] != "abc" {
		t.Errorf("body[id] = %q, want %q", body["id"], "abc")
	}
}

func TestWriteError_MapsApperrKindToStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, discardLogger(), apperr.NewNotFound("server not found", nil))

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "server not found" {
		t.Errorf("body[error] = %q, want %q", body["error"], "server not found")
	}
}

func TestWriteError_PlainErrorMapsToInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, discardLogger(), errors.New("boom"))

	if rec.Code != 500 {
		t.Errorf("status = %d, want 500 for an unwrapped error", rec.Code)
	}
}

func TestDecodeJSON_Valid(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"foo"}`))
	var v struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(req, &v); err != nil {
		t.Fatalf("decodeJSON() error: %v", err)
	}
	if v.Name != "foo" {
		t.Errorf("v.Name = %q, want %q", v.Name, "foo")
	}
}

func TestDecodeJSON_InvalidBodyReturnsBadRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/", bytes.NewReader([]byte("not json")))
	var v map[string]any
	err := decodeJSON(req, &v)
	if err == nil {
		t.Fatal("decodeJSON() with malformed body should return an error")
	}
	if apperr.KindOf(err) != apperr.BadRequest {
		t.Errorf("decodeJSON() error kind = %v, want %v", apperr.KindOf(err), apperr.BadRequest)
	}
}
