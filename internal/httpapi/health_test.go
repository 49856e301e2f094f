package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pyrohost/pyro-node-agent/internal/dockerengine"
	"github.com/pyrohost/pyro-node-agent/internal/eggs"
	"github.com/pyrohost/pyro-node-agent/internal/lifecycle"
)

func TestHealthHandler_ReportsCountsAndOKStatus(t *testing.T) {
	registry, err := eggs.Open(filepath.Join(t.TempDir(), "eggs"), discardLogger())
	if err != nil {
		t.Fatalf("eggs.Open() error: %v", err)
	}

	manager := lifecycle.New(nil, dockerengine.NewSupervisor(), nil, nil, nil, nil, nil, "", "", discardLogger())

	h := &healthHandler{eggs: registry, lifecycle: manager, startedAt: time.Now()}

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status field = %q, want %q", body.Status, "ok")
	}
	if body.Counts.Containers != 0 {
		t.Errorf("containers count = %d, want 0 (no supervised containers)", body.Counts.Containers)
	}
	if body.Counts.Eggs == 0 {
		t.Error("eggs count = 0, want the seeded defaults")
	}
}
