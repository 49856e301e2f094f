package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pyrohost/pyro-node-agent/internal/fileservice"
)

func newTestFilesHandler(t *testing.T) (*filesHandler, string) {
	t.Helper()
	serversDir := t.TempDir()
	instanceDir := filepath.Join(serversDir, "srv-1")
	if err := os.MkdirAll(instanceDir, 0755); err != nil {
		t.Fatal(err)
	}
	return &filesHandler{files: fileservice.New(serversDir), logger: discardLogger()}, instanceDir
}

func requestForServer(method, target, body string) (*http.Request, *chi.Context) {
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("serverId", "srv-1")
	return req, rctx
}

func TestFilesHandler_WriteThenRead(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	writeReq, rctx := requestForServer("PUT", "/api/servers/srv-1/files/content?path=hello.txt", "hello world")
	writeReq = withChiContext(writeReq, rctx)
	writeRec := httptest.NewRecorder()
	h.Write(writeRec, writeReq)
	if writeRec.Code != 204 {
		t.Fatalf("Write() status = %d, want 204, body=%s", writeRec.Code, writeRec.Body.String())
	}

	readReq, rctx2 := requestForServer("GET", "/api/servers/srv-1/files/content?path=hello.txt", "")
	readReq = withChiContext(readReq, rctx2)
	readRec := httptest.NewRecorder()
	h.Read(readRec, readReq)
	if readRec.Code != 200 {
		t.Fatalf("Read() status = %d, want 200", readRec.Code)
	}
	if readRec.Body.String() != "hello world" {
		t.Errorf("Read() body = %q, want %q", readRec.Body.String(), "hello world")
	}
}

func TestFilesHandler_Write_MissingPathIsBadRequest(t *testing.T) {
	h, _ := newTestFilesHandler(t)

	req, rctx := requestForServer("PUT", "/api/servers/srv-1/files/content", "data")
	req = withChiContext(req, rctx)
	rec := httptest.NewRecorder()
	h.Write(rec, req)

	if rec.Code != 400 {
		t.Errorf("Write() without a path query parameter, status = %d, want 400", rec.Code)
	}
}

func TestFilesHandler_List(t *testing.T) {
	h, instanceDir := newTestFilesHandler(t)
	os.WriteFile(filepath.Join(instanceDir, "a.txt"), []byte("x"), 0644)

	req, rctx := requestForServer("GET", "/api/servers/srv-1/files?path=", "")
	req = withChiContext(req, rctx)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != 200 {
		t.Fatalf("List() status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var entries []fileservice.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Name == "a.txt" {
			found = true
		}
	}
	if !found {
		t.Error("List() did not include the written file")
	}
}

func TestFilesHandler_Delete(t *testing.T) {
	h, instanceDir := newTestFilesHandler(t)
	os.WriteFile(filepath.Join(instanceDir, "a.txt"), []byte("x"), 0644)

	req, rctx := requestForServer("DELETE", "/api/servers/srv-1/files/content?path=a.txt", "")
	req = withChiContext(req, rctx)
	rec := httptest.NewRecorder()
	h.Delete(rec, req)
	if rec.Code != 204 {
		t.Errorf("Delete() status = %d, want 204", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(instanceDir, "a.txt")); !os.IsNotExist(err) {
		t.Error("file should have been deleted")
	}
}

func TestFilesHandler_CopyAndRename(t *testing.T) {
	h, instanceDir := newTestFilesHandler(t)
	os.WriteFile(filepath.Join(instanceDir, "a.txt"), []byte("content"), 0644)

	copyBody, _ := json.Marshal(pathPairRequest{Source: "a.txt", Destination: "b.txt"})
	copyReq, rctx := requestForServer("POST", "/api/servers/srv-1/files/copy", string(copyBody))
	copyReq = withChiContext(copyReq, rctx)
	copyRec := httptest.NewRecorder()
	h.Copy(copyRec, copyReq)
	if copyRec.Code != 204 {
		t.Fatalf("Copy() status = %d, want 204, body=%s", copyRec.Code, copyRec.Body.String())
	}

	renameBody, _ := json.Marshal(pathPairRequest{Source: "b.txt", Destination: "c.txt"})
	renameReq, rctx2 := requestForServer("POST", "/api/servers/srv-1/files/rename", string(renameBody))
	renameReq = withChiContext(renameReq, rctx2)
	renameRec := httptest.NewRecorder()
	h.Rename(renameRec, renameReq)
	if renameRec.Code != 204 {
		t.Fatalf("Rename() status = %d, want 204, body=%s", renameRec.Code, renameRec.Body.String())
	}

	if _, err := os.Stat(filepath.Join(instanceDir, "c.txt")); err != nil {
		t.Error("renamed file should exist")
	}
	if _, err := os.Stat(filepath.Join(instanceDir, "a.txt")); err != nil {
		t.Error("original file should still exist after copy")
	}
}
