package eggs

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_SeedsDefaultsWhenEmpty(t *testing.T) {
	dir := t.TempDir()

	registry, err := Open(dir, discardLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	eggList := registry.List()
	if len(eggList) == 0 {
		t.Fatal("Open() on an empty directory should seed the built-in defaults")
	}

	if _, err := registry.Get("terraria"); err != nil {
		t.Errorf("expected seeded terraria egg to be gettable: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(eggList) {
		t.Errorf("expected one JSON file per seeded egg, got %d files for %d eggs", len(entries), len(eggList))
	}
}

func TestOpen_LoadsExistingDescriptors(t *testing.T) {
	dir := t.TempDir()
	egg := Egg{ID: "custom", Name: "Custom Egg", DockerImages: map[string]string{"Debian": "debian:bookworm-slim"}}
	raw, _ := json.Marshal(egg)
	if err := os.WriteFile(filepath.Join(dir, "custom.json"), raw, 0644); err != nil {
		t.Fatal(err)
	}

	registry, err := Open(dir, discardLogger())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	got, err := registry.Get("custom")
	if err != nil {
		t.Fatalf("Get(%q) error: %v", "custom", err)
	}
	if got.Name != "Custom Egg" {
		t.Errorf("Get() = %+v, want Name %q", got, "Custom Egg")
	}

	// a directory with at least one loadable descriptor is never seeded
	// with defaults.
	if _, err := registry.Get("terraria"); err == nil {
		t.Error("Open() should not seed defaults when the directory already has descriptors")
	}
}

func TestOpen_SkipsUnparsableDescriptors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	registry, err := Open(dir, discardLogger())
	if err != nil {
		t.Fatalf("Open() should tolerate a broken descriptor, got error: %v", err)
	}
	// broken.json failed to parse and the directory is otherwise empty,
	// so defaults are seeded.
	if _, err := registry.Get("terraria"); err != nil {
		t.Error("Open() should seed defaults when every existing descriptor fails to parse")
	}
}

func TestPutThenGet_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	registry, err := Open(dir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	egg := &Egg{
		ID:           "ark",
		Name:         "ARK: Survival Evolved",
		DockerImages: map[string]string{"Debian": "ghcr.io/pyrohost/yolks:ark"},
		Variables: []Variable{
			{Name: "Max Players", EnvVariable: "MAX_PLAYERS", DefaultValue: "70", Rules: "required|numeric"},
		},
	}

	if err := registry.Put(egg); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := registry.Get("ark")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != egg.Name || len(got.Variables) != 1 || got.Variables[0].EnvVariable != "MAX_PLAYERS" {
		t.Errorf("Get() after Put() = %+v, want a semantically equal descriptor", got)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "ark.json"))
	if err != nil {
		t.Fatalf("Put() did not persist ark.json: %v", err)
	}
	var onDisk Egg
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("persisted egg descriptor is not valid JSON: %v", err)
	}
	if onDisk.ID != "ark" {
		t.Errorf("persisted descriptor id = %q, want %q", onDisk.ID, "ark")
	}

	// no leftover temp files from the write-then-rename.
	entries, _ := os.ReadDir(dir)
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			t.Errorf("Put() left a stray non-JSON file behind: %s", entry.Name())
		}
	}
}

func TestPut_ValidatesRequiredFields(t *testing.T) {
	dir := t.TempDir()
	registry, err := Open(dir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		egg  *Egg
	}{
		{"missing id", &Egg{Name: "X", DockerImages: map[string]string{"a": "b"}}},
		{"missing name", &Egg{ID: "x", DockerImages: map[string]string{"a": "b"}}},
		{"no docker images", &Egg{ID: "x", Name: "X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := registry.Put(tt.egg); err == nil {
				t.Errorf("Put(%+v) should have failed validation", tt.egg)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	registry, err := Open(dir, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := registry.Delete("terraria"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := registry.Get("terraria"); err == nil {
		t.Error("Get() after Delete() should fail")
	}
	if _, err := os.Stat(filepath.Join(dir, "terraria.json")); !os.IsNotExist(err) {
		t.Error("Delete() should remove the descriptor file from disk")
	}

	if err := registry.Delete("does-not-exist"); err == nil {
		t.Error("Delete() of an unknown id should return NotFound")
	}
}
