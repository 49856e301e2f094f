package pathsandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
)

func TestResolve_WithinRoot(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	tests := []struct {
		name string
		rel  string
	}{
		{"plain file", "server.properties"},
		{"nested path", "world/level.dat"},
		{"root itself", "."},
		{"leading slash", "/logs/latest.log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := s.Resolve(tt.rel)
			if err != nil {
				t.Fatalf("Resolve(%q) returned error: %v", tt.rel, err)
			}
			rel, err := filepath.Rel(root, resolved)
			if err != nil || (rel != "." && rel[:2] == "..") {
				t.Errorf("Resolve(%q) = %q escapes root %q", tt.rel, resolved, root)
			}
		})
	}
}

func TestResolve_EscapeRejected(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	tests := []string{
		"../../etc/passwd",
		"../sibling",
		"a/../../b",
		"../" + filepath.Base(root) + "-sibling",
	}

	for _, rel := range tests {
		t.Run(rel, func(t *testing.T) {
			_, err := s.Resolve(rel)
			if err == nil {
				t.Fatalf("Resolve(%q) succeeded, want BadRequest", rel)
			}
			if apperr.KindOf(err) != apperr.BadRequest {
				t.Errorf("Resolve(%q) kind = %v, want BadRequest", rel, apperr.KindOf(err))
			}
		})
	}
}

func TestResolve_RejectsSymlinkComponent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := os.Symlink(outside, filepath.Join(root, "escape")); err != nil {
		t.Fatal(err)
	}

	s := New(root)
	_, err := s.Resolve("escape/secret.txt")
	if err == nil {
		t.Fatal("Resolve through a symlink succeeded, want rejection")
	}
	if apperr.KindOf(err) != apperr.BadRequest {
		t.Errorf("kind = %v, want BadRequest", apperr.KindOf(err))
	}
}

func TestResolve_NonexistentComponentsAllowed(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	// a write target whose parent directories don't exist yet must still
	// resolve - only *existing* symlink components are checked.
	resolved, err := s.Resolve("new/nested/file.txt")
	if err != nil {
		t.Fatalf("Resolve() for a not-yet-existing path failed: %v", err)
	}
	want := filepath.Join(root, "new", "nested", "file.txt")
	if resolved != want {
		t.Errorf("Resolve() = %q, want %q", resolved, want)
	}
}

func TestEnsureRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "servers", "abc123")
	s := New(root)

	if err := s.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot() error: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("EnsureRoot() did not create %q", root)
	}
}
