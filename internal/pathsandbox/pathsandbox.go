// Package pathsandbox joins and validates every per-instance filesystem
// path so it cannot escape its instance root, even through a symlink.
// every File Service operation, every egg config-file materialization,
// and every bind-mount source MUST go through a Sandbox.
package pathsandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
)

// Sandbox confines all resolved paths to a single root directory - one
// Sandbox per instance, rooted at <serversDir>/<instanceId>.
type Sandbox struct {
	root string
}

// New returns a Sandbox rooted at root. root is not created here; callers
// that need the directory to exist call EnsureRoot.
func New(root string) *Sandbox {
	return &Sandbox{root: filepath.Clean(root)}
}

func (s *Sandbox) Root() string { return s.root }

// EnsureRoot creates the instance root directory if it does not exist.
func (s *Sandbox) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return apperr.NewInternal("failed to create instance directory", err)
	}
	return nil
}

// Resolve joins relPath onto the sandbox root, normalizes it, and verifies
// the result is still under the root. every path component that already
// exists on disk is additionally Lstat'd: a symlink anywhere in the chain
// is rejected outright rather than followed, since a symlink planted
// inside a server's own directory (eg by an installer script or a
// malicious mod) could otherwise point outside the root and defeat the
// prefix check on the final Clean'd path alone.
func (s *Sandbox) Resolve(relPath string) (string, error) {
	// filepath.Join already calls Clean, which collapses ".." and "."
	// segments and duplicate separators. joining onto s.root first means
	// a relPath of "../../etc/passwd" collapses relative to the root,
	// not relative to the process's working directory.
	joined := filepath.Join(s.root, relPath)

	if joined != s.root && !strings.HasPrefix(joined, s.root+string(os.PathSeparator)) {
		return "", apperr.NewBadRequest(fmt.Sprintf("path %q escapes instance root", relPath), nil)
	}

	if err := s.rejectSymlinkComponents(joined); err != nil {
		return "", err
	}

	return joined, nil
}

// rejectSymlinkComponents walks every ancestor of path, starting just
// below the sandbox root, and fails if any existing component is a
// symlink. components that don't exist yet (eg the final segment of a
// write target) are skipped, they cannot be used to escape the root
// since Resolve already verified the final Clean'd path is prefixed by
// root - only an *existing* symlink component can redirect a later
// os.Open/os.Create outside the root.
func (s *Sandbox) rejectSymlinkComponents(path string) error {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return apperr.NewInternal("failed to compute relative path", err)
	}
	if rel == "." {
		return nil
	}

	segments := strings.Split(rel, string(os.PathSeparator))
	current := s.root
	for _, segment := range segments {
		current = filepath.Join(current, segment)
		info, statErr := os.Lstat(current)
		if statErr != nil {
			// ENOENT (and similar) just means this and all deeper
			// components don't exist yet - nothing to check.
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return apperr.NewBadRequest(fmt.Sprintf("path %q passes through a symlink", path), nil)
		}
	}
	return nil
}
