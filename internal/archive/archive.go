// Package archive is the explicitly stubbed compress/extract surface.
// spec.md §1 and §9's Open Questions flag archive operations as "present
// only as stubs in source" and intentionally unspecified; the teacher's
// own build.ExtractZipUpload is a one-off implementation for a different
// (static-site) product line, not a generalized archive layer, so it is
// not adapted here. These functions exist only so the request surface
// has a stable signature to route to, should archive support land later.
package archive

import "github.com/pyrohost/pyro-node-agent/internal/apperr"

// Extract would unpack a compressed archive at srcRelPath into
// destRelPath within an instance's sandboxed directory. Not implemented;
// see package doc.
func Extract(instanceID, srcRelPath, destRelPath string) error {
	return apperr.NewInternal("archive extraction is not implemented", nil)
}

// Compress would pack one or more paths within an instance's sandboxed
// directory into a new archive at destRelPath. Not implemented; see
// package doc.
func Compress(instanceID string, srcRelPaths []string, destRelPath string) error {
	return apperr.NewInternal("archive compression is not implemented", nil)
}
