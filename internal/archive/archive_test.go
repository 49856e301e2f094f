package archive

import (
	"testing"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
)

func TestExtract_ReturnsInternalNotImplemented(t *testing.T) {
	err := Extract("srv-1", "in.zip", "out/")
	if apperr.KindOf(err) != apperr.Internal {
		t.Errorf("Extract() kind = %v, want %v", apperr.KindOf(err), apperr.Internal)
	}
}

func TestCompress_ReturnsInternalNotImplemented(t *testing.T) {
	err := Compress("srv-1", []string{"a.txt", "b.txt"}, "out.zip")
	if apperr.KindOf(err) != apperr.Internal {
		t.Errorf("Compress() kind = %v, want %v", apperr.KindOf(err), apperr.Internal)
	}
}
