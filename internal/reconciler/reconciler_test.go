package reconciler

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touchWithAge(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("log line\n"), 0644); err != nil {
		t.Fatal(err)
	}
	modTime := time.Now().Add(-age)
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
}

func TestPruneLogFiles_DeletesOnlyAgedFiles(t *testing.T) {
	logsDir := t.TempDir()
	instanceDir := filepath.Join(logsDir, "s1")
	if err := os.MkdirAll(instanceDir, 0755); err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(instanceDir, "2026-06-01.log")
	recentPath := filepath.Join(instanceDir, "2026-07-29.log")
	touchWithAge(t, oldPath, 31*24*time.Hour)
	touchWithAge(t, recentPath, 29*24*time.Hour)

	r := &Reconciler{logsDir: logsDir, logger: discardLogger()}
	r.pruneLogFiles(time.Now().AddDate(0, 0, -30))

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("a log file older than the retention cutoff should have been deleted")
	}
	if _, err := os.Stat(recentPath); err != nil {
		t.Error("a log file within the retention window should be kept")
	}
}

func TestPruneLogFiles_IgnoresNonLogFiles(t *testing.T) {
	logsDir := t.TempDir()
	instanceDir := filepath.Join(logsDir, "s1")
	os.MkdirAll(instanceDir, 0755)

	otherPath := filepath.Join(instanceDir, "notes.txt")
	touchWithAge(t, otherPath, 60*24*time.Hour)

	r := &Reconciler{logsDir: logsDir, logger: discardLogger()}
	r.pruneLogFiles(time.Now().AddDate(0, 0, -30))

	if _, err := os.Stat(otherPath); err != nil {
		t.Error("pruneLogFiles should only ever remove .log files")
	}
}

func TestPruneLogFiles_MissingDirectoryDoesNotPanic(t *testing.T) {
	r := &Reconciler{logsDir: filepath.Join(t.TempDir(), "does-not-exist"), logger: discardLogger()}
	r.pruneLogFiles(time.Now())
}
