package panel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withFastBackoff shrinks the retry backoff for the duration of a test so
// retry-path tests don't actually wait multiple seconds.
func withFastBackoff(t *testing.T) {
	t.Helper()
	original := retryBackoff
	retryBackoff = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryBackoff = original })
}

func TestNotify_EmptyBaseURLIsNoOp(t *testing.T) {
	n := New("", discardLogger())
	// must not panic or attempt any network call.
	n.Notify(context.Background(), "srv-1", "online")
}

func TestNotify_SuccessOnFirstAttempt(t *testing.T) {
	var calls int32
	var gotPath string
	var gotBody statusBody

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		if r.Method != http.MethodPut {
			t.Errorf("method = %q, want PUT", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(server.URL, discardLogger())
	n.Notify(context.Background(), "srv-42", "online")

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server received %d calls, want 1", calls)
	}
	if gotPath != "/api/servers/srv-42/status" {
		t.Errorf("path = %q, want %q", gotPath, "/api/servers/srv-42/status")
	}
	if gotBody.Status != "online" {
		t.Errorf("body status = %q, want %q", gotBody.Status, "online")
	}
}

func TestNotify_FourXXIsNotRetried(t *testing.T) {
	withFastBackoff(t)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := New(server.URL, discardLogger())
	n.Notify(context.Background(), "srv-1", "install_failed")

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server received %d calls, want exactly 1 (a 4xx must not be retried)", calls)
	}
}

func TestNotify_FiveXXIsRetriedUntilSuccess(t *testing.T) {
	withFastBackoff(t)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(server.URL, discardLogger())
	n.Notify(context.Background(), "srv-1", "offline")

	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("server received %d calls, want 3 (success on the final allotted attempt)", calls)
	}
}

func TestNotify_GivesUpAfterExhaustingRetries(t *testing.T) {
	withFastBackoff(t)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	n := New(server.URL, discardLogger())
	n.Notify(context.Background(), "srv-1", "online")

	// one initial attempt plus one retry per backoff entry.
	want := int32(1 + len(retryBackoff))
	if atomic.LoadInt32(&calls) != want {
		t.Errorf("server received %d calls, want %d", calls, want)
	}
}

func TestNotify_ContextCancelledDuringBackoffStopsRetrying(t *testing.T) {
	original := retryBackoff
	retryBackoff = []time.Duration{time.Hour}
	t.Cleanup(func() { retryBackoff = original })

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	n := New(server.URL, discardLogger())

	done := make(chan struct{})
	go func() {
		n.Notify(ctx, "srv-1", "online")
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify() did not return promptly after context cancellation")
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server received %d calls, want 1 (cancellation should cut the long backoff short)", calls)
	}
}
