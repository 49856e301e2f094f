// Package panel implements the outbound status-notification contract of
// §6: PUT {panelUrl}/api/servers/{id}/status on install completion,
// online, offline, and install_failed. Notification failure is logged
// but never changes local state (spec.md §5, §7's Transient kind).
// Notify runs in the caller's goroutine, so the caller waits until its
// attempts and backoff are over.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// requestTimeout bounds a single PUT attempt; retryBackoff is the wait
// between the three attempts §6/§12.1 specify (1s, then 3s - two waits
// between three attempts).
const requestTimeout = 10 * time.Second

var retryBackoff = []time.Duration{1 * time.Second, 3 * time.Second}

// Notifier PUTs status updates to the control plane. A zero-value
// BaseURL disables notification entirely: Notify becomes a no-op, logged
// once at construction, so a node agent is still useful standalone
// during local development per the teacher's config package's philosophy
// of every value defaulting to something locally usable.
type Notifier struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func New(baseURL string, logger *slog.Logger) *Notifier {
	if baseURL == "" {
		logger.Debug("panel url not configured, status notifications disabled")
	}
	return &Notifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger,
	}
}

type statusBody struct {
	Status string `json:"status"`
}

// Notify PUTs {status} to {panelUrl}/api/servers/{id}/status, retrying up
// to three attempts total on network errors or 5xx responses with the
// fixed backoff above. a 4xx response is not retried: the panel has
// rejected the request shape, and repeating it would never succeed.
func (n *Notifier) Notify(ctx context.Context, instanceID, status string) {
	if n.baseURL == "" {
		return
	}

	body, err := json.Marshal(statusBody{Status: status})
	if err != nil {
		n.logger.Warn("failed to encode panel status notification", "instance", instanceID, "error", err)
		return
	}

	url := fmt.Sprintf("%s/api/servers/%s/status", n.baseURL, instanceID)

	for attempt := 0; ; attempt++ {
		err := n.attempt(ctx, url, body)
		if err == nil {
			return
		}

		var permanent permanentError
		if errors.As(err, &permanent) {
			n.logger.Warn("panel status notification rejected, not retrying",
				"instance", instanceID, "status", status, "error", err)
			return
		}

		if attempt >= len(retryBackoff) {
			n.logger.Warn("panel status notification failed, giving up",
				"instance", instanceID, "status", status, "attempts", attempt+1, "error", err)
			return
		}
		n.logger.Warn("panel status notification failed, retrying",
			"instance", instanceID, "status", status, "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryBackoff[attempt]):
		}
	}
}

// permanentError distinguishes a permanent (4xx) failure, which the
// caller must not retry, from a transient one.
type permanentError struct{ error }

func (n *Notifier) attempt(ctx context.Context, url string, body []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return permanentError{fmt.Errorf("panel returned %d", resp.StatusCode)}
	default:
		return fmt.Errorf("panel returned %d", resp.StatusCode)
	}
}
