// Package dockerengine wraps the Docker SDK behind a single Client type.
// The one other package that imports the Docker SDK is commandinjector,
// which receives the raw SDK client through Client.SDK.
// It owns container lifecycle (§4.6/§4.7), image resolution (§4.5), the
// log pipeline (§4.8), stats sampling (§4.9), and the container listing
// and inspection the reconciler package (§4.10) builds on, for every
// instance the node agent supervises.
package dockerengine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dockersdk "github.com/docker/docker/client"
)

// idLabel marks every container this agent creates, so reconciliation
// can list exactly the containers it owns without guessing from name
// conventions alone.
const idLabel = "pyro.server.id"

// Client wraps the Docker SDK client with a logger. safe to share across
// goroutines: the SDK manages its own connection concurrency.
type Client struct {
	sdk    *dockersdk.Client
	logger *slog.Logger
}

// NewClient connects to the Docker daemon using the standard
// $DOCKER_HOST/socket discovery, negotiates the API version, and pings
// before returning so a misconfigured daemon fails fast at startup
// rather than on the first instance operation.
func NewClient(logger *slog.Logger) (*Client, error) {
	sdk, err := dockersdk.NewClientWithOpts(
		dockersdk.FromEnv,
		dockersdk.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker sdk client: %w", err)
	}

	c := &Client{sdk: sdk, logger: logger}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := sdk.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	logger.Info("docker client connected", "host", sdk.DaemonHost())
	return c, nil
}

// Close releases the underlying Docker SDK client connection.
func (c *Client) Close() error {
	return c.sdk.Close()
}

// SDK exposes the underlying Docker SDK client for the small set of
// callers outside this package that need it directly: commandinjector's
// exec-based command delivery, which takes a *dockersdk.Client rather
// than duplicating Client's own wrapper surface.
func (c *Client) SDK() *dockersdk.Client { return c.sdk }

func containerName(instanceID string) string {
	return "pyro-server-" + instanceID
}
