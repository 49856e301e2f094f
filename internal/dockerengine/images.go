package dockerengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/pyrohost/pyro-node-agent/internal/eggs"
	"github.com/pyrohost/pyro-node-agent/internal/instance"
)

// javaRuntimeImage pins the canonical image for minecraft-class instances
// whose egg has no "Java 21" labeled image. For those instances an egg's
// "Java 17" label is not consulted; this is the last-resort default.
const javaRuntimeImage = "ghcr.io/pyrohost/yolks:java_21"

// preferredImageLabels is the order chooseImage searches egg.DockerImages
// in before falling back to the first map entry. map iteration in Go is
// randomized, so without this list two runs of the same egg could pick
// different images.
var preferredImageLabels = []string{"Java 17", "Java 21"}

// ChooseImage picks the image reference to run for cfg, applying the
// minecraft-class special case before falling back to the egg's
// preferred-label search.
func ChooseImage(egg *eggs.Egg, cfg *instance.Config) string {
	if IsMinecraftClass(cfg) {
		if ref, ok := egg.DockerImages["Java 21"]; ok {
			return ref
		}
		return javaRuntimeImage
	}

	for _, label := range preferredImageLabels {
		if ref, ok := egg.DockerImages[label]; ok {
			return ref
		}
	}

	return firstImageByLabel(egg.DockerImages)
}

// IsMinecraftClass reports whether cfg's declared game belongs to the
// minecraft family, which gets the canonical-image fallback above and an
// extra RCON port binding at CreateAndStart time. Dispatch is on the
// instance's own game field (§4.5), not the egg id, since an operator may
// point two differently-shaped eggs at the same game class.
func IsMinecraftClass(cfg *instance.Config) bool {
	switch cfg.Game {
	case "minecraft-java", "minecraft-bedrock":
		return true
	default:
		return false
	}
}

// firstImageByLabel returns the image for the lexicographically smallest
// label, a deterministic stand-in for "the first entry" since Go map
// iteration order is not stable.
func firstImageByLabel(images map[string]string) string {
	labels := make([]string, 0, len(images))
	for label := range images {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	if len(labels) == 0 {
		return ""
	}
	return images[labels[0]]
}

// EnsureImage probes the engine for ref and pulls it if absent. the
// node agent does not build images from a local Dockerfile: it always
// resolves to a pre-built image, so EnsureImage only ever pulls.
func (c *Client) EnsureImage(ctx context.Context, ref string) error {
	present, err := c.imagePresent(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to inspect image %q: %w", ref, err)
	}
	if present {
		return nil
	}
	return c.pullImage(ctx, ref)
}

func (c *Client) imagePresent(ctx context.Context, ref string) (bool, error) {
	_, err := c.sdk.ImageInspect(ctx, ref)
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (c *Client) pullImage(ctx context.Context, ref string) error {
	c.logger.Info("pulling docker image", "image", ref)

	stream, err := c.sdk.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to initiate image pull for %q: %w", ref, err)
	}
	defer stream.Close()

	// the pull response is a stream of newline-delimited JSON progress
	// events that must be fully drained, or the daemon may not finish
	// writing image layers before the caller tries to use the image.
	if _, err := io.Copy(io.Discard, stream); err != nil {
		return fmt.Errorf("failed to stream image pull response for %q: %w", ref, err)
	}

	c.logger.Info("docker image pulled", "image", ref)
	return nil
}

// RepairOwnership chowns every entry directly under instanceDir to uid:gid,
// matching the runtime user the container image runs as, and then
// instanceDir itself. Deeper entries are not chowned. Nothing in this
// module calls it: since EnsureImage never builds, there is no failed
// build to fall back from.
func RepairOwnership(instanceDir string, uid, gid int) error {
	entries, err := os.ReadDir(instanceDir)
	if err != nil {
		return fmt.Errorf("failed to read instance directory %q: %w", instanceDir, err)
	}
	for _, entry := range entries {
		path := instanceDir + string(os.PathSeparator) + entry.Name()
		if err := os.Chown(path, uid, gid); err != nil {
			return fmt.Errorf("failed to chown %q: %w", path, err)
		}
	}
	return os.Chown(instanceDir, uid, gid)
}
