package dockerengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
	"github.com/pyrohost/pyro-node-agent/internal/eggs"
	"github.com/pyrohost/pyro-node-agent/internal/instance"
)

// minecraftRCONOffset is added to a minecraft-class instance's port to get
// its extra RCON port binding; bytesPerGiB converts a plan's RAM to bytes.
const (
	minecraftRCONOffset = 1000
	bytesPerGiB         = 1 << 30
)

// StartSpec is the fully resolved input ContainerCreate needs, assembled
// by the lifecycle manager (§4.7 step 2-6) from the egg, instance config,
// chosen image, and expanded startup command.
type StartSpec struct {
	InstanceID  string
	Image       string
	InstanceDir string
	Command     string
	Env         []string
	Port        int
	RCON        bool // minecraft-class: also publish Port+1000/tcp
	MemoryBytes int64
	CPUCores    int
}

// CreateAndStart creates (removing any stale same-named container first)
// and starts the runtime container per §4.7 step 6: capability-dropped,
// no-new-privileges, tty+stdin attached, instance directory bind-mounted
// read-write at /home/container, labeled for reconciliation.
func (c *Client) CreateAndStart(ctx context.Context, spec StartSpec) (containerID string, err error) {
	name := containerName(spec.InstanceID)

	if err := c.removeIfExists(ctx, name); err != nil {
		return "", err
	}

	portSet, portBindings := portMapping(spec.Port, spec.RCON)

	containerCfg := &container.Config{
		Image:        spec.Image,
		Cmd:          []string{"/bin/sh", "-c", fmt.Sprintf("cd /home/container && %s", spec.Command)},
		Env:          spec.Env,
		ExposedPorts: portSet,
		Tty:          true,
		OpenStdin:    true,
		WorkingDir:   "/home/container",
		Labels:       map[string]string{idLabel: spec.InstanceID},
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: spec.InstanceDir, Target: "/home/container", ReadOnly: false},
		},
		PortBindings: portBindings,
		Resources: container.Resources{
			Memory:    spec.MemoryBytes,
			CPUQuota:  int64(spec.CPUCores) * 100000,
			CPUPeriod: 100000,
		},
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
		CapDrop:       []string{"ALL"},
		CapAdd:        []string{"CHOWN", "DAC_OVERRIDE", "FOWNER", "SETGID", "SETUID"},
		SecurityOpt:   []string{"no-new-privileges"},
	}

	platform := &v1.Platform{Architecture: "amd64", OS: "linux"}

	created, err := c.sdk.ContainerCreate(ctx, containerCfg, hostCfg, nil, platform, name)
	if err != nil {
		return "", apperr.NewEngineError("failed to create server container", err)
	}

	if err := c.sdk.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", apperr.NewEngineError("failed to start server container", err)
	}

	c.logger.Info("server container started", "instance", spec.InstanceID, "container_id", shortID(created.ID))
	return created.ID, nil
}

func portMapping(port int, rcon bool) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet)
	bindings := make(nat.PortMap)

	addPort := func(p int, proto string) {
		portProto := nat.Port(fmt.Sprintf("%d/%s", p, proto))
		exposed[portProto] = struct{}{}
		bindings[portProto] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", p)}}
	}

	addPort(port, "tcp")
	addPort(port, "udp")
	if rcon {
		addPort(port+minecraftRCONOffset, "tcp")
	}
	return exposed, bindings
}

// StopGraceful requests the engine stop a running container within
// timeout, letting the entrypoint's own signal handling (or the prior
// stop-command delivery) shut it down cleanly.
func (c *Client) StopGraceful(ctx context.Context, containerID string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := c.sdk.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return apperr.NewEngineError("failed to stop server container", err)
	}
	return nil
}

// KillAndRemove force-kills and removes a container immediately, per
// §4.7's kill(id).
func (c *Client) KillAndRemove(ctx context.Context, containerID string) error {
	if err := c.sdk.ContainerKill(ctx, containerID, "SIGKILL"); err != nil && !errdefs.IsNotFound(err) {
		c.logger.Warn("failed to kill container, attempting removal anyway", "container_id", shortID(containerID), "error", err)
	}
	return c.Remove(ctx, containerID)
}

// Remove removes a container, ignoring "not found" since the goal state
// (no container) is already satisfied.
func (c *Client) Remove(ctx context.Context, containerID string) error {
	err := c.sdk.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return apperr.NewEngineError("failed to remove container", err)
	}
	return nil
}

func (c *Client) removeIfExists(ctx context.Context, name string) error {
	id, ok, err := c.findByName(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	c.logger.Info("removing stale container with same name", "name", name)
	return c.Remove(ctx, id)
}

func (c *Client) findByName(ctx context.Context, name string) (string, bool, error) {
	summaries, err := c.sdk.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+name+"$")),
	})
	if err != nil {
		return "", false, apperr.NewEngineError("failed to list containers", err)
	}
	if len(summaries) == 0 {
		return "", false, nil
	}
	return summaries[0].ID, true, nil
}

// IsRunning reports whether containerID is currently in the "running"
// state, per the reconciler's §4.10 inspection step.
func (c *Client) IsRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := c.sdk.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, apperr.NewEngineError("failed to inspect container", err)
	}
	return info.State != nil && info.State.Running, nil
}

// OwnedContainer is one container this agent's label identifies as its
// own, for reconciler sweep purposes.
type OwnedContainer struct {
	ID         string
	InstanceID string
	Running    bool
}

// ListOwned returns every container carrying this agent's pyro.server.id
// label, per §4.10's 6h orphan sweep.
func (c *Client) ListOwned(ctx context.Context) ([]OwnedContainer, error) {
	summaries, err := c.sdk.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", idLabel)),
	})
	if err != nil {
		return nil, apperr.NewEngineError("failed to list owned containers", err)
	}

	out := make([]OwnedContainer, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, OwnedContainer{
			ID:         summary.ID,
			InstanceID: summary.Labels[idLabel],
			Running:    strings.EqualFold(summary.State, "running"),
		})
	}
	return out, nil
}

// BuildEnv assembles the full environment for the runtime container per
// §4.7 step 3: every egg variable (with instance overrides), the system
// placeholders, and the egg's raw startup command for reference.
func BuildEnv(egg *eggs.Egg, cfg *instance.Config) []string {
	env := buildVariableEnv(egg, cfg)
	env = append(env,
		fmt.Sprintf("SERVER_PORT=%d", cfg.Port),
		fmt.Sprintf("SERVER_MEMORY=%d", cfg.Plan.RAM*1024),
		fmt.Sprintf("P_SERVER_UUID=%s", cfg.ID),
		fmt.Sprintf("P_SERVER_LOCATION=%s", cfg.Location),
		fmt.Sprintf("STARTUP=%s", egg.Startup),
	)
	return env
}

// MemoryLimitBytes converts a plan's RAM (whole GiB) into the byte limit
// CreateAndStart's Resources.Memory expects: plan.ram x 1 GiB, per §4.7
// step 6.
func MemoryLimitBytes(planRAMGiB int) int64 {
	return int64(planRAMGiB) * bytesPerGiB
}
