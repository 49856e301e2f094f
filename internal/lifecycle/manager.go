// Package lifecycle implements the Lifecycle Manager (§4.7): the single
// place the node agent's container state machine (absent, offline,
// installing, install_failed, starting, online, stopping) is driven from.
// Every operation here that touches a given instance runs under that
// instance's lock (dockerengine.Supervisor.WithLock), so two concurrent
// requests against the same server always serialize rather than race.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pyrohost/pyro-node-agent/internal/apperr"
	"github.com/pyrohost/pyro-node-agent/internal/commandinjector"
	"github.com/pyrohost/pyro-node-agent/internal/dockerengine"
	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
	"github.com/pyrohost/pyro-node-agent/internal/instance"
	"github.com/pyrohost/pyro-node-agent/internal/panel"
	"github.com/pyrohost/pyro-node-agent/internal/pathsandbox"
	"github.com/pyrohost/pyro-node-agent/internal/statshistory"
	"github.com/pyrohost/pyro-node-agent/internal/template"
)

// startupSentinelTimeout is the fallback promotion window used when an
// egg declares no config.startup.done sentinel: §4.7 step 7 promotes
// "starting" to "online" unconditionally once this elapses, since there
// is otherwise nothing to watch for.
const startupSentinelTimeout = 15 * time.Second

// stopCommandGrace is how long stop() waits after delivering the stop
// command (or signal) before forcing an engine-level stop, per §4.7
// step 1's "wait up to 10s for a clean exit".
const stopCommandGrace = 10 * time.Second

// stopEngineTimeout bounds the subsequent ContainerStop call itself: the
// engine forwards SIGTERM and waits this long before SIGKILL.
const stopEngineTimeout = 10 * time.Second

// restartSettleDelay is the minimum pause between a restart's stop and
// its start, giving the engine time to fully tear down the old
// container's network and cgroup before the new one claims the same
// host ports.
const restartSettleDelay = 2 * time.Second

// Manager orchestrates every server lifecycle operation, wiring the
// config store, egg registry, container engine, event bus, stats
// history, and panel notifier together exactly as §4.7 through §4.13
// describe.
type Manager struct {
	client     *dockerengine.Client
	containers *dockerengine.Supervisor
	logs       *dockerengine.LogPipeline
	configs    *instance.Store
	bus        *eventbus.Bus
	history    *statshistory.Store
	notifier   *panel.Notifier
	serversDir string
	logsDir    string
	logger     *slog.Logger
}

func New(
	client *dockerengine.Client,
	containers *dockerengine.Supervisor,
	logs *dockerengine.LogPipeline,
	configs *instance.Store,
	bus *eventbus.Bus,
	history *statshistory.Store,
	notifier *panel.Notifier,
	serversDir, logsDir string,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		client:     client,
		containers: containers,
		logs:       logs,
		configs:    configs,
		bus:        bus,
		history:    history,
		notifier:   notifier,
		serversDir: serversDir,
		logsDir:    logsDir,
		logger:     logger,
	}
}

func (m *Manager) instanceDir(id string) string {
	return filepath.Join(m.serversDir, id)
}

func (m *Manager) sandbox(id string) *pathsandbox.Sandbox {
	return pathsandbox.New(m.instanceDir(id))
}

// transition persists the new status, publishes it, records it to the
// audit trail, and (for online, offline and install_failed) notifies the
// panel, in that order - §5's ordering
// guarantee that a status change is durable and visible before the
// operation that caused it returns.
func (m *Manager) transition(ctx context.Context, id string, status instance.Status, reason string) {
	var from instance.Status
	if cfg, err := m.configs.Get(id); err == nil {
		from = cfg.Status
	}

	if err := m.configs.UpdateStatus(id, status); err != nil {
		m.logger.Warn("failed to persist status transition", "instance", id, "status", status, "error", err)
	}
	m.bus.PublishStatus(id, string(status))
	m.history.RecordTransition(id, string(from), string(status), reason)
	switch status {
	case instance.StatusOnline, instance.StatusOffline, instance.StatusInstallFailed:
		m.notifier.Notify(ctx, id, string(status))
	}
}

// Configure creates (or replaces) an instance's persisted config and
// moves it straight to "offline" - §4.4's absent-to-offline transition.
// No container exists yet; install() must run before start() will
// succeed for an egg that declares an installation script.
func (m *Manager) Configure(ctx context.Context, id, eggID string, port int, plan instance.Plan, location, name, game string, variables map[string]string) (*instance.Config, error) {
	if err := m.sandbox(id).EnsureRoot(); err != nil {
		return nil, err
	}

	cfg, err := m.configs.Create(id, eggID, port, plan, location, name, game, variables)
	if err != nil {
		return nil, err
	}

	m.transition(ctx, id, instance.StatusOffline, "configured")
	return cfg, nil
}

// Install runs the one-shot installer container for id, per §4.6. it is
// valid from "offline" or "install_failed" (retrying a failed install).
func (m *Manager) Install(ctx context.Context, id string) error {
	return m.containers.WithLock(id, func() error { return m.installLocked(ctx, id) })
}

func (m *Manager) installLocked(ctx context.Context, id string) error {
	cfg, err := m.configs.Get(id)
	if err != nil {
		return err
	}
	if cfg.Status != instance.StatusOffline && cfg.Status != instance.StatusInstallFailed {
		return apperr.NewConflict(fmt.Sprintf("instance %q is %s, not offline", id, cfg.Status), nil)
	}
	egg := cfg.EggDescriptor()
	if egg == nil {
		return apperr.NewBadRequest(fmt.Sprintf("instance %q references an unknown egg", id), nil)
	}

	m.transition(ctx, id, instance.StatusInstalling, "install requested")

	runID := uuid.New().String()
	logLine := func(level, message string) { m.logs.EmitLine(id, level, message) }

	if err := m.client.Install(ctx, cfg, egg, m.instanceDir(id), logLine); err != nil {
		m.logger.Warn("install failed", "instance", id, "install_run", runID, "error", err)
		m.transition(ctx, id, instance.StatusInstallFailed, apperr.MessageOf(err))
		return err
	}

	m.transition(ctx, id, instance.StatusOffline, "install completed")
	return nil
}

// Reinstall wipes and recreates an instance's working directory, then
// reruns install() - §4.6's "reinstall" entry point. A running instance
// is stopped first.
func (m *Manager) Reinstall(ctx context.Context, id string) error {
	return m.containers.WithLock(id, func() error {
		if containerID, ok := m.containers.Lookup(id); ok {
			if err := m.stopContainer(ctx, id, containerID); err != nil {
				m.logger.Warn("failed to stop instance before reinstall, continuing", "instance", id, "error", err)
			}
		}
		return m.installLocked(ctx, id)
	})
}

// Start creates and starts the runtime container for id, per §4.7 steps
// 1-7. Valid only from "offline" or "install_failed"; a second concurrent
// start for the same instance blocks on the instance lock and then fails
// with Conflict once it observes the first start already in progress.
func (m *Manager) Start(ctx context.Context, id string) error {
	return m.containers.WithLock(id, func() error { return m.startLocked(ctx, id) })
}

func (m *Manager) startLocked(ctx context.Context, id string) error {
	cfg, err := m.configs.Get(id)
	if err != nil {
		return err
	}
	if cfg.Status != instance.StatusOffline && cfg.Status != instance.StatusInstallFailed {
		return apperr.NewConflict(fmt.Sprintf("instance %q is %s, not offline", id, cfg.Status), nil)
	}
	if m.containers.IsSupervised(id) {
		return apperr.NewConflict(fmt.Sprintf("instance %q already has a supervised container", id), nil)
	}
	egg := cfg.EggDescriptor()
	if egg == nil {
		return apperr.NewBadRequest(fmt.Sprintf("instance %q references an unknown egg", id), nil)
	}

	image := dockerengine.ChooseImage(egg, cfg)
	if err := m.client.EnsureImage(ctx, image); err != nil {
		return apperr.NewEngineError(fmt.Sprintf("failed to ensure image %q", image), err)
	}

	startupCmd := template.Expand(egg.Startup, template.Context{
		Port:      cfg.Port,
		MemoryMiB: cfg.Plan.RAM * 1024,
		Variables: dockerengine.VariablesWithDefaults(egg, cfg),
	})

	spec := dockerengine.StartSpec{
		InstanceID:  id,
		Image:       image,
		InstanceDir: m.instanceDir(id),
		Command:     startupCmd,
		Env:         dockerengine.BuildEnv(egg, cfg),
		Port:        cfg.Port,
		RCON:        dockerengine.IsMinecraftClass(cfg),
		MemoryBytes: dockerengine.MemoryLimitBytes(cfg.Plan.RAM),
		CPUCores:    cfg.Plan.CPU,
	}

	containerID, err := m.client.CreateAndStart(ctx, spec)
	if err != nil {
		return err
	}

	m.transition(ctx, id, instance.StatusStarting, "container started")

	logCtx, cancelLogs := context.WithCancel(context.Background())
	sentinel := egg.ConfigBlock.Startup.Done
	if err := m.logs.Attach(logCtx, id, containerID, func(message string) {
		if sentinel != "" && strings.Contains(message, sentinel) {
			m.promoteOnline(id, "startup sentinel matched")
		}
	}); err != nil {
		cancelLogs()
		return err
	}

	m.containers.Register(id, containerID, cancelLogs)

	if sentinel == "" {
		go m.promoteAfterTimeout(id)
	}

	return nil
}

// promoteAfterTimeout promotes a starting instance to online once
// startupSentinelTimeout elapses, for eggs with no configured sentinel.
func (m *Manager) promoteAfterTimeout(id string) {
	time.Sleep(startupSentinelTimeout)
	m.promoteOnline(id, "startup timeout elapsed with no sentinel configured")
}

// promoteOnline transitions id from "starting" to "online", idempotently:
// a sentinel match racing against the fallback timer (or a second
// sentinel match) only promotes once, since the check-then-transition
// only acts while the persisted status is still "starting".
func (m *Manager) promoteOnline(id, reason string) {
	cfg, err := m.configs.Get(id)
	if err != nil || cfg.Status != instance.StatusStarting {
		return
	}
	m.transition(context.Background(), id, instance.StatusOnline, reason)
}

// Stop gracefully stops and removes id's container, per §4.7 step 1's
// stop(id): deliver the egg's configured stop trigger, wait for a clean
// exit, then force an engine-level stop before removing the container.
// Stopping an instance with no supervised container is a no-op success.
func (m *Manager) Stop(ctx context.Context, id string) error {
	return m.containers.WithLock(id, func() error {
		containerID, ok := m.containers.Lookup(id)
		if !ok {
			return nil
		}
		return m.stopContainer(ctx, id, containerID)
	})
}

func (m *Manager) stopContainer(ctx context.Context, id, containerID string) error {
	cfg, err := m.configs.Get(id)
	if err != nil {
		return err
	}

	m.transition(ctx, id, instance.StatusStopping, "stop requested")

	if egg := cfg.EggDescriptor(); egg != nil {
		m.deliverStopTrigger(ctx, containerID, egg.ConfigBlock.Stop)
	}

	waitCtx, cancel := context.WithTimeout(ctx, stopCommandGrace)
	running, _ := m.waitUntilStopped(waitCtx, containerID)
	cancel()

	if running {
		if err := m.client.StopGraceful(ctx, containerID, stopEngineTimeout); err != nil {
			m.logger.Warn("graceful engine stop failed, removing anyway", "instance", id, "error", err)
		}
	}

	if err := m.client.Remove(ctx, containerID); err != nil {
		m.logger.Warn("failed to remove stopped container", "instance", id, "error", err)
	}

	m.containers.Evict(id)
	m.transition(ctx, id, instance.StatusOffline, "stopped")
	return nil
}

// deliverStopTrigger interprets the egg's configured stop command: a
// "^"-prefixed value is a control-character signal convention (eg "^C"
// for SIGINT, "^\" for SIGQUIT), delivered by killing the container with
// the corresponding signal; anything else is a console command delivered
// the same way §4.13's sendCommand does.
func (m *Manager) deliverStopTrigger(ctx context.Context, containerID, stopCmd string) {
	stopCmd = strings.TrimSpace(stopCmd)
	if stopCmd == "" {
		return
	}

	if signal, ok := strings.CutPrefix(stopCmd, "^"); ok {
		if err := m.client.SDK().ContainerKill(ctx, containerID, signalName(signal)); err != nil {
			m.logger.Warn("failed to deliver stop signal", "container_id", containerID, "signal", signal, "error", err)
		}
		return
	}

	if err := commandinjector.Send(ctx, m.client.SDK(), containerID, stopCmd); err != nil {
		m.logger.Warn("failed to deliver stop command", "container_id", containerID, "error", err)
	}
}

// signalName maps the single control character following "^" in an
// egg's stop command to the POSIX signal name ContainerKill expects.
func signalName(ctrl string) string {
	switch strings.ToUpper(ctrl) {
	case "C":
		return "SIGINT"
	case "\\":
		return "SIGQUIT"
	case "Z":
		return "SIGTSTP"
	case "D":
		return "SIGTERM"
	default:
		return "SIGTERM"
	}
}

// waitUntilStopped polls IsRunning until it reports false or ctx expires,
// returning whether the container was still running when it gave up.
func (m *Manager) waitUntilStopped(ctx context.Context, containerID string) (stillRunning bool, err error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		running, inspectErr := m.client.IsRunning(ctx, containerID)
		if inspectErr == nil && !running {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return true, nil
		case <-ticker.C:
		}
	}
}

// Kill force-removes id's container immediately, with no stop trigger
// and no "stopping" intermediate state - §4.7's kill(id).
func (m *Manager) Kill(ctx context.Context, id string) error {
	return m.containers.WithLock(id, func() error {
		containerID, ok := m.containers.Lookup(id)
		if !ok {
			return nil
		}
		if err := m.client.KillAndRemove(ctx, containerID); err != nil {
			m.logger.Warn("failed to kill container", "instance", id, "error", err)
		}
		m.containers.Evict(id)
		m.transition(ctx, id, instance.StatusOffline, "killed")
		return nil
	})
}

// Restart stops (if running) and starts id's container again, waiting at
// least restartSettleDelay between the two so the engine has fully torn
// the old container's network down before the new one claims its ports.
func (m *Manager) Restart(ctx context.Context, id string) error {
	return m.containers.WithLock(id, func() error {
		if containerID, ok := m.containers.Lookup(id); ok {
			if err := m.stopContainer(ctx, id, containerID); err != nil {
				return err
			}
		}
		time.Sleep(restartSettleDelay)
		return m.startLocked(ctx, id)
	})
}

// SendCommand delivers a console command to id's running container and
// echoes it into the log stream and command-output event, per §4.13.
// It does not take the instance lock: command delivery never competes
// with a lifecycle transition for correctness, only for the container
// existing at all, which Lookup already checks atomically.
func (m *Manager) SendCommand(ctx context.Context, id, command string) error {
	containerID, ok := m.containers.Lookup(id)
	if !ok {
		return apperr.NewConflict(fmt.Sprintf("instance %q is not running", id), nil)
	}

	m.logs.EmitLine(id, "info", "> "+command)
	err := commandinjector.Send(ctx, m.client.SDK(), containerID, command)
	m.bus.PublishCommandOutput(id, eventbus.CommandOutputPayload{Command: command, Success: err == nil})
	if err != nil {
		return apperr.NewEngineError("failed to deliver command", err)
	}
	return nil
}

// SupervisedCount returns the number of containers currently registered,
// for the health endpoint's "containers" count.
func (m *Manager) SupervisedCount() int {
	return len(m.containers.IDs())
}

// GetStats returns the most recently cached stats sample for id.
func (m *Manager) GetStats(id string) (eventbus.StatsPayload, error) {
	stats, ok := m.containers.LastStats(id)
	if !ok {
		return eventbus.StatsPayload{}, apperr.NewNotFound(fmt.Sprintf("no stats available for instance %q", id), nil)
	}
	return stats, nil
}

// GetLogs returns the most recent lines log records for id, per §6's
// getLogs(id, lines?).
func (m *Manager) GetLogs(id string, lines int) ([]dockerengine.LogRecord, error) {
	return dockerengine.TailLogs(m.logsDir, id, lines)
}

// Delete tears down an instance entirely: stops and removes any running
// container, then deletes its working directory and persisted config.
// It is the reinstall/delete directory-reclamation path §3 describes,
// exposed as its own operation for a control plane that wants to
// decommission a server rather than reinstall it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.containers.WithLock(id, func() error {
		if containerID, ok := m.containers.Lookup(id); ok {
			if err := m.client.KillAndRemove(ctx, containerID); err != nil {
				m.logger.Warn("failed to remove container during delete", "instance", id, "error", err)
			}
			m.containers.Evict(id)
		}
		if err := os.RemoveAll(m.instanceDir(id)); err != nil {
			m.logger.Warn("failed to remove instance directory", "instance", id, "error", err)
		}
		return m.configs.Delete(id)
	})
}
