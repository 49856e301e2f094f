// Package reconciler implements §4.10: the periodic sweep that keeps the
// in-memory container registry honest against the engine's own state,
// removes containers that no longer correspond to any instance config,
// and prunes aged logs and stats history. The ticker-per-loop shape is
// grounded on the teacher's build.DeployerPipeline.StartExpirationCleanupLoop;
// each sweep here plays the same role its expired-deployment cleanup did,
// generalized to three independent cadences instead of one.
package reconciler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pyrohost/pyro-node-agent/internal/dockerengine"
	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
	"github.com/pyrohost/pyro-node-agent/internal/instance"
	"github.com/pyrohost/pyro-node-agent/internal/panel"
	"github.com/pyrohost/pyro-node-agent/internal/statshistory"
)

// HealthCheckInterval is the §4.10 60s registry-vs-engine reconciliation
// cadence, driven by a plain ticker rather than cron since it is a fixed
// interval, not a time of day.
const HealthCheckInterval = 60 * time.Second

// OrphanSweepInterval is the §4.10 6h orphan-container cadence.
const OrphanSweepInterval = 6 * time.Hour

// Reconciler owns the registry-vs-engine health check, the orphan
// container sweep, and (invoked separately by the scheduler's daily
// cron) log/history retention pruning.
type Reconciler struct {
	client           *dockerengine.Client
	containers       *dockerengine.Supervisor
	configs          *instance.Store
	bus              *eventbus.Bus
	history          *statshistory.Store
	notifier         *panel.Notifier
	logsDir          string
	logRetentionDays int
	logger           *slog.Logger
}

func New(
	client *dockerengine.Client,
	containers *dockerengine.Supervisor,
	configs *instance.Store,
	bus *eventbus.Bus,
	history *statshistory.Store,
	notifier *panel.Notifier,
	logsDir string,
	logRetentionDays int,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		client:           client,
		containers:       containers,
		configs:          configs,
		bus:              bus,
		history:          history,
		notifier:         notifier,
		logsDir:          logsDir,
		logRetentionDays: logRetentionDays,
		logger:           logger,
	}
}

// RunHealthCheck blocks, re-inspecting every supervised container every
// HealthCheckInterval until ctx is canceled.
func (r *Reconciler) RunHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(HealthCheckInterval)
	defer ticker.Stop()

	r.logger.Info("reconciler health check loop started", "interval", HealthCheckInterval.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler health check loop stopped")
			return
		case <-ticker.C:
			r.checkSupervised(ctx)
		}
	}
}

// checkSupervised inspects every registry-known container; one no longer
// running is evicted, its instance transitioned offline, and a warning
// log line published - §4.10's "detect unexpected exits".
func (r *Reconciler) checkSupervised(ctx context.Context) {
	for _, id := range r.containers.IDs() {
		containerID, ok := r.containers.Lookup(id)
		if !ok {
			continue
		}

		running, err := r.client.IsRunning(ctx, containerID)
		if err != nil {
			r.logger.Warn("failed to inspect supervised container", "instance", id, "error", err)
			continue
		}
		if running {
			continue
		}

		r.logger.Warn("supervised container is no longer running, reconciling", "instance", id)
		r.containers.Evict(id)

		cfg, err := r.configs.Get(id)
		var from instance.Status
		if err == nil {
			from = cfg.Status
		}
		if err := r.configs.UpdateStatus(id, instance.StatusOffline); err != nil {
			r.logger.Warn("failed to persist reconciled status", "instance", id, "error", err)
		}

		r.bus.PublishLog(id, eventbus.LogPayload{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     "warning",
			Message:   "server exited unexpectedly",
		})
		r.bus.PublishStatus(id, string(instance.StatusOffline))
		r.history.RecordTransition(id, string(from), string(instance.StatusOffline), "unexpected exit")
		r.notifier.Notify(ctx, id, string(instance.StatusOffline))
	}
}

// RunOrphanSweep blocks, sweeping orphan containers every
// OrphanSweepInterval until ctx is canceled.
func (r *Reconciler) RunOrphanSweep(ctx context.Context) {
	ticker := time.NewTicker(OrphanSweepInterval)
	defer ticker.Stop()

	r.logger.Info("reconciler orphan sweep loop started", "interval", OrphanSweepInterval.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler orphan sweep loop stopped")
			return
		case <-ticker.C:
			r.SweepOrphans(ctx)
		}
	}
}

// SweepOrphans lists every container carrying this agent's label and
// removes any whose instance config no longer exists - §4.10's 6h sweep.
// Exported so the scheduler package (or a manual admin trigger) can run
// it outside its own ticker too.
func (r *Reconciler) SweepOrphans(ctx context.Context) {
	owned, err := r.client.ListOwned(ctx)
	if err != nil {
		r.logger.Warn("failed to list owned containers for orphan sweep", "error", err)
		return
	}

	for _, container := range owned {
		if container.InstanceID == "" {
			continue
		}
		if _, err := r.configs.Get(container.InstanceID); err == nil {
			continue
		}

		r.logger.Info("removing orphan container with no matching instance config",
			"instance", container.InstanceID, "container_id", container.ID)

		if container.Running {
			if err := r.client.StopGraceful(ctx, container.ID, 10*time.Second); err != nil {
				r.logger.Warn("failed to stop orphan container, removing anyway", "container_id", container.ID, "error", err)
			}
		}
		if err := r.client.Remove(ctx, container.ID); err != nil {
			r.logger.Warn("failed to remove orphan container", "container_id", container.ID, "error", err)
		}
	}
}

// PruneRetention deletes log files older than logRetentionDays and prunes
// stats history rows of the same age - §4.10's 24h (cron 03:00) sweep.
// Best-effort throughout: a single bad file or row never aborts the rest.
func (r *Reconciler) PruneRetention(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -r.logRetentionDays)
	r.pruneLogFiles(cutoff)

	if n, err := r.history.PruneOlderThan(cutoff); err != nil {
		r.logger.Warn("failed to prune stats history", "error", err)
	} else if n > 0 {
		r.logger.Info("pruned stats history rows", "count", n, "cutoff", cutoff)
	}
}

func (r *Reconciler) pruneLogFiles(cutoff time.Time) {
	removed := 0
	err := filepath.WalkDir(r.logsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".log") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				r.logger.Warn("failed to remove aged log file", "path", path, "error", err)
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to walk logs directory for retention sweep", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Info("pruned aged log files", "count", removed, "cutoff", cutoff)
	}
}
