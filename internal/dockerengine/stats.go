package dockerengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
	"github.com/pyrohost/pyro-node-agent/internal/statshistory"
)

const statsSampleInterval = 5 * time.Second

const bytesPerMiB = 1 << 20

// StatsSampler runs the §4.9 background ticker: every 5s it takes a
// one-shot stats snapshot of each supervised container, normalizes it,
// caches it, and publishes it on the event bus.
type StatsSampler struct {
	client     *Client
	supervisor *Supervisor
	bus        *eventbus.Bus
	history    *statshistory.Store
}

func NewStatsSampler(client *Client, supervisor *Supervisor, bus *eventbus.Bus, history *statshistory.Store) *StatsSampler {
	return &StatsSampler{client: client, supervisor: supervisor, bus: bus, history: history}
}

// Run blocks, sampling every statsSampleInterval until ctx is canceled.
func (s *StatsSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(statsSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleAll(ctx)
		}
	}
}

func (s *StatsSampler) sampleAll(ctx context.Context) {
	for _, id := range s.supervisor.ids() {
		entry, ok := s.supervisor.lookup(id)
		if !ok {
			continue
		}
		payload, err := s.sampleOne(ctx, entry.containerID)
		if err != nil {
			// sampling errors are swallowed per §4.9: a transient stats
			// read failure must never stop the ticker from advancing.
			continue
		}
		s.supervisor.cacheStats(id, payload)
		s.bus.PublishStats(id, payload)
		s.history.RecordStats(id, payload)
	}
}

func (s *StatsSampler) sampleOne(ctx context.Context, containerID string) (eventbus.StatsPayload, error) {
	resp, err := s.client.sdk.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return eventbus.StatsPayload{}, err
	}
	defer resp.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return eventbus.StatsPayload{}, fmt.Errorf("failed to decode stats response: %w", err)
	}

	return eventbus.StatsPayload{
		CPU:     cpuPercent(raw),
		Memory:  memoryStats(raw),
		Network: networkStats(raw),
	}, nil
}

func cpuPercent(stats container.StatsResponse) float64 {
	if stats.PreCPUStats.CPUUsage.TotalUsage == 0 {
		return 0
	}

	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if systemDelta <= 0 {
		return 0
	}

	onlineCPUs := float64(stats.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}

	percent := (cpuDelta / systemDelta) * onlineCPUs * 100
	return clamp(percent, 0, 100)
}

func memoryStats(stats container.StatsResponse) eventbus.MemoryStats {
	usage := float64(stats.MemoryStats.Usage)
	limit := float64(stats.MemoryStats.Limit)

	var percent float64
	if limit > 0 {
		percent = clamp(usage/limit*100, 0, 100)
	}

	return eventbus.MemoryStats{
		Used:    uint64(usage / bytesPerMiB),
		Total:   uint64(limit / bytesPerMiB),
		Percent: percent,
	}
}

func networkStats(stats container.StatsResponse) eventbus.NetworkStats {
	if net, ok := stats.Networks["eth0"]; ok {
		return eventbus.NetworkStats{RX: net.RxBytes, TX: net.TxBytes}
	}
	for _, net := range stats.Networks {
		return eventbus.NetworkStats{RX: net.RxBytes, TX: net.TxBytes}
	}
	return eventbus.NetworkStats{}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
