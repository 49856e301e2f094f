package dockerengine

import (
	"testing"

	"github.com/docker/docker/api/types/container"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		value, min, max, want float64
	}{
		{50, 0, 100, 50},
		{-10, 0, 100, 0},
		{150, 0, 100, 100},
		{0, 0, 100, 0},
		{100, 0, 100, 100},
	}
	for _, tt := range tests {
		if got := clamp(tt.value, tt.min, tt.max); got != tt.want {
			t.Errorf("clamp(%v, %v, %v) = %v, want %v", tt.value, tt.min, tt.max, got, tt.want)
		}
	}
}

func statsWithDeltas(cpuDelta, preCPU, systemDelta uint64, onlineCPUs uint32) container.StatsResponse {
	var stats container.StatsResponse
	stats.PreCPUStats.CPUUsage.TotalUsage = preCPU
	stats.CPUStats.CPUUsage.TotalUsage = preCPU + cpuDelta
	stats.PreCPUStats.SystemUsage = 0
	stats.CPUStats.SystemUsage = systemDelta
	stats.CPUStats.OnlineCPUs = onlineCPUs
	return stats
}

func TestCPUPercent_ZeroPrecpuYieldsZero(t *testing.T) {
	stats := statsWithDeltas(1000, 0, 2000, 2)
	if got := cpuPercent(stats); got != 0 {
		t.Errorf("cpuPercent() with zero precpu = %v, want 0", got)
	}
}

func TestCPUPercent_ComputesExpectedRatio(t *testing.T) {
	stats := statsWithDeltas(500, 1000, 1000, 2)
	// cpuDelta=500, systemDelta=1000, onlineCPUs=2 -> (500/1000)*2*100 = 100
	got := cpuPercent(stats)
	if got != 100 {
		t.Errorf("cpuPercent() = %v, want 100", got)
	}
}

func TestCPUPercent_ClampedTo100(t *testing.T) {
	stats := statsWithDeltas(5000, 1000, 1000, 4)
	if got := cpuPercent(stats); got != 100 {
		t.Errorf("cpuPercent() = %v, want clamped to 100", got)
	}
}

func TestCPUPercent_FallsBackToPercpuUsageLength(t *testing.T) {
	stats := statsWithDeltas(250, 1000, 1000, 0)
	stats.CPUStats.CPUUsage.PercpuUsage = make([]uint64, 4)
	// onlineCPUs falls back to len(PercpuUsage)=4: (250/1000)*4*100 = 100
	if got := cpuPercent(stats); got != 100 {
		t.Errorf("cpuPercent() = %v, want 100 via percpu fallback", got)
	}
}

func TestCPUPercent_ZeroSystemDeltaYieldsZero(t *testing.T) {
	stats := statsWithDeltas(500, 1000, 0, 2)
	if got := cpuPercent(stats); got != 0 {
		t.Errorf("cpuPercent() with zero system delta = %v, want 0", got)
	}
}

func TestMemoryStats(t *testing.T) {
	var stats container.StatsResponse
	stats.MemoryStats.Usage = 512 * bytesPerMiB
	stats.MemoryStats.Limit = 1024 * bytesPerMiB

	mem := memoryStats(stats)
	if mem.Used != 512 {
		t.Errorf("Used = %d, want 512", mem.Used)
	}
	if mem.Total != 1024 {
		t.Errorf("Total = %d, want 1024", mem.Total)
	}
	if mem.Percent != 50 {
		t.Errorf("Percent = %v, want 50", mem.Percent)
	}
}

func TestMemoryStats_ZeroLimitYieldsZeroPercent(t *testing.T) {
	var stats container.StatsResponse
	stats.MemoryStats.Usage = 100
	stats.MemoryStats.Limit = 0

	mem := memoryStats(stats)
	if mem.Percent != 0 {
		t.Errorf("Percent with zero limit = %v, want 0", mem.Percent)
	}
}

func TestNetworkStats_PrefersEth0(t *testing.T) {
	var stats container.StatsResponse
	stats.Networks = map[string]container.NetworkStats{
		"eth1": {RxBytes: 10, TxBytes: 20},
		"eth0": {RxBytes: 100, TxBytes: 200},
	}

	net := networkStats(stats)
	if net.RX != 100 || net.TX != 200 {
		t.Errorf("networkStats() = %+v, want eth0's counters", net)
	}
}

func TestNetworkStats_FallsBackToFirstInterface(t *testing.T) {
	var stats container.StatsResponse
	stats.Networks = map[string]container.NetworkStats{
		"veth123": {RxBytes: 5, TxBytes: 7},
	}

	net := networkStats(stats)
	if net.RX != 5 || net.TX != 7 {
		t.Errorf("networkStats() = %+v, want the sole interface's counters", net)
	}
}

func TestNetworkStats_NoInterfacesYieldsZeroValue(t *testing.T) {
	var stats container.StatsResponse
	net := networkStats(stats)
	if net.RX != 0 || net.TX != 0 {
		t.Errorf("networkStats() with no interfaces = %+v, want zero value", net)
	}
}
