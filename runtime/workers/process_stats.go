package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStatsWorker samples memory and CPU of the relay process.
type ProcessStatsWorker struct {
	log      *slog.Logger
	monitor  *observability.MonitoringManager
	interval time.Duration
}

func NewProcessStatsWorker(log *slog.Logger, monitor *observability.MonitoringManager, interval time.Duration) *ProcessStatsWorker {
	return &ProcessStatsWorker{log: log, monitor: monitor, interval: interval}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			rssMb := float64(rss) / 1024 / 1024
			observability.ProcessGauges.WithLabelValues("rss_mb").Set(rssMb)
			observability.ProcessGauges.WithLabelValues("cpu_percent").Set(cpu)
			if w.monitor != nil {
				w.monitor.UpdateProcess(rssMb, cpu)
			}
		}
	}
}

// selfStats retrieves resident memory and CPU usage for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
