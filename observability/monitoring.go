package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is the snapshot served on /healthz
type Stats struct {
	Status            string  `json:"status"`
	Uptime            string  `json:"uptime"`
	Connections       int     `json:"connections"`
	OnlineIdentities  int     `json:"online_identities"`
	MessagesSent      uint64  `json:"messages_sent"`
	NotificationsSent uint64  `json:"notifications_sent"`
	Overflows         uint64  `json:"overflows"`
	ErrorCount        uint64  `json:"error_count"`
	AllocMemMb        uint64  `json:"alloc_mem_mb"`
	NumGC             uint32  `json:"num_gc"`
	Goroutines        int     `json:"goroutines"`
	ProcessRSSMb      float64 `json:"process_rss_mb"`
	ProcessCPU        float64 `json:"process_cpu_percent"`
}

// MonitoringManager aggregates counters bumped on the hot path and
// refreshes the runtime part of the snapshot on each tick.
type MonitoringManager struct {
	log         *slog.Logger
	interval    time.Duration
	startedAt   time.Time
	mu          sync.RWMutex
	latestStats Stats

	MessagesSent      uint64
	NotificationsSent uint64
	Overflows         uint64
	ErrorCount        uint64
}

func NewMonitoringManager(log *slog.Logger, interval time.Duration) *MonitoringManager {
	return &MonitoringManager{
		log:         log,
		interval:    interval,
		startedAt:   time.Now(),
		latestStats: Stats{Status: "ok"},
	}
}

func (mm *MonitoringManager) IncrMessagesSent() {
	atomic.AddUint64(&mm.MessagesSent, 1)
}

func (mm *MonitoringManager) IncrNotificationsSent() {
	atomic.AddUint64(&mm.NotificationsSent, 1)
}

func (mm *MonitoringManager) IncrOverflows() {
	atomic.AddUint64(&mm.Overflows, 1)
}

func (mm *MonitoringManager) IncrErrorCount() {
	atomic.AddUint64(&mm.ErrorCount, 1)
}

func (mm *MonitoringManager) UpdateConnections(connections, online int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.Connections = connections
	mm.latestStats.OnlineIdentities = online
}

func (mm *MonitoringManager) UpdateProcess(rssMb, cpuPercent float64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.ProcessRSSMb = rssMb
	mm.latestStats.ProcessCPU = cpuPercent
}

// Run refreshes the snapshot until ctx is done.
func (mm *MonitoringManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Context done, stopping monitoring")
			return nil
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.Uptime = time.Since(mm.startedAt).Truncate(time.Second).String()
	mm.latestStats.MessagesSent = atomic.LoadUint64(&mm.MessagesSent)
	mm.latestStats.NotificationsSent = atomic.LoadUint64(&mm.NotificationsSent)
	mm.latestStats.Overflows = atomic.LoadUint64(&mm.Overflows)
	mm.latestStats.ErrorCount = atomic.LoadUint64(&mm.ErrorCount)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.Goroutines = runtime.NumGoroutine()

	mm.log.Debug("Stats updated",
		"connections", mm.latestStats.Connections,
		"messages_sent", mm.latestStats.MessagesSent,
		"mem_mb", mm.latestStats.AllocMemMb,
	)
}

func (mm *MonitoringManager) GetLatest() Stats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
