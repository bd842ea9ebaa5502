package workers

import (
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ConnectionStats is what the gauge worker samples from the registry.
type ConnectionStats interface {
	Count() int
	Online() int
	Snapshot() map[domain.Kind]int
}

// GaugeWorker periodically samples connection counts and internal channel
// usage. Reading len(channel) and cap(channel) is non-blocking, so this won't
// interfere with producers or consumers.
type GaugeWorker struct {
	log            *slog.Logger
	stats          ConnectionStats
	channels       []NamedChannel
	monitor        *observability.MonitoringManager
	metricInterval time.Duration
}

func NewGaugeWorker(log *slog.Logger, stats ConnectionStats, channels []NamedChannel,
	monitor *observability.MonitoringManager, metricInterval time.Duration) *GaugeWorker {
	return &GaugeWorker{
		log:            log,
		stats:          stats,
		channels:       channels,
		monitor:        monitor,
		metricInterval: metricInterval,
	}
}

func (w GaugeWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping gauges")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w GaugeWorker) sample() {
	snapshot := w.stats.Snapshot()
	for _, kind := range []domain.Kind{domain.KindUser, domain.KindEmployer, domain.KindAdmin} {
		observability.Connections.WithLabelValues(string(kind)).Set(float64(snapshot[kind]))
	}
	online := w.stats.Online()
	observability.OnlineIdentities.Set(float64(online))
	if w.monitor != nil {
		w.monitor.UpdateConnections(w.stats.Count(), online)
	}

	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		observability.ChannelUsage.WithLabelValues(nc.Name, "length").Set(float64(v.Len()))
		observability.ChannelUsage.WithLabelValues(nc.Name, "capacity").Set(float64(v.Cap()))
	}
}
