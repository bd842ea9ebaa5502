package workers

import (
	"chat-relay/domain"
	"chat-relay/observability"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fixedStats struct{}

func (fixedStats) Count() int  { return 3 }
func (fixedStats) Online() int { return 2 }
func (fixedStats) Snapshot() map[domain.Kind]int {
	return map[domain.Kind]int{domain.KindUser: 2, domain.KindEmployer: 1}
}

func TestGaugeWorker_Sample(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitor := observability.NewMonitoringManager(log, time.Second)
	events := make(chan int, 10)
	events <- 1
	events <- 2

	worker := NewGaugeWorker(log, fixedStats{}, []NamedChannel{
		{Name: "events", Channel: events},
		{Name: "not_a_channel", Channel: 42},
	}, monitor, time.Second)
	worker.sample()

	req.Equal(2.0, testutil.ToFloat64(observability.Connections.WithLabelValues("user")))
	req.Equal(1.0, testutil.ToFloat64(observability.Connections.WithLabelValues("employer")))
	req.Equal(0.0, testutil.ToFloat64(observability.Connections.WithLabelValues("admin")))
	req.Equal(2.0, testutil.ToFloat64(observability.OnlineIdentities))
	req.Equal(2.0, testutil.ToFloat64(observability.ChannelUsage.WithLabelValues("events", "length")))
	req.Equal(10.0, testutil.ToFloat64(observability.ChannelUsage.WithLabelValues("events", "capacity")))
	req.Equal(3, monitor.GetLatest().Connections)
	req.Equal(2, monitor.GetLatest().OnlineIdentities)
}
