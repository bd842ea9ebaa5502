package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connections tracks live connections by identity kind
	Connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Live connections by identity kind",
		},
		[]string{"kind"},
	)

	// OnlineIdentities tracks identities holding at least one connection
	OnlineIdentities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_online_identities",
			Help: "Identities with at least one live connection",
		},
	)

	// EnvelopesDelivered counts envelopes accepted by a connection queue
	EnvelopesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_envelopes_delivered_total",
			Help: "Envelopes enqueued to connections by type",
		},
		[]string{"type"},
	)

	// DeliveryFailures counts pushes that never reached a connection queue
	DeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Failed pushes by reason",
		},
		[]string{"reason"},
	)

	// InboundRejected counts inbound frames answered with an error envelope or dropped
	InboundRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_inbound_rejected_total",
			Help: "Rejected inbound frames by error code",
		},
		[]string{"code"},
	)

	// Persisted counts records written by the store
	Persisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_persisted_total",
			Help: "Persisted records by kind",
		},
		[]string{"kind"},
	)

	// PersistDuration tracks how long message persistence takes
	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_persist_duration_seconds",
			Help:    "Time spent persisting a chat message",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ChannelUsage tracks length and capacity of internal channels
	ChannelUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_channel_usage",
			Help: "Internal channel length and capacity",
		},
		[]string{"channel", "type"},
	)

	// ProcessGauges tracks memory and cpu of the relay process
	ProcessGauges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_process",
			Help: "Process resource usage",
		},
		[]string{"type"},
	)

	// RelayEvents counts external events consumed from redis
	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_external_events_total",
			Help: "External events by outcome",
		},
		[]string{"outcome"},
	)

	// WorkerRestarts counts supervised worker restarts
	WorkerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_worker_restarts_total",
			Help: "Background worker restarts by worker and reason",
		},
		[]string{"worker", "reason"},
	)

	// ValueLogGC counts badger value log garbage collection runs
	ValueLogGC = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_badger_gc_total",
			Help: "Value log GC runs by result",
		},
		[]string{"result"},
	)
)
