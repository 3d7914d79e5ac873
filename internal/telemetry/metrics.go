package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RecordsCaptured counts records successfully built from dissected
	// frames, by link type ("wifi"/"ble").
	RecordsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteid",
			Name:      "records_captured_total",
			Help:      "Total number of Remote ID records captured",
		},
		[]string{"link"},
	)

	// RecordsDropped counts records dropped before reaching a CSV, by
	// reason ("queue_full", "invalid_field", "missing_field", "no_odid",
	// "write_error").
	RecordsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteid",
			Name:      "records_dropped_total",
			Help:      "Total number of records dropped before reaching a CSV window",
		},
		[]string{"reason"},
	)

	// WindowsClosed counts CSV windows closed, by reason
	// ("count", "time", "starvation", "sentinel", "sigint", "fatal",
	// "cancelled", "empty").
	WindowsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteid",
			Name:      "csv_windows_closed_total",
			Help:      "Total number of CSV windows closed",
		},
		[]string{"reason"},
	)

	// UploadOutcomes counts upload attempts by outcome ("success", "failure").
	UploadOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remoteid",
			Name:      "upload_outcomes_total",
			Help:      "Total number of upload attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ChannelHits tracks the observed per-channel record count reported by
	// Packet Capture to the Channel Sweeper.
	ChannelHits = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "remoteid",
			Name:      "channel_hits",
			Help:      "Observed record count per radio channel",
		},
		[]string{"channel"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// This function is idempotent and can be called multiple times safely.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(RecordsCaptured)
		prometheus.DefaultRegisterer.Register(RecordsDropped)
		prometheus.DefaultRegisterer.Register(WindowsClosed)
		prometheus.DefaultRegisterer.Register(UploadOutcomes)
		prometheus.DefaultRegisterer.Register(ChannelHits)
	})
}
