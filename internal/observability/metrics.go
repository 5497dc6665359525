package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by a sender or receiver
// process.
type Metrics struct {
	TransfersTotal      *prometheus.CounterVec
	TransfersActive     prometheus.Gauge
	TransferDuration    prometheus.Histogram
	BytesTransferred    *prometheus.CounterVec
	ChunksSentTotal     prometheus.Counter
	ChunksReceivedTotal prometheus.Counter
	ChunksRetransmitted *prometheus.CounterVec
	AckLatency          prometheus.Histogram
	ReconnectsTotal     *prometheus.CounterVec
	ChecksumMismatches  prometheus.Counter
	ChunksFingerprinted prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		TransfersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshxfer_transfers_total",
				Help: "Total transfers initiated, by outcome",
			},
			[]string{"status"},
		),
		TransfersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "meshxfer_transfers_active",
				Help: "Currently active transfers",
			},
		),
		TransferDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meshxfer_transfer_duration_seconds",
				Help:    "Transfer completion time distribution",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		BytesTransferred: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshxfer_bytes_transferred_total",
				Help: "Total bytes transferred, by direction",
			},
			[]string{"direction"},
		),
		ChunksSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshxfer_chunks_sent_total",
				Help: "Total chunks sent",
			},
		),
		ChunksReceivedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshxfer_chunks_received_total",
				Help: "Total distinct chunks accepted by the receiver",
			},
		),
		ChunksRetransmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshxfer_chunks_retransmitted_total",
				Help: "Chunks requiring retransmission, by reason",
			},
			[]string{"reason"},
		),
		AckLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meshxfer_ack_latency_seconds",
				Help:    "Time from chunk send to matching ack",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
			},
		),
		ReconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshxfer_reconnects_total",
				Help: "Reconnect attempts, by outcome",
			},
			[]string{"result"},
		),
		ChecksumMismatches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshxfer_checksum_mismatches_total",
				Help: "Completed transfers that failed whole-file checksum verification",
			},
		),
		ChunksFingerprinted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "meshxfer_chunks_fingerprinted_total",
				Help: "Newly accepted chunks fingerprinted with the diagnostic BLAKE3 digest",
			},
		),
	}
}

// RecordTransferStart marks a transfer as active.
func (m *Metrics) RecordTransferStart() { m.TransfersActive.Inc() }

// RecordTransferComplete records transfer completion metrics.
func (m *Metrics) RecordTransferComplete(success bool, durationSeconds float64) {
	m.TransfersActive.Dec()
	status := "success"
	if !success {
		status = "failure"
	}
	m.TransfersTotal.WithLabelValues(status).Inc()
	m.TransferDuration.Observe(durationSeconds)
}

// RecordChunkSent updates metrics for a sent chunk.
func (m *Metrics) RecordChunkSent(bytes int) {
	m.ChunksSentTotal.Inc()
	m.BytesTransferred.WithLabelValues("sent").Add(float64(bytes))
}

// RecordChunkReceived updates metrics for an accepted chunk.
func (m *Metrics) RecordChunkReceived(bytes int) {
	m.ChunksReceivedTotal.Inc()
	m.BytesTransferred.WithLabelValues("received").Add(float64(bytes))
}

// RecordChunkRetransmit increments the retransmit counter for reason.
func (m *Metrics) RecordChunkRetransmit(reason string) {
	m.ChunksRetransmitted.WithLabelValues(reason).Inc()
}

// RecordReconnect records a reconnect attempt outcome.
func (m *Metrics) RecordReconnect(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ReconnectsTotal.WithLabelValues(result).Inc()
}

// RecordAckLatency observes the round-trip latency for an acknowledged chunk.
func (m *Metrics) RecordAckLatency(seconds float64) { m.AckLatency.Observe(seconds) }

// RecordChecksumMismatch increments the checksum-mismatch counter.
func (m *Metrics) RecordChecksumMismatch() { m.ChecksumMismatches.Inc() }

// RecordChunkFingerprinted increments the fingerprinted-chunk counter.
func (m *Metrics) RecordChunkFingerprinted() { m.ChunksFingerprinted.Inc() }

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler { return promhttp.Handler() }
