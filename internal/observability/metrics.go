package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Pipe metrics
	BytesWritten     *prometheus.CounterVec
	BytesRead        *prometheus.CounterVec
	WritesTruncated  *prometheus.CounterVec
	TransferErrors   *prometheus.CounterVec
	TransferDuration *prometheus.HistogramVec
	ActiveWriters    *prometheus.GaugeVec
	ActiveReaders    *prometheus.GaugeVec
	OpenHandles      *prometheus.GaugeVec

	// Ingest metrics
	MessagesIngested *prometheus.CounterVec
	IngestErrors     *prometheus.CounterVec

	// Drain metrics
	BytesDrained *prometheus.CounterVec
	DrainErrors  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Pipe metrics
		BytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipe_bytes_written_total",
				Help: "Total number of bytes written into the pipe",
			},
			[]string{"device"},
		),
		BytesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipe_bytes_read_total",
				Help: "Total number of bytes read out of the pipe",
			},
			[]string{"device"},
		),
		WritesTruncated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipe_writes_truncated_total",
				Help: "Total number of writes truncated to the element size limit",
			},
			[]string{"device"},
		),
		TransferErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipe_transfer_errors_total",
				Help: "Total number of failed pipe transfers",
			},
			[]string{"device", "op", "reason"},
		),
		TransferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipe_transfer_duration_seconds",
				Help:    "Duration of pipe transfers including blocking time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"device", "op"},
		),
		ActiveWriters: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipe_active_writers",
				Help: "Number of write calls currently in flight, including blocked ones",
			},
			[]string{"device"},
		),
		ActiveReaders: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipe_active_readers",
				Help: "Number of read calls currently in flight, including blocked ones",
			},
			[]string{"device"},
		),
		OpenHandles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipe_open_handles",
				Help: "Number of open handles on the device",
			},
			[]string{"device"},
		),

		// Ingest metrics
		MessagesIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_messages_total",
				Help: "Total number of Kafka messages written into the pipe",
			},
			[]string{"topic", "partition"},
		),
		IngestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_errors_total",
				Help: "Total number of ingest failures",
			},
			[]string{"topic", "reason"},
		),

		// Drain metrics
		BytesDrained: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drain_bytes_total",
				Help: "Total number of bytes drained from the pipe to the sink",
			},
			[]string{"device"},
		),
		DrainErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drain_errors_total",
				Help: "Total number of drain failures",
			},
			[]string{"device", "reason"},
		),
	}
}

// AddBytesWritten adds to the bytes written counter.
func (m *Metrics) AddBytesWritten(device string, n int) {
	m.BytesWritten.WithLabelValues(device).Add(float64(n))
}

// AddBytesRead adds to the bytes read counter.
func (m *Metrics) AddBytesRead(device string, n int) {
	m.BytesRead.WithLabelValues(device).Add(float64(n))
}

// IncWritesTruncated increments the truncated writes counter.
func (m *Metrics) IncWritesTruncated(device string) {
	m.WritesTruncated.WithLabelValues(device).Inc()
}

// IncTransferErrors increments the transfer errors counter.
func (m *Metrics) IncTransferErrors(device, op, reason string) {
	m.TransferErrors.WithLabelValues(device, op, reason).Inc()
}

// ObserveTransferDuration observes a transfer duration.
func (m *Metrics) ObserveTransferDuration(device, op string, duration float64) {
	m.TransferDuration.WithLabelValues(device, op).Observe(duration)
}

// WriterStarted increments the in-flight writers gauge.
func (m *Metrics) WriterStarted(device string) {
	m.ActiveWriters.WithLabelValues(device).Inc()
}

// WriterFinished decrements the in-flight writers gauge.
func (m *Metrics) WriterFinished(device string) {
	m.ActiveWriters.WithLabelValues(device).Dec()
}

// ReaderStarted increments the in-flight readers gauge.
func (m *Metrics) ReaderStarted(device string) {
	m.ActiveReaders.WithLabelValues(device).Inc()
}

// ReaderFinished decrements the in-flight readers gauge.
func (m *Metrics) ReaderFinished(device string) {
	m.ActiveReaders.WithLabelValues(device).Dec()
}

// SetOpenHandles sets the open handles gauge.
func (m *Metrics) SetOpenHandles(device string, n int) {
	m.OpenHandles.WithLabelValues(device).Set(float64(n))
}

// IncMessagesIngested increments the ingested messages counter.
func (m *Metrics) IncMessagesIngested(topic string, partition int32) {
	m.MessagesIngested.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncIngestErrors increments the ingest errors counter.
func (m *Metrics) IncIngestErrors(topic, reason string) {
	m.IngestErrors.WithLabelValues(topic, reason).Inc()
}

// AddBytesDrained adds to the drained bytes counter.
func (m *Metrics) AddBytesDrained(device string, n int) {
	m.BytesDrained.WithLabelValues(device).Add(float64(n))
}

// IncDrainErrors increments the drain errors counter.
func (m *Metrics) IncDrainErrors(device, reason string) {
	m.DrainErrors.WithLabelValues(device, reason).Inc()
}
