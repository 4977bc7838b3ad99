// Package device implements the registration and identity layer around the
// pipe core. A Device binds a named pipe buffer to logging and metrics;
// the Registry tracks devices by name the way the original registers a
// character device per identity.
package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/jittakal/fifopipe/internal/errors"
	"github.com/jittakal/fifopipe/internal/fifo"
)

// MetricsCollector defines metrics operations for device transfers.
type MetricsCollector interface {
	AddBytesWritten(device string, n int)
	AddBytesRead(device string, n int)
	IncWritesTruncated(device string)
	IncTransferErrors(device, op, reason string)
	ObserveTransferDuration(device, op string, duration float64)
	WriterStarted(device string)
	WriterFinished(device string)
	ReaderStarted(device string)
	ReaderFinished(device string)
	SetOpenHandles(device string, n int)
}

// Device is a named pipe with observability around every transfer.
// The pipe itself never sees the device identity; all naming, logging and
// accounting live here.
type Device struct {
	name    string
	buf     *fifo.Buffer
	logger  *slog.Logger
	metrics MetricsCollector

	mu      sync.Mutex
	handles int
}

// New creates a device with a freshly allocated pipe buffer.
func New(name string, capacity, elementSize int, logger *slog.Logger, metrics MetricsCollector) (*Device, error) {
	buf, err := fifo.New(capacity, elementSize)
	if err != nil {
		return nil, err
	}

	logger.Info("device created",
		"device", name,
		"capacity", capacity,
		"element_size", elementSize,
	)

	return &Device{
		name:    name,
		buf:     buf,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Name returns the device identity.
func (d *Device) Name() string {
	return d.name
}

// Open records a caller taking a handle on the device.
func (d *Device) Open() {
	d.mu.Lock()
	d.handles++
	n := d.handles
	d.mu.Unlock()

	d.logger.Debug("device open", "device", d.name, "handles", n)
	if d.metrics != nil {
		d.metrics.SetOpenHandles(d.name, n)
	}
}

// Release records a caller dropping its handle on the device.
func (d *Device) Release() {
	d.mu.Lock()
	if d.handles > 0 {
		d.handles--
	}
	n := d.handles
	d.mu.Unlock()

	d.logger.Debug("device close", "device", d.name, "handles", n)
	if d.metrics != nil {
		d.metrics.SetOpenHandles(d.name, n)
	}
}

// Write transfers up to count bytes from p into the pipe, blocking while
// it is judged full. Truncation to the element size limit is silent, as
// the pipe contract specifies, but is counted for observability.
func (d *Device) Write(ctx context.Context, p []byte, count int) (int, error) {
	if d.metrics != nil {
		d.metrics.WriterStarted(d.name)
		defer d.metrics.WriterFinished(d.name)
	}

	start := time.Now()
	n, err := d.buf.Write(ctx, p, count)
	d.observe("write", start)

	if err != nil {
		if d.metrics != nil {
			d.metrics.IncTransferErrors(d.name, "write", reason(err))
		}
		return 0, &apperrors.TransferError{
			Op:        "write",
			Device:    d.name,
			Requested: count,
			Err:       err,
		}
	}

	if d.metrics != nil {
		d.metrics.AddBytesWritten(d.name, n)
		if n < count {
			d.metrics.IncWritesTruncated(d.name)
		}
	}
	d.logger.Debug("pipe write", "device", d.name, "requested", count, "transferred", n)
	return n, nil
}

// Read transfers count bytes out of the pipe, blocking while it is judged
// empty.
func (d *Device) Read(ctx context.Context, count int) ([]byte, int, error) {
	if d.metrics != nil {
		d.metrics.ReaderStarted(d.name)
		defer d.metrics.ReaderFinished(d.name)
	}

	start := time.Now()
	data, n, err := d.buf.Read(ctx, count)
	d.observe("read", start)

	if err != nil {
		if d.metrics != nil {
			d.metrics.IncTransferErrors(d.name, "read", reason(err))
		}
		return nil, 0, &apperrors.TransferError{
			Op:        "read",
			Device:    d.name,
			Requested: count,
			Err:       err,
		}
	}

	if d.metrics != nil {
		d.metrics.AddBytesRead(d.name, n)
	}
	d.logger.Debug("pipe read", "device", d.name, "requested", count, "transferred", n)
	return data, n, nil
}

// ElementSize answers the configuration query for the per-write limit.
// Immutable, so no locking is involved.
func (d *Device) ElementSize() int {
	return d.buf.ElementSize()
}

// Capacity reports the pipe's usable region size in bytes.
func (d *Device) Capacity() int {
	return d.buf.Capacity()
}

// Empty reports whether the pipe currently holds no readable bytes.
func (d *Device) Empty() bool {
	return d.buf.Empty()
}

// Full reports whether the fullness heuristic judges the pipe full.
func (d *Device) Full() bool {
	return d.buf.Full()
}

// Close destroys the underlying pipe. Idempotent.
func (d *Device) Close() error {
	d.logger.Info("device destroyed", "device", d.name)
	return d.buf.Close()
}

func (d *Device) observe(op string, start time.Time) {
	if d.metrics != nil {
		d.metrics.ObserveTransferDuration(d.name, op, time.Since(start).Seconds())
	}
}

// reason maps a transfer failure to a metric label.
func reason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrFault):
		return "fault"
	case errors.Is(err, apperrors.ErrInterrupted):
		return "interrupted"
	case errors.Is(err, apperrors.ErrClosed):
		return "closed"
	default:
		return "other"
	}
}
