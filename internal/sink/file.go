// Package sink implements the optional file drain. It pulls bytes out of
// a pipe device and appends them to a local file.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/jittakal/fifopipe/internal/errors"
)

// PipeReader is the source the drain pulls bytes from.
type PipeReader interface {
	Read(ctx context.Context, count int) ([]byte, int, error)
	Name() string
}

// MetricsCollector defines metrics operations for the drain.
type MetricsCollector interface {
	AddBytesDrained(device string, n int)
	IncDrainErrors(device, reason string)
}

// FileConfig contains local filesystem drain configuration.
type FileConfig struct {
	BasePath  string
	FileName  string
	ChunkSize int
}

// FileDrain appends bytes read from a pipe device to a local file.
type FileDrain struct {
	source    PipeReader
	file      *os.File
	chunkSize int
	logger    *slog.Logger
	metrics   MetricsCollector
}

// NewFileDrain creates the drain and opens its output file in append mode.
func NewFileDrain(
	config FileConfig,
	source PipeReader,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileDrain, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", apperrors.ErrInvalidArgument)
	}

	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	fullPath := filepath.Join(config.BasePath, config.FileName)
	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open drain file: %w", err)
	}

	logger.Info("file drain created",
		"device", source.Name(),
		"path", fullPath,
		"chunk_size", config.ChunkSize,
	)

	return &FileDrain{
		source:    source,
		file:      file,
		chunkSize: config.ChunkSize,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Run drains the device until the context is cancelled or the device is
// closed. Each iteration blocks until at least one byte is available.
func (d *FileDrain) Run(ctx context.Context) error {
	device := d.source.Name()

	for {
		data, n, err := d.source.Read(ctx, d.chunkSize)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInterrupted):
				d.logger.Info("file drain stopped", "device", device)
				return nil
			case errors.Is(err, apperrors.ErrClosed):
				d.logger.Info("device closed, stopping file drain", "device", device)
				return nil
			default:
				if d.metrics != nil {
					d.metrics.IncDrainErrors(device, "read")
				}
				return fmt.Errorf("drain read failed: %w", err)
			}
		}

		if _, err := d.file.Write(data[:n]); err != nil {
			if d.metrics != nil {
				d.metrics.IncDrainErrors(device, "write")
			}
			return fmt.Errorf("drain write failed: %w", err)
		}

		if d.metrics != nil {
			d.metrics.AddBytesDrained(device, n)
		}
	}
}

// Close syncs and closes the output file.
func (d *FileDrain) Close() error {
	if err := d.file.Sync(); err != nil {
		d.logger.Error("failed to sync drain file", "error", err)
	}
	return d.file.Close()
}
