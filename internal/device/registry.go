package device

import (
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/jittakal/fifopipe/internal/errors"
)

// Registry manages named devices. Devices are created with the registry's
// configured capacity and element size limit; creation is on-demand with
// double-checked locking for efficient concurrent lookups.
type Registry struct {
	devices     map[string]*Device
	capacity    int
	elementSize int
	logger      *slog.Logger
	metrics     MetricsCollector
	mu          sync.RWMutex
}

// NewRegistry creates a device registry.
func NewRegistry(capacity, elementSize int, logger *slog.Logger, metrics MetricsCollector) *Registry {
	return &Registry{
		devices:     make(map[string]*Device),
		capacity:    capacity,
		elementSize: elementSize,
		logger:      logger,
		metrics:     metrics,
	}
}

// Create registers a new device under name. Fails if the name is taken.
func (r *Registry) Create(name string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[name]; exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDeviceExists, name)
	}

	dev, err := New(name, r.capacity, r.elementSize, r.logger, r.metrics)
	if err != nil {
		return nil, err
	}
	r.devices[name] = dev
	return dev, nil
}

// GetOrCreate returns the device registered under name, creating it if
// needed.
func (r *Registry) GetOrCreate(name string) (*Device, error) {
	r.mu.RLock()
	dev, exists := r.devices[name]
	r.mu.RUnlock()

	if exists {
		return dev, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if dev, exists := r.devices[name]; exists {
		return dev, nil
	}

	dev, err := New(name, r.capacity, r.elementSize, r.logger, r.metrics)
	if err != nil {
		return nil, err
	}
	r.devices[name] = dev
	return dev, nil
}

// Lookup returns the device registered under name.
func (r *Registry) Lookup(name string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, exists := r.devices[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDeviceNotFound, name)
	}
	return dev, nil
}

// Remove unregisters and destroys the device under name. Blocked waiters
// on the device are woken and fail with the closed error.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, exists := r.devices[name]
	if !exists {
		return fmt.Errorf("%w: %s", apperrors.ErrDeviceNotFound, name)
	}
	delete(r.devices, name)

	r.logger.Info("device removed", "device", name)
	return dev.Close()
}

// CloseAll destroys every registered device and empties the registry.
// Used at shutdown; the registry handles partially-initialized state
// safely since device Close is idempotent.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for name, dev := range r.devices {
		if err := dev.Close(); err != nil {
			r.logger.Error("error destroying device", "device", name, "error", err)
			lastErr = err
		}
		delete(r.devices, name)
	}
	return lastErr
}
