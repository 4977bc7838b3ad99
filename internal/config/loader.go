package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jittakal/fifopipe/internal/config/dto"
	"github.com/spf13/viper"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	// Set defaults
	l.setDefaults()

	// Load from file if provided
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand environment variables in config values
	// Only expand if the value contains ${...} pattern
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	// Unmarshal configuration
	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "fifopipe")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Device defaults
	l.v.SetDefault("device.name", "fifo0")
	l.v.SetDefault("device.capacity", 4096)
	l.v.SetDefault("device.element_size", 1024)

	// Server defaults
	l.v.SetDefault("server.data.port", 8090)

	// Kafka ingest defaults
	l.v.SetDefault("kafka.enabled", false)
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)

	// Sink defaults
	l.v.SetDefault("sink.enabled", false)
	l.v.SetDefault("sink.file_name", "pipe.out")
	l.v.SetDefault("sink.chunk_size", 512)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	// Device validation
	if config.Device.Name == "" {
		return errors.New("device.name is required")
	}
	if config.Device.Capacity <= 0 {
		return fmt.Errorf("device.capacity must be positive, got %d", config.Device.Capacity)
	}
	if config.Device.ElementSize <= 0 {
		return fmt.Errorf("device.element_size must be positive, got %d", config.Device.ElementSize)
	}

	// Kafka validation (only when the ingest bridge is enabled)
	if config.Kafka.Enabled {
		if len(config.Kafka.BootstrapServers) == 0 {
			return errors.New("kafka.bootstrap_servers is required when kafka is enabled")
		}
		if config.Kafka.Consumer.GroupID == "" {
			return errors.New("kafka.consumer.group_id is required when kafka is enabled")
		}
		if len(config.Kafka.Consumer.Topics) == 0 {
			return errors.New("kafka.consumer.topics is required when kafka is enabled")
		}
	}

	// Sink validation
	if config.Sink.Enabled {
		if config.Sink.BasePath == "" {
			return errors.New("sink.base_path is required when sink is enabled")
		}
		if config.Sink.ChunkSize <= 0 {
			return fmt.Errorf("sink.chunk_size must be positive, got %d", config.Sink.ChunkSize)
		}
	}

	// Port validation
	if config.Server.Data.Port < 1 || config.Server.Data.Port > 65535 {
		return fmt.Errorf("invalid data server port: %d", config.Server.Data.Port)
	}
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
