// Package kafka bridges Kafka topics into a pipe device. Each consumed
// message value is written into the device as one unit, and the offset is
// marked only after the write lands.
package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"

	apperrors "github.com/jittakal/fifopipe/internal/errors"
)

// PipeWriter is the destination for ingested message values.
type PipeWriter interface {
	Write(ctx context.Context, p []byte, count int) (int, error)
	ElementSize() int
}

// MetricsCollector defines metrics operations for the ingest pump.
type MetricsCollector interface {
	IncMessagesIngested(topic string, partition int32)
	IncIngestErrors(topic, reason string)
}

// IngestConfig contains Kafka consumer configuration for the ingest pump.
type IngestConfig struct {
	BootstrapServers    []string
	GroupID             string
	Topics              []string
	SecurityProtocol    string
	SASLMechanism       string
	SASLUsername        string
	SASLPassword        string
	AutoOffsetReset     string
	MaxPollIntervalMS   int
	SessionTimeoutMS    int
	HeartbeatIntervalMS int
}

// Ingest consumes Kafka messages and feeds them into a pipe device.
type Ingest struct {
	consumerGroup sarama.ConsumerGroup
	config        IngestConfig
	dest          PipeWriter
	logger        *slog.Logger
	metrics       MetricsCollector
	ready         chan bool
	mu            sync.Mutex
	closed        bool
}

// NewIngest creates the Kafka ingest pump using the Sarama library.
func NewIngest(
	config IngestConfig,
	dest PipeWriter,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Ingest, error) {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaConfig.Consumer.Offsets.Initial = offsetInitial(config.AutoOffsetReset)
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true

	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMS) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatIntervalMS) * time.Millisecond

	// A full pipe with no reader can stall a write for a long time. Keep the
	// processing window wide so the group does not rebalance underneath a
	// blocked writer.
	if config.MaxPollIntervalMS > 0 {
		saramaConfig.Consumer.MaxProcessingTime = time.Duration(config.MaxPollIntervalMS) * time.Millisecond
	} else {
		saramaConfig.Consumer.MaxProcessingTime = 5 * time.Minute
	}

	saramaConfig.Consumer.Return.Errors = true

	if err := configureSecurity(saramaConfig, config); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	consumerGroup, err := sarama.NewConsumerGroup(
		config.BootstrapServers,
		config.GroupID,
		saramaConfig,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info("kafka ingest created",
		"group_id", config.GroupID,
		"bootstrap_servers", config.BootstrapServers,
		"topics", config.Topics,
		"session_timeout_ms", config.SessionTimeoutMS,
	)

	return &Ingest{
		consumerGroup: consumerGroup,
		config:        config,
		dest:          dest,
		logger:        logger,
		metrics:       metrics,
		ready:         make(chan bool),
	}, nil
}

// Run consumes messages until the context is cancelled or the consumer
// group fails. It blocks until the first session is established, then
// keeps pumping across rebalances.
func (i *Ingest) Run(ctx context.Context) error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return apperrors.ErrClosed
	}
	i.mu.Unlock()

	handler := &ingestHandler{ingest: i, ready: i.ready}

	errChan := make(chan error, 1)
	go func() {
		for {
			if err := i.consumerGroup.Consume(ctx, i.config.Topics, handler); err != nil {
				i.logger.Error("consumer group error", "error", err)
				errChan <- err
				return
			}
			if ctx.Err() != nil {
				errChan <- nil
				return
			}
		}
	}()

	select {
	case <-i.ready:
		i.logger.Info("kafka ingest started and ready")
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		<-errChan
		return ctx.Err()
	}
}

// Close closes the underlying consumer group.
func (i *Ingest) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	i.logger.Info("closing kafka ingest")
	return i.consumerGroup.Close()
}

// ingestHandler implements sarama.ConsumerGroupHandler.
type ingestHandler struct {
	ingest    *Ingest
	ready     chan bool
	readyOnce sync.Once
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *ingestHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.ingest.logger.Info("consumer group session setup",
		"member_id", session.MemberID(),
		"generation_id", session.GenerationID(),
		"claims", session.Claims(),
	)

	h.readyOnce.Do(func() {
		close(h.ready)
	})
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *ingestHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.ingest.logger.Info("consumer group session cleanup",
		"member_id", session.MemberID(),
	)
	return nil
}

// ConsumeClaim writes each message value into the pipe device and marks
// the offset after the write succeeds. Values longer than the device's
// element size are truncated by the pipe.
func (h *ingestHandler) ConsumeClaim(
	session sarama.ConsumerGroupSession,
	claim sarama.ConsumerGroupClaim,
) error {
	topic := claim.Topic()
	partition := claim.Partition()

	h.ingest.logger.Info("started consuming partition",
		"topic", topic,
		"partition", partition,
		"initial_offset", claim.InitialOffset(),
	)

	elemSize := h.ingest.dest.ElementSize()

	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if len(message.Value) > elemSize {
				h.ingest.logger.Warn("message value exceeds element size, will truncate",
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
					"value_size", len(message.Value),
					"element_size", elemSize,
				)
			}

			n, err := h.ingest.dest.Write(session.Context(), message.Value, len(message.Value))
			if err != nil {
				h.ingest.logger.Error("failed to write message into pipe",
					"error", err,
					"topic", message.Topic,
					"partition", message.Partition,
					"offset", message.Offset,
				)
				if h.ingest.metrics != nil {
					h.ingest.metrics.IncIngestErrors(message.Topic, ingestErrorReason(err))
				}
				// Offset stays unmarked so the message is redelivered.
				if session.Context().Err() != nil {
					return nil
				}
				continue
			}

			session.MarkMessage(message, "")

			h.ingest.logger.Debug("ingested kafka message",
				"topic", message.Topic,
				"partition", message.Partition,
				"offset", message.Offset,
				"bytes", n,
			)

			if h.ingest.metrics != nil {
				h.ingest.metrics.IncMessagesIngested(message.Topic, message.Partition)
			}

		case <-session.Context().Done():
			h.ingest.logger.Info("session context done, stopping partition consumption",
				"topic", topic,
				"partition", partition,
			)
			return nil
		}
	}
}

func ingestErrorReason(err error) string {
	switch {
	case apperrors.IsRetryable(err):
		return "interrupted"
	default:
		return "write_failed"
	}
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK IAM authentication.
type MSKAccessTokenProvider struct {
	region string
}

// Token generates an AWS MSK IAM authentication token.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}

	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": fmt.Sprintf("%d", expiryMs),
		},
	}, nil
}

// offsetInitial converts the AutoOffsetReset config to Sarama's offset constant.
func offsetInitial(autoOffsetReset string) int64 {
	switch autoOffsetReset {
	case "earliest":
		return sarama.OffsetOldest
	case "latest":
		return sarama.OffsetNewest
	default:
		return sarama.OffsetNewest
	}
}

func configureSecurity(config *sarama.Config, ingestConfig IngestConfig) error {
	switch ingestConfig.SecurityProtocol {
	case "PLAINTEXT":
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		config.Net.SASL.Enable = true

		switch ingestConfig.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
			config.Net.SASL.User = ingestConfig.SASLUsername
			config.Net.SASL.Password = ingestConfig.SASLPassword

		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.User = ingestConfig.SASLUsername
			config.Net.SASL.Password = ingestConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
			}

		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.User = ingestConfig.SASLUsername
			config.Net.SASL.Password = ingestConfig.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512()}
			}

		case "AWS_MSK_IAM":
			config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
			config.Net.SASL.Enable = true

			// OAuth does not use username/password, but Sarama requires
			// them to be set to pass validation.
			config.Net.SASL.User = "token"
			config.Net.SASL.Password = "token"

			config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{
				region: "us-east-1",
			}

		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", ingestConfig.SASLMechanism)
		}

		if ingestConfig.SecurityProtocol == "SASL_SSL" {
			config.Net.TLS.Enable = true
			config.Net.TLS.Config = &tls.Config{
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: true, // For local development with self-signed certs
			}
		}

	case "SSL":
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // For local development with self-signed certs
		}

	default:
		return fmt.Errorf("unsupported security protocol: %s", ingestConfig.SecurityProtocol)
	}

	return nil
}
