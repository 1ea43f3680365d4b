package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/erc20-detector/internal/core/classifier"
	"github.com/vietddude/erc20-detector/internal/core/domain"
	"github.com/vietddude/erc20-detector/internal/infra/broker"
	"github.com/vietddude/erc20-detector/internal/infra/storage"
	"github.com/vietddude/erc20-detector/internal/pipeline"
	"github.com/vietddude/erc20-detector/internal/pipeline/metrics"
)

// Subscriber delivers queue messages to a handler until ctx is cancelled or the
// subscription breaks.
type Subscriber interface {
	Consume(ctx context.Context, queue string, handler broker.Handler) error
}

// StatsRecorder receives verdict counts for every classified batch.
type StatsRecorder interface {
	RecordVerdicts(ctx context.Context, compliant, nonCompliant int) error
}

// Config holds configuration for the consumer loop.
type Config struct {
	QueueName            string
	PollInterval         time.Duration
	ErrorBackoffInterval time.Duration
}

// DefaultConfig returns default consumer configuration.
func DefaultConfig() Config {
	return Config{
		QueueName:            "contracts_queue",
		PollInterval:         5 * time.Second,
		ErrorBackoffInterval: 10 * time.Second,
	}
}

// Loop classifies batches taken from the queue and writes the verdicts back.
type Loop struct {
	cfg        Config
	repo       storage.ContractRepository
	subscriber Subscriber
	classifier *classifier.Classifier
	stats      StatsRecorder
	log        *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithStats records verdict counts in s.
func WithStats(s StatsRecorder) Option {
	return func(l *Loop) { l.stats = s }
}

// WithClassifier replaces the default allow-list classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(l *Loop) { l.classifier = c }
}

// New creates a consumer loop.
func New(cfg Config, repo storage.ContractRepository, subscriber Subscriber, opts ...Option) *Loop {
	l := &Loop{
		cfg:        cfg,
		repo:       repo,
		subscriber: subscriber,
		classifier: classifier.Default(),
		log:        slog.Default().With("component", "consumer", "queue", cfg.QueueName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run consumes until ctx is cancelled. A broken subscription is re-established after
// the poll interval.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("Starting consumer")

	for {
		err := l.subscriber.Consume(ctx, l.cfg.QueueName, l.Handle)
		if ctx.Err() != nil {
			l.log.Info("Consumer stopped")
			return nil
		}
		if err != nil {
			metrics.PipelineErrors.WithLabelValues("consumer", "subscribe").Inc()
			l.log.Error("Consumer subscription failed", "error", err, "retry_in", l.cfg.PollInterval)
		}

		if !pipeline.Sleep(ctx, l.cfg.PollInterval) {
			l.log.Info("Consumer stopped")
			return nil
		}
	}
}

// Handle processes one delivery. Malformed payloads are rejected without requeue.
// Storage failures are nacked with requeue after the error backoff so the broker
// redelivers the batch. The delivery is acked only once every verdict is committed.
func (l *Loop) Handle(ctx context.Context, d broker.Delivery) {
	log := l.log.With("delivery_tag", d.DeliveryTag, "message_id", d.MessageId)

	contracts, err := domain.DecodeBatch(d.Body)
	if err != nil {
		metrics.PipelineErrors.WithLabelValues("consumer", "decode").Inc()
		log.Error("Dropping malformed batch", "error", err, "bytes", len(d.Body))
		if err := d.Reject(false); err != nil {
			log.Error("Failed to reject delivery", "error", err)
		}
		return
	}

	result, err := l.process(ctx, contracts)
	if err != nil {
		metrics.PipelineErrors.WithLabelValues("consumer", "update").Inc()
		log.Error("Failed to store verdicts", "error", err, "retry_in", l.cfg.ErrorBackoffInterval)
		pipeline.Sleep(ctx, l.cfg.ErrorBackoffInterval)
		if err := d.Nack(false, true); err != nil {
			log.Error("Failed to nack delivery", "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("Failed to ack delivery", "error", err)
		return
	}

	log.Info("Classified contracts",
		"count", len(contracts),
		"compliant", len(result.Compliant),
		"non_compliant", len(result.NonCompliant),
	)
}

func (l *Loop) process(ctx context.Context, contracts []domain.ContractToAnalyze) (classifier.Result, error) {
	result := l.classifier.Partition(contracts)

	if len(result.Compliant) > 0 {
		if err := l.repo.BulkUpdate(ctx, result.Compliant, domain.ProcessedUpdate(true)); err != nil {
			return result, fmt.Errorf("failed to store compliant verdicts: %w", err)
		}
	}
	if len(result.NonCompliant) > 0 {
		if err := l.repo.BulkUpdate(ctx, result.NonCompliant, domain.ProcessedUpdate(false)); err != nil {
			return result, fmt.Errorf("failed to store non-compliant verdicts: %w", err)
		}
	}

	metrics.ContractsClassified.WithLabelValues("compliant").Add(float64(len(result.Compliant)))
	metrics.ContractsClassified.WithLabelValues("non_compliant").Add(float64(len(result.NonCompliant)))

	if l.stats != nil {
		if err := l.stats.RecordVerdicts(ctx, len(result.Compliant), len(result.NonCompliant)); err != nil {
			l.log.Warn("Failed to record verdict stats", "error", err)
		}
	}
	return result, nil
}
