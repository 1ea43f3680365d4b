package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/erc20-detector/internal/core/domain"
	"github.com/vietddude/erc20-detector/internal/infra/storage"
	"github.com/vietddude/erc20-detector/internal/pipeline"
	"github.com/vietddude/erc20-detector/internal/pipeline/metrics"
)

// Publisher sends a payload to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload []byte) error
}

// StatsRecorder receives a note of every published batch.
type StatsRecorder interface {
	RecordSweep(ctx context.Context, size int, at time.Time) error
}

// Config holds configuration for the producer loop.
type Config struct {
	QueueName            string
	RowsPerBatch         int
	PollInterval         time.Duration
	ErrorBackoffInterval time.Duration
}

// DefaultConfig returns default producer configuration.
func DefaultConfig() Config {
	return Config{
		QueueName:            "contracts_queue",
		RowsPerBatch:         1000,
		PollInterval:         5 * time.Second,
		ErrorBackoffInterval: 10 * time.Second,
	}
}

// Loop periodically publishes eligible contracts and marks them in flight.
type Loop struct {
	cfg       Config
	repo      storage.ContractRepository
	publisher Publisher
	stats     StatsRecorder
	log       *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithStats records every published batch in s.
func WithStats(s StatsRecorder) Option {
	return func(l *Loop) { l.stats = s }
}

// New creates a producer loop.
func New(cfg Config, repo storage.ContractRepository, publisher Publisher, opts ...Option) *Loop {
	if cfg.RowsPerBatch <= 0 {
		cfg.RowsPerBatch = DefaultConfig().RowsPerBatch
	}
	l := &Loop{
		cfg:       cfg,
		repo:      repo,
		publisher: publisher,
		log:       slog.Default().With("component", "producer", "queue", cfg.QueueName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run sweeps until ctx is cancelled. Errors never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("Starting producer",
		"rows_per_batch", l.cfg.RowsPerBatch,
		"poll_interval", l.cfg.PollInterval,
	)

	for {
		if ctx.Err() != nil {
			l.log.Info("Producer stopped")
			return nil
		}

		wait := l.cfg.PollInterval
		if _, err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				l.log.Info("Producer stopped")
				return nil
			}
			l.log.Error("Producer cycle failed", "error", err, "retry_in", l.cfg.ErrorBackoffInterval)
			wait = l.cfg.ErrorBackoffInterval
		}

		if !pipeline.Sleep(ctx, wait) {
			l.log.Info("Producer stopped")
			return nil
		}
	}
}

// RunOnce performs a single sweep and returns the number of contracts published.
// A failed publish leaves the contracts untouched so the next sweep picks them up.
func (l *Loop) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.ProducerCycleDuration.Observe(time.Since(start).Seconds())
	}()

	contracts, err := l.repo.FetchEligible(ctx, l.cfg.RowsPerBatch)
	if err != nil {
		metrics.PipelineErrors.WithLabelValues("producer", "fetch").Inc()
		return 0, fmt.Errorf("failed to fetch contracts: %w", err)
	}

	if len(contracts) == 0 {
		l.log.Info("No contracts to publish")
		return 0, nil
	}

	payload, err := domain.EncodeBatch(contracts)
	if err != nil {
		metrics.PipelineErrors.WithLabelValues("producer", "encode").Inc()
		return 0, err
	}

	if err := l.publisher.Publish(ctx, l.cfg.QueueName, payload); err != nil {
		metrics.PipelineErrors.WithLabelValues("producer", "publish").Inc()
		return 0, fmt.Errorf("failed to publish %d contracts: %w", len(contracts), err)
	}

	ids := domain.ContractIDs(contracts)
	if err := l.repo.BulkUpdate(ctx, ids, domain.InFlightUpdate()); err != nil {
		metrics.PipelineErrors.WithLabelValues("producer", "update").Inc()
		return 0, fmt.Errorf("failed to mark contracts in flight: %w", err)
	}

	metrics.BatchesPublished.Inc()
	metrics.ContractsPublished.Add(float64(len(contracts)))

	if l.stats != nil {
		if err := l.stats.RecordSweep(ctx, len(contracts), time.Now()); err != nil {
			l.log.Warn("Failed to record sweep stats", "error", err)
		}
	}

	l.log.Info("Published contracts", "count", len(contracts), "first_id", ids[0], "last_id", ids[len(ids)-1])
	return len(contracts), nil
}
