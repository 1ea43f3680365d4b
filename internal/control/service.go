package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/erc20-detector/internal/core/classifier"
	"github.com/vietddude/erc20-detector/internal/core/config"
	"github.com/vietddude/erc20-detector/internal/core/worker"
	"github.com/vietddude/erc20-detector/internal/infra/broker"
	redisclient "github.com/vietddude/erc20-detector/internal/infra/redis"
	"github.com/vietddude/erc20-detector/internal/infra/storage"
	"github.com/vietddude/erc20-detector/internal/infra/storage/postgres"
	"github.com/vietddude/erc20-detector/internal/pipeline/consumer"
	"github.com/vietddude/erc20-detector/internal/pipeline/health"
	"github.com/vietddude/erc20-detector/internal/pipeline/producer"
)

// Service owns every long-lived component of the detector: one broker client shared
// by the producer and consumer loops, the contract store, and the health endpoints.
type Service struct {
	cfg          *config.AppConfig
	store        storage.ContractStore
	db           *postgres.DB
	broker       *broker.Client
	redisClient  *redisclient.Client
	producer     *producer.Loop
	consumer     *consumer.Loop
	backlog      *worker.BacklogReporter
	healthMon    *health.Monitor
	healthServer *health.Server
	group        *errgroup.Group
	cancel       context.CancelFunc
	log          *slog.Logger
}

// Option customises service construction.
type Option func(*options)

type options struct {
	dialer broker.Dialer
	store  storage.ContractStore
}

// WithDialer replaces the AMQP dialer.
func WithDialer(d broker.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithStore uses store instead of opening one from the configuration.
func WithStore(store storage.ContractStore) Option {
	return func(o *options) { o.store = store }
}

// NewService creates a Service with all dependencies initialized. No broker I/O
// happens until Start.
func NewService(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := slog.Default().With("component", "service")

	if cfg.Broker.URL == "" {
		return nil, errors.New("broker.url is required")
	}

	// 1. Classifier
	cls, err := classifier.New(cfg.Classifier.AllowedTokens)
	if err != nil {
		return nil, fmt.Errorf("invalid classifier allow-list: %w", err)
	}

	// 2. Storage
	store, db := o.store, (*postgres.DB)(nil)
	if store == nil {
		store, db, err = OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	// 3. Broker, shared by both loops
	var brokerOpts []broker.Option
	if o.dialer != nil {
		brokerOpts = append(brokerOpts, broker.WithDialer(o.dialer))
	}
	brokerClient := broker.New(cfg.Broker, brokerOpts...)

	// 4. Optional Redis stats
	var redisClient *redisclient.Client
	var producerOpts []producer.Option
	consumerOpts := []consumer.Option{consumer.WithClassifier(cls)}
	if cfg.Redis.Enabled() {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, stats disabled", "error", err)
		} else {
			stats := redisclient.NewStatsStore(redisClient)
			producerOpts = append(producerOpts, producer.WithStats(stats))
			consumerOpts = append(consumerOpts, consumer.WithStats(stats))
		}
	}

	// 5. Loops
	prod := producer.New(producer.Config{
		QueueName:            cfg.QueueName,
		RowsPerBatch:         cfg.RowsPerBatch,
		PollInterval:         cfg.PollInterval,
		ErrorBackoffInterval: cfg.ErrorBackoffInterval,
	}, store, brokerClient, producerOpts...)

	cons := consumer.New(consumer.Config{
		QueueName:            cfg.QueueName,
		PollInterval:         cfg.PollInterval,
		ErrorBackoffInterval: cfg.ErrorBackoffInterval,
	}, store, brokerClient, consumerOpts...)

	// 6. Health
	healthMon := health.NewMonitor(brokerClient, store, cfg.Server.FailedThreshold)
	if db != nil {
		healthMon.AddCheck("database", health.StatusCritical, db.Health)
	}
	if redisClient != nil {
		healthMon.AddCheck("redis", health.StatusDegraded, redisClient.Ping)
	}

	return &Service{
		cfg:          cfg,
		store:        store,
		db:           db,
		broker:       brokerClient,
		redisClient:  redisClient,
		producer:     prod,
		consumer:     cons,
		backlog:      worker.NewBacklogReporter(store, cfg.Server.BacklogInterval),
		healthMon:    healthMon,
		healthServer: health.NewServer(healthMon, cfg.Server.Port),
		log:          log,
	}, nil
}

// Store returns the contract store used by the loops.
func (s *Service) Store() storage.ContractStore {
	return s.store
}

// Start launches the health server, background reporters and both loops. It
// returns immediately; use Wait to block until the loops exit.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	// Start Health Server
	go func() {
		if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}

	go s.backlog.Start(ctx)

	s.group, ctx = errgroup.WithContext(ctx)

	// Connect in the background so a misconfigured broker shows up in the logs at
	// startup without holding up shutdown. Publish and Consume reconnect on their own.
	s.group.Go(func() error {
		if err := s.broker.Connect(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("Broker not reachable yet", "error", err)
		}
		return nil
	})
	s.group.Go(func() error { return s.producer.Run(ctx) })
	s.group.Go(func() error { return s.consumer.Run(ctx) })

	s.log.Info("Detector started", "queue", s.cfg.QueueName, "port", s.cfg.Server.Port)
	return nil
}

// Wait blocks until both loops have returned.
func (s *Service) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// Stop cancels the loops, waits for them and releases every connection.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping detector...")

	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if err := s.Wait(); err != nil {
		errs = append(errs, err)
	}

	// Close Broker
	if err := s.broker.Close(); err != nil {
		errs = append(errs, err)
	}

	// Close Redis
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Close Database
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Health Server
	if err := s.healthServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
