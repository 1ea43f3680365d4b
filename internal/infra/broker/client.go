// Package broker owns the single RabbitMQ connection and channel shared by the pipeline loops.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/erc20-detector/internal/pipeline/metrics"
)

var (
	// ErrNotConnected is returned when no channel could be opened to the broker.
	ErrNotConnected = errors.New("broker not connected")

	// ErrChannelClosed is returned by Consume when the delivery stream ends.
	ErrChannelClosed = errors.New("broker delivery channel closed")
)

// State is the connection state of the client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds broker connection settings.
type Config struct {
	URL        string        `yaml:"url"         envconfig:"URL"`
	MaxRetries uint64        `yaml:"max_retries" envconfig:"MAX_RETRIES"` // retries after the first attempt
	BaseDelay  time.Duration `yaml:"base_delay"  envconfig:"BASE_DELAY"`  // backoff is BaseDelay * 2^attempt
	Prefetch   int           `yaml:"prefetch"    envconfig:"PREFETCH"`
	Durable    bool          `yaml:"durable"     envconfig:"DURABLE"`
}

// DefaultConfig mirrors the historical behaviour: 5 retries, 1s, 2s, 4s, 8s, 16s.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		Prefetch:   1,
	}
}

// Handler is invoked once per delivery. It owns acknowledging the delivery.
type Handler func(ctx context.Context, d Delivery)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the AMQP dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// Client holds one connection and one channel. It is safe for concurrent use; only one
// dial sequence runs at a time and concurrent callers wait for its outcome.
type Client struct {
	cfg  Config
	dial Dialer
	log  *slog.Logger
	sf   singleflight.Group

	mu       sync.RWMutex
	state    State
	conn     Connection
	channel  Channel
	declared map[string]bool
}

// New creates a disconnected client. No I/O happens until the first call that needs the broker.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}

	c := &Client{
		cfg:      cfg,
		dial:     DialAMQP,
		log:      slog.Default().With("component", "broker"),
		state:    StateDisconnected,
		declared: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether the connection and channel are open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedLocked()
}

func (c *Client) connectedLocked() bool {
	return c.state == StateConnected &&
		c.conn != nil && !c.conn.IsClosed() &&
		c.channel != nil && !c.channel.IsClosed()
}

// Connect opens the connection and channel, retrying with exponential backoff.
// It is a no-op when already connected. After the retries are exhausted the client
// stays disconnected and the returned error wraps ErrNotConnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.Connected() {
		return nil
	}

	_, err, _ := c.sf.Do("connect", func() (any, error) {
		if c.Connected() {
			return nil, nil
		}
		return nil, c.connect(ctx)
	})
	return err
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	c.dropLocked()
	c.state = StateConnecting
	c.mu.Unlock()

	attempt := 0
	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewExponential(c.cfg.BaseDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		conn, ch, err := c.open()
		if err != nil {
			metrics.BrokerConnectAttempts.WithLabelValues("failure").Inc()
			c.log.Warn("Failed to connect to broker", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}

		c.mu.Lock()
		c.conn = conn
		c.channel = ch
		c.state = StateConnected
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		metrics.BrokerConnected.Set(0)
		c.log.Error("Giving up connecting to broker", "attempts", attempt, "error", err)
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	metrics.BrokerConnectAttempts.WithLabelValues("success").Inc()
	metrics.BrokerConnected.Set(1)
	c.log.Info("Connected to broker", "attempts", attempt)
	return nil
}

func (c *Client) open() (Connection, Channel, error) {
	conn, err := c.dial(c.cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to set qos: %w", err)
		}
	}
	return conn, ch, nil
}

// dropLocked releases handles left over from a broken connection.
func (c *Client) dropLocked() {
	if c.channel != nil && !c.channel.IsClosed() {
		_ = c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}
	c.channel = nil
	c.conn = nil
	c.declared = make(map[string]bool)
}

func (c *Client) ensureChannel(ctx context.Context) (Channel, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil {
		return nil, ErrNotConnected
	}
	return c.channel, nil
}

func (c *Client) ensureQueue(ch Channel, queue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.declared[queue] {
		return nil
	}
	if _, err := ch.QueueDeclare(queue, c.cfg.Durable, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	c.declared[queue] = true
	return nil
}

// Publish sends payload to queue through the default exchange. Errors are logged and
// returned; the caller decides when to try again.
func (c *Client) Publish(ctx context.Context, queue string, payload []byte) error {
	ch, err := c.ensureChannel(ctx)
	if err != nil {
		c.log.Error("Failed to publish message", "queue", queue, "error", err)
		return err
	}

	if err := c.ensureQueue(ch, queue); err != nil {
		c.log.Error("Failed to publish message", "queue", queue, "error", err)
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         payload,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		c.log.Error("Failed to publish message", "queue", queue, "error", err)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.log.Debug("Published message", "queue", queue, "message_id", msg.MessageId, "bytes", len(payload))
	return nil
}

// Consume declares queue and calls handler for every delivery until ctx is cancelled
// (returns nil) or the delivery stream ends (returns ErrChannelClosed). Deliveries are
// handled one at a time and must be acknowledged by the handler.
func (c *Client) Consume(ctx context.Context, queue string, handler Handler) error {
	ch, err := c.ensureChannel(ctx)
	if err != nil {
		c.log.Error("Failed to consume messages", "queue", queue, "error", err)
		return err
	}

	if err := c.ensureQueue(ch, queue); err != nil {
		c.log.Error("Failed to consume messages", "queue", queue, "error", err)
		return err
	}

	tag := "detector-" + uuid.NewString()
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		c.log.Error("Failed to consume messages", "queue", queue, "error", err)
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("Consuming messages", "queue", queue, "consumer", tag)

	for {
		select {
		case <-ctx.Done():
			// Unacked prefetched deliveries go back to the queue once the tag is gone.
			if err := ch.Cancel(tag, false); err != nil {
				c.log.Warn("Failed to cancel consumer", "queue", queue, "consumer", tag, "error", err)
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.log.Warn("Delivery channel closed", "queue", queue, "consumer", tag)
				return ErrChannelClosed
			}
			handler(ctx, d)
		}
	}
}

// Close closes the channel, then the connection. Failures are logged; the client is
// always left disconnected so a later Connect starts clean.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.log.Error("Failed to close broker channel", "error", err)
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.log.Error("Failed to close broker connection", "error", err)
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}

	c.channel = nil
	c.conn = nil
	c.state = StateDisconnected
	c.declared = make(map[string]bool)
	metrics.BrokerConnected.Set(0)

	return errors.Join(errs...)
}
