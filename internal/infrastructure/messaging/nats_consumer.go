package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alem-hub/gamification/internal/domain/shared"
	"github.com/alem-hub/gamification/pkg/logger"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ══════════════════════════════════════════════════════════════════════════════
// NATS JETSTREAM CONSUMER
// ══════════════════════════════════════════════════════════════════════════════

// ConsumerConfig configures the JetStream consumer.
type ConsumerConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Durable       string
	QueueGroup    string
	MaxDeliver    int
	AckWait       time.Duration
	NakDelay      time.Duration

	// HandlerTimeout bounds one message's processing.
	HandlerTimeout time.Duration

	// CreateStream declares the stream when it does not exist.
	CreateStream bool
}

// DefaultConsumerConfig returns sensible defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:            nats.DefaultURL,
		Stream:         "LEARNING",
		SubjectPrefix:  DefaultSubjectPrefix,
		Durable:        "gamification",
		QueueGroup:     "gamification",
		MaxDeliver:     10,
		AckWait:        30 * time.Second,
		NakDelay:       2 * time.Second,
		HandlerTimeout: 20 * time.Second,
		CreateStream:   true,
	}
}

// disposition is what happens to a message after processing.
type disposition int

const (
	dispositionAck disposition = iota
	dispositionNak
	dispositionTerm
)

func (d disposition) String() string {
	switch d {
	case dispositionAck:
		return "ack"
	case dispositionNak:
		return "nak"
	default:
		return "term"
	}
}

// classify maps a processing error to a disposition. Malformed messages and
// domain rejections are terminated; everything else is redelivered.
func classify(err error) disposition {
	switch {
	case err == nil:
		return dispositionAck
	case errors.Is(err, ErrMalformedMessage):
		return dispositionTerm
	case !shared.IsRetryable(err):
		return dispositionTerm
	default:
		return dispositionNak
	}
}

// Consumer receives learning events from JetStream and publishes them on an
// in-process bus. The bus must run in sync mode so handler errors decide the ack.
type Consumer struct {
	cfg    ConsumerConfig
	bus    shared.EventPublisher
	logger *zap.Logger

	mu   sync.Mutex
	nc   *nats.Conn
	subs []*nats.Subscription
}

// NewConsumer creates a consumer. Call Start to connect.
func NewConsumer(cfg ConsumerConfig, bus shared.EventPublisher, log *zap.Logger) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Stream == "" {
		cfg.Stream = def.Stream
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = def.SubjectPrefix
	}
	if cfg.Durable == "" {
		cfg.Durable = def.Durable
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = def.QueueGroup
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = def.MaxDeliver
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = def.AckWait
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		cfg:    cfg,
		bus:    bus,
		logger: log.With(logger.Component("nats_consumer")),
	}
}

// Start connects, declares the stream if configured, and subscribes.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc != nil {
		return errors.New("consumer already started")
	}

	nc, err := nats.Connect(c.cfg.URL,
		nats.Name("gamification-worker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("nats disconnected", logger.Err(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := nc.JetStream(nats.Context(ctx))
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to open jetstream context: %w", err)
	}

	if c.cfg.CreateStream {
		if err := c.ensureStream(js); err != nil {
			nc.Close()
			return err
		}
	}

	subject := c.cfg.SubjectPrefix + ".>"
	sub, err := js.QueueSubscribe(subject, c.cfg.QueueGroup, c.onMessage,
		nats.Durable(c.cfg.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(c.cfg.MaxDeliver),
		nats.AckWait(c.cfg.AckWait),
		nats.DeliverAll(),
	)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.nc = nc
	c.subs = append(c.subs, sub)

	c.logger.Info("consumer started",
		zap.String("subject", subject),
		zap.String("stream", c.cfg.Stream),
		zap.String("durable", c.cfg.Durable),
	)
	return nil
}

func (c *Consumer) ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(c.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", c.cfg.Stream, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  Subjects(c.cfg.SubjectPrefix),
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", c.cfg.Stream, err)
	}
	c.logger.Info("stream created", zap.String("stream", c.cfg.Stream))
	return nil
}

func (c *Consumer) onMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandlerTimeout)
	defer cancel()

	d, err := c.process(ctx, msg.Data)

	fields := []zap.Field{zap.String("subject", msg.Subject), zap.Stringer("disposition", d)}
	if meta, mErr := msg.Metadata(); mErr == nil {
		fields = append(fields, zap.Uint64("delivered", meta.NumDelivered))
	}
	if err != nil {
		c.logger.Warn("learning event not processed", append(fields, logger.Err(err))...)
	}

	var ackErr error
	switch d {
	case dispositionAck:
		ackErr = msg.Ack()
	case dispositionNak:
		if c.cfg.NakDelay > 0 {
			ackErr = msg.NakWithDelay(c.cfg.NakDelay)
		} else {
			ackErr = msg.Nak()
		}
	case dispositionTerm:
		ackErr = msg.Term()
	}
	if ackErr != nil {
		c.logger.Error("failed to acknowledge message", append(fields, logger.Err(ackErr))...)
	}
}

// process decodes and publishes one message.
func (c *Consumer) process(ctx context.Context, data []byte) (disposition, error) {
	ev, err := DecodeLearningEvent(data)
	if err != nil {
		return classify(err), err
	}
	err = c.bus.Publish(ctx, ev)
	return classify(err), err
}

// Stop drains the subscriptions and closes the connection.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return nil
	}

	var firstErr error
	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.nc.Drain(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.nc = nil
	c.subs = nil

	c.logger.Info("consumer stopped")
	return firstErr
}

// Connected reports whether the NATS connection is up.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nc != nil && c.nc.IsConnected()
}
