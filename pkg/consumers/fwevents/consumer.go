package fwevents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/astreg/pkg/logger"
)

const (
	defaultMaxAckPending = 1000
	fetchErrorBackoff    = time.Second
	nakDelay             = 250 * time.Millisecond
)

// Consumer pulls firmware events from a durable JetStream consumer.
type Consumer struct {
	streamName   string
	consumerName string
	consumer     jetstream.Consumer
	cfg          *Config
	logger       logger.Logger
}

// NewConsumer gets the durable consumer, creating it when it does not exist.
func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg *Config, log logger.Logger) (*Consumer, error) {
	log.Info().
		Str("stream", cfg.StreamName).
		Str("consumer", cfg.ConsumerName).
		Msg("Creating/getting pull consumer")

	consumer, err := js.Consumer(ctx, cfg.StreamName, cfg.ConsumerName)
	if err != nil {
		if !errors.Is(err, jetstream.ErrConsumerNotFound) {
			return nil, fmt.Errorf("failed to get consumer %s: %w", cfg.ConsumerName, err)
		}

		consumer, err = js.CreateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       time.Duration(cfg.AckWait),
			MaxDeliver:    cfg.MaxDeliver,
			MaxAckPending: defaultMaxAckPending,
			FilterSubject: cfg.SubjectPrefix + ".>",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	return &Consumer{
		streamName:   cfg.StreamName,
		consumerName: cfg.ConsumerName,
		consumer:     consumer,
		cfg:          cfg,
		logger:       log,
	}, nil
}

// ProcessMessages fetches batches until ctx is done. Messages of one batch are
// submitted in stream order, so per-pdev ordering follows the stream.
func (c *Consumer) ProcessMessages(ctx context.Context, processor *Processor) {
	c.logger.Info().
		Str("stream", c.streamName).
		Str("consumer", c.consumerName).
		Msg("Starting pull consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Stopping message processing due to context cancellation")
			return
		default:
		}

		msgs, err := c.consumer.Fetch(c.cfg.FetchBatch, jetstream.FetchMaxWait(time.Duration(c.cfg.FetchWait)))
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			c.logger.Warn().Err(err).Msg("Failed to fetch messages")

			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchErrorBackoff):
			}

			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg, processor)
		}

		if fetchErr := msgs.Error(); fetchErr != nil && !errors.Is(fetchErr, jetstream.ErrNoMessages) && ctx.Err() == nil {
			c.logger.Debug().Err(fetchErr).Msg("Fetch ended with error")
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg, processor *Processor) {
	if err := processor.Process(ctx, msg, func(err error) { c.settle(msg, err) }); err != nil {
		c.settle(msg, err)
	}
}

// settle acks applied and rejected events and naks transient failures until
// the delivery budget is spent.
func (c *Consumer) settle(msg jetstream.Msg, err error) {
	var delivered uint64

	var seq uint64

	if meta, metaErr := msg.Metadata(); metaErr == nil {
		delivered = meta.NumDelivered
		seq = meta.Sequence.Stream
	}

	switch {
	case err == nil:
		c.ack(msg)
	case !Retryable(err):
		c.logger.Warn().
			Err(err).
			Str("subject", msg.Subject()).
			Uint64("seq", seq).
			Msg("Firmware event rejected")
		c.ack(msg)
	case delivered >= uint64(c.cfg.MaxDeliver):
		c.logger.Error().
			Err(err).
			Str("subject", msg.Subject()).
			Uint64("seq", seq).
			Uint64("deliveries", delivered).
			Msg("Max retries reached, terminating message")

		if termErr := msg.Term(); termErr != nil {
			c.logger.Warn().Err(termErr).Msg("Failed to terminate message")
		}
	default:
		c.logger.Debug().
			Err(err).
			Uint64("seq", seq).
			Uint64("deliveries", delivered).
			Msg("Transient failure, requesting redelivery")

		if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
			c.logger.Warn().Err(nakErr).Msg("Failed to nak message")
		}
	}
}

func (c *Consumer) ack(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		c.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("Failed to ack message")
	}
}
