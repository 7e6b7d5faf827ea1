package ingress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/config"
	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/types"
)

// MessageReader is the part of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader reads relayed webhooks from the configured topic
func NewKafkaReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.WebhookTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

// KafkaConsumer applies provider events relayed through Kafka. The message
// key is the provider name and the value the raw webhook body.
type KafkaConsumer struct {
	reader     MessageReader
	events     *EventHandler
	attempts   int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewKafkaConsumer(reader MessageReader, events *EventHandler, logger *zap.Logger) *KafkaConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaConsumer{reader: reader, events: events, attempts: 3, retryDelay: time.Second, logger: logger}
}

// Run consumes until ctx is done. A message is committed once it was
// applied, found duplicate or rejected for good. Transient failures are
// retried a few times and then committed too: the orchestrator polls every
// open order, so a lost event only delays it.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *KafkaConsumer) process(ctx context.Context, msg kafka.Message) {
	provider := string(msg.Key)
	mctx := logging.WithCorrelationID(ctx, correlationID(msg))
	for attempt := 1; attempt <= c.attempts; attempt++ {
		outcome, err := c.events.Handle(mctx, provider, msg.Value)
		if err == nil {
			return
		}
		if _, permanent := types.IsPermanent(err); permanent {
			return
		}
		c.logger.Warn("provider event failed",
			zap.String("provider", provider),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryDelay):
		}
	}
	c.logger.Error("provider event given up", zap.String("provider", provider), zap.Int64("offset", msg.Offset))
}

func correlationID(msg kafka.Message) string {
	for _, h := range msg.Headers {
		if h.Key == CorrelationHeader {
			return string(h.Value)
		}
	}
	return uuid.NewString()
}
