package events

import (
	"context"
	"encoding/json"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// handlerRetries is how many times a failing handler is retried before the
// message is committed anyway.
const handlerRetries = 3

type Consumer struct {
	reader  KafkaReader
	logger  *zap.Logger
	handler func(context.Context, Event) error
	// policy builds the retry schedule for one message; nil means exponential.
	policy func() backoff.BackOff
}

// NewConsumer reads change events from the topic as part of groupID.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
			Dialer:  kafka.DefaultDialer,
		}),
		logger: logger.Named("kafka_consumer"),
	}
}

// Run fetches, handles and commits messages until ctx is done. Messages that
// fail to parse are committed and skipped. A failing handler is retried with
// backoff; once the retries run out the message is logged and committed, since
// the reader has already moved past it.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message", zap.Error(err))
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error("Failed to parse event",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
			)
			c.commit(ctx, msg, "")
			continue
		}

		if c.handler != nil {
			if err := c.handle(ctx, event); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("Failed to handle event",
					zap.Error(err),
					zap.String("event_type", string(event.Type)),
					zap.Int64("offset", msg.Offset),
				)
			}
		}

		c.commit(ctx, msg, event.Type)
	}
}

func (c *Consumer) handle(ctx context.Context, event Event) error {
	var policy backoff.BackOff
	if c.policy != nil {
		policy = c.policy()
	} else {
		policy = backoff.NewExponentialBackOff()
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := c.handler(ctx, event)
		if err != nil && attempt <= handlerRetries {
			c.logger.Warn("Retrying event handler",
				zap.Error(err),
				zap.String("event_type", string(event.Type)),
				zap.Int("attempt", attempt),
			)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, handlerRetries), ctx))
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message, eventType EventType) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("Failed to commit message",
			zap.Error(err),
			zap.String("event_type", string(eventType)),
		)
	}
}

func (c *Consumer) RegisterHandler(fn func(context.Context, Event) error) {
	c.handler = fn
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka reader", zap.Error(err))
	}
}
