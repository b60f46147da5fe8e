package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// ErrPoison marks a message the handler can never process. It is logged and
// committed so it does not block the partition.
var ErrPoison = errors.New("poison message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Handler func(key, value []byte) error

type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume commits a message only after handler succeeds.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			if !errors.Is(err, ErrPoison) {
				return err
			}
			slog.Warn("skip kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err.Error())
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}
