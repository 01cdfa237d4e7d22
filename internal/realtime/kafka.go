package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	pkgkafka "github.com/utafrali/cartsync/pkg/kafka"
)

// TopicCartUpdated is the backend topic carrying full cart snapshots.
var TopicCartUpdated = pkgkafka.Topic("cart", "updated")

// ReaderFactory builds the kafka reader for one subscription.
type ReaderFactory func(cfg pkgkafka.ConsumerConfig) pkgkafka.MessageReader

// KafkaTransport consumes the backend's cart update topic and keeps the
// events whose aggregate is the subscribed user.
type KafkaTransport struct {
	brokers   []string
	topic     string
	newReader ReaderFactory
	seen      pkgkafka.IdempotencyStore
	logger    *slog.Logger
}

// NewKafkaTransport creates a transport reading TopicCartUpdated from brokers.
func NewKafkaTransport(brokers []string, logger *slog.Logger) *KafkaTransport {
	return &KafkaTransport{
		brokers:   brokers,
		topic:     TopicCartUpdated,
		newReader: pkgkafka.NewReader,
		seen:      pkgkafka.NewMemoryIdempotencyStore(10 * time.Minute),
		logger:    logger,
	}
}

// WithReaderFactory replaces the reader constructor.
func (t *KafkaTransport) WithReaderFactory(f ReaderFactory) *KafkaTransport {
	t.newReader = f
	return t
}

func (t *KafkaTransport) Name() string { return "kafka" }

// Subscribe joins a fresh consumer group starting at the newest offset, so
// every subscriber sees every update published while it is connected.
func (t *KafkaTransport) Subscribe(ctx context.Context, userID string, deliver DeliverFunc) error {
	reader := t.newReader(pkgkafka.ConsumerConfig{
		Brokers:     t.brokers,
		GroupID:     "cartsync-" + uuid.NewString(),
		Topic:       t.topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	handler := func(ctx context.Context, event *pkgkafka.Event) error {
		if event.AggregateID != userID {
			return nil
		}
		deliver(ctx, event.Data)
		return nil
	}

	consumer := pkgkafka.NewConsumer(reader, t.topic,
		pkgkafka.IdempotentHandler(t.seen, handler, t.logger), t.logger)
	return consumer.Start(ctx)
}
