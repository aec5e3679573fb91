package event

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/erp/backoffice/internal/domain/billing"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Kafka message headers set on every forwarded notification
const (
	HeaderEventType = "event-type"
	HeaderEventID   = "event-id"
)

// NewKafkaProducer creates a synchronous producer. A failed send is not
// retried, so each notification reaches the topic at most once.
func NewKafkaProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return producer, nil
}

// NewProducerConfig returns the sarama configuration used for notifications
func NewProducerConfig(cfg config.KafkaConfig) *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.ClientID = cfg.ClientID
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	kafkaConfig.Producer.Retry.Max = 0
	kafkaConfig.Producer.Return.Successes = true
	return kafkaConfig
}

// KafkaForwarder is an EventHandler that forwards payment notifications to
// a Kafka topic. Messages are keyed by aggregate id so all notifications of
// one order land on the same partition, in order.
type KafkaForwarder struct {
	producer   sarama.SyncProducer
	topic      string
	serializer *EventSerializer
	logger     *zap.Logger
}

// NewKafkaForwarder creates a new KafkaForwarder
func NewKafkaForwarder(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaForwarder{
		producer:   producer,
		topic:      topic,
		serializer: NewNotificationSerializer(),
		logger:     logger,
	}
}

// Handle sends one notification to the topic
func (f *KafkaForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := f.serializer.Serialize(event)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", event.EventType(), err)
	}

	msg := &sarama.ProducerMessage{
		Topic: f.topic,
		Key:   sarama.StringEncoder(event.AggregateID().String()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventType), Value: []byte(event.EventType())},
			{Key: []byte(HeaderEventID), Value: []byte(event.EventID().String())},
		},
		Timestamp: event.OccurredAt(),
	}

	partition, offset, err := f.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", event.EventType(), f.topic, err)
	}

	f.logger.Debug("Notification forwarded",
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// EventTypes returns the notification types forwarded
func (f *KafkaForwarder) EventTypes() []string {
	return []string{billing.EventTypePaymentUpdated, billing.EventTypeOrderPaymentUpdated}
}

// Close closes the producer
func (f *KafkaForwarder) Close() error {
	return f.producer.Close()
}

// Ensure KafkaForwarder implements EventHandler
var _ shared.EventHandler = (*KafkaForwarder)(nil)
