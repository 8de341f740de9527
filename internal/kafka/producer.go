package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/job-tracker/internal/domain"
	"github.com/Dhoini/job-tracker/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// Суффиксы топиков; к ним добавляется префикс из конфигурации.
const (
	TopicBillingUpdated   = "billing.updated"
	TopicCollectionSynced = "collection.synced"
)

// BillingUpdated - событие об изменении записи Billing.
type BillingUpdated struct {
	UserID  string         `json:"userId"`
	Source  string         `json:"source"` // webhook, cancel, reactivate, checkout, refresh
	Billing domain.Billing `json:"billing"`
	At      time.Time      `json:"at"`
}

// CollectionSynced - событие о завершенной синхронизации коллекции.
type CollectionSynced struct {
	UserID     string            `json:"userId"`
	Collection domain.Collection `json:"collection"`
	Count      int               `json:"count"`
	Upserted   int               `json:"upserted"`
	Deleted    int               `json:"deleted"`
	At         time.Time         `json:"at"`
}

// Publisher определяет интерфейс для публикации доменных событий.
type Publisher interface {
	PublishBillingUpdated(ctx context.Context, event BillingUpdated) error
	PublishCollectionSynced(ctx context.Context, event CollectionSynced) error
	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// messageWriter - часть kafka.Writer, нужная продюсеру.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProducer реализует Publisher, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer      messageWriter
	topicPrefix string
	log         *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, topicPrefix string, log *logger.Logger) (Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{}, // один пользователь - одна партиция
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers, "topicPrefix", topicPrefix)
	return newProducer(writer, topicPrefix, log), nil
}

func newProducer(w messageWriter, topicPrefix string, log *logger.Logger) *kafkaProducer {
	return &kafkaProducer{writer: w, topicPrefix: topicPrefix, log: log.Named("kafka")}
}

func (k *kafkaProducer) PublishBillingUpdated(ctx context.Context, event BillingUpdated) error {
	return k.publish(ctx, TopicBillingUpdated, event.UserID, event)
}

func (k *kafkaProducer) PublishCollectionSynced(ctx context.Context, event CollectionSynced) error {
	return k.publish(ctx, TopicCollectionSynced, event.UserID, event)
}

// publish отправляет JSON-сообщение. Ключ - userID, чтобы события пользователя шли по порядку.
func (k *kafkaProducer) publish(ctx context.Context, suffix, key string, payload any) error {
	topic := k.topicPrefix + suffix

	value, err := json.Marshal(payload)
	if err != nil {
		k.log.Errorw("Failed to marshal event for Kafka", "error", err, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(writeCtx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "key", key)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "key", key)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Published message to Kafka", "topic", topic, "key", key)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}

// NopPublisher используется, когда Kafka не настроена.
type NopPublisher struct{}

func (NopPublisher) PublishBillingUpdated(context.Context, BillingUpdated) error { return nil }
func (NopPublisher) PublishCollectionSynced(context.Context, CollectionSynced) error { return nil }
func (NopPublisher) Close() error { return nil }
