// Package queue provides the Kafka producer and consumer loops for the
// async task topics.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"comerse-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// Handler processes one task payload. Returning an error leaves the offset
// uncommitted so Kafka redelivers the message.
type Handler interface {
	Handle(ctx context.Context, key string, value []byte) error
}

// Producer publishes task payloads to a single topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for one topic.
func NewProducer(brokers, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish marshals the payload and writes it keyed by key. The key is also
// the identity used by the consumer's retry cap.
func (p *Producer) Publish(ctx context.Context, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ConsumerConfig configures one consumer loop.
type ConsumerConfig struct {
	Brokers     string
	Topic       string
	GroupID     string
	MaxAttempts int64
}

// StartConsumer runs a consumer loop until ctx is cancelled. Failed tasks are
// retried through redelivery; a Redis counter caps attempts per message key so
// a poison task cannot block the partition forever.
func StartConsumer(ctx context.Context, cfg ConsumerConfig, rdb *redis.Client, handler Handler) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("kafka consumer started, topic=%s group=%s", cfg.Topic, cfg.GroupID)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			// transient broker errors must not kill the loop; back off and
			// fetch again
			log.Error("failed to fetch kafka message, retrying", err)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}

		key := string(m.Key)
		if err := handler.Handle(ctx, key, m.Value); err != nil {
			log.Errorf("task failed: topic=%s key=%s err=%v", cfg.Topic, key, err)

			attemptsKey := fmt.Sprintf("queue:attempts:%s:%s", cfg.Topic, key)
			attempts, incErr := rdb.Incr(ctx, attemptsKey).Result()
			if incErr != nil {
				// Redis unavailable: leave the offset uncommitted and let
				// Kafka redeliver.
				continue
			}
			_ = rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()

			if attempts >= cfg.MaxAttempts {
				log.Errorf("task exceeded %d attempts, dropping: topic=%s key=%s", cfg.MaxAttempts, cfg.Topic, key)
				if err := r.CommitMessages(ctx, m); err != nil {
					log.Errorf("failed to commit kafka offset: %v", err)
				}
			}
			continue
		}

		_ = rdb.Del(ctx, fmt.Sprintf("queue:attempts:%s:%s", cfg.Topic, key)).Err()
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("failed to commit kafka offset: %v", err)
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("failed to close kafka consumer: %v", err)
	}
}
