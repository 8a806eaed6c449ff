package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cms-publisher/models"

	"github.com/IBM/sarama"
)

// PublishEvent describes one recorded publish attempt.
type PublishEvent struct {
	RecordID   uint                    `json:"record_id"`
	ArticleID  uint                    `json:"article_id"`
	UserID     uint                    `json:"user_id"`
	Platform   models.Platform         `json:"platform"`
	Operation  models.PublishOperation `json:"operation"`
	Success    bool                    `json:"success"`
	PostID     string                  `json:"post_id,omitempty"`
	URL        string                  `json:"url,omitempty"`
	ErrorKind  models.ErrorKind        `json:"error_kind,omitempty"`
	Error      string                  `json:"error,omitempty"`
	RetryCount int                     `json:"retry_count"`
	BatchID    string                  `json:"batch_id,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// Key groups every event of an article/platform pair onto one partition.
func (e PublishEvent) Key() string {
	return fmt.Sprintf("%d:%s", e.ArticleID, e.Platform)
}

type Publisher interface {
	Publish(ctx context.Context, event PublishEvent) error
	Close() error
}

// KafkaPublisher writes events to a topic through a sarama SyncProducer.
type KafkaPublisher struct {
	topic    string
	producer sarama.SyncProducer
}

var _ Publisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 500 * time.Millisecond

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create sarama sync producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(prod, topic), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{topic: topic, producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event PublishEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal publish event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.Key()),
		Value:     sarama.ByteEncoder(b),
		Timestamp: event.OccurredAt,
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher discards events; used when no brokers are configured.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, PublishEvent) error { return nil }
func (NopPublisher) Close() error                                { return nil }
