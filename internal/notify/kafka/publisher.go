// Package kafka publishes run events to a Kafka topic, keyed by run id.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/milad/meteretl/internal/notify"
	"go.uber.org/zap"
)

var _ notify.Notifier = (*Publisher)(nil)

// NewSyncProducer connects a producer that waits for all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "meteretl"
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Net.DialTimeout = 10 * time.Second

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer %v: %w", brokers, err)
	}
	return p, nil
}

type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func New(producer sarama.SyncProducer, topic string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{producer: producer, topic: topic, log: log}
}

func (p *Publisher) Notify(ctx context.Context, ev notify.RunCompleted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode run event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.RunID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte("run_completed")},
			{Key: []byte("status"), Value: []byte(ev.Status)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish run %s to %s: %w", ev.RunID, p.topic, err)
	}
	p.log.Info("run event published",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("run_id", ev.RunID),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
