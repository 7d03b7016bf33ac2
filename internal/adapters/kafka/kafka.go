package kafka

import (
	"context"
	"fmt"
	"time"

	"chat-sync/internal/changefeed"

	"github.com/IBM/sarama"
)

func newProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "chat-sync"
	config.Producer.MaxMessageBytes = 1000000
	return config
}

func InitKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return producer, nil
}

// ChangeProducer writes change events to a topic, keyed by table so each
// table's events stay on one partition.
type ChangeProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewChangeProducer(producer sarama.SyncProducer, topic string) *ChangeProducer {
	return &ChangeProducer{producer: producer, topic: topic}
}

// Publish implements changefeed.Publisher.
func (p *ChangeProducer) Publish(_ context.Context, table changefeed.Table) error {
	data, err := changefeed.Encode(changefeed.NewEvent(table))
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(table),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to produce change event: %w", err)
	}
	return nil
}

func (p *ChangeProducer) Close() error {
	return p.producer.Close()
}
