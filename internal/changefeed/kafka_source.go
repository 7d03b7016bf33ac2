package changefeed

import (
	"context"
	"errors"
	"sync"

	"chat-sync/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// KafkaSource reads events from the change topic. Without a GroupID every
// client reads the whole stream from the latest offset.
type KafkaSource struct {
	Brokers []string
	Topic   string
	GroupID string
	Log     *logger.Logger
}

func (s *KafkaSource) readerConfig() kafka.ReaderConfig {
	cfg := kafka.ReaderConfig{
		Brokers:  s.Brokers,
		Topic:    s.Topic,
		GroupID:  s.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	}
	if s.GroupID == "" {
		cfg.StartOffset = kafka.LastOffset
	}
	return cfg
}

func (s *KafkaSource) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	if len(s.Brokers) == 0 || s.Topic == "" {
		return nil, errors.New("kafka source needs brokers and a topic")
	}
	log := s.Log
	if log == nil {
		log = logger.Nop()
	}
	return consume(ctx, kafka.NewReader(s.readerConfig()), handler, log.With("component", "changefeed.kafka", "topic", s.Topic)), nil
}

// messageReader is the part of *kafka.Reader the read loop uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// consume hands every decodable record to handler until ReadMessage fails.
// Cancellation and Close both surface as a read error.
func consume(ctx context.Context, reader messageReader, handler Handler, log *logger.Logger) *kafkaSubscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{reader: reader, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Error("Kafka read failed", "error", err)
				}
				return
			}
			e, err := Decode(msg.Value)
			if err != nil {
				log.Debug("Ignoring record", "offset", msg.Offset, "error", err)
				continue
			}
			handler(e)
		}
	}()
	return sub
}

type kafkaSubscription struct {
	reader messageReader
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (k *kafkaSubscription) Close() error {
	k.once.Do(func() {
		k.cancel()
		<-k.done
		k.err = k.reader.Close()
	})
	<-k.done
	return k.err
}
