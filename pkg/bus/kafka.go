package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/vertical-shop/pkg/config"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each message to its topic, keyed for per-key ordering.
type KafkaPublisher struct {
	writer      messageWriter
	brokers     []string
	dialTimeout time.Duration
}

func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer, brokers: cfg.Brokers, dialTimeout: cfg.DialTimeout}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	key := msg.Key
	if key == "" {
		key = msg.ID
	}
	attrs := msg.attributes()
	headers := make([]kafka.Header, 0, len(attrs))
	for k, v := range attrs {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(key),
		Value:   msg.Data,
		Headers: headers,
		Time:    msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// Ping dials the brokers until one answers.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	dialer := &kafka.Dialer{Timeout: p.dialTimeout}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaSubscriber reads with a consumer group and commits only handled offsets.
// A failing message is retried in place, which holds back its partition.
type KafkaSubscriber struct {
	reader     messageReader
	topic      string
	retryDelay time.Duration
}

func NewKafkaSubscriber(cfg config.KafkaConfig, topic, group string) (*KafkaSubscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" || group == "" {
		return nil, errors.New("kafka topic and consumer group are required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
	return &KafkaSubscriber{reader: reader, topic: topic, retryDelay: time.Second}, nil
}

func (s *KafkaSubscriber) Receive(ctx context.Context, handler Handler) error {
	for {
		km, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", s.topic, err)
		}

		attrs := make(map[string]string, len(km.Headers))
		for _, h := range km.Headers {
			attrs[h.Key] = string(h.Value)
		}
		msg := messageFromAttributes(km.Topic, km.Value, attrs)
		msg.Key = string(km.Key)

		for {
			if err := handler(ctx, msg); err == nil {
				break
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.retryDelay):
			}
		}

		if err := s.reader.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit %s offset %d: %w", s.topic, km.Offset, err)
		}
	}
}

func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}
