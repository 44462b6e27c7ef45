package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gpubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/vertical-shop/pkg/pubsub"
)

// PubSubPublisher publishes to GCP Pub/Sub, one cached publisher per topic.
type PubSubPublisher struct {
	client *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*gpubsub.Publisher
}

func NewPubSubPublisher(client *pubsub.Client) (*PubSubPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	return &PubSubPublisher{
		client:     client,
		publishers: make(map[string]*gpubsub.Publisher),
	}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, msg Message) error {
	pub, err := p.publisher(msg.Topic)
	if err != nil {
		return err
	}
	result := pub.Publish(ctx, &gpubsub.Message{
		Data:       msg.Data,
		Attributes: msg.attributes(),
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

func (p *PubSubPublisher) publisher(topic string) (*gpubsub.Publisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.publishers[topic]; ok {
		return pub, nil
	}
	pub := p.client.Publisher(topic)
	if pub == nil {
		return nil, fmt.Errorf("pubsub topic %q not configured", topic)
	}
	p.publishers[topic] = pub
	return pub, nil
}

func (p *PubSubPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes pending publishes and releases the client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for topic, pub := range p.publishers {
		pub.Stop()
		delete(p.publishers, topic)
	}
	p.mu.Unlock()
	return p.client.Close()
}

// PubSubSubscriber acks handled messages and nacks failures for redelivery.
type PubSubSubscriber struct {
	sub   *gpubsub.Subscriber
	topic string
}

func NewPubSubSubscriber(sub *gpubsub.Subscriber, topic string) (*PubSubSubscriber, error) {
	if sub == nil {
		return nil, errors.New("pubsub subscription is required")
	}
	return &PubSubSubscriber{sub: sub, topic: topic}, nil
}

func (s *PubSubSubscriber) Receive(ctx context.Context, handler Handler) error {
	return s.sub.Receive(ctx, func(ctx context.Context, m *gpubsub.Message) {
		if err := handler(ctx, messageFromAttributes(s.topic, m.Data, m.Attributes)); err != nil {
			m.Nack()
			return
		}
		m.Ack()
	})
}
