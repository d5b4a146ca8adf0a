package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/menumaster-admin/internal/obs"
	"github.com/noah-isme/menumaster-admin/internal/resilience"
)

// Writer is the subset of kafka.Writer used by KafkaPublisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by aggregate id, so all
// events of one rule land on the same partition in order.
type KafkaPublisher struct {
	writer  Writer
	breaker *resilience.Breaker
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	addrs := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("events: at least one kafka broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("events: kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}, nil
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// WithBreaker guards writes with b so an unreachable cluster fails fast.
func (p *KafkaPublisher) WithBreaker(b *resilience.Breaker) *KafkaPublisher {
	p.breaker = b
	return p
}

// Name implements Publisher.
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		obs.ObserveEventPublish(p.Name(), "encode_error")
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-topic", Value: []byte(event.Topic)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}
	write := func(ctx context.Context) error { return p.writer.WriteMessages(ctx, msg) }
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, write, nil)
	} else {
		err = write(ctx)
	}
	if errors.Is(err, resilience.ErrOpenCircuit) {
		obs.ObserveEventPublish(p.Name(), "circuit_open")
		return err
	}
	if err != nil {
		obs.ObserveEventPublish(p.Name(), "error")
		return err
	}
	obs.ObserveEventPublish(p.Name(), "ok")
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
