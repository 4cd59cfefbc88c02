package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives sync events when no topic is configured.
const DefaultTopic = "hybrid-tracker.sync.v1"

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes sync events to a single topic keyed by device id.
// The writer is created on first use so an unreachable broker never blocks
// startup.
type KafkaPublisher struct {
	brokers   []string
	topic     string
	timeout   time.Duration
	newWriter func(brokers []string, topic string) messageWriter

	mu     sync.Mutex
	writer messageWriter
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithWriteTimeout bounds each publish call.
func WithWriteTimeout(d time.Duration) KafkaOption {
	return func(p *KafkaPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func withWriterFactory(fn func([]string, string) messageWriter) KafkaOption {
	return func(p *KafkaPublisher) { p.newWriter = fn }
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(brokers []string, topic string, opts ...KafkaOption) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	p := &KafkaPublisher{
		brokers:   brokers,
		topic:     topic,
		timeout:   5 * time.Second,
		newWriter: newKafkaWriter,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newKafkaWriter(brokers []string, topic string) messageWriter {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event SyncEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode sync event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.DeviceID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writerForTopic().WriteMessages(ctx, msg); err != nil {
		publishFailures.WithLabelValues(string(event.Type)).Inc()
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	published.WithLabelValues(string(event.Type)).Inc()
	return nil
}

func (p *KafkaPublisher) writerForTopic() messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		p.writer = p.newWriter(p.brokers, p.topic)
	}
	return p.writer
}

// Close releases the writer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}
	err := p.writer.Close()
	p.writer = nil
	return err
}
