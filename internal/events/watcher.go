package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of kafka.Reader the Watcher needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// HandlerFunc receives decoded sync events.
type HandlerFunc func(context.Context, SyncEvent) error

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger overrides the logger used to report skipped messages.
func WithWatcherLogger(logger *log.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// Watcher follows the sync event topic, e.g. to see pushes from other
// devices as they happen.
type Watcher struct {
	reader  Reader
	handler HandlerFunc
	logger  *log.Logger
}

// NewWatcher constructs a Watcher over reader.
func NewWatcher(reader Reader, handler HandlerFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[events] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewKafkaReader builds a consumer-group reader for the sync event topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	if topic == "" {
		topic = DefaultTopic
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

// Run blocks, handing each event to the handler until ctx is cancelled.
// Undecodable messages are committed and skipped; a handler error leaves
// the message uncommitted.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeEvent(msg)
		if decodeErr != nil {
			w.logger.Printf("decode error (partition=%d, offset=%d): %v", msg.Partition, msg.Offset, decodeErr)
			consumeFailures.WithLabelValues("decode").Inc()
			if commitErr := w.reader.CommitMessages(ctx, msg); commitErr != nil {
				w.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := w.handler(ctx, event); handleErr != nil {
			w.logger.Printf("handler error (type=%s, device=%s): %v", event.Type, event.DeviceID, handleErr)
			consumeFailures.WithLabelValues("handler").Inc()
			continue
		}

		if commitErr := w.reader.CommitMessages(ctx, msg); commitErr != nil {
			w.logger.Printf("commit error: %v", commitErr)
		}
	}
}

// Close releases the reader.
func (w *Watcher) Close() error {
	return w.reader.Close()
}

func decodeEvent(msg kafka.Message) (SyncEvent, error) {
	var event SyncEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return SyncEvent{}, err
	}
	for _, h := range msg.Headers {
		if h.Key == "event_type" && Type(h.Value) != event.Type {
			return SyncEvent{}, fmt.Errorf("event_type header %q does not match payload type %q", h.Value, event.Type)
		}
	}
	if event.Type == "" || event.DeviceID == "" {
		return SyncEvent{}, errors.New("event missing type or device id")
	}
	return event, nil
}
