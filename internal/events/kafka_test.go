package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   int
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func newStubPublisher(writer *stubWriter) (*KafkaPublisher, *int) {
	created := 0
	p := NewKafkaPublisher([]string{"localhost:9092"}, "", withWriterFactory(func(brokers []string, topic string) messageWriter {
		created++
		return writer
	}))
	return p, &created
}

func TestKafkaPublisherEncodesEvent(t *testing.T) {
	writer := &stubWriter{}
	p, created := newStubPublisher(writer)
	require.Equal(t, DefaultTopic, p.topic)

	before := testutil.ToFloat64(published.WithLabelValues(string(TypePushed)))
	at := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), SyncEvent{Type: TypePushed, DeviceID: "device_1", Records: 3, OccurredAt: at}))
	require.NoError(t, p.Publish(context.Background(), SyncEvent{Type: TypePulled, DeviceID: "device_1"}))

	require.Equal(t, 1, *created, "writer is created once")
	require.Len(t, writer.messages, 2)

	msg := writer.messages[0]
	require.Equal(t, "device_1", string(msg.Key))
	require.Equal(t, at, msg.Time)
	require.Equal(t, "event_type", msg.Headers[0].Key)
	require.Equal(t, "sync.pushed", string(msg.Headers[0].Value))

	var decoded SyncEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, TypePushed, decoded.Type)
	require.Equal(t, 3, decoded.Records)
	require.False(t, writer.messages[1].Time.IsZero())

	require.Equal(t, before+1, testutil.ToFloat64(published.WithLabelValues(string(TypePushed))))
}

func TestKafkaPublisherReportsFailure(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker down")}
	p, _ := newStubPublisher(writer)

	before := testutil.ToFloat64(publishFailures.WithLabelValues(string(TypePushFailed)))
	err := p.Publish(context.Background(), SyncEvent{Type: TypePushFailed, DeviceID: "device_1"})
	require.ErrorContains(t, err, "broker down")
	require.Equal(t, before+1, testutil.ToFloat64(publishFailures.WithLabelValues(string(TypePushFailed))))
}

func TestKafkaPublisherClose(t *testing.T) {
	writer := &stubWriter{}
	p, created := newStubPublisher(writer)

	require.NoError(t, p.Close(), "closing an unused publisher is a no-op")
	require.Equal(t, 0, writer.closed)

	require.NoError(t, p.Publish(context.Background(), SyncEvent{Type: TypeMerged, DeviceID: "d"}))
	require.NoError(t, p.Close())
	require.Equal(t, 1, writer.closed)

	require.NoError(t, p.Publish(context.Background(), SyncEvent{Type: TypeMerged, DeviceID: "d"}))
	require.Equal(t, 2, *created, "publishing after close reopens the writer")
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	require.NoError(t, p.Publish(context.Background(), SyncEvent{}))
	require.NoError(t, p.Close())
}
