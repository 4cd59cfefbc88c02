package events

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}

func eventMessage(t *testing.T, event SyncEvent, offset int64) kafka.Message {
	t.Helper()
	writer := &stubWriter{}
	p, _ := newStubPublisher(writer)
	require.NoError(t, p.Publish(context.Background(), event))
	msg := writer.messages[0]
	msg.Offset = offset
	return msg
}

func TestWatcherDeliversPublishedEvents(t *testing.T) {
	at := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	reader := &stubReader{messages: []kafka.Message{
		eventMessage(t, SyncEvent{Type: TypePushed, DeviceID: "device_1", Records: 4, OccurredAt: at}, 1),
		eventMessage(t, SyncEvent{Type: TypeMerged, DeviceID: "device_2", LocalWins: 1}, 2),
	}}

	var got []SyncEvent
	w := NewWatcher(reader, func(_ context.Context, e SyncEvent) error {
		got = append(got, e)
		return nil
	}, WithWatcherLogger(log.New(testWriter{t}, "", 0)))

	err := w.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 2)
	require.Equal(t, 2, reader.commitCalls)
	require.Equal(t, "device_1", got[0].DeviceID)
	require.Equal(t, 4, got[0].Records)
	require.True(t, got[0].OccurredAt.Equal(at))
	require.Equal(t, 1, got[1].LocalWins)
}

func TestWatcherSkipsMalformedMessages(t *testing.T) {
	mismatched := eventMessage(t, SyncEvent{Type: TypePushed, DeviceID: "device_1"}, 2)
	mismatched.Headers = []kafka.Header{{Key: "event_type", Value: []byte("sync.pulled")}}

	reader := &stubReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		mismatched,
		{Offset: 3, Value: []byte(`{"type":"sync.pushed"}`)},
	}}

	before := testutil.ToFloat64(consumeFailures.WithLabelValues("decode"))
	calls := 0
	w := NewWatcher(reader, func(context.Context, SyncEvent) error {
		calls++
		return nil
	}, WithWatcherLogger(log.New(testWriter{t}, "", 0)))

	require.ErrorIs(t, w.Run(context.Background()), context.Canceled)
	require.Zero(t, calls)
	require.Equal(t, 3, reader.commitCalls, "poison messages are committed")
	require.Equal(t, before+3, testutil.ToFloat64(consumeFailures.WithLabelValues("decode")))
}

func TestWatcherLeavesMessageOnHandlerError(t *testing.T) {
	reader := &stubReader{messages: []kafka.Message{
		eventMessage(t, SyncEvent{Type: TypePushFailed, DeviceID: "device_1", Error: "offline"}, 1),
	}}

	w := NewWatcher(reader, func(context.Context, SyncEvent) error {
		return errors.New("boom")
	}, WithWatcherLogger(log.New(testWriter{t}, "", 0)))

	require.ErrorIs(t, w.Run(context.Background()), context.Canceled)
	require.Zero(t, reader.commitCalls)
}

func TestWatcherStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &stubReader{messages: []kafka.Message{{Value: []byte("{}")}}}
	w := NewWatcher(reader, func(context.Context, SyncEvent) error { return nil })
	require.ErrorIs(t, w.Run(ctx), context.Canceled)
	require.Zero(t, reader.index)
}
