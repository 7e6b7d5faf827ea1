package ingress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader hands out its messages then blocks until the context ends
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestKafkaConsumerCommitsEveryMessage(t *testing.T) {
	applier := &recordingApplier{}
	reader := &fakeReader{messages: []kafka.Message{
		{Key: []byte("sandbox"), Value: []byte(sandboxEvent), Offset: 1},
		{Key: []byte("sandbox"), Value: []byte(sandboxEvent), Offset: 2},
		{Key: []byte("sandbox"), Value: []byte("garbage"), Offset: 3},
		{
			Key:     []byte("sandbox"),
			Value:   []byte(`{"event_id":"evt-2","transaction_id":"auth-2","status":"FAILED"}`),
			Offset:  4,
			Headers: []kafka.Header{{Key: CorrelationHeader, Value: []byte("corr-1")}},
		},
	}}
	consumer := NewKafkaConsumer(reader, newEventHandler(t, applier), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 4 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3, 4}, reader.commits())
	assert.True(t, reader.closed)
	require.Len(t, applier.events, 2)
	assert.Equal(t, "auth-2", applier.events[1].TransactionID)
}

func TestKafkaConsumerRetriesTransientFailures(t *testing.T) {
	applier := &recordingApplier{err: errors.New("store unavailable")}
	reader := &fakeReader{messages: []kafka.Message{
		{Key: []byte("sandbox"), Value: []byte(sandboxEvent), Offset: 7},
	}}
	consumer := NewKafkaConsumer(reader, newEventHandler(t, applier), nil)
	consumer.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, applier.events)
}
