package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaNotifier_PublishesKeyedJSON(t *testing.T) {
	writer := &recordingWriter{}
	n := &KafkaNotifier{writer: writer}
	userID := uuid.New()

	err := n.Notify(context.Background(), Event{
		Type:      EventTransferSucceeded,
		UserID:    userID,
		Reference: "TRF-1",
		Amount:    "5000",
		Currency:  "NGN",
		Status:    "SUCCESS",
	})
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)

	msg := writer.msgs[0]
	assert.Equal(t, userID.String(), string(msg.Key))
	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "TRF-1", decoded.Reference)
	assert.Equal(t, EventTransferSucceeded, string(msg.Headers[0].Value))
}

func TestKafkaNotifier_WrapsWriteError(t *testing.T) {
	n := &KafkaNotifier{writer: &recordingWriter{err: errors.New("broker down")}}
	err := n.Notify(context.Background(), Event{Type: EventDepositFailed})
	assert.ErrorContains(t, err, "broker down")
}

type countingNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *countingNotifier) Notify(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func TestDispatcher_DeliversAsynchronously(t *testing.T) {
	target := &countingNotifier{err: errors.New("ignored")}
	d := NewDispatcher(target, time.Second)

	d.Dispatch(Event{Type: EventConversionSucceeded, Reference: "CNV-1"})
	d.Dispatch(Event{Type: EventConversionSucceeded, Reference: "CNV-2"})
	d.Wait()

	require.Len(t, target.events, 2)
	for _, e := range target.events {
		assert.False(t, e.OccurredAt.IsZero())
	}
}

func TestDispatcher_NilIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(Event{Type: EventDepositSucceeded})
	d.Wait()
}
