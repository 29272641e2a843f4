package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.dlq.ecommerce.product.updated", DLQTopic("ecommerce.product.updated"))
	assert.Equal(t, "ecommerce.dlq.products", DLQTopic("products"))
}

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestDLQMessage_RecordsOrigin(t *testing.T) {
	msg := kafka.Message{
		Topic:     "ecommerce.product.deleted",
		Partition: 2,
		Offset:    41,
		Key:       []byte("prod-1"),
		Value:     []byte(`{"event_type":"product.deleted"}`),
		Headers:   []kafka.Header{{Key: "traceparent", Value: []byte("tp")}},
	}

	out := DLQMessage(msg, errors.New("index write failed"), "search-service")

	assert.Equal(t, "ecommerce.dlq.ecommerce.product.deleted", out.Topic)
	assert.Equal(t, msg.Key, out.Key)
	assert.Equal(t, msg.Value, out.Value)

	h := headerMap(out.Headers)
	assert.Equal(t, "tp", h["traceparent"])
	assert.Equal(t, "ecommerce.product.deleted", h["dlq.original_topic"])
	assert.Equal(t, "2", h["dlq.original_partition"])
	assert.Equal(t, "41", h["dlq.original_offset"])
	assert.Equal(t, "search-service", h["dlq.consumer_group"])
	assert.Equal(t, "index write failed", h["dlq.error"])
}

func TestDLQMessage_NoErrorHeaderWithoutCause(t *testing.T) {
	out := DLQMessage(kafka.Message{Topic: "t"}, nil, "g")
	_, ok := headerMap(out.Headers)["dlq.error"]
	assert.False(t, ok)
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestDLQProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := NewDLQProducerWithWriter(w, newTestLogger())

	err := p.Publish(context.Background(), kafka.Message{Topic: "ecommerce.product.created"}, errors.New("x"), "g")
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ecommerce.dlq.ecommerce.product.created", w.msgs[0].Topic)
}

func TestDLQProducer_PublishError(t *testing.T) {
	p := NewDLQProducerWithWriter(&recordingWriter{err: errors.New("broker down")}, newTestLogger())

	err := p.Publish(context.Background(), kafka.Message{Topic: "t"}, nil, "g")
	assert.ErrorContains(t, err, "broker down")
}
