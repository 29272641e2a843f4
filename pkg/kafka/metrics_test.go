package kafka

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerMetrics_Registered(t *testing.T) {
	ConsumerMessagesReceived.WithLabelValues("metrics-topic", "metrics-group")
	ConsumerMessagesProcessed.WithLabelValues("metrics-topic", "metrics-group")
	ConsumerMessagesFailed.WithLabelValues("metrics-topic", "metrics-group")
	ConsumerProcessingDuration.WithLabelValues("metrics-topic", "metrics-group")
	ConsumerDLQPublished.WithLabelValues("metrics-topic", "metrics-group")
	ConsumerMessagesDuplicate.WithLabelValues("product.created")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}

	for _, name := range []string{
		"kafka_consumer_messages_received_total",
		"kafka_consumer_messages_processed_total",
		"kafka_consumer_messages_failed_total",
		"kafka_consumer_processing_duration_seconds",
		"kafka_consumer_dlq_published_total",
		"kafka_consumer_messages_duplicate_total",
	} {
		assert.True(t, names[name], "metric %q not registered", name)
	}
}

func TestConsumerMessagesDuplicate_Increments(t *testing.T) {
	c := ConsumerMessagesDuplicate.WithLabelValues("metrics.dup")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
