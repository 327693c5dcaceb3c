package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"

	"github.com/jcmexdev/orchestrated-sagas/internal/pkg/messaging"
)

func TestConsumerName(t *testing.T) {
	tests := []struct {
		group, topic string
		want         string
	}{
		{"orchestrator", "start_saga", "orchestrator-start_saga"},
		{"payment.service", "payment_success", "payment_service-payment_success"},
		{"a b", "x.>", "a_b-x__"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ConsumerName(tt.group, tt.topic))
		})
	}
}

func TestToNatsMsg(t *testing.T) {
	msg := &messaging.Message{
		Topic:   "payment_success",
		Key:     "T1",
		Data:    []byte(`{"transactionId":"T1"}`),
		Headers: map[string]string{"traceparent": "00-abc-def-01"},
	}

	nm := toNatsMsg(msg)

	assert.Equal(t, "payment_success", nm.Subject)
	assert.Equal(t, msg.Data, nm.Data)
	assert.Equal(t, "T1", nm.Header.Get(headerKey))
	assert.Equal(t, "00-abc-def-01", nm.Header.Get("traceparent"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "SAGA", cfg.Stream)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Positive(t, cfg.MaxDeliver)
	assert.Positive(t, cfg.DuplicateWindow)
}

func TestStreamConfig_RetainsWithoutConsumers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Topics = []string{"start_saga", "base_orchestrator"}

	sc := streamConfig(cfg)

	assert.Equal(t, jetstream.LimitsPolicy, sc.Retention)
	assert.Equal(t, 24*time.Hour, sc.MaxAge)
	assert.Equal(t, cfg.Topics, sc.Subjects)
	assert.Equal(t, cfg.DuplicateWindow, sc.Duplicates)
}
