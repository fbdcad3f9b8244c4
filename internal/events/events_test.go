package events

import (
	"context"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (c *capture) Publish(_ context.Context, key, value []byte, headers ...kafkago.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
	return nil
}

func TestKafkaEmitterRoutesByTopic(t *testing.T) {
	created, captured := &capture{}, &capture{}
	em := &KafkaEmitter{Producer: "storefront-api", Producers: map[string]Publisher{
		TopicOrderCreated:    created,
		TopicPaymentCaptured: captured,
	}}

	em.Emit(context.Background(), EventPaymentCaptured, "o-1", PaymentCapturedPayload{
		OrderID: "o-1", PaymentID: "pay-1", Amount: decimal.RequireFromString("35.40"), Currency: "INR",
	})
	// no producer for this topic: dropped with a log line
	em.Emit(context.Background(), EventPaymentFailed, "o-1", PaymentFailedPayload{OrderID: "o-1"})

	assert.Empty(t, created.msgs)
	require.Len(t, captured.msgs, 1)
	m := captured.msgs[0]
	assert.Equal(t, "o-1", string(m.Key))
	assert.Equal(t, "x-event-type", m.Headers[0].Key)
	assert.Equal(t, EventPaymentCaptured, string(m.Headers[0].Value))

	env, p, err := Decode[PaymentCapturedPayload](m.Value)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, env.EventType)
	assert.Equal(t, EnvelopeVersion, env.EventVersion)
	assert.Equal(t, "storefront-api", env.Producer)
	assert.Equal(t, "o-1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("35.4")))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode[GatewayCallbackPayload]([]byte("not json"))
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Emit(context.Background(), EventOrderCreated, "o-1", nil)
	r.Emit(context.Background(), EventOrderStatusChanged, "o-1", nil)

	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(EventOrderCreated), 1)
}
