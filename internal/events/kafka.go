package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/logging"
)

// Publisher is the slice of kafka.Producer the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// KafkaEmitter routes each event type to the producer of its topic.
type KafkaEmitter struct {
	Producer  string
	Producers map[string]Publisher // by topic
}

func (k *KafkaEmitter) Emit(ctx context.Context, eventType, orderID string, payload any) {
	log := logging.FromContext(ctx).With(zap.String("event_type", eventType), zap.String("order_id", orderID))

	topic, ok := TopicFor[eventType]
	if !ok {
		log.Error("event_topic_unknown")
		return
	}
	pub, ok := k.Producers[topic]
	if !ok {
		log.Warn("event_producer_missing", zap.String("topic", topic))
		return
	}
	env, err := Send(ctx, pub, k.Producer, eventType, orderID, payload)
	if err != nil {
		log.Error("event_publish_failed", zap.String("event_id", env.EventID), zap.Error(err))
		return
	}
	log.Debug("event_published", zap.String("event_id", env.EventID))
}

// Send encodes one event and publishes it keyed by orderID.
func Send(ctx context.Context, pub Publisher, producer, eventType, orderID string, payload any) (Envelope, error) {
	value, env, err := Encode(producer, eventType, orderID, payload)
	if err != nil {
		return env, err
	}
	return env, pub.Publish(ctx, PartitionKey(orderID), value,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(EnvelopeVersion))},
	)
}

// Encode wraps payload in an envelope and marshals it.
func Encode(producer, eventType, orderID string, payload any) ([]byte, Envelope, error) {
	env, err := NewEnvelope(producer, eventType, orderID, payload)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, Envelope{}, fmt.Errorf("encode %s envelope: %w", eventType, err)
	}
	return b, env, nil
}

// Decode reads an envelope and its typed payload.
func Decode[T any](b []byte) (Envelope, T, error) {
	var env Envelope
	var t T
	if err := json.Unmarshal(b, &env); err != nil {
		return env, t, fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return env, t, fmt.Errorf("decode payload: %w", err)
	}
	return env, t, nil
}
