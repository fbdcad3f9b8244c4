// Package events defines the envelope and payloads published after a
// fulfillment transaction commits.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const EnvelopeVersion = 1

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventPaymentCaptured    = "PaymentCaptured"
	EventPaymentFailed      = "PaymentFailed"
	EventGatewayCallback    = "GatewayCallback"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicPaymentCaptured    = "payment.captured"
	TopicPaymentFailed      = "payment.failed"
	TopicGatewayCallback    = "payment.gateway.callback"
)

// TopicFor maps an event type to its topic.
var TopicFor = map[string]string{
	EventOrderCreated:       TopicOrderCreated,
	EventOrderStatusChanged: TopicOrderStatusChanged,
	EventPaymentCaptured:    TopicPaymentCaptured,
	EventPaymentFailed:      TopicPaymentFailed,
	EventGatewayCallback:    TopicGatewayCallback,
}

// PartitionKey keeps every event of one order on one partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload for eventType with a fresh event id.
func NewEnvelope(producer, eventType, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

// ---- payloads ----

type OrderLine struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Items      []OrderLine     `json:"items"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Effect  string `json:"inventory_effect,omitempty"` // finalize | release
}

type PaymentCapturedPayload struct {
	OrderID          string          `json:"order_id"`
	PaymentID        string          `json:"payment_id"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

type PaymentFailedPayload struct {
	OrderID        string `json:"order_id"`
	PaymentID      string `json:"payment_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Reason         string `json:"reason"` // e.g. SIGNATURE_INVALID
}

// GatewayCallbackPayload is what the webhook endpoint forwards to the
// callback consumer. EventID is the gateway's own delivery id.
type GatewayCallbackPayload struct {
	EventID          string `json:"event_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// Emitter publishes events after the owning transaction committed.
// Emission is best effort; a failure never undoes the committed state.
type Emitter interface {
	Emit(ctx context.Context, eventType, orderID string, payload any)
}

type Nop struct{}

func (Nop) Emit(context.Context, string, string, any) {}
