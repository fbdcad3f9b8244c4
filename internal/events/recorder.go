package events

import (
	"context"
	"sync"
)

type Recorded struct {
	Type    string
	OrderID string
	Payload any
}

// Recorder keeps emitted events in memory. Services under test use it in
// place of Kafka.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func (r *Recorder) Emit(_ context.Context, eventType, orderID string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Type: eventType, OrderID: orderID, Payload: payload})
}

func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// OfType returns the recorded events of one type in emission order.
func (r *Recorder) OfType(eventType string) []Recorded {
	var out []Recorded
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
