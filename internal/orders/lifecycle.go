package orders

import (
	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
)

// Effect is what a status change does to the order's reservation.
type Effect string

const (
	EffectNone     Effect = ""
	EffectFinalize Effect = "finalize"
	EffectRelease  Effect = "release"
)

// phase of the stock reservation an order holds.
type phase int

const (
	held phase = iota
	consumed
	released
)

var phaseOf = map[domain.OrderStatus]phase{
	domain.OrderPending:   held,
	domain.OrderConfirmed: held,
	domain.OrderPaid:      consumed,
	domain.OrderShipped:   consumed,
	domain.OrderDelivered: consumed,
	domain.OrderCancelled: released,
}

// Transition reports the inventory effect of moving from -> to.
// A reservation is finalized or released exactly once: cancelled orders are
// terminal, and consumed stock cannot go back to held or released.
func Transition(from, to domain.OrderStatus) (Effect, error) {
	if !to.Valid() {
		return EffectNone, apperr.New(apperr.KindInvalidStatus, "invalid order status %q", to)
	}
	if from == to {
		return EffectNone, nil
	}
	pf, pt := phaseOf[from], phaseOf[to]
	switch {
	case pf == released:
		return EffectNone, apperr.New(apperr.KindInvalidStatus, "order is %s and cannot move to %s", from, to)
	case pf == consumed && pt != consumed:
		return EffectNone, apperr.New(apperr.KindInvalidStatus, "order is %s; stock already consumed, cannot move to %s", from, to)
	case pf == held && pt == consumed:
		return EffectFinalize, nil
	case pf == held && pt == released:
		return EffectRelease, nil
	}
	return EffectNone, nil
}

// Holds reports whether an order in status s still holds its reservation.
func Holds(s domain.OrderStatus) bool {
	p, ok := phaseOf[s]
	return ok && p == held
}

// Consumed reports whether an order in status s has been paid for.
func Consumed(s domain.OrderStatus) bool {
	p, ok := phaseOf[s]
	return ok && p == consumed
}
