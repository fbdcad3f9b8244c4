// Package orders turns a cart into a priced, immutable order and drives the
// order lifecycle afterwards.
package orders

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/inventory"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/pricing"
	"github.com/ariefcatur/go-storefront-core/internal/store"
)

type Service struct {
	Store     store.Store
	Inventory *inventory.Service
	Pricing   pricing.Calculator
	Events    events.Emitter
	Metrics   *metrics.Metrics

	// SettleInventory wires status changes to finalize/release.
	SettleInventory bool
}

type CheckoutInput struct {
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
}

func New(st store.Store, inv *inventory.Service, calc pricing.Calculator, em events.Emitter, m *metrics.Metrics) *Service {
	if em == nil {
		em = events.Nop{}
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{Store: st, Inventory: inv, Pricing: calc, Events: em, Metrics: m, SettleInventory: true}
}

// Checkout materializes the user's cart into a PENDING order in one
// transaction. Lines are reserved in ascending product id order; any
// failure rolls back every reservation made by this attempt.
func (s *Service) Checkout(ctx context.Context, userID string, in CheckoutInput) (_ *domain.Order, err error) {
	ctx, done := s.Metrics.Begin(ctx, "Checkout", attribute.String("user.id", userID))
	defer func() { done(err) }()

	var order *domain.Order
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetCart(ctx, userID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Wrap(apperr.KindEmptyCart, err, "cart is empty")
		}
		if err != nil {
			return err
		}
		items := c.Purchasable()
		if len(items) == 0 {
			return apperr.New(apperr.KindEmptyCart, "cart has no items to order")
		}
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		now := time.Now().UTC()
		o := &domain.Order{
			ID:              uuid.NewString(),
			UserID:          userID,
			Status:          domain.OrderPending,
			ShippingAddress: strings.TrimSpace(in.ShippingAddress),
			PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		lines := make([]pricing.Line, 0, len(items))
		consumed := make([]string, 0, len(items))
		for _, it := range items {
			p, err := tx.GetProduct(ctx, it.ProductID)
			if errors.Is(err, apperr.ErrNotFound) || (err == nil && !p.Active()) {
				s.Metrics.ReservationFailed(apperr.KindProductUnavailable)
				return apperr.New(apperr.KindProductUnavailable, "product %s is not available", it.ProductID)
			}
			if err != nil {
				return err
			}
			if err := s.Inventory.Reserve(ctx, tx, p.ID, it.Quantity); err != nil {
				return err
			}

			line := s.Pricing.Line(p.Price, it.Quantity)
			lines = append(lines, line)
			o.Items = append(o.Items, domain.OrderItem{
				ID:          uuid.NewString(),
				OrderID:     o.ID,
				ProductID:   p.ID,
				ProductName: p.Name,
				UnitPrice:   line.UnitPrice,
				Quantity:    line.Quantity,
				LineTotal:   line.Total,
			})
			consumed = append(consumed, it.ID)
		}

		t := s.Pricing.Totals(lines)
		o.TotalItems = t.Items
		o.Subtotal = t.Subtotal
		o.Tax = t.Tax
		o.Discount = t.Discount
		o.GrandTotal = t.GrandTotal

		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.DeleteCartItems(ctx, c.ID, consumed); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		logging.FromContext(ctx).Warn("checkout_failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	logging.FromContext(ctx).Info("checkout_completed",
		zap.String("user_id", userID),
		zap.String("order_id", order.ID),
		zap.String("grand_total", order.GrandTotal.StringFixed(2)),
	)
	s.Events.Emit(ctx, events.EventOrderCreated, order.ID, orderCreated(order))
	return order, nil
}

func orderCreated(o *domain.Order) events.OrderCreatedPayload {
	lines := make([]events.OrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, events.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return events.OrderCreatedPayload{OrderID: o.ID, UserID: o.UserID, Items: lines, GrandTotal: o.GrandTotal}
}

// GetForUser returns the order if userID owns it, Forbidden otherwise.
func (s *Service) GetForUser(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	var o *domain.Order
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		logging.FromContext(ctx).Warn("order_access_denied", zap.String("order_id", orderID), zap.String("user_id", userID))
		return nil, apperr.Forbidden("not authorized to access order %s", orderID)
	}
	return o, nil
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	var out []domain.Order
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListOrdersByUser(ctx, userID)
		return err
	})
	return out, err
}

// UpdateStatus is the administrative status change.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (_ *domain.Order, err error) {
	to, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	ctx, done := s.Metrics.Begin(ctx, "UpdateOrderStatus",
		attribute.String("order.id", orderID), attribute.String("order.status", string(to)))
	defer func() { done(err) }()

	var (
		o      *domain.Order
		from   domain.OrderStatus
		effect Effect
	)
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if o, err = tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		from = o.Status
		effect, err = s.Apply(ctx, tx, o, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Changed(ctx, o.ID, from, to, effect)
	return o, nil
}

// Apply moves a locked order to status `to` inside tx and runs the
// inventory effect of the transition when settlement is on. o is updated
// in place.
func (s *Service) Apply(ctx context.Context, tx store.Tx, o *domain.Order, to domain.OrderStatus) (Effect, error) {
	effect, err := Transition(o.Status, to)
	if err != nil {
		return EffectNone, err
	}
	if o.Status == to {
		return EffectNone, nil
	}
	if !s.SettleInventory {
		effect = EffectNone
	}
	if effect != EffectNone {
		// same order as checkout so concurrent settlements cannot deadlock
		items := append([]domain.OrderItem(nil), o.Items...)
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
		for _, it := range items {
			var err error
			switch effect {
			case EffectFinalize:
				err = s.Inventory.Finalize(ctx, tx, it.ProductID, it.Quantity)
			case EffectRelease:
				err = s.Inventory.Release(ctx, tx, it.ProductID, it.Quantity)
			}
			if err != nil {
				return EffectNone, err
			}
		}
	}
	if err := tx.UpdateOrderStatus(ctx, o.ID, to); err != nil {
		return EffectNone, err
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return effect, nil
}

// Changed logs and emits a committed status change.
func (s *Service) Changed(ctx context.Context, orderID string, from, to domain.OrderStatus, effect Effect) {
	if from == to {
		return
	}
	logging.FromContext(ctx).Info("order_status_changed",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("inventory_effect", string(effect)),
	)
	s.Events.Emit(ctx, events.EventOrderStatusChanged, orderID, events.OrderStatusChangedPayload{
		OrderID: orderID, From: string(from), To: string(to), Effect: string(effect),
	})
}
