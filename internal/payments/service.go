// Package payments manages gateway payment sessions for orders and captures
// verified payments.
package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/orders"
	"github.com/ariefcatur/go-storefront-core/internal/pricing"
	"github.com/ariefcatur/go-storefront-core/internal/redisx"
	"github.com/ariefcatur/go-storefront-core/internal/store"
)

const DefaultCurrency = "INR"

type Service struct {
	Store   store.Store
	Orders  *orders.Service
	Gateway Gateway
	Locker  Locker
	Dedup   Deduper
	Events  events.Emitter
	Metrics *metrics.Metrics

	Currency string
	LockTTL  time.Duration
}

func New(st store.Store, ord *orders.Service, gw Gateway, em events.Emitter, m *metrics.Metrics) *Service {
	if em == nil {
		em = events.Nop{}
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{
		Store:    st,
		Orders:   ord,
		Gateway:  gw,
		Locker:   NewLocalLocker(),
		Dedup:    NewLocalDeduper(),
		Events:   em,
		Metrics:  m,
		Currency: DefaultCurrency,
		LockTTL:  redisx.TTLSessionLock,
	}
}

// Session is what a client needs to open the gateway checkout.
type Session struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"` // minor units
	Currency       string `json:"currency"`
	PublishableKey string `json:"key_id"`
	Reused         bool   `json:"reused"`
}

type VerifyInput struct {
	OrderID          string `json:"order_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

func (in VerifyInput) trimmed() VerifyInput {
	return VerifyInput{
		OrderID:          strings.TrimSpace(in.OrderID),
		GatewayOrderID:   strings.TrimSpace(in.GatewayOrderID),
		GatewayPaymentID: strings.TrimSpace(in.GatewayPaymentID),
		Signature:        strings.TrimSpace(in.Signature),
	}
}

// CreateSession returns the order's open gateway session, creating one if
// none is PENDING. At most one PENDING payment exists per order.
func (s *Service) CreateSession(ctx context.Context, userID, orderID string) (_ *Session, err error) {
	ctx, done := s.Metrics.Begin(ctx, "CreatePaymentSession",
		attribute.String("user.id", userID), attribute.String("order.id", orderID))
	defer func() { done(err) }()

	o, pending, err := s.payable(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return s.session(pending, true), nil
	}

	release, err := s.Locker.Acquire(ctx, redisx.SessionLockKey(orderID), s.LockTTL, s.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	// another request may have opened the session while we waited
	o, pending, err = s.payable(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return s.session(pending, true), nil
	}

	gwOrderID, err := s.Gateway.CreateOrder(ctx, pricing.MinorUnits(o.GrandTotal), s.Currency, "order_"+o.ID)
	if err != nil {
		logging.FromContext(ctx).Error("gateway_create_order_failed", zap.String("order_id", o.ID), zap.Error(err))
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:             uuid.NewString(),
		OrderID:        o.ID,
		UserID:         userID,
		GatewayOrderID: gwOrderID,
		Amount:         o.GrandTotal,
		Currency:       s.Currency,
		Status:         domain.PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPayment(ctx, p)
	})
	if errors.Is(err, apperr.ErrConflict) {
		// lost the insert race; the store keeps the other session
		_, pending, rerr := s.payable(ctx, userID, orderID)
		if rerr == nil && pending != nil {
			logging.FromContext(ctx).Info("payment_session_race_absorbed", zap.String("order_id", o.ID))
			return s.session(pending, true), nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).Info("payment_session_created",
		zap.String("order_id", o.ID),
		zap.String("payment_id", p.ID),
		zap.String("gateway_order_id", gwOrderID),
	)
	return s.session(p, false), nil
}

// payable loads the order for its owner and the PENDING payment if any.
func (s *Service) payable(ctx context.Context, userID, orderID string) (*domain.Order, *domain.Payment, error) {
	var (
		o       *domain.Order
		pending *domain.Payment
	)
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return apperr.NotFound("order %s not found", orderID)
		}
		switch {
		case orders.Consumed(o.Status):
			return apperr.New(apperr.KindAlreadyPaid, "order %s is already paid", orderID)
		case o.Status == domain.OrderCancelled:
			return apperr.New(apperr.KindInvalidStatus, "order %s is cancelled", orderID)
		}
		pending, err = tx.FindPendingPayment(ctx, orderID, userID)
		if errors.Is(err, apperr.ErrNotFound) {
			pending = nil
			err = nil
		}
		if err != nil {
			return err
		}
		if pending == nil && !o.GrandTotal.IsPositive() {
			return apperr.New(apperr.KindNoPayableAmount, "order %s has nothing to pay", orderID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return o, pending, nil
}

func (s *Service) session(p *domain.Payment, reused bool) *Session {
	return &Session{
		OrderID:        p.OrderID,
		GatewayOrderID: p.GatewayOrderID,
		Amount:         pricing.MinorUnits(p.Amount),
		Currency:       p.Currency,
		PublishableKey: s.Gateway.PublishableKey(),
		Reused:         reused,
	}
}

// VerifyAndCapture checks the gateway signature for a session and, when it
// holds, records the capture and marks the order PAID in one transaction.
// Replays of a captured session return the stored payment. A FAILED session
// is closed; the client opens a new one to retry.
func (s *Service) VerifyAndCapture(ctx context.Context, userID string, in VerifyInput) (_ *domain.Payment, err error) {
	in = in.trimmed()
	if in.OrderID == "" || in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" {
		return nil, apperr.InvalidInput("order_id, gateway_order_id, gateway_payment_id and signature are required")
	}
	ctx, done := s.Metrics.Begin(ctx, "VerifyPayment",
		attribute.String("user.id", userID), attribute.String("order.id", in.OrderID))
	defer func() { done(err) }()
	log := logging.FromContext(ctx).With(zap.String("order_id", in.OrderID), zap.String("gateway_order_id", in.GatewayOrderID))

	var p *domain.Payment
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.FindPaymentBySession(ctx, in.OrderID, userID, in.GatewayOrderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case domain.PaymentSuccess:
		log.Info("payment_verify_replayed", zap.String("payment_id", p.ID))
		return p, nil
	case domain.PaymentFailed:
		log.Warn("payment_verify_failed_session", zap.String("payment_id", p.ID))
		return nil, apperr.New(apperr.KindInvalidStatus, "payment session %s has failed, create a new session", in.GatewayOrderID)
	}

	// no row locks are held while the signature is checked
	if err := s.Gateway.VerifySignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature); err != nil {
		if apperr.KindOf(err) == apperr.KindSignatureInvalid {
			s.reject(ctx, p)
		}
		return nil, err
	}

	var (
		o        *domain.Order
		from     domain.OrderStatus
		effect   orders.Effect
		captured *domain.Payment
	)
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CapturePayment(ctx, p.ID, in.GatewayPaymentID, in.Signature); err != nil {
			return err
		}
		var err error
		if o, err = tx.LockOrder(ctx, p.OrderID); err != nil {
			return err
		}
		from = o.Status
		switch {
		case orders.Holds(o.Status):
			if effect, err = s.Orders.Apply(ctx, tx, o, domain.OrderPaid); err != nil {
				return err
			}
		case orders.Consumed(o.Status):
			// rolls the capture back; the order already has its payment
			return apperr.New(apperr.KindAlreadyPaid, "order %s is already paid", o.ID)
		case o.Status == domain.OrderCancelled:
			log.Warn("payment_captured_for_cancelled_order", zap.String("payment_id", p.ID))
		}
		captured, err = tx.FindPaymentBySession(ctx, p.OrderID, userID, p.GatewayOrderID)
		return err
	})
	if errors.Is(err, apperr.ErrConflict) {
		if w := s.winner(ctx, userID, in); w != nil {
			log.Info("payment_capture_race_absorbed", zap.String("payment_id", w.ID))
			return w, nil
		}
		log.Warn("payment_capture_conflict", zap.Error(err))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	p = captured

	log.Info("payment_captured", zap.String("payment_id", p.ID), zap.String("gateway_payment_id", p.GatewayPaymentID))
	s.Events.Emit(ctx, events.EventPaymentCaptured, p.OrderID, events.PaymentCapturedPayload{
		OrderID:          p.OrderID,
		PaymentID:        p.ID,
		GatewayOrderID:   p.GatewayOrderID,
		GatewayPaymentID: p.GatewayPaymentID,
		Amount:           p.Amount,
		Currency:         p.Currency,
	})
	s.Orders.Changed(ctx, o.ID, from, o.Status, effect)
	return p, nil
}

// reject marks a session FAILED after a bad signature.
func (s *Service) reject(ctx context.Context, p *domain.Payment) {
	log := logging.FromContext(ctx).With(zap.String("order_id", p.OrderID), zap.String("payment_id", p.ID))
	log.Warn("payment_signature_invalid")

	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.MarkPaymentFailed(ctx, p.ID)
	})
	if err != nil {
		// a concurrent valid capture keeps SUCCESS
		log.Warn("payment_mark_failed_skipped", zap.Error(err))
		return
	}
	p.Status = domain.PaymentFailed
	s.Events.Emit(ctx, events.EventPaymentFailed, p.OrderID, events.PaymentFailedPayload{
		OrderID:        p.OrderID,
		PaymentID:      p.ID,
		GatewayOrderID: p.GatewayOrderID,
		Reason:         string(apperr.KindSignatureInvalid),
	})
}

// winner re-reads the capture that beat us, first by gateway payment id and
// then by session.
func (s *Service) winner(ctx context.Context, userID string, in VerifyInput) *domain.Payment {
	var w *domain.Payment
	_ = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.FindPaymentByCapture(ctx, in.OrderID, in.GatewayPaymentID)
		if err == nil && p.Status == domain.PaymentSuccess && p.UserID == userID {
			w = p
			return nil
		}
		p, err = tx.FindPaymentBySession(ctx, in.OrderID, userID, in.GatewayOrderID)
		if err == nil && p.Status == domain.PaymentSuccess {
			w = p
		}
		return nil
	})
	return w
}
