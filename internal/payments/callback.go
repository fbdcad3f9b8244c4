package payments

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/store"
)

const callbackScope = "gateway_callback"

// HandleCallback captures a payment reported by the gateway out of band.
// Each gateway event id is processed once; a nil return means the callback
// needs no retry.
func (s *Service) HandleCallback(ctx context.Context, cb events.GatewayCallbackPayload) error {
	if cb.EventID == "" {
		cb.EventID = cb.GatewayOrderID + ":" + cb.GatewayPaymentID
	}
	log := logging.FromContext(ctx).With(
		zap.String("event_id", cb.EventID),
		zap.String("gateway_order_id", cb.GatewayOrderID),
	)

	first, err := s.Dedup.FirstSeen(ctx, callbackScope, cb.EventID)
	if err != nil {
		return err
	}
	if !first {
		log.Info("gateway_callback_duplicate")
		return nil
	}

	var p *domain.Payment
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.FindPaymentByGatewayOrder(ctx, cb.GatewayOrderID)
		return err
	})
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("gateway_callback_unknown_session")
		return nil
	}
	if err != nil {
		s.forget(ctx, cb.EventID)
		return err
	}

	_, err = s.VerifyAndCapture(ctx, p.UserID, VerifyInput{
		OrderID:          p.OrderID,
		GatewayOrderID:   cb.GatewayOrderID,
		GatewayPaymentID: cb.GatewayPaymentID,
		Signature:        cb.Signature,
	})
	switch apperr.KindOf(err) {
	case "":
		log.Info("gateway_callback_processed", zap.String("order_id", p.OrderID))
		return nil
	case apperr.KindSignatureInvalid, apperr.KindInvalidInput, apperr.KindInvalidStatus, apperr.KindAlreadyPaid:
		log.Warn("gateway_callback_rejected", zap.Error(err))
		return nil
	}
	s.forget(ctx, cb.EventID)
	return err
}

func (s *Service) forget(ctx context.Context, eventID string) {
	if err := s.Dedup.Forget(ctx, callbackScope, eventID); err != nil {
		logging.FromContext(ctx).Warn("gateway_callback_forget_failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

// ConsumeCallback decodes a callback envelope from the callback topic.
// Malformed messages are logged and skipped.
func (s *Service) ConsumeCallback(ctx context.Context, m kafka.Message) error {
	env, cb, err := events.Decode[events.GatewayCallbackPayload](m.Value)
	if err != nil {
		logging.FromContext(ctx).Error("gateway_callback_malformed",
			zap.Int64("offset", m.Offset), zap.Int("partition", m.Partition), zap.Error(err))
		return nil
	}
	ctx = logging.WithContext(ctx, logging.FromContext(ctx).With(zap.String("envelope_id", env.EventID)))
	return s.HandleCallback(ctx, cb)
}
