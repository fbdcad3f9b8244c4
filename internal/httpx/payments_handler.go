package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/payments"
)

type PaymentsHandler struct {
	Payments  *payments.Service
	Webhooks  Webhooks
	Callbacks events.Publisher
	Service   string
}

type createSessionReq struct {
	OrderID string `json:"order_id"`
}

// webhookBody is the subset of a gateway webhook we act on.
type webhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

const webhookCaptured = "payment.captured"

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/payments/sessions", h.createSession)
		r.Post("/payments/verify", h.verify)
	})
	// authenticated by signature, not by caller identity
	r.Post("/payments/webhook", h.webhook)
}

func (h *PaymentsHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OrderID == "" {
		writeError(w, r, apperr.InvalidInput("order_id is required"))
		return
	}

	// gateway round trip included
	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	sess, err := h.Payments.CreateSession(ctx, userID(r), req.OrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.Reused {
		ok(w, http.StatusOK, "payment session reused", sess)
		return
	}
	ok(w, http.StatusCreated, "payment session created", sess)
}

func (h *PaymentsHandler) verify(w http.ResponseWriter, r *http.Request) {
	var req payments.VerifyInput
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Payments.VerifyAndCapture(ctx, userID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "payment verified", p)
}

func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInvalidInput, err, "unreadable body"))
		return
	}
	if err := h.Webhooks.VerifyWebhook(body, r.Header.Get("X-Razorpay-Signature")); err != nil {
		log.Warn("webhook_signature_invalid")
		writeError(w, r, err)
		return
	}

	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInvalidInput, err, "invalid json"))
		return
	}
	entity := wb.Payload.Payment.Entity
	if wb.Event != webhookCaptured || entity.ID == "" || entity.OrderID == "" {
		log.Info("webhook_ignored", zap.String("event", wb.Event))
		ok(w, http.StatusOK, "ignored", nil)
		return
	}

	eventID := r.Header.Get("X-Razorpay-Event-Id")
	if eventID == "" {
		eventID = entity.OrderID + ":" + entity.ID
	}
	cb := events.GatewayCallbackPayload{
		EventID:          eventID,
		GatewayOrderID:   entity.OrderID,
		GatewayPaymentID: entity.ID,
		Signature:        h.Webhooks.SignPayment(entity.OrderID, entity.ID),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.Callbacks == nil {
		if err := h.Payments.HandleCallback(ctx, cb); err != nil {
			writeError(w, r, err)
			return
		}
		ok(w, http.StatusOK, "processed", nil)
		return
	}
	// keyed by gateway order id; our order id is resolved by the consumer
	env, err := events.Send(ctx, h.Callbacks, h.Service, events.EventGatewayCallback, entity.OrderID, cb)
	if err != nil {
		log.Error("webhook_enqueue_failed", zap.String("gateway_order_id", entity.OrderID), zap.Error(err))
		fail(w, http.StatusServiceUnavailable, string(apperr.KindInternal), "try again later")
		return
	}
	log.Info("webhook_enqueued", zap.String("event_id", eventID), zap.String("envelope_id", env.EventID))
	ok(w, http.StatusAccepted, "accepted", nil)
}
