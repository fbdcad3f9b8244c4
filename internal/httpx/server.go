package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/cart"
	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/inventory"
	"github.com/ariefcatur/go-storefront-core/internal/orders"
	"github.com/ariefcatur/go-storefront-core/internal/payments"
)

// Webhooks authenticates gateway webhook deliveries.
type Webhooks interface {
	VerifyWebhook(body []byte, signature string) error
	SignPayment(gatewayOrderID, gatewayPaymentID string) string
}

type Deps struct {
	Carts     *cart.Service
	Orders    *orders.Service
	Payments  *payments.Service
	Inventory *inventory.Service
	Webhooks  Webhooks
	// Callbacks receives verified webhook callbacks. When nil they are
	// handled inline.
	Callbacks events.Publisher
	Service   string
	Log       *zap.Logger
	Metrics   http.Handler
}

func NewRouter(d Deps) *chi.Mux {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	(&CartHandler{Carts: d.Carts}).Register(r)
	(&OrdersHandler{Orders: d.Orders}).Register(r)
	(&PaymentsHandler{Payments: d.Payments, Webhooks: d.Webhooks, Callbacks: d.Callbacks, Service: d.Service}).Register(r)
	(&InventoryHandler{Inventory: d.Inventory}).Register(r)
	return r
}
