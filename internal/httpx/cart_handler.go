package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-storefront-core/internal/cart"
)

type CartHandler struct {
	Carts *cart.Service
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/cart", h.get)
		r.Delete("/cart", h.clear)
		r.Post("/cart/items", h.addItem)
		r.Patch("/cart/items/{id}", h.updateItem)
		r.Delete("/cart/items/{id}", h.removeItem)
	})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	h.respond(w, r, "cart", func() (cart.View, error) { return h.Carts.Get(ctx, userID(r)) })
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	h.respond(w, r, "cart cleared", func() (cart.View, error) { return h.Carts.Clear(ctx, userID(r)) })
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	h.respond(w, r, "item added", func() (cart.View, error) {
		return h.Carts.AddItem(ctx, userID(r), req.ProductID, req.Quantity)
	})
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	h.respond(w, r, "item updated", func() (cart.View, error) {
		return h.Carts.UpdateItem(ctx, userID(r), chi.URLParam(r, "id"), req.Quantity)
	})
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	h.respond(w, r, "item removed", func() (cart.View, error) {
		return h.Carts.RemoveItem(ctx, userID(r), chi.URLParam(r, "id"))
	})
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, msg string, fn func() (cart.View, error)) {
	v, err := fn()
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, msg, v)
}
