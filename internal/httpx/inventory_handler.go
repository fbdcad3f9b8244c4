package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/inventory"
)

type InventoryHandler struct {
	Inventory *inventory.Service
}

type createInventoryReq struct {
	ProductID    string `json:"product_id"`
	InitialStock int    `json:"initial_stock"`
}

type adjustInventoryReq struct {
	TotalStock int `json:"total_stock"`
}

type putProductReq struct {
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Status string          `json:"status"`
	Stock  int             `json:"stock"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.With(requireUser).Get("/inventory/{productID}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/inventory", h.create)
		r.Put("/inventory/{productID}", h.adjust)
		r.Put("/products/{productID}", h.putProduct)
	})
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	inv, err := h.Inventory.Get(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "inventory", inv)
}

func (h *InventoryHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createInventoryReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	inv, err := h.Inventory.Create(ctx, req.ProductID, req.InitialStock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "inventory created", inv)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustInventoryReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	inv, err := h.Inventory.AdjustTotal(ctx, chi.URLParam(r, "productID"), req.TotalStock)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "inventory updated", inv)
}

func (h *InventoryHandler) putProduct(w http.ResponseWriter, r *http.Request) {
	var req putProductReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Inventory.PutProduct(ctx, domain.Product{
		ID:     chi.URLParam(r, "productID"),
		Name:   req.Name,
		Price:  req.Price,
		Status: req.Status,
		Stock:  req.Stock,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "product saved", p)
}
