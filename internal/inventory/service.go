// Package inventory is the stock ledger: per-product total, available and
// reserved counters, mutated only under a row lock inside a transaction.
package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
	"github.com/ariefcatur/go-storefront-core/internal/domain"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/pricing"
	"github.com/ariefcatur/go-storefront-core/internal/store"
)

type Service struct {
	Store   store.Store
	Metrics *metrics.Metrics
}

func New(st store.Store, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.Nop()
	}
	return &Service{Store: st, Metrics: m}
}

// Create sets up the ledger row once; a second call for the same product
// fails with Conflict.
func (s *Service) Create(ctx context.Context, productID string, initialStock int) (domain.Inventory, error) {
	inv, err := domain.NewInventory(productID, initialStock)
	if err != nil {
		return domain.Inventory{}, err
	}
	err = s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateInventory(ctx, inv)
	})
	if err != nil {
		return domain.Inventory{}, err
	}
	logging.FromContext(ctx).Info("inventory_created",
		zap.String("product_id", productID), zap.Int("stock", initialStock))
	return inv, nil
}

func (s *Service) Get(ctx context.Context, productID string) (domain.Inventory, error) {
	var inv domain.Inventory
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		inv, err = tx.GetInventory(ctx, productID)
		return err
	})
	return inv, err
}

// AdjustTotal restocks or shrinks a product. The delta lands on available
// stock; reserved stock is never touched.
func (s *Service) AdjustTotal(ctx context.Context, productID string, total int) (domain.Inventory, error) {
	var inv domain.Inventory
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if inv, err = tx.LockInventory(ctx, productID); err != nil {
			return err
		}
		if err = inv.SetTotal(total); err != nil {
			return err
		}
		return tx.UpdateInventory(ctx, inv)
	})
	if err != nil {
		return domain.Inventory{}, err
	}
	logging.FromContext(ctx).Info("inventory_adjusted",
		zap.String("product_id", productID), zap.Int("total_stock", inv.TotalStock))
	return inv, nil
}

// Reserve locks the row and moves qty to reserved inside tx.
// A missing row is reported as InsufficientStock: checkout cannot sell
// what the ledger does not track.
func (s *Service) Reserve(ctx context.Context, tx store.Tx, productID string, qty int) error {
	err := s.apply(ctx, tx, productID, func(inv *domain.Inventory) error { return inv.Reserve(qty) })
	if errors.Is(err, apperr.ErrNotFound) {
		err = apperr.Wrap(apperr.KindInsufficientStock, err, "no inventory for product %s", productID)
	}
	if err != nil {
		s.Metrics.ReservationFailed(apperr.KindOf(err))
	}
	return err
}

// Finalize consumes a prior reservation inside tx.
func (s *Service) Finalize(ctx context.Context, tx store.Tx, productID string, qty int) error {
	return s.apply(ctx, tx, productID, func(inv *domain.Inventory) error { return inv.Finalize(qty) })
}

// Release returns a prior reservation to available stock inside tx.
// Callers guarantee one release per reservation.
func (s *Service) Release(ctx context.Context, tx store.Tx, productID string, qty int) error {
	return s.apply(ctx, tx, productID, func(inv *domain.Inventory) error { return inv.Release(qty) })
}

func (s *Service) apply(ctx context.Context, tx store.Tx, productID string, op func(*domain.Inventory) error) error {
	inv, err := tx.LockInventory(ctx, productID)
	if err != nil {
		return err
	}
	if err := op(&inv); err != nil {
		return err
	}
	return tx.UpdateInventory(ctx, inv)
}

// PutProduct creates or updates a catalog entry. A new product gets a
// ledger row seeded with its advertised stock.
func (s *Service) PutProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.Status == "" {
		p.Status = domain.ProductStatusActive
	}
	switch {
	case p.ID == "" || p.Name == "":
		return domain.Product{}, apperr.InvalidInput("product id and name are required")
	case p.Price.IsNegative():
		return domain.Product{}, apperr.InvalidInput("price must not be negative")
	case p.Stock < 0:
		return domain.Product{}, apperr.InvalidInput("stock must not be negative")
	}
	p.Price = pricing.Round(p.Price)
	p.UpdatedAt = time.Now().UTC()

	created := false
	err := s.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpsertProduct(ctx, p); err != nil {
			return err
		}
		_, err := tx.GetInventory(ctx, p.ID)
		if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		inv, err := domain.NewInventory(p.ID, p.Stock)
		if err != nil {
			return err
		}
		created = true
		return tx.CreateInventory(ctx, inv)
	})
	if err != nil {
		return domain.Product{}, err
	}
	logging.FromContext(ctx).Info("product_saved",
		zap.String("product_id", p.ID), zap.String("status", p.Status), zap.Bool("ledger_created", created))
	return p, nil
}
