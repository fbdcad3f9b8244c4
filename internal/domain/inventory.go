package domain

import (
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-core/internal/apperr"
)

// Inventory is the per-product stock ledger row.
// TotalStock == AvailableStock + ReservedStock whenever no operation is in flight.
type Inventory struct {
	ProductID      string    `json:"product_id"`
	TotalStock     int       `json:"total_stock"`
	AvailableStock int       `json:"available_stock"`
	ReservedStock  int       `json:"reserved_stock"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewInventory(productID string, stock int) (Inventory, error) {
	if productID == "" {
		return Inventory{}, apperr.InvalidInput("product id is required")
	}
	if stock < 0 {
		return Inventory{}, apperr.InvalidInput("initial stock must be zero or greater")
	}
	return Inventory{
		ProductID:      productID,
		TotalStock:     stock,
		AvailableStock: stock,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// Reserve moves qty from available to reserved.
func (i *Inventory) Reserve(qty int) error {
	if qty <= 0 {
		return apperr.InvalidInput("reserve quantity must be greater than zero")
	}
	if i.AvailableStock < qty {
		return apperr.New(apperr.KindInsufficientStock,
			"insufficient stock for product %s: requested %d, available %d", i.ProductID, qty, i.AvailableStock)
	}
	i.AvailableStock -= qty
	i.ReservedStock += qty
	i.touch()
	return nil
}

// Finalize permanently consumes qty previously reserved.
// A shortfall in reserved stock is a programming error upstream, not a
// recoverable stock condition.
func (i *Inventory) Finalize(qty int) error {
	if qty <= 0 {
		return apperr.InvalidInput("finalize quantity must be greater than zero")
	}
	if i.ReservedStock < qty {
		return fmt.Errorf("inventory %s: finalize %d exceeds reserved %d", i.ProductID, qty, i.ReservedStock)
	}
	i.ReservedStock -= qty
	i.TotalStock -= qty
	i.touch()
	return nil
}

// Release hands qty of reserved stock back to available.
// Callers guarantee at most one release per reservation.
func (i *Inventory) Release(qty int) error {
	if qty <= 0 {
		return apperr.InvalidInput("release quantity must be greater than zero")
	}
	if i.ReservedStock < qty {
		return fmt.Errorf("inventory %s: release %d exceeds reserved %d", i.ProductID, qty, i.ReservedStock)
	}
	i.ReservedStock -= qty
	i.AvailableStock += qty
	i.touch()
	return nil
}

// SetTotal changes the total stock, carrying the difference into available.
func (i *Inventory) SetTotal(total int) error {
	if total < 0 {
		return apperr.InvalidInput("total stock must be zero or greater")
	}
	diff := total - i.TotalStock
	if i.AvailableStock+diff < 0 {
		return apperr.New(apperr.KindInsufficientStock,
			"cannot reduce total stock of product %s below reserved %d", i.ProductID, i.ReservedStock)
	}
	i.TotalStock = total
	i.AvailableStock += diff
	i.touch()
	return nil
}

// Check verifies the ledger invariant.
func (i Inventory) Check() error {
	if i.AvailableStock < 0 || i.ReservedStock < 0 {
		return fmt.Errorf("inventory %s: negative counters (available=%d reserved=%d)", i.ProductID, i.AvailableStock, i.ReservedStock)
	}
	if i.TotalStock != i.AvailableStock+i.ReservedStock {
		return fmt.Errorf("inventory %s: total %d != available %d + reserved %d",
			i.ProductID, i.TotalStock, i.AvailableStock, i.ReservedStock)
	}
	return nil
}

func (i *Inventory) touch() {
	i.UpdatedAt = time.Now().UTC()
}
