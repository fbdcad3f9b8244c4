package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is owned 1:1 by a user and holds pre-order lines.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
}

type CartItem struct {
	ID        string          `json:"id"`
	CartID    string          `json:"cart_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Purchasable returns items with a positive quantity.
func (c *Cart) Purchasable() []CartItem {
	if c == nil {
		return nil
	}
	out := make([]CartItem, 0, len(c.Items))
	for _, it := range c.Items {
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}
	return out
}

func (c *Cart) Item(itemID string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return CartItem{}, false
}

func (c *Cart) ItemByProduct(productID string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return CartItem{}, false
}
