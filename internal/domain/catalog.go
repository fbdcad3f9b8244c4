package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const ProductStatusActive = "active"

// Product is the read-only catalog view the core depends on.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	Stock     int             `json:"stock"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (p Product) Active() bool { return p.Status == ProductStatusActive }
