// Package pricing holds the money rules used when an order is materialized.
// Every term is rounded half-up to two decimals on its own before it takes
// part in a sum, so totals never drift by a cent.
package pricing

import (
	"github.com/shopspring/decimal"
)

const scale = 2

var (
	DefaultTaxRate = decimal.RequireFromString("0.18")
	hundred        = decimal.NewFromInt(100)
)

// Round rounds half-up to two decimals. Money in this system is never
// negative, where half-up and half-away-from-zero coincide.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(scale)
}

// MinorUnits converts an amount to the gateway's integer minor unit (paise, cents).
func MinorUnits(d decimal.Decimal) int64 {
	return Round(d).Mul(hundred).IntPart()
}

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
	Total     decimal.Decimal
}

type Totals struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Discount   decimal.Decimal
	GrandTotal decimal.Decimal
	Items      int
}

type Calculator struct {
	TaxRate  decimal.Decimal
	Discount decimal.Decimal
}

func NewCalculator(taxRate, discount decimal.Decimal) Calculator {
	return Calculator{TaxRate: taxRate, Discount: discount}
}

// Line prices one order line from a unit price snapshot.
func (c Calculator) Line(unitPrice decimal.Decimal, qty int) Line {
	unit := Round(unitPrice)
	return Line{
		UnitPrice: unit,
		Quantity:  qty,
		Total:     Round(unit.Mul(decimal.NewFromInt(int64(qty)))),
	}
}

// Totals combines already rounded line totals into order totals.
// grand_total = subtotal + tax - discount, each term rounded first.
// The discount is capped so the grand total never goes below zero.
func (c Calculator) Totals(lines []Line) Totals {
	subtotal := decimal.Zero
	items := 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total)
		items += l.Quantity
	}
	subtotal = Round(subtotal)
	tax := Round(subtotal.Mul(c.TaxRate))
	discount := Round(c.Discount)
	if ceiling := subtotal.Add(tax); discount.GreaterThan(ceiling) {
		discount = ceiling
	}
	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		Discount:   discount,
		GrandTotal: subtotal.Add(tax).Sub(discount),
		Items:      items,
	}
}
