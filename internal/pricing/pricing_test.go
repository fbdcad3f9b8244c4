package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundHalfUp(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0.005", "0.01"},
		{"0.004", "0"},
		{"1.125", "1.13"},
		{"2.675", "2.68"},
		{"10", "10"},
	}
	for _, tc := range tests {
		assert.True(t, dec(tc.want).Equal(Round(dec(tc.in))), "Round(%s)", tc.in)
	}
}

func TestSingleLineScenario(t *testing.T) {
	c := NewCalculator(DefaultTaxRate, decimal.Zero)

	totals := c.Totals([]Line{c.Line(dec("10.00"), 3)})

	assert.Equal(t, "30", totals.Subtotal.String())
	assert.Equal(t, "5.4", totals.Tax.String())
	assert.Equal(t, "0", totals.Discount.String())
	assert.Equal(t, "35.4", totals.GrandTotal.String())
	assert.Equal(t, 3, totals.Items)
}

func TestTaxRoundsIndependently(t *testing.T) {
	c := NewCalculator(DefaultTaxRate, decimal.Zero)

	// 0.99 * 0.18 = 0.1782 -> 0.18
	totals := c.Totals([]Line{c.Line(dec("0.99"), 1)})

	assert.Equal(t, "0.18", totals.Tax.String())
	assert.Equal(t, "1.17", totals.GrandTotal.String())
}

func TestDiscountIsCapped(t *testing.T) {
	c := NewCalculator(DefaultTaxRate, dec("1000"))

	totals := c.Totals([]Line{c.Line(dec("5.00"), 1)})

	assert.True(t, totals.GrandTotal.IsZero())
	assert.Equal(t, "5.9", totals.Discount.String())
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(3540), MinorUnits(dec("35.40")))
	assert.Equal(t, int64(1), MinorUnits(dec("0.005")))
	assert.Equal(t, int64(0), MinorUnits(decimal.Zero))
}

func TestGrandTotalLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rateBps := rapid.IntRange(0, 5000).Draw(t, "tax_bps")
		discountCents := rapid.Int64Range(0, 10_000).Draw(t, "discount_cents")
		c := NewCalculator(decimal.New(int64(rateBps), -4), decimal.New(discountCents, -2))

		n := rapid.IntRange(1, 12).Draw(t, "lines")
		lines := make([]Line, 0, n)
		for i := 0; i < n; i++ {
			// prices with up to four decimals exercise the rounding of each unit
			price := decimal.New(rapid.Int64Range(0, 10_000_000).Draw(t, "price"), -4)
			qty := rapid.IntRange(1, 50).Draw(t, "qty")
			lines = append(lines, c.Line(price, qty))
		}

		got := c.Totals(lines)

		sum := decimal.Zero
		for _, l := range lines {
			if !l.Total.Equal(Round(l.Total)) {
				t.Fatalf("line total %s not rounded", l.Total)
			}
			sum = sum.Add(l.Total)
		}
		if !got.Subtotal.Equal(sum) {
			t.Fatalf("subtotal %s != sum of lines %s", got.Subtotal, sum)
		}
		if !got.GrandTotal.Equal(got.Subtotal.Add(got.Tax).Sub(got.Discount)) {
			t.Fatalf("grand %s != %s + %s - %s", got.GrandTotal, got.Subtotal, got.Tax, got.Discount)
		}
		if got.GrandTotal.IsNegative() {
			t.Fatalf("negative grand total %s", got.GrandTotal)
		}
		for _, v := range []decimal.Decimal{got.Subtotal, got.Tax, got.Discount, got.GrandTotal} {
			if v.Exponent() < -2 && !v.Equal(Round(v)) {
				t.Fatalf("%s has more than two decimals", v)
			}
		}
	})
}
