package quantize

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		step string
		want string
	}{
		{"exact multiple", "0.002", "0.001", "0.002"},
		{"floors down", "0.0015", "0.001", "0.001"},
		{"below step", "0.0009", "0.001", "0"},
		{"zero", "0", "0.001", "0"},
		{"negative", "-1.5", "0.001", "0"},
		{"integer step", "12.9", "1", "12"},
		{"padded step from exchange", "0.123456", "0.00100000", "0.123"},
		{"tiny float residue", "0.0029999999999999999", "0.001", "0.002"},
		{"zero step", "1.5", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Quantity(d(tt.raw), d(tt.step))
			assert.True(t, got.Equal(d(tt.want)), "Quantity(%s, %s) = %s, want %s", tt.raw, tt.step, got, tt.want)
		})
	}
}

func TestQuantity_NeverExceedsInputAndStaysOnGrid(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	steps := []decimal.Decimal{d("0.001"), d("0.01"), d("0.1"), d("1"), d("0.0001")}

	for i := 0; i < 2000; i++ {
		raw := decimal.NewFromFloat(r.Float64() * 10).Round(9)
		step := steps[i%len(steps)]

		got := Quantity(raw, step)

		assert.False(t, got.IsNegative(), "quantity must not be negative")
		assert.True(t, got.LessThanOrEqual(raw), "quantity %s exceeds raw %s", got, raw)
		assert.True(t, got.Mod(step).IsZero(), "quantity %s not a multiple of %s", got, step)
		if raw.LessThan(step) {
			assert.True(t, got.IsZero(), "raw %s < step %s should give zero", raw, step)
		}
	}
}

func TestPrice(t *testing.T) {
	assert.True(t, Price(d("47512.3456"), d("0.01")).Equal(d("47512.34")))
	assert.True(t, Price(d("47512.3456"), d("0.1")).Equal(d("47512.3")))
	assert.True(t, Price(d("47512.3456"), d("0")).Equal(d("47512.3456")), "tick<=0 returns input unchanged")
	assert.True(t, Price(d("47512.3456"), d("-1")).Equal(d("47512.3456")))
	assert.True(t, PriceFromFloat(50000.129, d("0.01")).Equal(d("50000.12")))
}

func TestQuantityForBudget(t *testing.T) {
	// 余额1000，比例10%，价格50000
	spend := d("1000").Mul(d("0.10"))
	got := QuantityForBudget(spend, d("50000"), d("0.001"))
	assert.True(t, got.Equal(d("0.002")), "got %s", got)
	assert.True(t, got.GreaterThanOrEqual(d("0.001")))

	// 价格66666.67时 rawQty≈0.0015
	got = QuantityForBudget(d("100"), d("66666.67"), d("0.001"))
	assert.True(t, got.Equal(d("0.001")), "got %s", got)

	assert.True(t, QuantityForBudget(d("0"), d("50000"), d("0.001")).IsZero())
	assert.True(t, QuantityForBudget(d("100"), d("0"), d("0.001")).IsZero())
}
