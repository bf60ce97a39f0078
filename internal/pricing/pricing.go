package pricing

import (
	"sync"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Rates are the storefront's currency constants. VAT applies to the subtotal
// only, never to shipping.
type Rates struct {
	VATRate          decimal.Decimal
	StandardShipping decimal.Decimal
	ExpressShipping  decimal.Decimal
	Currency         string
}

func DefaultRates() Rates {
	return Rates{
		VATRate:          decimal.RequireFromString("0.16"),
		StandardShipping: decimal.NewFromInt(200),
		ExpressShipping:  decimal.NewFromInt(500),
		Currency:         "KES",
	}
}

func (r Rates) ShippingCost(method d.ShippingMethod) decimal.Decimal {
	if method == d.ShippingExpress {
		return r.ExpressShipping
	}
	return r.StandardShipping
}

type Breakdown struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	VATAmount    decimal.Decimal `json:"vat_amount"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}

// ComputeBreakdown derives the checkout totals. VAT is rounded to two decimal
// places, half away from zero, and Total is always the exact sum of the parts.
func ComputeBreakdown(rates Rates, subtotal decimal.Decimal, method d.ShippingMethod) Breakdown {
	shipping := rates.ShippingCost(method)
	vat := subtotal.Mul(rates.VATRate).Round(2)
	return Breakdown{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		VATAmount:    vat,
		Total:        subtotal.Add(shipping).Add(vat),
		Currency:     rates.Currency,
	}
}

// Calculator remembers the breakdown for the most recent inputs.
type Calculator struct {
	rates Rates

	mu         sync.Mutex
	lastSub    decimal.Decimal
	lastMethod d.ShippingMethod
	last       *Breakdown
}

func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

func (c *Calculator) Rates() Rates {
	return c.rates
}

func (c *Calculator) Compute(subtotal decimal.Decimal, method d.ShippingMethod) Breakdown {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && c.lastMethod == method && c.lastSub.Equal(subtotal) {
		return *c.last
	}
	b := ComputeBreakdown(c.rates, subtotal, method)
	c.last, c.lastSub, c.lastMethod = &b, subtotal, method
	return b
}
