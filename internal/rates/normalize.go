package rates

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Normalized is an amount converted into the reporting currency.
type Normalized struct {
	Amount decimal.Decimal
	Rate   Rate
}

// Normalizer converts amounts with rates from a Resolver.
type Normalizer struct {
	resolver *Resolver
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(r *Resolver) *Normalizer {
	return &Normalizer{resolver: r}
}

// Normalize converts amount in currency on date into the reporting currency.
// Only the product is rounded, to 2 places, halves up.
func (n *Normalizer) Normalize(ctx context.Context, amount decimal.Decimal, currency string, date time.Time) (Normalized, error) {
	rate, err := n.resolver.Resolve(ctx, currency, date)
	if err != nil {
		return Normalized{}, err
	}
	return Normalized{Amount: Round2(amount.Mul(rate.Value)), Rate: rate}, nil
}

var half = decimal.RequireFromString("0.5")

// Round2 rounds to cents with exact halves going up, toward positive
// infinity: 0.125 becomes 0.13 and -0.125 becomes -0.12.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Shift(2).Add(half).Floor().Shift(-2)
}
