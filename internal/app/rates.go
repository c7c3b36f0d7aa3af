/**
 * @description
 * RateConverter converts an amount between two currencies using the currently
 * active rate for the pair. There is no caching and no staleness window: each
 * call reads the latest active row, so a rate update takes effect on the next
 * conversion.
 */

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/azeezabass2005/soolution-be/internal/store"
)

// RateConverter resolves active exchange rates and applies them.
type RateConverter struct {
	repo store.Repository
}

// NewRateConverter creates a new rate converter backed by the given repository.
func NewRateConverter(repo store.Repository) *RateConverter {
	return &RateConverter{repo: repo}
}

// Convert returns amount multiplied by the active rate for (from, to),
// rounded to two decimal places. It fails with ErrNotFound when no active
// rate exists for the pair.
func (c *RateConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, err := c.repo.FindActiveRate(ctx, from, to)
	if err != nil {
		if errors.Is(err, store.ErrRateNotFound) {
			return decimal.Zero, fmt.Errorf("%w: no active rate for %s/%s", ErrNotFound, from, to)
		}
		return decimal.Zero, fmt.Errorf("failed to look up rate for %s/%s: %w", from, to, err)
	}
	return amount.Mul(rate.Rate).Round(2), nil
}
