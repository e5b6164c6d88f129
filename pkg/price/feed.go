// Package price provides fiat reference prices for the swept token: upstream
// feeds and a caching oracle that refreshes them.
package price

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrPriceFetch marks every failure to obtain a usable price from a feed.
var ErrPriceFetch = errors.New("price fetch failed")

// Feed fetches the current fiat price of a token symbol.
type Feed interface {
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// FixedFeed always returns the same operator-supplied price.
type FixedFeed struct {
	Price decimal.Decimal
}

// NewFixedFeed returns a feed pinned to price
func NewFixedFeed(price decimal.Decimal) FixedFeed {
	return FixedFeed{Price: price}
}

func (f FixedFeed) FetchPrice(ctx context.Context, _ string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return f.Price, nil
}
