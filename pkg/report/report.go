// Package report writes the balance report: one line per input address
// holding the whole-number fiat value of its balance, or nothing when the
// value is below one.
package report

import (
	"context"
	"fmt"
	"io"
	"math/big"

	"github.com/lisanmuaddib/balance-sweeper/pkg/money"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultRate is the number of balance queries per second
const DefaultRate = 10

// BalanceReader reads a base-unit balance. chain.Client implements it.
type BalanceReader interface {
	Balance(ctx context.Context, token, address string) (*big.Int, error)
}

// Config configures a Reporter.
type Config struct {
	Balances BalanceReader

	// Token is the token contract, "" for the native asset
	Token string

	// Price is the fixed fiat price of one display unit
	Price decimal.Decimal

	// Rate limits balance queries per second, DefaultRate when zero
	Rate rate.Limit

	// Retries is the number of extra attempts for a failed balance query
	Retries int

	Logger *logrus.Logger
}

// Reporter produces balance reports.
type Reporter struct {
	balances BalanceReader
	token    string
	price    decimal.Decimal
	limiter  *rate.Limiter
	retries  int
	logger   *logrus.Logger
}

// Summary describes a finished report.
type Summary struct {
	Lines    int
	NonEmpty int
	// Total is the sum of the written values
	Total decimal.Decimal
}

// New creates a Reporter. Balances is required and Price must be positive.
func New(config Config) (*Reporter, error) {
	if config.Balances == nil {
		return nil, fmt.Errorf("balance reader is required")
	}
	if !config.Price.IsPositive() {
		return nil, fmt.Errorf("report price must be positive")
	}
	if config.Rate <= 0 {
		config.Rate = DefaultRate
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &Reporter{
		balances: config.Balances,
		token:    config.Token,
		price:    config.Price,
		limiter:  rate.NewLimiter(config.Rate, 1),
		retries:  config.Retries,
		logger:   config.Logger,
	}, nil
}

// FormatValue renders one report cell: the balance value rounded half-up to
// a whole number, or "" when that is below one.
func FormatValue(balance *big.Int, price decimal.Decimal) string {
	value := money.BaseUnitsToWholeFiat(balance, price)
	if value.LessThan(decimal.NewFromInt(1)) {
		return ""
	}
	return value.String()
}

// Run writes one line per address to w, in input order. Blank addresses
// produce blank lines. A balance that cannot be read after the retries
// aborts the report.
func (r *Reporter) Run(ctx context.Context, addresses []string, w io.Writer) (Summary, error) {
	summary := Summary{Total: decimal.Zero}

	for i, address := range addresses {
		cell := ""
		if address != "" {
			balance, err := r.balance(ctx, address)
			if err != nil {
				return summary, fmt.Errorf("line %d (%s): %w", i+1, address, err)
			}
			cell = FormatValue(balance, r.price)

			r.logger.WithFields(logrus.Fields{
				"index":       i,
				"address":     address,
				"balance_wei": balance.String(),
				"value":       cell,
			}).Info("Balance")
		}

		if _, err := fmt.Fprintln(w, cell); err != nil {
			return summary, fmt.Errorf("failed to write report: %w", err)
		}

		summary.Lines++
		if cell != "" {
			summary.NonEmpty++
			summary.Total = summary.Total.Add(decimal.RequireFromString(cell))
		}
	}

	return summary, nil
}

func (r *Reporter) balance(ctx context.Context, address string) (*big.Int, error) {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if waitErr := r.limiter.Wait(ctx); waitErr != nil {
			return nil, waitErr
		}

		var balance *big.Int
		balance, err = r.balances.Balance(ctx, r.token, address)
		if err == nil {
			return balance, nil
		}

		r.logger.WithFields(logrus.Fields{
			"address": address,
			"attempt": attempt + 1,
		}).WithError(err).Warn("Balance query failed")
	}
	return nil, err
}

