package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/pkg/chain"
	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/lisanmuaddib/balance-sweeper/pkg/money"
	"github.com/lisanmuaddib/balance-sweeper/pkg/price"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultFeePollInterval is the wait between rejected fee quotes
const DefaultFeePollInterval = 10 * time.Minute

// EstimateFunc quotes the fee of a pending transfer.
type EstimateFunc func(ctx context.Context) (chain.FeeEstimate, error)

// FeeGateConfig configures a FeeGate.
type FeeGateConfig struct {
	Prices PriceSource

	// Ceiling is the exclusive fiat limit for an acceptable fee
	Ceiling decimal.Decimal

	// PollInterval is the sleep after a rejected quote
	PollInterval time.Duration

	Notifier Notifier
	Metrics  Metrics
	Clock    clock.Clock
	Logger   *logrus.Logger
}

// FeeGate re-quotes a transfer's fee until its fiat value drops strictly
// below the ceiling. There is no attempt limit: a batch may wait on one
// account for as long as fees stay high.
type FeeGate struct {
	prices   PriceSource
	ceiling  decimal.Decimal
	interval time.Duration
	notifier Notifier
	metrics  Metrics
	clock    clock.Clock
	logger   *logrus.Logger
}

// NewFeeGate creates a FeeGate. Prices is required and the ceiling must be
// positive.
func NewFeeGate(config FeeGateConfig) (*FeeGate, error) {
	if config.Prices == nil {
		return nil, fmt.Errorf("price source is required")
	}
	if !config.Ceiling.IsPositive() {
		return nil, fmt.Errorf("fee ceiling must be positive")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultFeePollInterval
	}
	if config.Notifier == nil {
		config.Notifier = noopNotifier{}
	}
	if config.Metrics == nil {
		config.Metrics = noopMetrics{}
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &FeeGate{
		prices:   config.Prices,
		ceiling:  config.Ceiling,
		interval: config.PollInterval,
		notifier: config.Notifier,
		metrics:  config.Metrics,
		clock:    config.Clock,
		logger:   config.Logger,
	}, nil
}

// WaitForAcceptableFee returns the first estimate whose fiat value is below
// the ceiling. Estimation and price failures end the wait with a
// SweepError; so does ctx ending during a sleep.
func (g *FeeGate) WaitForAcceptableFee(ctx context.Context, job AccountJob, estimate EstimateFunc) (chain.FeeEstimate, error) {
	log := g.logger.WithField("job", job.Label())

	for attempt := 1; ; attempt++ {
		fee, err := estimate(ctx)
		if err != nil {
			return chain.FeeEstimate{}, NewSweepError(ErrCodeFeeEstimate, "failed to estimate fee", err, job.Label())
		}
		if fee.SuggestedMaxFee == nil || fee.SuggestedMaxFee.Sign() < 0 {
			return chain.FeeEstimate{}, NewSweepError(ErrCodeFeeEstimate, "fee estimate has no maximum fee", nil, job.Label())
		}

		p, err := g.prices.Price(ctx)
		if err != nil {
			return chain.FeeEstimate{}, priceError(err, job)
		}

		feeFiat := money.BaseUnitsToFiat(fee.SuggestedMaxFee, p)
		entry := log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"fee_wei":  fee.SuggestedMaxFee.String(),
			"fee_fiat": feeFiat.StringFixed(money.FiatPlaces),
			"max_fiat": g.ceiling.StringFixed(money.FiatPlaces),
		})

		if feeFiat.LessThan(g.ceiling) {
			g.metrics.FeeChecked(true)
			entry.Info("Fee accepted")
			g.notifier.Notify(ctx, fmt.Sprintf("good fee %s", money.FormatFiat(feeFiat)))
			return fee, nil
		}

		g.metrics.FeeChecked(false)
		entry.Warn("Fee above ceiling")
		g.notifier.Notify(ctx, fmt.Sprintf("bad fee %s", money.FormatFiat(feeFiat)))

		if err := sleepNotified(ctx, g.clock, g.notifier, log, g.interval); err != nil {
			return chain.FeeEstimate{}, err
		}
	}
}

// priceError maps a price source failure onto PRICE_FETCH_ERROR.
func priceError(err error, job AccountJob) error {
	msg := "failed to get price"
	if !errors.Is(err, price.ErrPriceFetch) {
		msg = "price source failed"
	}
	return NewSweepError(ErrCodePriceFetch, msg, err, job.Label())
}

// sleepNotified logs and announces a sleep before taking it.
func sleepNotified(ctx context.Context, c clock.Clock, n Notifier, log *logrus.Entry, d time.Duration) error {
	log.WithField("duration", d.String()).Info("Sleeping")
	n.Notify(ctx, fmt.Sprintf("sleep %ds", int64(d.Round(time.Second)/time.Second)))
	return c.Sleep(ctx, d)
}
