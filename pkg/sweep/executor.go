package sweep

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/lisanmuaddib/balance-sweeper/pkg/chain"
	"github.com/lisanmuaddib/balance-sweeper/pkg/money"
	"github.com/sirupsen/logrus"
)

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Chain  chain.Client
	Prices PriceSource

	// Token is the swept token contract, "" for the native asset
	Token string

	Threshold Threshold
	FeeGate   *FeeGate
	Finality  *FinalityWaiter

	// ExplorerURL, when set, prefixes the transaction hash in the
	// submission notification
	ExplorerURL string

	Notifier Notifier
	Logger   *logrus.Logger
}

// Executor sweeps one account: balance, threshold, fee gate, submit,
// finality. Every step must succeed for the next to run.
type Executor struct {
	chain       chain.Client
	prices      PriceSource
	token       string
	threshold   Threshold
	feeGate     *FeeGate
	finality    *FinalityWaiter
	explorerURL string
	notifier    Notifier
	logger      *logrus.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(config ExecutorConfig) (*Executor, error) {
	if config.Chain == nil {
		return nil, fmt.Errorf("chain client is required")
	}
	if config.Prices == nil {
		return nil, fmt.Errorf("price source is required")
	}
	if config.FeeGate == nil {
		return nil, fmt.Errorf("fee gate is required")
	}
	if err := config.Threshold.Validate(); err != nil {
		return nil, err
	}
	if config.Finality == nil {
		config.Finality = NewFinalityWaiter(0, nil, config.Logger)
	}
	if config.Notifier == nil {
		config.Notifier = noopNotifier{}
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &Executor{
		chain:       config.Chain,
		prices:      config.Prices,
		token:       config.Token,
		threshold:   config.Threshold,
		feeGate:     config.FeeGate,
		finality:    config.Finality,
		explorerURL: strings.TrimRight(config.ExplorerURL, "/"),
		notifier:    config.Notifier,
		logger:      config.Logger,
	}, nil
}

// Execute runs the job to a single outcome. It never returns an error: all
// failures come back as a Failed outcome carrying a SweepError.
func (e *Executor) Execute(ctx context.Context, job AccountJob) Outcome {
	log := e.logger.WithFields(logrus.Fields{
		"job":       job.Label(),
		"address":   job.Address,
		"recipient": job.Recipient,
	})

	balance, err := e.chain.Balance(ctx, e.token, job.Address)
	if err != nil {
		return Failed(NewSweepError(ErrCodeBalanceQuery, "failed to query balance", err, job.Label()))
	}
	log = log.WithField("balance_wei", balance.String())

	skipped, checked := e.checkThreshold(ctx, job, balance, log)
	if skipped {
		return checked
	}

	intent := chain.TransferIntent{
		Token:     e.token,
		Recipient: job.Recipient,
		Amount:    new(big.Int).Set(balance),
	}

	fee, err := e.feeGate.WaitForAcceptableFee(ctx, job, func(ctx context.Context) (chain.FeeEstimate, error) {
		return e.chain.EstimateFee(ctx, job.Credential, intent)
	})
	if err != nil {
		return e.failed(balance, nil, nil, err)
	}

	if fee.SuggestedMaxFee.Cmp(balance) >= 0 {
		err := NewSweepError(ErrCodeInsufficientBalanceForFee,
			fmt.Sprintf("fee %s exceeds balance %s", fee.SuggestedMaxFee, balance), nil, job.Label())
		return e.failed(balance, fee.SuggestedMaxFee, nil, err)
	}

	amount := new(big.Int).Sub(balance, fee.SuggestedMaxFee)
	intent.Amount = amount
	intent.Fee = &fee

	log = log.WithFields(logrus.Fields{
		"fee_wei":    fee.SuggestedMaxFee.String(),
		"amount_wei": amount.String(),
	})

	txHash, err := e.chain.Submit(ctx, job.Credential, intent)
	if err != nil {
		err := NewSweepError(ErrCodeSubmission, "failed to submit transfer", err, job.Label())
		return e.failed(balance, fee.SuggestedMaxFee, amount, err)
	}

	log.WithField("tx_hash", txHash).Info("Transfer submitted")
	e.notifier.Notify(ctx, e.txLink(txHash))

	if err := e.finality.WaitForFinality(ctx, job, txHash, e.chain.TransactionStatus); err != nil {
		outcome := e.failed(balance, fee.SuggestedMaxFee, amount, err)
		outcome.TxHash = txHash
		return outcome
	}

	log.WithField("tx_hash", txHash).Info("Transfer final")

	outcome := Success(txHash)
	outcome.ActualFiat = checked.ActualFiat
	outcome.Balance = balance
	outcome.Fee = fee.SuggestedMaxFee
	outcome.Amount = amount
	return outcome
}

// checkThreshold returns a SkippedLowBalance or Failed outcome when the job
// must stop before the fee gate. Otherwise the returned outcome only carries
// the balance's fiat value, when one was computed.
func (e *Executor) checkThreshold(ctx context.Context, job AccountJob, balance *big.Int, log *logrus.Entry) (bool, Outcome) {
	switch e.threshold.Mode {
	case ThresholdToken:
		if balance.Cmp(e.threshold.MinTokens) < 0 {
			log.WithField("min_tokens", money.FormatTokens(e.threshold.MinTokens)).Info("Balance below threshold")
			e.notifier.Notify(ctx, fmt.Sprintf("balance too low %s", money.FormatTokens(balance)))
			return true, SkippedLowBalance(balance, nil)
		}
		e.notifier.Notify(ctx, fmt.Sprintf("balance: %s", money.FormatTokens(balance)))
		return false, Outcome{}

	default:
		p, err := e.prices.Price(ctx)
		if err != nil {
			return true, e.failed(balance, nil, nil, priceError(err, job))
		}

		fiat := money.BaseUnitsToFiat(balance, p)
		log = log.WithField("balance_fiat", fiat.StringFixed(money.FiatPlaces))

		if fiat.LessThan(e.threshold.MinFiat) {
			log.Info("Balance below threshold")
			e.notifier.Notify(ctx, fmt.Sprintf("usd balance too low %s", money.FormatFiat(fiat)))
			return true, SkippedLowBalance(balance, &fiat)
		}

		log.Info("Balance above threshold")
		e.notifier.Notify(ctx, fmt.Sprintf("usd balance: %s", money.FormatFiat(fiat)))
		return false, Outcome{ActualFiat: &fiat}
	}
}

func (e *Executor) failed(balance, fee, amount *big.Int, err error) Outcome {
	outcome := Failed(err)
	outcome.Balance = balance
	outcome.Fee = fee
	outcome.Amount = amount
	return outcome
}

func (e *Executor) txLink(txHash string) string {
	if e.explorerURL == "" {
		return txHash
	}
	return e.explorerURL + "/" + txHash
}
