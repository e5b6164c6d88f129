package sweep

import (
	"context"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/pkg/chain"
	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/sirupsen/logrus"
)

// DefaultFinalityPollInterval is the wait between status polls
const DefaultFinalityPollInterval = 2 * time.Second

// PollFunc reads the current status of a transaction.
type PollFunc func(ctx context.Context, txHash string) (chain.TxStatus, error)

// FinalityWaiter polls a submitted transaction until it is both final and
// successfully executed. Rejection and revert are chain-final and end the
// wait at once. Anything else, poll errors included, is polled again with
// no timeout.
type FinalityWaiter struct {
	interval time.Duration
	clock    clock.Clock
	logger   *logrus.Logger
}

// NewFinalityWaiter creates a waiter polling every interval, or
// DefaultFinalityPollInterval when interval is not positive.
func NewFinalityWaiter(interval time.Duration, c clock.Clock, logger *logrus.Logger) *FinalityWaiter {
	if interval <= 0 {
		interval = DefaultFinalityPollInterval
	}
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &FinalityWaiter{interval: interval, clock: c, logger: logger}
}

// WaitForFinality returns nil once poll reports an accepted and succeeded
// transaction, or a TRANSACTION_REJECTED / TRANSACTION_REVERTED SweepError.
func (w *FinalityWaiter) WaitForFinality(ctx context.Context, job AccountJob, txHash string, poll PollFunc) error {
	log := w.logger.WithFields(logrus.Fields{
		"job":     job.Label(),
		"tx_hash": txHash,
	})

	for {
		status, err := poll(ctx, txHash)
		switch {
		case err != nil:
			log.WithError(err).Warn("Transaction status poll failed")
		case status.Succeeded():
			log.Info("Transaction final")
			return nil
		case status.Rejected():
			return NewSweepError(ErrCodeTransactionRejected, "transaction rejected", reasonError(status), job.Label())
		case status.Reverted():
			return NewSweepError(ErrCodeTransactionReverted, "transaction reverted", reasonError(status), job.Label())
		default:
			log.WithField("status", status.String()).Debug("Transaction not final yet")
		}

		if err := w.clock.Sleep(ctx, w.interval); err != nil {
			return err
		}
	}
}

type statusReason string

func (r statusReason) Error() string { return string(r) }

func reasonError(status chain.TxStatus) error {
	if status.Reason == "" {
		return statusReason(status.String())
	}
	return statusReason(status.Reason)
}
