package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/sirupsen/logrus"
)

// Batch policy defaults
const (
	DefaultCooldown     = 10 * time.Minute
	DefaultErrorBackoff = 2 * time.Minute
	DefaultMaxErrors    = 3
)

// JobExecutor runs one job to its outcome. *Executor implements it.
type JobExecutor interface {
	Execute(ctx context.Context, job AccountJob) Outcome
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Executor JobExecutor

	// Cooldown is slept after a success, and after a skip when
	// CooldownOnSkip is set
	Cooldown time.Duration
	// ErrorBackoff is slept after a failure that did not exhaust the budget
	ErrorBackoff time.Duration
	// MaxErrors is the number of consecutive failures that aborts the batch
	MaxErrors      int
	CooldownOnSkip bool

	// SkipCompleted skips jobs whose address has a recorded success in the
	// ledger
	SkipCompleted bool

	Ledger   Ledger
	Metrics  Metrics
	Notifier Notifier
	Clock    clock.Clock
	Logger   *logrus.Logger
}

// Runner drives a batch: jobs run strictly in order, one at a time.
type Runner struct {
	executor       JobExecutor
	cooldown       time.Duration
	errorBackoff   time.Duration
	maxErrors      int
	cooldownOnSkip bool
	skipCompleted  bool
	ledger         Ledger
	metrics        Metrics
	notifier       Notifier
	clock          clock.Clock
	logger         *logrus.Logger
}

// NewRunner creates a Runner, filling unset policy values with the defaults.
func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if config.Cooldown < 0 || config.ErrorBackoff < 0 {
		return nil, fmt.Errorf("cooldown and error backoff must not be negative")
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = DefaultMaxErrors
	}
	if config.SkipCompleted && config.Ledger == nil {
		return nil, fmt.Errorf("skipping completed jobs requires a ledger")
	}
	if config.Ledger == nil {
		config.Ledger = noopLedger{}
	}
	if config.Metrics == nil {
		config.Metrics = noopMetrics{}
	}
	if config.Notifier == nil {
		config.Notifier = noopNotifier{}
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &Runner{
		executor:       config.Executor,
		cooldown:       config.Cooldown,
		errorBackoff:   config.ErrorBackoff,
		maxErrors:      config.MaxErrors,
		cooldownOnSkip: config.CooldownOnSkip,
		skipCompleted:  config.SkipCompleted,
		ledger:         config.Ledger,
		metrics:        config.Metrics,
		notifier:       config.Notifier,
		clock:          config.Clock,
		logger:         config.Logger,
	}, nil
}

// Run processes jobs in order and returns the final state.
//
// A success resets the consecutive error count, a skip leaves it alone and
// a failure increments it. Reaching MaxErrors returns a TOO_MANY_ERRORS
// SweepError without touching the remaining jobs. No sleep follows the last
// job.
//
// ctx is checked between jobs and interrupts cooldown and backoff sleeps,
// in which case ctx.Err() is returned. A job that has started always runs
// to its outcome.
func (r *Runner) Run(ctx context.Context, jobs []AccountJob) (BatchState, error) {
	runID := uuid.NewString()
	log := r.logger.WithField("run_id", runID)

	var state BatchState
	total := len(jobs)

	log.WithField("jobs", total).Info("Starting batch")

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			log.WithField("index", i+1).Warn("Batch cancelled")
			return state, err
		}

		jobLog := log.WithFields(logrus.Fields{
			"job":   job.Label(),
			"index": i + 1,
		})
		last := i == total-1

		if r.skipCompleted {
			done, err := r.ledger.Completed(ctx, job.Address)
			if err != nil {
				jobLog.WithError(err).Warn("Ledger lookup failed, running job")
			} else if done {
				jobLog.Info("Already swept, skipping")
				state.AlreadyDone++
				continue
			}
		}

		r.notifier.Notify(ctx, fmt.Sprintf("%d/%d %s", i+1, total, job.Label()))

		// the running job and its reporting outlive a cancel
		jobCtx := context.WithoutCancel(ctx)

		started := r.clock.Now()
		outcome := r.executor.Execute(jobCtx, job)
		r.metrics.JobCompleted(outcome.Kind.String(), r.clock.Now().Sub(started))
		state.TotalProcessed++

		r.record(jobCtx, jobLog, runID, i+1, job, outcome)

		var pause time.Duration
		switch outcome.Kind {
		case OutcomeSuccess:
			state.Succeeded++
			state.ConsecutiveErrors = 0
			jobLog.WithField("tx_hash", outcome.TxHash).Info("Job succeeded")
			pause = r.cooldown

		case OutcomeSkippedLowBalance:
			state.Skipped++
			jobLog.Info("Job skipped, balance below threshold")
			if r.cooldownOnSkip {
				pause = r.cooldown
			}

		default:
			state.Failed++
			state.ConsecutiveErrors++
			jobLog.WithError(outcome.Err).WithField("consecutive_errors", state.ConsecutiveErrors).Error("Job failed")
			r.notifier.Notify(jobCtx, outcome.Reason())

			if state.ConsecutiveErrors >= r.maxErrors {
				r.metrics.SetConsecutiveErrors(state.ConsecutiveErrors)
				err := NewSweepError(ErrCodeTooManyErrors,
					fmt.Sprintf("%d consecutive errors", state.ConsecutiveErrors), outcome.Err, "")
				log.WithError(err).Error("Aborting batch")
				r.notifier.Notify(jobCtx, "too many errors, batch aborted")
				return state, err
			}
			pause = r.errorBackoff
		}
		r.metrics.SetConsecutiveErrors(state.ConsecutiveErrors)

		if last || pause <= 0 {
			continue
		}
		if err := sleepNotified(ctx, r.clock, r.notifier, jobLog, pause); err != nil {
			log.Warn("Batch cancelled during sleep")
			return state, err
		}
	}

	log.WithFields(logrus.Fields{
		"processed": state.TotalProcessed,
		"succeeded": state.Succeeded,
		"skipped":   state.Skipped,
		"failed":    state.Failed,
	}).Info("Batch finished")

	return state, nil
}

func (r *Runner) record(ctx context.Context, log *logrus.Entry, runID string, index int, job AccountJob, outcome Outcome) {
	err := r.ledger.Record(ctx, Record{
		RunID:     runID,
		Index:     index,
		Name:      job.Name,
		Address:   job.Address,
		Recipient: job.Recipient,
		Outcome:   outcome.Kind,
		Code:      ErrorCode(outcome.Err),
		Reason:    outcome.Reason(),
		TxHash:    outcome.TxHash,
		Balance:   outcome.Balance,
		Fee:       outcome.Fee,
		Amount:    outcome.Amount,
		FiatValue: outcome.ActualFiat,
		At:        r.clock.Now(),
	})
	if err != nil {
		log.WithError(err).Error("Failed to record outcome")
	}
}
