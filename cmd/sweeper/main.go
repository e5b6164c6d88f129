package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/internal/sweepconfig"
	"github.com/lisanmuaddib/balance-sweeper/pkg/jobs"
	"github.com/lisanmuaddib/balance-sweeper/pkg/ledger"
	"github.com/lisanmuaddib/balance-sweeper/pkg/logging"
	"github.com/lisanmuaddib/balance-sweeper/pkg/metrics"
	"github.com/lisanmuaddib/balance-sweeper/pkg/money"
	"github.com/lisanmuaddib/balance-sweeper/pkg/notify"
	"github.com/lisanmuaddib/balance-sweeper/pkg/price"
	"github.com/lisanmuaddib/balance-sweeper/pkg/scheduler"
	"github.com/lisanmuaddib/balance-sweeper/pkg/sweep"
	"github.com/lisanmuaddib/balance-sweeper/pkg/wallet"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file
	if err := sweepconfig.LoadEnvFile(); err != nil {
		logrus.WithError(err).Error("Failed to load .env file")
		return 1
	}

	log, err := logging.New(logging.OptionsFromEnv())
	if err != nil {
		logrus.WithError(err).Error("Failed to configure logging")
		return 1
	}

	cfg, err := sweepconfig.Load(sweepconfig.Path())
	if err != nil {
		log.WithError(err).Error("Failed to load config")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("Invalid config")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown: the first signal stops the batch between
	// jobs, the second exits immediately
	go func() {
		sigChan := make(chan os.Signal, 2)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal, finishing the current job")
		cancel()
		<-sigChan
		log.Warn("Received second shutdown signal, exiting")
		os.Exit(130)
	}()

	client, err := wallet.NewClient(ctx, cfg.Wallet(log))
	if err != nil {
		log.WithError(err).Error("Failed to connect to chain")
		return 1
	}
	defer client.Close()

	if cfg.Chain.TokenAddress != "" {
		if _, err := client.ContractABI(ctx, cfg.Chain.TokenAddress); err != nil {
			log.WithError(err).WithField("token", cfg.Chain.TokenAddress).Error("Token contract check failed")
			return 1
		}
	}

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to create notifier")
		return 1
	}

	collector := metrics.NewCollector(log)
	if cfg.Metrics.Addr != "" {
		server := collector.StartServer(cfg.Metrics.Addr)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := metrics.Shutdown(shutdownCtx, server); err != nil {
				log.WithError(err).Warn("Metrics server shutdown failed")
			}
		}()
	}

	oracle, err := price.NewOracle(price.OracleConfig{
		Feed:            price.NewCoinGeckoFeed(cfg.CoinGecko(log)),
		Symbol:          cfg.Price.Symbol,
		RefreshInterval: cfg.Price.Refresh,
		Logger:          log,
		OnRefresh: func(ctx context.Context, snapshot price.Snapshot) {
			collector.PriceRefreshed(snapshot.Price)
			notifier.Notify(ctx, fmt.Sprintf("updating eth price: %s", money.FormatFiat(snapshot.Price)))
		},
	})
	if err != nil {
		log.WithError(err).Error("Failed to create price oracle")
		return 1
	}

	store, err := ledger.New(cfg.LedgerConfig(log))
	if err != nil {
		log.WithError(err).Error("Failed to open ledger")
		return 1
	}
	defer store.Close()

	runner, err := newRunner(cfg, client, oracle, notifier, store, collector, log)
	if err != nil {
		log.WithError(err).Error("Failed to create runner")
		return 1
	}

	sched, err := scheduler.New(scheduler.Config{Schedule: cfg.Batch.Schedule, Logger: log})
	if err != nil {
		log.WithError(err).Error("Failed to create scheduler")
		return 1
	}

	err = sched.Run(ctx, func(ctx context.Context) error {
		batch, err := jobs.LoadJobs(cfg.Input.File, cfg.Schema(), wallet.ValidateAddress)
		if err != nil {
			return err
		}

		state, err := runner.Run(ctx, batch)
		if state.AlreadyDone > 0 {
			log.WithField("already_done", state.AlreadyDone).Info("Skipped accounts swept by earlier runs")
		}

		switch {
		case err == nil:
			collector.BatchFinished(metrics.BatchCompleted)
		case errors.Is(err, context.Canceled):
			collector.BatchFinished(metrics.BatchCancelled)
		default:
			collector.BatchFinished(metrics.BatchAborted)
		}
		return err
	})

	switch {
	case err == nil:
		log.Info("Sweep complete")
		return 0
	case errors.Is(err, context.Canceled):
		log.Info("Sweep cancelled")
		return 0
	case sweep.IsSweepError(err, sweep.ErrCodeTooManyErrors):
		log.WithError(err).Error("Sweep aborted")
		return 2
	default:
		log.WithError(err).Error("Sweep failed")
		return 1
	}
}

func newNotifier(cfg *sweepconfig.Config, log *logrus.Logger) (*notify.Notifier, error) {
	if !cfg.TelegramEnabled() {
		log.Info("Telegram not configured, notifications go to the log")
		return notify.NewNotifier(nil, log), nil
	}

	sender, err := notify.NewTelegramSender(cfg.TelegramConfig(log))
	if err != nil {
		return nil, err
	}
	return notify.NewNotifier(sender, log), nil
}

func newRunner(
	cfg *sweepconfig.Config,
	client *wallet.Client,
	oracle *price.Oracle,
	notifier *notify.Notifier,
	store ledger.Store,
	collector *metrics.Collector,
	log *logrus.Logger,
) (*sweep.Runner, error) {
	feeGate, err := sweep.NewFeeGate(sweep.FeeGateConfig{
		Prices:       oracle,
		Ceiling:      cfg.Fees.MaxFiat,
		PollInterval: cfg.Fees.PollInterval,
		Notifier:     notifier,
		Metrics:      collector,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	executor, err := sweep.NewExecutor(sweep.ExecutorConfig{
		Chain:       client,
		Prices:      oracle,
		Token:       cfg.Chain.TokenAddress,
		Threshold:   cfg.SweepThreshold(),
		FeeGate:     feeGate,
		Finality:    sweep.NewFinalityWaiter(cfg.Finality.PollInterval, nil, log),
		ExplorerURL: cfg.Chain.ExplorerURL,
		Notifier:    notifier,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	return sweep.NewRunner(sweep.RunnerConfig{
		Executor:       executor,
		Cooldown:       cfg.Batch.Cooldown,
		ErrorBackoff:   cfg.Batch.ErrorBackoff,
		MaxErrors:      cfg.Batch.MaxErrors,
		CooldownOnSkip: cfg.Batch.CooldownOnSkip,
		SkipCompleted:  cfg.Batch.SkipCompleted,
		Ledger:         store,
		Metrics:        collector,
		Notifier:       notifier,
		Logger:         log,
	})
}
