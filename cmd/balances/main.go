package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/lisanmuaddib/balance-sweeper/internal/sweepconfig"
	"github.com/lisanmuaddib/balance-sweeper/pkg/jobs"
	"github.com/lisanmuaddib/balance-sweeper/pkg/logging"
	"github.com/lisanmuaddib/balance-sweeper/pkg/report"
	"github.com/lisanmuaddib/balance-sweeper/pkg/wallet"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
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
	if err := cfg.ValidateReport(); err != nil {
		log.WithError(err).Error("Invalid config")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, err := os.Open(cfg.Report.Input)
	if err != nil {
		log.WithError(err).Error("Failed to open address list")
		return 1
	}
	addresses, err := jobs.ReadAddresses(in)
	in.Close()
	if err != nil {
		log.WithError(err).Error("Failed to read address list")
		return 1
	}

	client, err := wallet.NewClient(ctx, cfg.Wallet(log))
	if err != nil {
		log.WithError(err).Error("Failed to connect to chain")
		return 1
	}
	defer client.Close()

	reporter, err := report.New(report.Config{
		Balances: client,
		Token:    cfg.Chain.TokenAddress,
		Price:    cfg.Report.Price,
		Rate:     cfg.ReportRate(),
		Retries:  2,
		Logger:   log,
	})
	if err != nil {
		log.WithError(err).Error("Failed to create reporter")
		return 1
	}

	out, err := os.Create(cfg.Report.Output)
	if err != nil {
		log.WithError(err).Error("Failed to create report file")
		return 1
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	summary, err := reporter.Run(ctx, addresses, w)
	if flushErr := w.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Report cancelled")
		} else {
			log.WithError(err).Error("Report failed")
		}
		return 1
	}

	log.WithFields(logrus.Fields{
		"output":    cfg.Report.Output,
		"lines":     summary.Lines,
		"non_empty": summary.NonEmpty,
		"total":     summary.Total.String(),
	}).Info("Report written")
	return 0
}
