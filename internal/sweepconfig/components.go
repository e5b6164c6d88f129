package sweepconfig

import (
	"github.com/lisanmuaddib/balance-sweeper/pkg/jobs"
	"github.com/lisanmuaddib/balance-sweeper/pkg/ledger"
	"github.com/lisanmuaddib/balance-sweeper/pkg/money"
	"github.com/lisanmuaddib/balance-sweeper/pkg/notify"
	"github.com/lisanmuaddib/balance-sweeper/pkg/price"
	"github.com/lisanmuaddib/balance-sweeper/pkg/sweep"
	"github.com/lisanmuaddib/balance-sweeper/pkg/wallet"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Wallet returns the chain client settings.
func (c *Config) Wallet(logger *logrus.Logger) wallet.Config {
	config := wallet.DefaultConfig(c.Chain.RPCURL)
	config.ChainID = c.Chain.ChainID
	config.FinalityDepth = c.Chain.FinalityDepth
	config.Gas.GasLimitMultiplier = c.Chain.GasLimitMultiplier
	config.Logger = logger
	return config
}

// Schema returns the input line format. Validate has checked it.
func (c *Config) Schema() jobs.Schema {
	schema, _ := jobs.ParseSchema(c.Input.Schema)
	return schema
}

// SweepThreshold returns the minimum sweepable balance.
func (c *Config) SweepThreshold() sweep.Threshold {
	return sweep.Threshold{
		Mode:      sweep.ThresholdMode(c.Threshold.Mode),
		MinFiat:   c.Threshold.MinFiat,
		MinTokens: money.ToBaseUnits(c.Threshold.MinTokens),
	}
}

// CoinGecko returns the price feed settings.
func (c *Config) CoinGecko(logger *logrus.Logger) price.CoinGeckoConfig {
	return price.CoinGeckoConfig{
		BaseURL:           c.Price.APIURL,
		RequestsPerMinute: c.Price.RequestsPerMinute,
		Logger:            logger,
	}
}

// TelegramConfig returns the Telegram sender settings.
func (c *Config) TelegramConfig(logger *logrus.Logger) notify.TelegramConfig {
	return notify.TelegramConfig{
		BotToken:      c.Telegram.BotToken,
		ChatIDs:       c.ChatIDs(),
		RetryAttempts: 3,
		Logger:        logger,
	}
}

// LedgerConfig returns the ledger backend settings.
func (c *Config) LedgerConfig(logger *logrus.Logger) ledger.Config {
	return ledger.Config{
		Driver:        c.Ledger.Driver,
		SQLitePath:    c.Ledger.SQLitePath,
		DatabaseURL:   c.Ledger.DatabaseURL,
		MigrationsDir: c.Ledger.MigrationsDir,
		Logger:        logger,
	}
}

// ReportRate returns the balance query rate of the report.
func (c *Config) ReportRate() rate.Limit {
	return rate.Limit(c.Report.Rate)
}
