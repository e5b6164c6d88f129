package sweepconfig

import (
	"fmt"
	"strings"

	"github.com/lisanmuaddib/balance-sweeper/pkg/jobs"
	"github.com/lisanmuaddib/balance-sweeper/pkg/ledger"
	"github.com/lisanmuaddib/balance-sweeper/pkg/sweep"
	"github.com/lisanmuaddib/balance-sweeper/pkg/wallet"
)

// Validate checks the settings the sweep needs.
func (c *Config) Validate() error {
	if err := c.validateChain(); err != nil {
		return err
	}
	if _, err := jobs.ParseSchema(c.Input.Schema); err != nil {
		return err
	}
	if !c.Fees.MaxFiat.IsPositive() {
		return fmt.Errorf("fees.max_fiat must be positive")
	}
	if err := c.SweepThreshold().Validate(); err != nil {
		return err
	}
	if sweep.ThresholdMode(c.Threshold.Mode) == sweep.ThresholdToken && !c.Threshold.MinTokens.IsPositive() {
		return fmt.Errorf("threshold.min_tokens must be positive in token mode")
	}
	if c.Batch.Cooldown < 0 || c.Batch.ErrorBackoff < 0 || c.Fees.PollInterval < 0 || c.Finality.PollInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Batch.MaxErrors < 1 {
		return fmt.Errorf("batch.max_errors must be at least 1")
	}

	switch strings.ToLower(c.Ledger.Driver) {
	case ledger.DriverNone:
		if c.Batch.SkipCompleted {
			return fmt.Errorf("batch.skip_completed requires a ledger driver")
		}
	case ledger.DriverSQLite:
	case ledger.DriverPostgres:
		if c.Ledger.DatabaseURL == "" {
			return fmt.Errorf("ledger.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.Ledger.Driver)
	}

	if c.TelegramEnabled() && len(c.ChatIDs()) == 0 {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	return nil
}

// ValidateReport checks the settings the balance report needs.
func (c *Config) ValidateReport() error {
	if err := c.validateChain(); err != nil {
		return err
	}
	if !c.Report.Price.IsPositive() {
		return fmt.Errorf("report.price must be positive")
	}
	if c.Report.Rate <= 0 {
		return fmt.Errorf("report.rate must be positive")
	}
	return nil
}

func (c *Config) validateChain() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.TokenAddress != "" {
		if err := wallet.ValidateAddress(c.Chain.TokenAddress); err != nil {
			return fmt.Errorf("chain.token_address: %w", err)
		}
	}
	if c.Chain.GasLimitMultiplier < 1 {
		return fmt.Errorf("chain.gas_limit_multiplier must be at least 1")
	}
	return nil
}
