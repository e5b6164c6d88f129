// Package sweepconfig loads the sweeper configuration from an optional YAML
// file and the environment.
package sweepconfig

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is unset
const DefaultPath = "config.yaml"

// Config holds all sweeper configuration.
type Config struct {
	Chain struct {
		RPCURL       string `yaml:"rpc_url"`
		ChainID      int64  `yaml:"chain_id"`
		TokenAddress string `yaml:"token_address"`
		ExplorerURL  string `yaml:"explorer_url"`
		// FinalityDepth replaces the "finalized" block tag when non-zero
		FinalityDepth      uint64  `yaml:"finality_depth"`
		GasLimitMultiplier float64 `yaml:"gas_limit_multiplier"`
	} `yaml:"chain"`
	Input struct {
		File   string `yaml:"file"`
		Schema string `yaml:"schema"`
	} `yaml:"input"`
	Price struct {
		Symbol            string        `yaml:"symbol"`
		APIURL            string        `yaml:"api_url"`
		Refresh           time.Duration `yaml:"refresh"`
		RequestsPerMinute int           `yaml:"requests_per_minute"`
	} `yaml:"price"`
	Fees struct {
		MaxFiat      decimal.Decimal `yaml:"max_fiat"`
		PollInterval time.Duration   `yaml:"poll_interval"`
	} `yaml:"fees"`
	Finality struct {
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"finality"`
	Threshold struct {
		Mode      string          `yaml:"mode"`
		MinFiat   decimal.Decimal `yaml:"min_fiat"`
		MinTokens decimal.Decimal `yaml:"min_tokens"`
	} `yaml:"threshold"`
	Batch struct {
		Cooldown       time.Duration `yaml:"cooldown"`
		ErrorBackoff   time.Duration `yaml:"error_backoff"`
		MaxErrors      int           `yaml:"max_errors"`
		CooldownOnSkip bool          `yaml:"cooldown_on_skip"`
		SkipCompleted  bool          `yaml:"skip_completed"`
		Schedule       string        `yaml:"schedule"`
	} `yaml:"batch"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		// ChatID is one id or a comma-separated list
		ChatID string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Ledger struct {
		Driver        string `yaml:"driver"`
		SQLitePath    string `yaml:"sqlite_path"`
		DatabaseURL   string `yaml:"database_url"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"ledger"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Report struct {
		Input  string          `yaml:"input"`
		Output string          `yaml:"output"`
		Price  decimal.Decimal `yaml:"price"`
		Rate   float64         `yaml:"rate"`
	} `yaml:"report"`
}

// LoadEnvFile loads .env into the environment when it exists.
func LoadEnvFile() error {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("error loading .env file: %w", err)
		}
	}
	return nil
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	return getEnvOrDefault("CONFIG_PATH", DefaultPath)
}

// Load starts from the defaults, then layers the YAML file and environment
// variable overrides on top. A missing file is not an error. Values set
// explicitly, zero included, are kept.
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillEmpty()

	return cfg, nil
}

func (c *Config) applyEnv() error {
	e := &envReader{}

	e.setString("RPC_URL", &c.Chain.RPCURL)
	e.setInt64("CHAIN_ID", &c.Chain.ChainID)
	e.setString("TOKEN_ADDRESS", &c.Chain.TokenAddress)
	e.setString("EXPLORER_URL", &c.Chain.ExplorerURL)
	e.setUint64("FINALITY_DEPTH", &c.Chain.FinalityDepth)
	e.setFloat("GAS_LIMIT_MULTIPLIER", &c.Chain.GasLimitMultiplier)

	e.setString("INPUT_FILE", &c.Input.File)
	e.setString("INPUT_SCHEMA", &c.Input.Schema)

	e.setString("PRICE_SYMBOL", &c.Price.Symbol)
	e.setString("PRICE_API_URL", &c.Price.APIURL)
	e.setDuration("PRICE_REFRESH", &c.Price.Refresh)
	e.setInt("PRICE_REQUESTS_PER_MINUTE", &c.Price.RequestsPerMinute)

	e.setDecimal("MAX_FEE_FIAT", &c.Fees.MaxFiat)
	e.setDuration("FEE_POLL_INTERVAL", &c.Fees.PollInterval)
	e.setDuration("FINALITY_POLL_INTERVAL", &c.Finality.PollInterval)

	e.setString("THRESHOLD_MODE", &c.Threshold.Mode)
	e.setDecimal("MIN_FIAT_TO_TRANSFER", &c.Threshold.MinFiat)
	e.setDecimal("MIN_TOKENS_TO_TRANSFER", &c.Threshold.MinTokens)

	e.setDuration("COOLDOWN", &c.Batch.Cooldown)
	e.setDuration("ERROR_BACKOFF", &c.Batch.ErrorBackoff)
	e.setInt("MAX_ERRORS", &c.Batch.MaxErrors)
	e.setBool("COOLDOWN_ON_SKIP", &c.Batch.CooldownOnSkip)
	e.setBool("SKIP_COMPLETED", &c.Batch.SkipCompleted)
	e.setString("SWEEP_SCHEDULE", &c.Batch.Schedule)

	e.setString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	e.setString("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)

	e.setString("LEDGER_DRIVER", &c.Ledger.Driver)
	e.setString("SQLITE_PATH", &c.Ledger.SQLitePath)
	e.setString("DATABASE_URL", &c.Ledger.DatabaseURL)
	e.setString("MIGRATIONS_DIR", &c.Ledger.MigrationsDir)

	e.setString("METRICS_ADDR", &c.Metrics.Addr)

	e.setString("REPORT_INPUT", &c.Report.Input)
	e.setString("REPORT_OUTPUT", &c.Report.Output)
	e.setDecimal("REPORT_PRICE", &c.Report.Price)
	e.setFloat("REPORT_RATE", &c.Report.Rate)

	return errors.Join(e.errs...)
}

func defaults() *Config {
	c := &Config{}
	c.Chain.GasLimitMultiplier = 1
	c.Input.File = "data.txt"
	c.Input.Schema = "named"
	c.Price.Symbol = "ethereum"
	c.Price.Refresh = 15 * time.Minute
	c.Price.RequestsPerMinute = 30
	c.Fees.MaxFiat = decimal.RequireFromString("0.8")
	c.Fees.PollInterval = 10 * time.Minute
	c.Finality.PollInterval = 2 * time.Second
	c.Threshold.Mode = "fiat"
	c.Threshold.MinFiat = decimal.NewFromInt(5)
	c.Batch.Cooldown = 10 * time.Minute
	c.Batch.ErrorBackoff = 2 * time.Minute
	c.Batch.MaxErrors = 3
	c.Ledger.Driver = "none"
	c.Report.Output = "res.txt"
	c.Report.Price = decimal.NewFromInt(3480)
	c.Report.Rate = 10
	return c
}

// fillEmpty restores string settings cleared to "" and derives the report
// input from the sweep input.
func (c *Config) fillEmpty() {
	if c.Input.File == "" {
		c.Input.File = "data.txt"
	}
	if c.Input.Schema == "" {
		c.Input.Schema = "named"
	}
	if c.Price.Symbol == "" {
		c.Price.Symbol = "ethereum"
	}
	if c.Threshold.Mode == "" {
		c.Threshold.Mode = "fiat"
	}
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "none"
	}
	if c.Report.Input == "" {
		c.Report.Input = c.Input.File
	}
	if c.Report.Output == "" {
		c.Report.Output = "res.txt"
	}
}

// ChatIDs splits the configured Telegram chat ids.
func (c *Config) ChatIDs() []string {
	var ids []string
	for _, id := range strings.Split(c.Telegram.ChatID, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// TelegramEnabled reports whether notifications go to Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader applies set environment variables and collects parse errors
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setUint64(key string, dst *uint64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) setDecimal(key string, dst *decimal.Decimal) {
	if v, ok := e.lookup(key); ok {
		d, err := decimal.NewFromString(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
