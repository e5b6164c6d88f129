package wallet

import (
	"fmt"
	"math/big"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/sirupsen/logrus"
)

// Config holds the connection and fee settings of a Client.
type Config struct {
	// RPCURL is the HTTP(S) or WS endpoint of the node
	RPCURL string

	// ChainID is the chain identifier used for signing; fetched from the
	// node when zero
	ChainID int64

	// MaxRetries specifies how many times to retry the initial connection
	MaxRetries int

	// RetryDelay is the duration to wait between connection attempts
	RetryDelay time.Duration

	// Gas derives EIP-1559 fee parameters
	Gas GasStrategy

	// FinalityDepth, when non-zero, treats a block as final once it is this
	// many blocks below the head, for nodes without the "finalized" tag
	FinalityDepth uint64

	// DroppedAfter is how long a transaction this client broadcast may be
	// unknown to the node before it is reported as rejected
	DroppedAfter time.Duration

	Clock  clock.Clock
	Logger *logrus.Logger
}

// DefaultConfig returns settings for rpcURL with 3 connection retries one
// second apart and the default gas strategy.
func DefaultConfig(rpcURL string) Config {
	return Config{
		RPCURL:       rpcURL,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		Gas:          DefaultGasStrategy(),
		DroppedAfter: time.Minute,
	}
}

func (c *Config) applyDefaults() {
	if c.Gas.BaseFeeMultiplier == 0 {
		c.Gas.BaseFeeMultiplier = 2
	}
	if c.DroppedAfter <= 0 {
		c.DroppedAfter = time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
}

// Validate checks the fields NewClient cannot default.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.ChainID < 0 {
		return fmt.Errorf("chain id must not be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}

func bigInt(v int64) *big.Int {
	return big.NewInt(v)
}
