package price

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultCoinGeckoURL is the public CoinGecko API root
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

	// DefaultVsCurrency is the fiat currency prices are quoted in
	DefaultVsCurrency = "usd"

	defaultRequestTimeout = 30 * time.Second
)

// CoinGeckoConfig configures the CoinGecko price feed.
type CoinGeckoConfig struct {
	// BaseURL is the API root, DefaultCoinGeckoURL when empty
	BaseURL string

	// VsCurrency is the quote currency, DefaultVsCurrency when empty
	VsCurrency string

	// RequestsPerMinute caps outbound requests. Zero disables pacing.
	RequestsPerMinute int

	// Timeout bounds a single HTTP request
	Timeout time.Duration

	Logger *logrus.Logger
}

// CoinGeckoFeed implements Feed using the CoinGecko simple price endpoint.
type CoinGeckoFeed struct {
	baseURL    string
	vsCurrency string
	client     *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewCoinGeckoFeed creates a CoinGecko feed from config, filling defaults for
// unset fields.
func NewCoinGeckoFeed(config CoinGeckoConfig) *CoinGeckoFeed {
	if config.BaseURL == "" {
		config.BaseURL = DefaultCoinGeckoURL
	}
	if config.VsCurrency == "" {
		config.VsCurrency = DefaultVsCurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultRequestTimeout
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	return &CoinGeckoFeed{
		baseURL:    config.BaseURL,
		vsCurrency: config.VsCurrency,
		client:     &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
		logger:     config.Logger,
	}
}

// FetchPrice returns the quote for symbol, a CoinGecko coin id such as
// "ethereum". The response number is decoded straight into a decimal.
func (f *CoinGeckoFeed) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	params := url.Values{}
	params.Set("ids", symbol)
	params.Set("vs_currencies", f.vsCurrency)
	endpoint := f.baseURL + "/simple/price?" + params.Encode()

	f.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"currency": f.vsCurrency,
	}).Debug("Fetching price")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to create request: %v", ErrPriceFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: request failed: %v", ErrPriceFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: failed to read response: %v", ErrPriceFetch, err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status=%d body=%s", ErrPriceFetch, resp.StatusCode, string(body))
	}

	var quotes map[string]map[string]json.Number
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&quotes); err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed response: %v", ErrPriceFetch, err)
	}

	raw, ok := quotes[symbol][f.vsCurrency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no %s quote for %s", ErrPriceFetch, f.vsCurrency, symbol)
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid price %q: %v", ErrPriceFetch, raw, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", ErrPriceFetch, price)
	}

	return price, nil
}
