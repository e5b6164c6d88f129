package price

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshInterval is how long a fetched price stays fresh
const DefaultRefreshInterval = 15 * time.Minute

// Snapshot is a price together with the time it was fetched.
type Snapshot struct {
	Price     decimal.Decimal
	FetchedAt time.Time
}

// OracleConfig holds the dependencies of an Oracle.
type OracleConfig struct {
	Feed   Feed
	Symbol string

	// RefreshInterval is the snapshot lifetime, DefaultRefreshInterval when zero
	RefreshInterval time.Duration

	Clock  clock.Clock
	Logger *logrus.Logger

	// OnRefresh, when set, is called after every successful upstream fetch.
	OnRefresh func(ctx context.Context, snapshot Snapshot)
}

// Oracle caches the last successful price and refetches it once it is older
// than the refresh interval. Concurrent callers during a refresh share a
// single upstream request. A failed refresh never falls back to the stale
// snapshot.
type Oracle struct {
	feed      Feed
	symbol    string
	interval  time.Duration
	clock     clock.Clock
	logger    *logrus.Logger
	onRefresh func(ctx context.Context, snapshot Snapshot)

	group singleflight.Group

	mu       sync.RWMutex
	snapshot *Snapshot
}

// NewOracle creates an Oracle. Feed and Symbol are required.
func NewOracle(config OracleConfig) (*Oracle, error) {
	if config.Feed == nil {
		return nil, fmt.Errorf("price feed is required")
	}
	if config.Symbol == "" {
		return nil, fmt.Errorf("price symbol is required")
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	return &Oracle{
		feed:      config.Feed,
		symbol:    config.Symbol,
		interval:  config.RefreshInterval,
		clock:     config.Clock,
		logger:    config.Logger,
		onRefresh: config.OnRefresh,
	}, nil
}

// Price returns the cached price when fresh, otherwise performs one upstream
// fetch. Errors wrap ErrPriceFetch.
func (o *Oracle) Price(ctx context.Context) (decimal.Decimal, error) {
	if snap, ok := o.fresh(); ok {
		return snap.Price, nil
	}

	v, err, shared := o.group.Do(o.symbol, func() (interface{}, error) {
		// A caller that queued behind a finished refresh must not fetch again.
		if snap, ok := o.fresh(); ok {
			return snap, nil
		}
		return o.refresh(ctx)
	})
	if err != nil {
		return decimal.Zero, err
	}

	snap := v.(Snapshot)
	if shared {
		o.logger.WithField("symbol", o.symbol).Debug("Shared in-flight price refresh")
	}
	return snap.Price, nil
}

// Snapshot returns the cached snapshot, if any, regardless of freshness.
func (o *Oracle) Snapshot() (Snapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.snapshot == nil {
		return Snapshot{}, false
	}
	return *o.snapshot, true
}

func (o *Oracle) fresh() (Snapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.snapshot == nil {
		return Snapshot{}, false
	}
	if o.clock.Now().Sub(o.snapshot.FetchedAt) >= o.interval {
		return Snapshot{}, false
	}
	return *o.snapshot, true
}

func (o *Oracle) refresh(ctx context.Context) (Snapshot, error) {
	log := o.logger.WithField("symbol", o.symbol)
	log.Info("Updating price")

	p, err := o.feed.FetchPrice(ctx, o.symbol)
	if err != nil {
		log.WithError(err).Error("Price refresh failed")
		if errors.Is(err, ErrPriceFetch) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrPriceFetch, err)
	}

	snap := Snapshot{Price: p, FetchedAt: o.clock.Now()}

	o.mu.Lock()
	o.snapshot = &snap
	o.mu.Unlock()

	log.WithField("price", p.String()).Info("Price updated")

	if o.onRefresh != nil {
		o.onRefresh(ctx, snap)
	}

	return snap, nil
}
