// Package ledger persists sweep outcomes so that a restarted batch can skip
// accounts that were already swept.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/lisanmuaddib/balance-sweeper/pkg/db"
	"github.com/lisanmuaddib/balance-sweeper/pkg/sweep"
	"github.com/sirupsen/logrus"
)

// Supported drivers
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultSQLitePath is used when the sqlite driver has no path configured
const DefaultSQLitePath = "sweeps.db"

// Store is a sweep.Ledger that owns a connection.
type Store interface {
	sweep.Ledger
	Close() error
}

// Config selects and configures a ledger backend.
type Config struct {
	Driver        string
	SQLitePath    string
	DatabaseURL   string
	MigrationsDir string
	Logger        *logrus.Logger
}

// New opens the configured backend. An empty driver means DriverNone.
func New(config Config) (Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	switch strings.ToLower(strings.TrimSpace(config.Driver)) {
	case "", DriverNone:
		return Noop{}, nil
	case DriverSQLite:
		path := config.SQLitePath
		if path == "" {
			path = DefaultSQLitePath
		}
		store, err := NewSQLite(path, config.Logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverPostgres:
		store, err := NewPostgres(db.Config{URL: config.DatabaseURL, MigrationsDir: config.MigrationsDir}, config.Logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", config.Driver)
	}
}

// Noop records nothing and never reports a completed address.
type Noop struct{}

func (Noop) Record(context.Context, sweep.Record) error { return nil }

func (Noop) Completed(context.Context, string) (bool, error) { return false, nil }

func (Noop) Close() error { return nil }

// normalizeAddress makes lookups independent of checksum casing
func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func bigString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
