package sweep

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource returns the current fiat price of one display unit.
// *price.Oracle implements it.
type PriceSource interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// Notifier delivers operator messages and never fails.
// *notify.Notifier implements it.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Record is one job outcome as written to the ledger.
type Record struct {
	RunID     string
	Index     int
	Name      string
	Address   string
	Recipient string
	Outcome   OutcomeKind
	Code      string
	Reason    string
	TxHash    string
	Balance   *big.Int
	Fee       *big.Int
	Amount    *big.Int
	FiatValue *decimal.Decimal
	At        time.Time
}

// Ledger persists outcomes so that a restarted batch can skip accounts
// that were already swept.
type Ledger interface {
	Record(ctx context.Context, record Record) error
	// Completed reports whether address has a recorded success
	Completed(ctx context.Context, address string) (bool, error)
}

// Metrics observes batch progress.
type Metrics interface {
	JobCompleted(outcome string, duration time.Duration)
	FeeChecked(accepted bool)
	SetConsecutiveErrors(n int)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string) {}

type noopLedger struct{}

func (noopLedger) Record(context.Context, Record) error { return nil }

func (noopLedger) Completed(context.Context, string) (bool, error) { return false, nil }

type noopMetrics struct{}

func (noopMetrics) JobCompleted(string, time.Duration) {}
func (noopMetrics) FeeChecked(bool)                    {}
func (noopMetrics) SetConsecutiveErrors(int)           {}
