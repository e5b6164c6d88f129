// Package sweep moves the full balance of a list of accounts to their
// recipients, one account at a time. A transfer is only submitted once its
// fee falls under a fiat ceiling, and the batch waits for each transfer to
// become final. Consecutive failures are budgeted and abort the batch when
// the budget runs out.
package sweep

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// AccountJob is one account to sweep. Credential is the opaque signing
// secret and is never logged or printed.
type AccountJob struct {
	// Line is the 1-based input line the job was parsed from, 0 if unknown
	Line       int
	Name       string
	Credential string
	Address    string
	Recipient  string
}

// Label names the job in logs and notifications: its name, or its address
// when the input has no names.
func (j AccountJob) Label() string {
	if j.Name != "" {
		return j.Name
	}
	return j.Address
}

// String keeps the credential out of %v formatting.
func (j AccountJob) String() string {
	return fmt.Sprintf("AccountJob{Name:%q Address:%s Recipient:%s}", j.Name, j.Address, j.Recipient)
}

// GoString keeps the credential out of %#v formatting.
func (j AccountJob) GoString() string {
	return j.String()
}

// OutcomeKind tags a TransferOutcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSkippedLowBalance
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkippedLowBalance:
		return "skipped_low_balance"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one job: Success with a transaction hash,
// SkippedLowBalance with the value that fell short, or Failed with the
// reason. Balance, Fee and Amount are filled in as far as the job got.
type Outcome struct {
	Kind OutcomeKind

	TxHash string

	// ActualFiat is the balance value in fiat when known
	ActualFiat *decimal.Decimal

	Err error

	Balance *big.Int
	Fee     *big.Int
	Amount  *big.Int
}

// Success builds a successful outcome.
func Success(txHash string) Outcome {
	return Outcome{Kind: OutcomeSuccess, TxHash: txHash}
}

// SkippedLowBalance builds a below-threshold outcome.
func SkippedLowBalance(balance *big.Int, actualFiat *decimal.Decimal) Outcome {
	return Outcome{Kind: OutcomeSkippedLowBalance, Balance: balance, ActualFiat: actualFiat}
}

// Failed builds a failed outcome.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// Reason is the failure message, "" for non-failures.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// BatchState is the bookkeeping of one batch run.
type BatchState struct {
	ConsecutiveErrors int
	TotalProcessed    int

	Succeeded int
	Skipped   int
	Failed    int
	// AlreadyDone counts jobs skipped because the ledger has them swept
	AlreadyDone int
}

// ThresholdMode selects how the minimum sweepable balance is expressed.
type ThresholdMode string

const (
	// ThresholdFiat compares the balance's fiat value against MinFiat
	ThresholdFiat ThresholdMode = "fiat"
	// ThresholdToken compares the raw base-unit balance against MinTokens
	ThresholdToken ThresholdMode = "token"
)

// Threshold is the floor below which a balance is not worth sweeping. A
// balance strictly below the floor is skipped.
type Threshold struct {
	Mode      ThresholdMode
	MinFiat   decimal.Decimal
	MinTokens *big.Int
}

// Validate checks that the floor for the selected mode is set.
func (t Threshold) Validate() error {
	switch t.Mode {
	case ThresholdFiat:
		if t.MinFiat.IsNegative() {
			return fmt.Errorf("minimum fiat value must not be negative")
		}
	case ThresholdToken:
		if t.MinTokens == nil || t.MinTokens.Sign() < 0 {
			return fmt.Errorf("minimum token amount must be set and not negative")
		}
	default:
		return fmt.Errorf("unknown threshold mode %q", t.Mode)
	}
	return nil
}
