// Package chain defines what the sweeper needs from a blockchain client:
// balances, fee estimates, submission and transaction status.
package chain

import (
	"context"
	"math/big"
)

// FinalityStatus is the settlement stage of a submitted transaction.
type FinalityStatus string

const (
	// FinalityPending means the transaction is known but not yet in a block
	FinalityPending FinalityStatus = "PENDING"
	// FinalityIncluded means the transaction is in a block that is not final
	FinalityIncluded FinalityStatus = "INCLUDED"
	// FinalityAccepted means the including block is finalized
	FinalityAccepted FinalityStatus = "ACCEPTED"
	// FinalityRejected means the transaction was dropped or refused
	FinalityRejected FinalityStatus = "REJECTED"
)

// ExecutionStatus is the execution result of an included transaction.
type ExecutionStatus string

const (
	ExecutionUnknown   ExecutionStatus = "UNKNOWN"
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionReverted  ExecutionStatus = "REVERTED"
)

// TxStatus is one observation of a transaction's lifecycle.
type TxStatus struct {
	Finality  FinalityStatus
	Execution ExecutionStatus

	// Reason carries the node's explanation for a rejection or revert, if any
	Reason string
}

// Succeeded reports the terminal success state: final and executed.
func (s TxStatus) Succeeded() bool {
	return s.Finality == FinalityAccepted && s.Execution == ExecutionSucceeded
}

// Rejected reports a chain-final rejection.
func (s TxStatus) Rejected() bool {
	return s.Finality == FinalityRejected
}

// Reverted reports a chain-final execution failure.
func (s TxStatus) Reverted() bool {
	return s.Execution == ExecutionReverted
}

func (s TxStatus) String() string {
	return string(s.Finality) + "/" + string(s.Execution)
}

// FeeEstimate is the fee quote for one transfer. SuggestedMaxFee is the most
// the transfer can cost in base units; the remaining fields are the gas
// parameters a submission must reuse so the quote stays an upper bound.
type FeeEstimate struct {
	SuggestedMaxFee *big.Int
	GasLimit        uint64
	GasFeeCap       *big.Int
	GasTipCap       *big.Int
}

// TransferIntent describes a transfer of Amount base units of Token to
// Recipient. Token is empty for the chain's native asset. Fee is nil while
// estimating and set to the accepted estimate when submitting.
type TransferIntent struct {
	Token     string
	Recipient string
	Amount    *big.Int
	Fee       *FeeEstimate
}

// Client is the chain collaborator. Credentials are opaque signing secrets
// passed through from the job input.
type Client interface {
	Balance(ctx context.Context, token, address string) (*big.Int, error)
	EstimateFee(ctx context.Context, credential string, intent TransferIntent) (FeeEstimate, error)
	Submit(ctx context.Context, credential string, intent TransferIntent) (string, error)
	TransactionStatus(ctx context.Context, txHash string) (TxStatus, error)
}
