package wallet

import (
	"errors"
	"fmt"
)

// Error codes for wallet operations
const (
	// ErrCodeInvalidAddress indicates an invalid blockchain address format
	ErrCodeInvalidAddress = "INVALID_ADDRESS"
	// ErrCodeInvalidPrivateKey indicates an invalid or malformed private key
	ErrCodeInvalidPrivateKey = "INVALID_PRIVATE_KEY"
	// ErrCodeTransactionFailed indicates the node refused a signed transaction
	ErrCodeTransactionFailed = "TRANSACTION_FAILED"
	// ErrCodeGasEstimationFailed indicates gas or fee estimation failed
	ErrCodeGasEstimationFailed = "GAS_ESTIMATION_FAILED"
	// ErrCodeRPCError indicates an RPC connection or call failed
	ErrCodeRPCError = "RPC_ERROR"
	// ErrCodeInvalidABI indicates invalid or malformed contract ABI
	ErrCodeInvalidABI = "INVALID_ABI"
	// ErrCodeContractError indicates contract interaction failed
	ErrCodeContractError = "CONTRACT_ERROR"
	// ErrCodeNoContractCode indicates there is no contract deployed at an address
	ErrCodeNoContractCode = "NO_CONTRACT_CODE"
	// ErrCodeMissingFee indicates a submission without accepted fee parameters
	ErrCodeMissingFee = "MISSING_FEE"
	// ErrCodeUnsupportedChain indicates the chain lacks a required feature (EIP-1559)
	ErrCodeUnsupportedChain = "UNSUPPORTED_CHAIN"
)

// WalletError represents a wallet-specific error with the code, message,
// underlying error and the address involved.
type WalletError struct {
	Code    string // Error code identifying the type of error
	Message string // Human readable error message
	Err     error  // Underlying error if any
	Address string // Account or contract the error relates to, if any
}

// Error formats the code, message, address (if present) and underlying error.
func (e *WalletError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("[%s] %s for %s: %v", e.Code, e.Message, e.Address, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

// Unwrap returns the underlying error.
func (e *WalletError) Unwrap() error {
	return e.Err
}

// NewWalletError creates a new WalletError with the given parameters.
func NewWalletError(code string, message string, err error, address string) *WalletError {
	return &WalletError{
		Code:    code,
		Message: message,
		Err:     err,
		Address: address,
	}
}

// IsWalletError checks if err, or any error it wraps, is a WalletError with
// the given code.
func IsWalletError(err error, code string) bool {
	var we *WalletError
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}
