package sweep

import (
	"errors"
	"fmt"
)

// Error codes for per-job failures and the fatal batch abort
const (
	// ErrCodePriceFetch indicates the fiat price could not be obtained
	ErrCodePriceFetch = "PRICE_FETCH_ERROR"
	// ErrCodeBalanceQuery indicates the account balance could not be read
	ErrCodeBalanceQuery = "BALANCE_QUERY_ERROR"
	// ErrCodeFeeEstimate indicates the chain could not quote a fee
	ErrCodeFeeEstimate = "FEE_ESTIMATE_ERROR"
	// ErrCodeInsufficientBalanceForFee indicates the fee meets or exceeds the balance
	ErrCodeInsufficientBalanceForFee = "INSUFFICIENT_BALANCE_FOR_FEE"
	// ErrCodeSubmission indicates the node refused the transfer
	ErrCodeSubmission = "SUBMISSION_ERROR"
	// ErrCodeTransactionRejected indicates the transfer was rejected or dropped
	ErrCodeTransactionRejected = "TRANSACTION_REJECTED"
	// ErrCodeTransactionReverted indicates the transfer was included but reverted
	ErrCodeTransactionReverted = "TRANSACTION_REVERTED"
	// ErrCodeTooManyErrors aborts the batch
	ErrCodeTooManyErrors = "TOO_MANY_ERRORS"
)

// SweepError is a typed failure carrying the code, a message, the
// underlying error and the job it belongs to.
type SweepError struct {
	Code    string
	Message string
	Err     error
	Job     string
}

func (e *SweepError) Error() string {
	msg := e.Message
	if e.Job != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Job)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *SweepError) Unwrap() error {
	return e.Err
}

// NewSweepError creates a SweepError.
func NewSweepError(code, message string, err error, job string) *SweepError {
	return &SweepError{Code: code, Message: message, Err: err, Job: job}
}

// IsSweepError reports whether err, or any error it wraps, is a SweepError
// with the given code.
func IsSweepError(err error, code string) bool {
	var se *SweepError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// ErrorCode returns the code of the first SweepError in err's chain, or ""
func ErrorCode(err error) string {
	var se *SweepError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
