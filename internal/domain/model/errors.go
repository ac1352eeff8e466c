package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrorClass is the closed set of failure kinds the engine reacts to.
type ErrorClass string

const (
	ErrorClassNone                   ErrorClass = ""
	ErrorClassNetworkTimeout         ErrorClass = "network_timeout"
	ErrorClassConnectionFailure      ErrorClass = "connection_failure"
	ErrorClassRateLimited            ErrorClass = "rate_limited"
	ErrorClassNonceTooLow            ErrorClass = "nonce_too_low"
	ErrorClassNonceTooHigh           ErrorClass = "nonce_too_high"
	ErrorClassReplacementUnderpriced ErrorClass = "replacement_underpriced"
	ErrorClassFeeTooLow              ErrorClass = "fee_too_low"
	ErrorClassAlreadyKnown           ErrorClass = "already_known"
	ErrorClassInsufficientFunds      ErrorClass = "insufficient_funds"
	ErrorClassInvalidRecipient       ErrorClass = "invalid_recipient"
	ErrorClassSigningFailure         ErrorClass = "signing_failure"
	ErrorClassGasEstimation          ErrorClass = "gas_estimation_failure"
	ErrorClassNoFunds                ErrorClass = "no_funds"
	ErrorClassCanceled               ErrorClass = "canceled"
	ErrorClassRejected               ErrorClass = "rejected"
)

func (c ErrorClass) Transient() bool {
	switch c {
	case ErrorClassNetworkTimeout,
		ErrorClassConnectionFailure,
		ErrorClassRateLimited,
		ErrorClassNonceTooLow,
		ErrorClassNonceTooHigh,
		ErrorClassReplacementUnderpriced,
		ErrorClassFeeTooLow:
		return true
	}
	return false
}

// RefreshesNonceAndFee reports whether a retry after this class must re-read the nonce and re-estimate the fee.
func (c ErrorClass) RefreshesNonceAndFee() bool {
	switch c {
	case ErrorClassNonceTooLow,
		ErrorClassNonceTooHigh,
		ErrorClassReplacementUnderpriced,
		ErrorClassFeeTooLow:
		return true
	}
	return false
}

var (
	ErrNoFundsToTransfer = errors.New("no funds to transfer")
	ErrFatalSubmission   = errors.New("fatal submission error")
	ErrRetryExhausted    = errors.New("retry ceiling exhausted")
	// ErrOutcomeUnknown ends a sweep whose funds left the account after a broadcast that timed out.
	ErrOutcomeUnknown = errors.New("transfer outcome unknown")
)

// SubmissionError tags an error with its class. It is created where an RPC or KMS response is first interpreted.
type SubmissionError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func NewSubmissionError(class ErrorClass, op string, err error) *SubmissionError {
	return &SubmissionError{Class: class, Op: op, Err: err}
}

func (e *SubmissionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ClassOf returns the class carried by err. Unclassified errors are rejected, no-funds errors are no_funds.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ErrorClassNone
	}
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Class
	}
	if errors.Is(err, ErrNoFundsToTransfer) {
		return ErrorClassNoFunds
	}
	return ErrorClassRejected
}

// TransferError ends a logical transfer: fatal, exhausted or of unknown outcome, matched with errors.Is
// against ErrFatalSubmission, ErrRetryExhausted or ErrOutcomeUnknown.
type TransferError struct {
	Exhausted bool
	Attempts  int
	LastClass ErrorClass
	Err       error
	// Unconfirmed lists transactions whose broadcast timed out and that may have been mined.
	// It is only set when the outcome is unknown.
	Unconfirmed []common.Hash
}

func (e *TransferError) Error() string {
	kind := "aborted"
	switch {
	case len(e.Unconfirmed) > 0:
		hashes := make([]string, len(e.Unconfirmed))
		for i, h := range e.Unconfirmed {
			hashes[i] = h.Hex()
		}
		kind = "outcome unknown (possibly mined: " + strings.Join(hashes, ", ") + ")"
	case e.Exhausted:
		kind = "retry ceiling exhausted"
	}
	return fmt.Sprintf("transfer %s after %d attempt(s), last error class %s: %v", kind, e.Attempts, e.LastClass, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool {
	if len(e.Unconfirmed) > 0 {
		return target == ErrOutcomeUnknown
	}
	if e.Exhausted {
		return target == ErrRetryExhausted
	}
	return target == ErrFatalSubmission
}
