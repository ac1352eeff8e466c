package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestErrorClass_Transient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		class     ErrorClass
		transient bool
		refresh   bool
	}{
		{class: ErrorClassNetworkTimeout, transient: true},
		{class: ErrorClassConnectionFailure, transient: true},
		{class: ErrorClassRateLimited, transient: true},
		{class: ErrorClassNonceTooLow, transient: true, refresh: true},
		{class: ErrorClassNonceTooHigh, transient: true, refresh: true},
		{class: ErrorClassReplacementUnderpriced, transient: true, refresh: true},
		{class: ErrorClassFeeTooLow, transient: true, refresh: true},
		{class: ErrorClassAlreadyKnown},
		{class: ErrorClassInsufficientFunds},
		{class: ErrorClassInvalidRecipient},
		{class: ErrorClassSigningFailure},
		{class: ErrorClassGasEstimation},
		{class: ErrorClassNoFunds},
		{class: ErrorClassCanceled},
		{class: ErrorClassRejected},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.class), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.transient, tt.class.Transient())
			assert.Equal(t, tt.refresh, tt.class.RefreshesNonceAndFee())
		})
	}
}

func TestClassOf(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("sweep.Build: %w", NewSubmissionError(ErrorClassNonceTooLow, "send transaction", errors.New("nonce too low")))

	assert.Equal(t, ErrorClassNone, ClassOf(nil))
	assert.Equal(t, ErrorClassNonceTooLow, ClassOf(wrapped))
	assert.Equal(t, ErrorClassNoFunds, ClassOf(fmt.Errorf("build: %w", ErrNoFundsToTransfer)))
	assert.Equal(t, ErrorClassRejected, ClassOf(errors.New("boom")))
}

func TestSubmissionError_Error(t *testing.T) {
	t.Parallel()

	err := NewSubmissionError(ErrorClassNetworkTimeout, "send transaction", errors.New("context deadline exceeded"))
	assert.EqualError(t, err, "send transaction: network_timeout: context deadline exceeded")
	assert.EqualError(t, NewSubmissionError(ErrorClassRejected, "", errors.New("x")), "rejected: x")
}

func TestTransferError_Is(t *testing.T) {
	t.Parallel()

	fatal := &TransferError{Attempts: 1, LastClass: ErrorClassNoFunds, Err: ErrNoFundsToTransfer}
	assert.ErrorIs(t, fatal, ErrFatalSubmission)
	assert.ErrorIs(t, fatal, ErrNoFundsToTransfer)
	assert.NotErrorIs(t, fatal, ErrRetryExhausted)

	exhausted := &TransferError{Exhausted: true, Attempts: 3, LastClass: ErrorClassNetworkTimeout, Err: errors.New("timeout")}
	assert.ErrorIs(t, exhausted, ErrRetryExhausted)
	assert.NotErrorIs(t, exhausted, ErrFatalSubmission)
	assert.EqualError(t, exhausted, "transfer retry ceiling exhausted after 3 attempt(s), last error class network_timeout: timeout")

	unknown := &TransferError{
		Attempts:    2,
		LastClass:   ErrorClassNoFunds,
		Err:         ErrNoFundsToTransfer,
		Unconfirmed: []common.Hash{common.HexToHash("0x01")},
	}
	assert.ErrorIs(t, unknown, ErrOutcomeUnknown)
	assert.ErrorIs(t, unknown, ErrNoFundsToTransfer)
	assert.NotErrorIs(t, unknown, ErrFatalSubmission)
	assert.NotErrorIs(t, unknown, ErrRetryExhausted)
	assert.Contains(t, unknown.Error(), "outcome unknown (possibly mined: 0x0000000000000000000000000000000000000000000000000000000000000001)")
}
