package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type AssetKind string

const (
	AssetKindNative AssetKind = "native"
	AssetKindToken  AssetKind = "token"
)

func (k AssetKind) Valid() bool {
	return k == AssetKindNative || k == AssetKindToken
}

// NonceSource selects the block state the next nonce is read from.
type NonceSource string

const (
	NonceSourceLatest  NonceSource = "latest"
	NonceSourcePending NonceSource = "pending"
)

func (n NonceSource) Valid() bool {
	return n == NonceSourceLatest || n == NonceSourcePending
}

// TransferRequest is one logical sweep handed to the engine by the balance monitor.
type TransferRequest struct {
	Kind      AssetKind
	Recipient common.Address
	Amount    *big.Int
	// SweepAll marks Amount as the observed balance. Native sweeps then reserve the fee out of it.
	SweepAll bool
}

type UnsignedTransaction struct {
	Kind      AssetKind
	ChainID   *big.Int
	From      common.Address
	To        common.Address // recipient for native transfers, token contract for token transfers
	Recipient common.Address
	Nonce     uint64
	Fee       FeeQuote
	GasLimit  uint64
	Value     *big.Int
	Data      []byte
	Amount    *big.Int
}

// Transaction converts the unsigned transfer into a go-ethereum transaction of the matching fee type.
func (u *UnsignedTransaction) Transaction() *types.Transaction {
	to := u.To
	value := copyInt(u.Value)
	if value == nil {
		value = new(big.Int)
	}
	data := common.CopyBytes(u.Data)

	if u.Fee.Dynamic() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   copyInt(u.ChainID),
			Nonce:     u.Nonce,
			GasTipCap: u.Fee.MaxPriorityFeePerGas(),
			GasFeeCap: u.Fee.MaxFeePerGas(),
			Gas:       u.GasLimit,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    u.Nonce,
		GasPrice: u.Fee.GasPrice(),
		Gas:      u.GasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})
}

type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

type SubmissionAttempt struct {
	Number     int
	Nonce      uint64
	Fee        FeeQuote
	TxHash     common.Hash
	Outcome    Outcome
	ErrorClass ErrorClass
	Err        error
}

// Receipt records that the node accepted the transaction for inclusion.
type Receipt struct {
	TxHash      common.Hash
	Nonce       uint64
	From        common.Address
	To          common.Address
	Recipient   common.Address
	Amount      *big.Int
	Attempts    int
	SubmittedAt time.Time
}

type EngineState string

const (
	StateBuilding   EngineState = "building"
	StateSigning    EngineState = "signing"
	StateSubmitting EngineState = "submitting"
	StateRetrying   EngineState = "retrying"
	StateSucceeded  EngineState = "succeeded"
	StateAborted    EngineState = "aborted"
)

func (s EngineState) Terminal() bool {
	return s == StateSucceeded || s == StateAborted
}

// TransferResult is returned for every outcome so callers can report attempts and the last error class.
type TransferResult struct {
	ID       string
	Request  TransferRequest
	State    EngineState
	Attempts []SubmissionAttempt
	Receipt  *Receipt
}

func (r *TransferResult) LastAttempt() *SubmissionAttempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}
