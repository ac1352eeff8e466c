package repository

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
)

// ChainRepository is the JSON-RPC node. Errors are returned as *model.SubmissionError.
type ChainRepository interface {
	// ChainID 接続先のチェーンID
	ChainID(ctx context.Context) (*big.Int, error)
	// LatestHeader 最新ブロックのヘッダ
	LatestHeader(ctx context.Context) (*types.Header, error)
	// SuggestGasPrice legacy 向けのガス価格
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// NonceAt 最新ブロック時点の nonce
	NonceAt(ctx context.Context, account common.Address) (uint64, error)
	// PendingNonceAt pending を含む nonce
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// SignerRepository is the controlling account. Implementations never expose key material.
type SignerRepository interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// BalanceRepository reads the balance being swept.
type BalanceRepository interface {
	Balance(ctx context.Context, owner common.Address) (*big.Int, error)
}

// TokenRepository is an ERC-20 contract.
type TokenRepository interface {
	BalanceRepository
	Address() common.Address
	TransferCallData(recipient common.Address, amount *big.Int) ([]byte, error)
}

// GasStationRepository
type GasStationRepository interface {
	GetGasPriceRecommendations(ctx context.Context) (*model.GasPriceRecommendations, error)
}
