package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/model"
	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const packageName = "wallet"

type localWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewLocalSigner(key *ecdsa.PrivateKey) repository.SignerRepository {
	return &localWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewLocalSignerFromHex parses a hex private key with or without 0x. Errors never contain the key.
func NewLocalSignerFromHex(hexKey string) (repository.SignerRepository, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(),
			model.NewSubmissionError(model.ErrorClassSigningFailure, "load key", fmt.Errorf("invalid private key")))
	}
	return NewLocalSigner(key), nil
}

func (w *localWallet) Address() common.Address {
	return w.address
}

func (w *localWallet) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(),
			model.NewSubmissionError(model.ErrorClassSigningFailure, "sign transaction", err))
	}
	return signedTx, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
