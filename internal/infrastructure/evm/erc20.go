package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yukia3e/evm-balance-sweeper/internal/domain/repository"
	"github.com/yukia3e/evm-balance-sweeper/internal/util"
)

const erc20ABIJSON = `[
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

type erc20Token struct {
	address common.Address
	chain   repository.ChainRepository
}

func NewERC20Token(address common.Address, chain repository.ChainRepository) repository.TokenRepository {
	return &erc20Token{
		address: address,
		chain:   chain,
	}
}

func (t *erc20Token) Address() common.Address {
	return t.address
}

func (t *erc20Token) TransferCallData(recipient common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", recipient, amount)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), fmt.Errorf("failed to pack transfer: %w", err))
	}
	return data, nil
}

func (t *erc20Token) Balance(ctx context.Context, owner common.Address) (*big.Int, error) {
	funcName := util.FuncName()

	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to pack balanceOf: %w", err))
	}

	out, err := t.chain.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data})
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to call balanceOf: %w", err))
	}

	values, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("failed to unpack balanceOf of %s: %w", t.address.Hex(), err))
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, util.WrapErrorForLog(packageName, funcName, fmt.Errorf("unexpected balanceOf type %T", values[0]))
	}
	return balance, nil
}

type nativeBalance struct {
	chain repository.ChainRepository
}

func NewNativeBalance(chain repository.ChainRepository) repository.BalanceRepository {
	return &nativeBalance{chain: chain}
}

func (n *nativeBalance) Balance(ctx context.Context, owner common.Address) (*big.Int, error) {
	balance, err := n.chain.BalanceAt(ctx, owner)
	if err != nil {
		return nil, util.WrapErrorForLog(packageName, util.FuncName(), err)
	}
	return balance, nil
}
