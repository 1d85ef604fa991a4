// Package evm reads the settlement token on an external EVM chain. It never
// submits transactions.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
  {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

var parsedERC20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// DialClient initialises an EVM RPC client for the provided endpoint.
func DialClient(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

// Token is a read-only view of an ERC-20 contract.
type Token struct {
	caller   ethereum.ContractCaller
	contract common.Address
}

func NewToken(caller ethereum.ContractCaller, contract [20]byte) (*Token, error) {
	if caller == nil {
		return nil, errors.New("evm: contract caller required")
	}
	if contract == ([20]byte{}) {
		return nil, errors.New("evm: token contract required")
	}
	return &Token{caller: caller, contract: common.Address(contract)}, nil
}

// BalanceOf returns owner's balance in base units at the latest block.
func (t *Token) BalanceOf(ctx context.Context, owner [20]byte) (*big.Int, error) {
	var out *big.Int
	if err := t.call(ctx, &out, "balanceOf", common.Address(owner)); err != nil {
		return nil, err
	}
	return out, nil
}

// Allowance returns how much spender may pull from owner.
func (t *Token) Allowance(ctx context.Context, owner, spender [20]byte) (*big.Int, error) {
	var out *big.Int
	if err := t.call(ctx, &out, "allowance", common.Address(owner), common.Address(spender)); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	var out uint8
	err := t.call(ctx, &out, "decimals")
	return out, err
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	var out string
	err := t.call(ctx, &out, "symbol")
	return out, err
}

func (t *Token) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	data, err := parsedERC20.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("evm: pack %s: %w", method, err)
	}
	raw, err := t.caller.CallContract(ctx, ethereum.CallMsg{To: &t.contract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("evm: call %s: %w", method, err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("evm: %s returned no data; is %s a token contract?", method, t.contract.Hex())
	}
	if err := parsedERC20.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("evm: unpack %s: %w", method, err)
	}
	return nil
}
