package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	t        *testing.T
	contract common.Address
	balances map[common.Address]*big.Int
	err      error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	require.Equal(f.t, f.contract, *msg.To)
	method, err := parsedERC20.MethodById(msg.Data[:4])
	require.NoError(f.t, err)
	args, err := method.Inputs.Unpack(msg.Data[4:])
	require.NoError(f.t, err)
	switch method.Name {
	case "balanceOf":
		bal := f.balances[args[0].(common.Address)]
		if bal == nil {
			bal = new(big.Int)
		}
		return method.Outputs.Pack(bal)
	case "decimals":
		return method.Outputs.Pack(uint8(6))
	case "symbol":
		return method.Outputs.Pack("PYUSD")
	case "allowance":
		return method.Outputs.Pack(big.NewInt(42))
	}
	return nil, nil
}

func TestTokenReads(t *testing.T) {
	contract := common.HexToAddress("0x6c3ea9036406852006290770BEdFcAbA0e23A0e8")
	owner := common.HexToAddress("0x3000000000000000000000000000000000000003")
	caller := &fakeCaller{t: t, contract: contract, balances: map[common.Address]*big.Int{owner: big.NewInt(97_500_000)}}

	token, err := NewToken(caller, contract)
	require.NoError(t, err)
	ctx := context.Background()

	bal, err := token.BalanceOf(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, "97500000", bal.String())

	allowance, err := token.Allowance(ctx, owner, contract)
	require.NoError(t, err)
	require.Equal(t, "42", allowance.String())

	decimals, err := token.Decimals(ctx)
	require.NoError(t, err)
	require.Equal(t, uint8(6), decimals)

	symbol, err := token.Symbol(ctx)
	require.NoError(t, err)
	require.Equal(t, "PYUSD", symbol)
}

func TestTokenErrors(t *testing.T) {
	contract := common.HexToAddress("0x6c3ea9036406852006290770BEdFcAbA0e23A0e8")
	_, err := NewToken(nil, contract)
	require.Error(t, err)
	_, err = NewToken(&fakeCaller{}, [20]byte{})
	require.Error(t, err)

	token, err := NewToken(&fakeCaller{t: t, err: errors.New("rpc down")}, contract)
	require.NoError(t, err)
	_, err = token.BalanceOf(context.Background(), [20]byte{1})
	require.ErrorContains(t, err, "rpc down")

	_, err = DialClient(context.Background(), " ")
	require.Error(t, err)
}
