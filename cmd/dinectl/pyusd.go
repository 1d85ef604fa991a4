package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"dineledger/config"
	"dineledger/crypto"
	"dineledger/integrations/evm"

	"github.com/shopspring/decimal"
)

func runPYUSDBalance(args []string) error {
	fs := flag.NewFlagSet(pyusdCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the config file")
	owner := fs.String("address", "", "Account to query")
	spender := fs.String("spender", "", "Also report the allowance granted to this spender")
	fs.Parse(args)

	if *owner == "" {
		return errors.New("--address is required")
	}
	ownerAddr, err := crypto.ParseAddress(*owner)
	if err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.EVM.RPCURL == "" || cfg.EVM.TokenContract == "" {
		return errors.New("evm.RPCURL and evm.TokenContract must be configured")
	}
	contract, err := crypto.ParseAddress(cfg.EVM.TokenContract)
	if err != nil {
		return fmt.Errorf("evm.TokenContract: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := evm.DialClient(ctx, cfg.EVM.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()
	token, err := evm.NewToken(client, contract)
	if err != nil {
		return err
	}
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return err
	}
	symbol, err := token.Symbol(ctx)
	if err != nil {
		return err
	}
	balance, err := token.BalanceOf(ctx, ownerAddr)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", decimal.NewFromBigInt(balance, -int32(decimals)).String(), symbol)

	if *spender != "" {
		spenderAddr, err := crypto.ParseAddress(*spender)
		if err != nil {
			return err
		}
		allowance, err := token.Allowance(ctx, ownerAddr, spenderAddr)
		if err != nil {
			return err
		}
		fmt.Printf("allowance %s %s\n", decimal.NewFromBigInt(allowance, -int32(decimals)).String(), symbol)
	}
	return nil
}
