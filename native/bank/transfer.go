// Package bank keeps native value balances. Tips travel in native value and
// are forwarded through Transfer the moment they are recorded.
package bank

import (
	"errors"
	"fmt"
	"math/big"

	"dineledger/core/events"
	"dineledger/core/state"
	"dineledger/crypto"
	"dineledger/native/admin"
	"dineledger/native/common"
)

const (
	// ModuleName identifies the bank in the admin registry.
	ModuleName = "bank"
	// Asset labels native value in transfer events.
	Asset = "NATIVE"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAmount     = errors.New("bank: invalid amount")
	ErrInvalidAddress    = errors.New("bank: invalid address")
	errNilState          = errors.New("bank: state not configured")
)

type bankState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Bank moves native value between accounts.
type Bank struct {
	state   bankState
	admins  *admin.Registry
	emitter events.Emitter
}

// New constructs a bank. admins authorises Credit.
func New(admins *admin.Registry) *Bank {
	return &Bank{admins: admins, emitter: events.NoopEmitter{}}
}

// SetState configures the state backend.
func (b *Bank) SetState(st bankState) { b.state = st }

// SetEmitter configures the event emitter.
func (b *Bank) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// Balance returns the native balance of addr.
func (b *Bank) Balance(addr [20]byte) (*big.Int, error) {
	if b.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	if _, err := b.state.KVGet(state.NativeBalanceKey(addr), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (b *Bank) setBalance(addr [20]byte, amount *big.Int) error {
	if b.state == nil {
		return errNilState
	}
	return b.state.KVPut(state.NativeBalanceKey(addr), amount)
}

// Transfer debits from and credits to. A positive amount is required.
func (b *Bank) Transfer(from, to [20]byte, amount *big.Int) error {
	if crypto.IsZeroAddress(from) || crypto.IsZeroAddress(to) {
		return ErrInvalidAddress
	}
	if !common.Positive(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	fromBalance, err := b.Balance(from)
	if err != nil {
		return err
	}
	debited, err := common.SubAmounts(fromBalance, amount)
	if errors.Is(err, common.ErrAmountUnderflow) {
		return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, fromBalance, amount)
	}
	if err != nil {
		return err
	}
	if err := b.setBalance(from, debited); err != nil {
		return err
	}
	toBalance, err := b.Balance(to)
	if err != nil {
		return err
	}
	credited, err := common.AddAmounts(toBalance, amount)
	if err != nil {
		return err
	}
	if err := b.setBalance(to, credited); err != nil {
		return err
	}
	b.emitter.Emit(events.Transfer{Asset: Asset, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Credit issues native value to to. Only the bank administrator may credit.
func (b *Bank) Credit(caller, to [20]byte, amount *big.Int) error {
	if err := b.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	if crypto.IsZeroAddress(to) {
		return ErrInvalidAddress
	}
	if !common.Positive(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if b.state == nil {
		return errNilState
	}
	supply := new(big.Int)
	if _, err := b.state.KVGet(state.NativeSupplyKey(), supply); err != nil {
		return err
	}
	nextSupply, err := common.AddAmounts(supply, amount)
	if err != nil {
		return err
	}
	balance, err := b.Balance(to)
	if err != nil {
		return err
	}
	nextBalance, err := common.AddAmounts(balance, amount)
	if err != nil {
		return err
	}
	if err := b.state.KVPut(state.NativeSupplyKey(), nextSupply); err != nil {
		return err
	}
	if err := b.setBalance(to, nextBalance); err != nil {
		return err
	}
	b.emitter.Emit(events.Mint{Asset: Asset, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}
