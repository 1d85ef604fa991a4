// Package stable implements the in-process settlement asset: a 6-decimal
// dollar stablecoin ledger with ERC-20 style allowances. Payments draw from
// it through TransferFrom with the payment ledger as spender.
package stable

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
	// ModuleName identifies the asset in the admin registry.
	ModuleName = "stable"
	// Symbol is the ticker of the settlement asset.
	Symbol = "PYUSD"
	// Decimals is the number of fractional digits of one unit.
	Decimals = 6
)

var (
	ErrInsufficientBalance   = errors.New("stable: insufficient balance")
	ErrInsufficientAllowance = errors.New("stable: insufficient allowance")
	ErrInvalidAmount         = errors.New("stable: invalid amount")
	ErrInvalidAddress        = errors.New("stable: invalid address")
	errNilState              = errors.New("stable: state not configured")
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Engine tracks balances, allowances and total supply.
type Engine struct {
	state   engineState
	admins  *admin.Registry
	emitter events.Emitter
}

// NewEngine constructs the asset ledger. admins authorises Mint.
func NewEngine(admins *admin.Registry) *Engine {
	return &Engine{admins: admins, emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(st engineState) { e.state = st }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) load(key []byte) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	amount := new(big.Int)
	if _, err := e.state.KVGet(key, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (e *Engine) store(key []byte, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	return e.state.KVPut(key, amount)
}

// BalanceOf returns the balance held by addr.
func (e *Engine) BalanceOf(addr [20]byte) (*big.Int, error) {
	return e.load(state.StableBalanceKey(addr))
}

// Allowance returns how much spender may still move on behalf of owner.
func (e *Engine) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return e.load(state.StableAllowanceKey(owner, spender))
}

// TotalSupply returns the number of units minted so far.
func (e *Engine) TotalSupply() (*big.Int, error) {
	return e.load(state.StableSupplyKey())
}

// Approve replaces the allowance granted by owner to spender.
func (e *Engine) Approve(owner, spender [20]byte, amount *big.Int) error {
	if crypto.IsZeroAddress(owner) || crypto.IsZeroAddress(spender) {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: allowance %v", ErrInvalidAmount, amount)
	}
	if err := e.store(state.StableAllowanceKey(owner, spender), amount); err != nil {
		return err
	}
	e.emitter.Emit(events.Approval{Asset: Symbol, Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from the caller's balance to to.
func (e *Engine) Transfer(from, to [20]byte, amount *big.Int) error {
	return e.move(from, to, amount)
}

// TransferFrom moves amount owned by owner to to, consuming the allowance
// granted to spender.
func (e *Engine) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	allowed, err := e.Allowance(owner, spender)
	if err != nil {
		return err
	}
	remaining, err := common.SubAmounts(allowed, amount)
	if errors.Is(err, common.ErrAmountUnderflow) {
		return fmt.Errorf("%w: allowance %s, need %s", ErrInsufficientAllowance, allowed, amount)
	}
	if err != nil {
		return err
	}
	if err := e.store(state.StableAllowanceKey(owner, spender), remaining); err != nil {
		return err
	}
	return e.move(owner, to, amount)
}

func (e *Engine) move(from, to [20]byte, amount *big.Int) error {
	if crypto.IsZeroAddress(from) || crypto.IsZeroAddress(to) {
		return ErrInvalidAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	fromBalance, err := e.BalanceOf(from)
	if err != nil {
		return err
	}
	debited, err := common.SubAmounts(fromBalance, amount)
	if errors.Is(err, common.ErrAmountUnderflow) {
		return fmt.Errorf("%w: balance %s, need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	if err != nil {
		return err
	}
	if err := e.store(state.StableBalanceKey(from), debited); err != nil {
		return err
	}
	toBalance, err := e.BalanceOf(to)
	if err != nil {
		return err
	}
	credited, err := common.AddAmounts(toBalance, amount)
	if err != nil {
		return err
	}
	if err := e.store(state.StableBalanceKey(to), credited); err != nil {
		return err
	}
	e.emitter.Emit(events.Transfer{Asset: Symbol, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Mint issues new units to to. Only the asset administrator may mint.
func (e *Engine) Mint(caller, to [20]byte, amount *big.Int) error {
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	if crypto.IsZeroAddress(to) {
		return ErrInvalidAddress
	}
	if !common.Positive(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	supply, err := e.TotalSupply()
	if err != nil {
		return err
	}
	nextSupply, err := common.AddAmounts(supply, amount)
	if err != nil {
		return err
	}
	balance, err := e.BalanceOf(to)
	if err != nil {
		return err
	}
	nextBalance, err := common.AddAmounts(balance, amount)
	if err != nil {
		return err
	}
	if err := e.store(state.StableSupplyKey(), nextSupply); err != nil {
		return err
	}
	if err := e.store(state.StableBalanceKey(to), nextBalance); err != nil {
		return err
	}
	e.emitter.Emit(events.Mint{Asset: Symbol, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}
