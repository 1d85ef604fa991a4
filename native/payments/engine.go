// Package payments implements the payment ledger: restaurant registration,
// bill settlement with a basis-point platform fee, and running statistics.
package payments

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"dineledger/core/events"
	"dineledger/core/state"
	"dineledger/core/types"
	"dineledger/crypto"
	"dineledger/native/admin"
	"dineledger/native/common"
)

const (
	// ModuleName identifies the ledger in the admin and pause registries.
	ModuleName = "payments"
	// DefaultFeeBps is the platform fee applied until the administrator
	// changes it (2.5%).
	DefaultFeeBps uint32 = 250
	// MaxFeeBps caps the platform fee at 10%.
	MaxFeeBps uint32 = 1_000

	bpsDenominator = 10_000
)

var (
	ErrUnauthorized      = admin.ErrUnauthorized
	ErrPaused            = common.ErrModulePaused
	ErrAlreadyRegistered = errors.New("payments: restaurant already registered")
	ErrInvalidRestaurant = errors.New("payments: invalid restaurant")
	ErrInvalidAmount     = errors.New("payments: invalid amount")
	ErrInvalidName       = errors.New("payments: invalid restaurant name")
	ErrInvalidAddress    = errors.New("payments: invalid address")
	ErrPaymentNotFound   = errors.New("payments: payment not found")
	ErrFeeTooHigh        = errors.New("payments: fee too high")

	errNilState           = errors.New("payments: state not configured")
	errNilAsset           = errors.New("payments: settlement asset not configured")
	errFeeRecipientNotSet = errors.New("payments: fee recipient not configured")
)

// SettlementAsset is the 6-decimal asset bills are paid in. The ledger moves
// funds with TransferFrom, acting as spender on the customer's allowance.
type SettlementAsset interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	Allowance(owner, spender [20]byte) (*big.Int, error)
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
}

type pauseControl interface {
	common.PauseView
	SetPaused(module string, paused bool) error
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	NextSequence(name string) (uint64, error)
	Sequence(name string) (uint64, error)
}

// Engine wires payment ledger business logic with persistence and event
// emission.
type Engine struct {
	identity [20]byte
	state    engineState
	asset    SettlementAsset
	admins   *admin.Registry
	pauses   pauseControl
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine constructs the ledger. identity is the address the ledger spends
// customer allowances as.
func NewEngine(identity [20]byte, asset SettlementAsset, admins *admin.Registry, pauses pauseControl) *Engine {
	return &Engine{
		identity: identity,
		asset:    asset,
		admins:   admins,
		pauses:   pauses,
		emitter:  events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
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

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Identity returns the ledger's spender address.
func (e *Engine) Identity() [20]byte { return e.identity }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.asset == nil {
		return errNilAsset
	}
	return nil
}

// InitFeeConfig stores the initial fee recipient and rate if none exist yet.
func (e *Engine) InitFeeConfig(recipient [20]byte, bps uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	var existing FeeConfig
	ok, err := e.state.KVGet(state.PaymentFeeConfigKey(), &existing)
	if err != nil || ok {
		return err
	}
	if bps > MaxFeeBps {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, bps)
	}
	return e.state.KVPut(state.PaymentFeeConfigKey(), &FeeConfig{Recipient: recipient, Bps: bps})
}

// FeeConfig returns the active fee split. Unset config yields the default rate
// with no recipient.
func (e *Engine) FeeConfig() (*FeeConfig, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg := &FeeConfig{Bps: DefaultFeeBps}
	if _, err := e.state.KVGet(state.PaymentFeeConfigKey(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RegisterRestaurant records a new payee. Administrator only.
func (e *Engine) RegisterRestaurant(caller, addr [20]byte, name string) (*Restaurant, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return nil, err
	}
	if crypto.IsZeroAddress(addr) {
		return nil, ErrInvalidAddress
	}
	normalized, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	if _, ok, err := e.Restaurant(addr); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, crypto.FormatAddress(addr))
	}
	restaurant := &Restaurant{Address: addr, Name: normalized, Active: true, RegisteredAt: e.now()}
	if err := e.state.KVPut(state.RestaurantKey(addr), restaurant); err != nil {
		return nil, err
	}
	e.emit(RestaurantRegisteredEvent(restaurant))
	return restaurant, nil
}

// SetRestaurantStatus enables or disables payments to a registered payee.
func (e *Engine) SetRestaurantStatus(caller, addr [20]byte, active bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	restaurant, ok, err := e.Restaurant(addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not registered", ErrInvalidRestaurant, crypto.FormatAddress(addr))
	}
	if restaurant.Active == active {
		return nil
	}
	restaurant.Active = active
	if err := e.state.KVPut(state.RestaurantKey(addr), restaurant); err != nil {
		return err
	}
	e.emit(RestaurantStatusEvent(addr, active))
	return nil
}

// Restaurant returns the payee registered at addr.
func (e *Engine) Restaurant(addr [20]byte) (*Restaurant, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	var restaurant Restaurant
	ok, err := e.state.KVGet(state.RestaurantKey(addr), &restaurant)
	if err != nil || !ok {
		return nil, false, err
	}
	return &restaurant, true, nil
}

func (e *Engine) split(gross *big.Int) (fee, net *big.Int, cfg *FeeConfig, err error) {
	cfg, err = e.FeeConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	fee, err = common.MulDiv(gross, new(big.Int).SetUint64(uint64(cfg.Bps)), big.NewInt(bpsDenominator))
	if err != nil {
		return nil, nil, nil, err
	}
	net, err = common.SubAmounts(gross, fee)
	if err != nil {
		return nil, nil, nil, err
	}
	return fee, net, cfg, nil
}

// Quote previews the split of gross and checks the customer's funding
// without touching state.
func (e *Engine) Quote(customer [20]byte, gross *big.Int) (*Quote, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !common.Positive(gross) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, gross)
	}
	fee, net, _, err := e.split(gross)
	if err != nil {
		return nil, err
	}
	balance, err := e.asset.BalanceOf(customer)
	if err != nil {
		return nil, err
	}
	allowance, err := e.asset.Allowance(customer, e.identity)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Gross:             new(big.Int).Set(gross),
		Fee:               fee,
		RestaurantAmount:  net,
		Balance:           balance,
		Allowance:         allowance,
		SufficientBalance: balance.Cmp(gross) >= 0,
		SufficientAllow:   allowance.Cmp(gross) >= 0,
	}, nil
}

// ProcessPayment settles a bill of gross units from customer to restaurant.
// The fee share goes to the fee recipient. Bookkeeping is written before the
// two transfers; callers run this inside a journal so a failed transfer
// discards everything.
func (e *Engine) ProcessPayment(customer, restaurantAddr [20]byte, gross *big.Int, billDetails string) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if !common.Positive(gross) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, gross)
	}
	restaurant, ok, err := e.Restaurant(restaurantAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", ErrInvalidRestaurant, crypto.FormatAddress(restaurantAddr))
	}
	if !restaurant.Active {
		return nil, fmt.Errorf("%w: %s is inactive", ErrInvalidRestaurant, crypto.FormatAddress(restaurantAddr))
	}
	fee, net, cfg, err := e.split(gross)
	if err != nil {
		return nil, err
	}
	if fee.Sign() > 0 && crypto.IsZeroAddress(cfg.Recipient) {
		return nil, errFeeRecipientNotSet
	}
	stats, err := e.Stats()
	if err != nil {
		return nil, err
	}
	volume, err := common.AddAmounts(stats.TotalVolume, gross)
	if err != nil {
		return nil, err
	}

	id, err := e.state.NextSequence(state.PaymentSequence)
	if err != nil {
		return nil, err
	}
	payment := &Payment{
		ID:               id,
		Customer:         customer,
		Restaurant:       restaurantAddr,
		Gross:            new(big.Int).Set(gross),
		Fee:              fee,
		RestaurantAmount: net,
		BillDetails:      billDetails,
		Timestamp:        e.now(),
	}
	if err := e.state.KVPut(state.PaymentKey(id), payment); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(state.CustomerPaymentsKey(customer), state.EncodeID(id)); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(state.RestaurantPaymentsKey(restaurantAddr), state.EncodeID(id)); err != nil {
		return nil, err
	}
	stats.TotalPayments++
	stats.TotalVolume = volume
	if err := e.state.KVPut(state.PaymentStatsKey(), stats); err != nil {
		return nil, err
	}

	if err := e.asset.TransferFrom(e.identity, customer, restaurantAddr, net); err != nil {
		return nil, fmt.Errorf("payments: settle restaurant share: %w", err)
	}
	if fee.Sign() > 0 {
		if err := e.asset.TransferFrom(e.identity, customer, cfg.Recipient, fee); err != nil {
			return nil, fmt.Errorf("payments: settle platform fee: %w", err)
		}
	}
	e.emit(PaymentProcessedEvent(payment))
	return payment, nil
}

// Payment returns the payment with the given id.
func (e *Engine) Payment(id uint64) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var payment Payment
	ok, err := e.state.KVGet(state.PaymentKey(id), &payment)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPaymentNotFound, id)
	}
	payment.ensureAmounts()
	return &payment, nil
}

// Stats returns the ledger totals.
func (e *Engine) Stats() (*Stats, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	stats := &Stats{}
	if _, err := e.state.KVGet(state.PaymentStatsKey(), stats); err != nil {
		return nil, err
	}
	if stats.TotalVolume == nil {
		stats.TotalVolume = big.NewInt(0)
	}
	return stats, nil
}

// CustomerPayments lists the payment ids made by addr in creation order.
func (e *Engine) CustomerPayments(addr [20]byte) ([]uint64, error) {
	return e.idList(state.CustomerPaymentsKey(addr))
}

// RestaurantPayments lists the payment ids received by addr in creation order.
func (e *Engine) RestaurantPayments(addr [20]byte) ([]uint64, error) {
	return e.idList(state.RestaurantPaymentsKey(addr))
}

func (e *Engine) idList(key []byte) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := e.state.KVGetList(key, &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, item := range raw {
		id, ok := state.DecodeID(item)
		if !ok {
			return nil, fmt.Errorf("payments: corrupt index entry %x", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SetFeeRecipient changes where platform fees are sent. Administrator only.
func (e *Engine) SetFeeRecipient(caller, recipient [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	if crypto.IsZeroAddress(recipient) {
		return fmt.Errorf("%w: fee recipient", ErrInvalidAddress)
	}
	cfg, err := e.FeeConfig()
	if err != nil {
		return err
	}
	previous := cfg.Recipient
	cfg.Recipient = recipient
	if err := e.state.KVPut(state.PaymentFeeConfigKey(), cfg); err != nil {
		return err
	}
	e.emit(FeeRecipientUpdatedEvent(previous, recipient))
	return nil
}

// SetPlatformFee changes the fee rate. Administrator only; capped at MaxFeeBps.
func (e *Engine) SetPlatformFee(caller [20]byte, bps uint32) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	if bps > MaxFeeBps {
		return fmt.Errorf("%w: %d bps exceeds %d", ErrFeeTooHigh, bps, MaxFeeBps)
	}
	cfg, err := e.FeeConfig()
	if err != nil {
		return err
	}
	previous := cfg.Bps
	cfg.Bps = bps
	if err := e.state.KVPut(state.PaymentFeeConfigKey(), cfg); err != nil {
		return err
	}
	e.emit(FeeUpdatedEvent(previous, bps))
	return nil
}

// Pause blocks new payments. Administrator only.
func (e *Engine) Pause(caller [20]byte) error { return e.setPaused(caller, true) }

// Unpause resumes payments. Administrator only.
func (e *Engine) Unpause(caller [20]byte) error { return e.setPaused(caller, false) }

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	if e.pauses == nil {
		return errors.New("payments: pause control not configured")
	}
	if err := e.pauses.SetPaused(ModuleName, paused); err != nil {
		return err
	}
	e.emitter.Emit(events.PauseToggled{Module: ModuleName, Paused: paused, By: caller})
	return nil
}

// Paused reports whether payments are currently blocked.
func (e *Engine) Paused() bool {
	return e.pauses != nil && e.pauses.IsPaused(ModuleName)
}

// Admin returns the ledger administrator.
func (e *Engine) Admin() ([20]byte, error) { return e.admins.Admin(ModuleName) }

// TransferAdministration hands the ledger to next. Current administrator only.
func (e *Engine) TransferAdministration(caller, next [20]byte) error {
	return e.admins.TransferAdministration(ModuleName, caller, next)
}
