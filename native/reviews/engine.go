// Package reviews implements the review registry: one review per paid bill,
// per-restaurant rating statistics, tips forwarded to the review owner, and
// administrator moderation.
package reviews

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"dineledger/core/events"
	"dineledger/core/state"
	"dineledger/core/types"
	"dineledger/crypto"
	"dineledger/native/admin"
	"dineledger/native/common"
)

// ModuleName identifies the registry in the admin and pause registries.
const ModuleName = "reviews"

var (
	ErrUnauthorized     = admin.ErrUnauthorized
	ErrPaused           = common.ErrModulePaused
	ErrInvalidRating    = errors.New("reviews: rating must be between 1 and 5")
	ErrDuplicateReview  = errors.New("reviews: bill already reviewed")
	ErrReviewNotFound   = errors.New("reviews: review not found")
	ErrReviewInactive   = errors.New("reviews: review inactive")
	ErrInvalidTipAmount = errors.New("reviews: tip amount must be positive")
	ErrInvalidAddress   = errors.New("reviews: invalid address")

	errNilState      = errors.New("reviews: state not configured")
	errNilBank       = errors.New("reviews: value transfer not configured")
	errStatsOverflow = errors.New("reviews: statistics overflow")
)

// ValueTransfer forwards native value. Tips are paid through it.
type ValueTransfer interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

type pauseControl interface {
	common.PauseView
	SetPaused(module string, paused bool) error
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	NextSequence(name string) (uint64, error)
	Sequence(name string) (uint64, error)
}

// Engine wires review registry business logic with persistence and event
// emission.
type Engine struct {
	state   engineState
	bank    ValueTransfer
	admins  *admin.Registry
	pauses  pauseControl
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs the registry.
func NewEngine(bank ValueTransfer, admins *admin.Registry, pauses pauseControl) *Engine {
	return &Engine{
		bank:    bank,
		admins:  admins,
		pauses:  pauses,
		emitter: events.NoopEmitter{},
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
	return nil
}

// InitConfig stores the initial registry settings if none exist yet.
func (e *Engine) InitConfig(creator [20]byte, baseImageURI string) error {
	if err := e.ready(); err != nil {
		return err
	}
	var existing Config
	ok, err := e.state.KVGet(state.ReviewConfigKey(), &existing)
	if err != nil || ok {
		return err
	}
	return e.state.KVPut(state.ReviewConfigKey(), &Config{AuthorizedCreator: creator, BaseImageURI: baseImageURI})
}

// Config returns the registry settings.
func (e *Engine) Config() (*Config, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if _, err := e.state.KVGet(state.ReviewConfigKey(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateReview mints the review for billID. Only the authorized creator may
// call it; the registry checks the address and nothing else about the caller.
func (e *Engine) CreateReview(caller, reviewer, restaurant [20]byte, billID uint64, rating uint8, text, restaurantName string) (*Review, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	if crypto.IsZeroAddress(cfg.AuthorizedCreator) || caller != cfg.AuthorizedCreator {
		return nil, fmt.Errorf("%w: %s is not the authorized creator", ErrUnauthorized, crypto.FormatAddress(caller))
	}
	if rating < MinRating || rating > MaxRating {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	if crypto.IsZeroAddress(reviewer) || crypto.IsZeroAddress(restaurant) {
		return nil, ErrInvalidAddress
	}
	if _, ok, err := e.ReviewByBill(billID); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: bill %d", ErrDuplicateReview, billID)
	}

	stats, err := e.RestaurantStats(restaurant)
	if err != nil {
		return nil, err
	}
	if stats.TotalReviews == math.MaxUint64 || stats.TotalRatingSum > math.MaxUint64-uint64(rating) {
		return nil, errStatsOverflow
	}
	stats.TotalReviews++
	stats.TotalRatingSum += uint64(rating)

	id, err := e.state.NextSequence(state.ReviewSequence)
	if err != nil {
		return nil, err
	}
	review := &Review{
		ID:             id,
		Reviewer:       reviewer,
		Restaurant:     restaurant,
		BillID:         billID,
		Rating:         rating,
		Text:           text,
		RestaurantName: restaurantName,
		TotalTips:      big.NewInt(0),
		Active:         true,
		CreatedAt:      e.now(),
	}
	if err := e.state.KVPut(state.ReviewKey(id), review); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(state.ReviewBillKey(billID), id); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(state.ReviewStatsKey(restaurant), &stats); err != nil {
		return nil, err
	}
	if err := e.state.KVAppend(state.ReviewRestaurantIndexKey(restaurant), state.EncodeID(id)); err != nil {
		return nil, err
	}
	if err := e.assignOwner(id, reviewer); err != nil {
		return nil, err
	}
	e.emit(ReviewCreatedEvent(review))
	return review, nil
}

// Review returns the review with the given id.
func (e *Engine) Review(id uint64) (*Review, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var review Review
	ok, err := e.state.KVGet(state.ReviewKey(id), &review)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrReviewNotFound, id)
	}
	review.ensureTips()
	return &review, nil
}

// ReviewByBill looks up the review minted for billID.
func (e *Engine) ReviewByBill(billID uint64) (*Review, bool, error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	var id uint64
	ok, err := e.state.KVGet(state.ReviewBillKey(billID), &id)
	if err != nil || !ok {
		return nil, false, err
	}
	review, err := e.Review(id)
	if err != nil {
		return nil, false, err
	}
	return review, true, nil
}

// TipReview records a tip from tipper and forwards it to the review's author.
// Ownership transfers do not redirect tips. Counters are written before the transfer; run inside a journal
// so a failed transfer leaves no trace.
func (e *Engine) TipReview(tipper [20]byte, id uint64, amount *big.Int) (*Review, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if !common.Positive(amount) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTipAmount, amount)
	}
	review, err := e.Review(id)
	if err != nil {
		return nil, err
	}
	if !review.Active {
		return nil, fmt.Errorf("%w: %d", ErrReviewInactive, id)
	}
	total, err := common.AddAmounts(review.TotalTips, amount)
	if err != nil {
		return nil, err
	}
	given, err := e.TipsFrom(id, tipper)
	if err != nil {
		return nil, err
	}
	given, err = common.AddAmounts(given, amount)
	if err != nil {
		return nil, err
	}
	review.TotalTips = total
	if err := e.state.KVPut(state.ReviewKey(id), review); err != nil {
		return nil, err
	}
	if err := e.state.KVPut(state.ReviewTipKey(id, tipper), given); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(tipper, review.Reviewer, amount); err != nil {
		return nil, fmt.Errorf("reviews: forward tip: %w", err)
	}
	e.emit(ReviewTippedEvent(id, tipper, review.Reviewer, amount.String(), total.String()))
	return review, nil
}

// TipsFrom returns the cumulative amount tipper has given review id.
func (e *Engine) TipsFrom(id uint64, tipper [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	amount := new(big.Int)
	if _, err := e.state.KVGet(state.ReviewTipKey(id, tipper), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// ReportReview raises a moderation signal. Deactivated reviews can still be
// reported and nothing in state changes.
func (e *Engine) ReportReview(reporter [20]byte, id uint64, reason string) error {
	if _, err := e.Review(id); err != nil {
		return err
	}
	e.emit(ReviewReportedEvent(id, reporter, reason))
	return nil
}

// DeactivateReview hides a review for good. Administrator only. Deactivating
// an inactive review is a no-op.
func (e *Engine) DeactivateReview(caller [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	review, err := e.Review(id)
	if err != nil {
		return err
	}
	if !review.Active {
		return nil
	}
	review.Active = false
	if err := e.state.KVPut(state.ReviewKey(id), review); err != nil {
		return err
	}
	e.emit(ReviewDeactivatedEvent(id, caller))
	return nil
}

// RestaurantStats returns the rating aggregate for restaurant.
func (e *Engine) RestaurantStats(restaurant [20]byte) (Stats, error) {
	if err := e.ready(); err != nil {
		return Stats{}, err
	}
	var stats Stats
	if _, err := e.state.KVGet(state.ReviewStatsKey(restaurant), &stats); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// RestaurantReviews lists review ids for restaurant in creation order.
func (e *Engine) RestaurantReviews(restaurant [20]byte) ([]uint64, error) {
	return e.idList(state.ReviewRestaurantIndexKey(restaurant))
}

// TotalReviews returns how many reviews have been minted.
func (e *Engine) TotalReviews() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.state.Sequence(state.ReviewSequence)
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
			return nil, fmt.Errorf("reviews: corrupt index entry %x", item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SetAuthorizedCreator changes the address allowed to mint reviews.
// Administrator only.
func (e *Engine) SetAuthorizedCreator(caller, creator [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	if crypto.IsZeroAddress(creator) {
		return fmt.Errorf("%w: authorized creator", ErrInvalidAddress)
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	previous := cfg.AuthorizedCreator
	cfg.AuthorizedCreator = creator
	if err := e.state.KVPut(state.ReviewConfigKey(), cfg); err != nil {
		return err
	}
	e.emit(CreatorUpdatedEvent(previous, creator))
	return nil
}

// SetBaseImageURI changes the prefix used for review images. Administrator only.
func (e *Engine) SetBaseImageURI(caller [20]byte, uri string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	cfg, err := e.Config()
	if err != nil {
		return err
	}
	cfg.BaseImageURI = uri
	return e.state.KVPut(state.ReviewConfigKey(), cfg)
}

// Pause blocks review creation, tipping and transfers. Administrator only.
func (e *Engine) Pause(caller [20]byte) error { return e.setPaused(caller, true) }

// Unpause lifts a pause. Administrator only.
func (e *Engine) Unpause(caller [20]byte) error { return e.setPaused(caller, false) }

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	if err := e.admins.Require(ModuleName, caller); err != nil {
		return err
	}
	if e.pauses == nil {
		return errors.New("reviews: pause control not configured")
	}
	if err := e.pauses.SetPaused(ModuleName, paused); err != nil {
		return err
	}
	e.emitter.Emit(events.PauseToggled{Module: ModuleName, Paused: paused, By: caller})
	return nil
}

// Paused reports whether the registry is paused.
func (e *Engine) Paused() bool {
	return e.pauses != nil && e.pauses.IsPaused(ModuleName)
}

// Admin returns the registry administrator.
func (e *Engine) Admin() ([20]byte, error) { return e.admins.Admin(ModuleName) }

// TransferAdministration hands the registry to next. Current administrator only.
func (e *Engine) TransferAdministration(caller, next [20]byte) error {
	return e.admins.TransferAdministration(ModuleName, caller, next)
}
