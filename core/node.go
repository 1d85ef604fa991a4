package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dineledger/core/events"
	"dineledger/core/state"
	"dineledger/crypto"
	"dineledger/native/admin"
	"dineledger/native/bank"
	"dineledger/native/common"
	"dineledger/native/payments"
	"dineledger/native/reviews"
	"dineledger/native/stable"
	"dineledger/observability"
	telemetry "dineledger/observability/otel"
	"dineledger/storage"
)

var (
	// ErrReentrantCall is returned when an operation tries to start another
	// operation on the same node before finishing.
	ErrReentrantCall = errors.New("core: re-entrant call")
	// ErrUnknownModule is returned for administrative calls naming a module the
	// node does not host.
	ErrUnknownModule = errors.New("core: unknown module")
	// ErrNotPayer is returned when someone other than the paying customer asks
	// to review a bill.
	ErrNotPayer = errors.New("core: caller did not pay this bill")
)

type operationKey struct{}

const eventSequenceName = "events"

// Options configures a node. Operator becomes the first administrator of every
// module; LedgerIdentity is the spender address of the payment ledger and the
// default authorized review creator.
type Options struct {
	Operator       [20]byte
	LedgerIdentity [20]byte
	FeeRecipient   [20]byte
	FeeBps         uint32
	BaseImageURI   string
	Logger         *slog.Logger
	Now            func() int64
}

// Node is the single sequential executor for every ledger operation. Each
// mutating call holds stateMu for its whole duration, stages writes in a state
// journal and releases buffered events only after the journal commits.
type Node struct {
	db      storage.Database
	stateMu sync.Mutex
	state   *state.Manager
	pending *events.Buffer
	bus     *events.Bus
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.LedgerMetrics

	admins   *admin.Registry
	pauses   *common.Pauses
	stable   *stable.Engine
	bank     *bank.Bank
	payments *payments.Engine
	reviews  *reviews.Engine
}

// NewNode wires the engines over db and bootstraps administrators and module
// configuration on first start. Existing on-disk settings are left untouched.
func NewNode(db storage.Database, bus *events.Bus, opts Options) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if crypto.IsZeroAddress(opts.Operator) {
		return nil, fmt.Errorf("core: operator address required")
	}
	if crypto.IsZeroAddress(opts.LedgerIdentity) {
		return nil, fmt.Errorf("core: ledger identity required")
	}
	if bus == nil {
		bus = events.NewBus(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	feeRecipient := opts.FeeRecipient
	if crypto.IsZeroAddress(feeRecipient) {
		feeRecipient = opts.Operator
	}
	feeBps := opts.FeeBps
	if feeBps == 0 {
		feeBps = payments.DefaultFeeBps
	}

	manager := state.NewManager(db)
	pending := &events.Buffer{}

	admins := admin.NewRegistry(manager)
	admins.SetEmitter(pending)
	pauses := common.NewPauses(manager)

	asset := stable.NewEngine(admins)
	asset.SetState(manager)
	asset.SetEmitter(pending)

	value := bank.New(admins)
	value.SetState(manager)
	value.SetEmitter(pending)

	ledger := payments.NewEngine(opts.LedgerIdentity, asset, admins, pauses)
	ledger.SetState(manager)
	ledger.SetEmitter(pending)

	registry := reviews.NewEngine(value, admins, pauses)
	registry.SetState(manager)
	registry.SetEmitter(pending)

	if opts.Now != nil {
		ledger.SetNowFunc(opts.Now)
		registry.SetNowFunc(opts.Now)
	}

	n := &Node{
		db:       db,
		state:    manager,
		pending:  pending,
		bus:      bus,
		logger:   logger,
		tracer:   telemetry.Tracer("dineledger/core"),
		metrics:  observability.Ledger(),
		admins:   admins,
		pauses:   pauses,
		stable:   asset,
		bank:     value,
		payments: ledger,
		reviews:  registry,
	}

	err := n.execute(context.Background(), "bootstrap", func(context.Context) error {
		for _, module := range []string{payments.ModuleName, reviews.ModuleName, stable.ModuleName, bank.ModuleName} {
			if err := admins.Bootstrap(module, opts.Operator); err != nil {
				return fmt.Errorf("bootstrap %s admin: %w", module, err)
			}
		}
		if err := ledger.InitFeeConfig(feeRecipient, feeBps); err != nil {
			return err
		}
		return registry.InitConfig(opts.LedgerIdentity, opts.BaseImageURI)
	})
	if err != nil {
		return nil, err
	}
	lastSeq, err := manager.Sequence(eventSequenceName)
	if err != nil {
		return nil, err
	}
	bus.Resume(lastSeq)
	for _, module := range []string{payments.ModuleName, reviews.ModuleName} {
		n.metrics.SetPaused(module, pauses.IsPaused(module))
	}
	return n, nil
}

// Bus returns the event bus committed events are published on.
func (n *Node) Bus() *events.Bus { return n.bus }

// LedgerIdentity returns the payment ledger's spender address.
func (n *Node) LedgerIdentity() [20]byte { return n.payments.Identity() }

// execute runs fn as one all-or-nothing operation. The context is only
// consulted before the journal opens; once fn starts it runs to completion.
func (n *Node) execute(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Value(operationKey{}) != nil {
		return fmt.Errorf("%w: %s inside %v", ErrReentrantCall, op, ctx.Value(operationKey{}))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	ctx, span := n.tracer.Start(ctx, "node."+op, trace.WithAttributes(attribute.String("operation", op)))
	start := time.Now()
	defer func() {
		n.metrics.Observe(op, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := n.state.Begin(); err != nil {
		return err
	}
	defer func() {
		if n.state.InJournal() {
			n.state.Discard()
			n.pending.Reset()
		}
	}()
	n.pending.Reset()
	if err := fn(context.WithValue(ctx, operationKey{}, op)); err != nil {
		n.state.Discard()
		n.pending.Reset()
		n.logger.Debug("operation rejected", slog.String("operation", op), slog.Any("error", err))
		return err
	}
	released, err := n.sequenceEvents(n.pending.Drain())
	if err != nil {
		n.state.Discard()
		return err
	}
	if err := n.state.Commit(); err != nil {
		n.logger.Error("commit failed", slog.String("operation", op), slog.Any("error", err))
		return err
	}
	n.bus.Publish(released...)
	for _, evt := range released {
		observability.Events().RecordPublished(evt.EventType())
	}
	return nil
}

// sequenceEvents numbers events from a counter stored in the journal, so the
// numbering commits with the operation and survives restarts.
func (n *Node) sequenceEvents(pending []events.Event) ([]events.Event, error) {
	out := make([]events.Event, 0, len(pending))
	for _, evt := range pending {
		if evt == nil {
			continue
		}
		raw := evt.Event()
		if raw == nil {
			continue
		}
		seq, err := n.state.NextSequence(eventSequenceName)
		if err != nil {
			return nil, fmt.Errorf("core: sequence events: %w", err)
		}
		stamped := raw.Clone()
		stamped.Sequence = seq
		out = append(out, events.Wrap(stamped))
	}
	return out, nil
}

// view runs a read under the node lock so it never observes a half-applied
// operation.
func (n *Node) view(ctx context.Context, fn func() error) error {
	if ctx != nil && ctx.Value(operationKey{}) != nil {
		return ErrReentrantCall
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return fn()
}

// --- Payment ledger ---

// RegisterRestaurant registers a payee. Administrator only.
func (n *Node) RegisterRestaurant(ctx context.Context, caller, addr [20]byte, name string) (*payments.Restaurant, error) {
	var out *payments.Restaurant
	err := n.execute(ctx, "payments.register", func(context.Context) error {
		r, err := n.payments.RegisterRestaurant(caller, addr, name)
		out = r
		return err
	})
	return out, err
}

// SetRestaurantStatus toggles whether a payee accepts payments.
func (n *Node) SetRestaurantStatus(ctx context.Context, caller, addr [20]byte, active bool) error {
	return n.execute(ctx, "payments.status", func(context.Context) error {
		return n.payments.SetRestaurantStatus(caller, addr, active)
	})
}

// ProcessPayment settles a bill from customer to restaurant.
func (n *Node) ProcessPayment(ctx context.Context, customer, restaurant [20]byte, gross *big.Int, billDetails string) (*payments.Payment, error) {
	var out *payments.Payment
	err := n.execute(ctx, "payments.process", func(context.Context) error {
		p, err := n.payments.ProcessPayment(customer, restaurant, gross, billDetails)
		out = p
		return err
	})
	if err == nil {
		n.metrics.AddValue("payment", out.Gross)
		n.metrics.AddValue("fee", out.Fee)
	}
	return out, err
}

// SetFeeRecipient changes the fee recipient. Administrator only.
func (n *Node) SetFeeRecipient(ctx context.Context, caller, recipient [20]byte) error {
	return n.execute(ctx, "payments.fee_recipient", func(context.Context) error {
		return n.payments.SetFeeRecipient(caller, recipient)
	})
}

// SetPlatformFee changes the fee rate. Administrator only.
func (n *Node) SetPlatformFee(ctx context.Context, caller [20]byte, bps uint32) error {
	return n.execute(ctx, "payments.fee", func(context.Context) error {
		return n.payments.SetPlatformFee(caller, bps)
	})
}

// Restaurant returns a registered payee.
func (n *Node) Restaurant(ctx context.Context, addr [20]byte) (*payments.Restaurant, bool, error) {
	var (
		out *payments.Restaurant
		ok  bool
	)
	err := n.view(ctx, func() (err error) {
		out, ok, err = n.payments.Restaurant(addr)
		return err
	})
	return out, ok, err
}

// Payment returns a payment by id.
func (n *Node) Payment(ctx context.Context, id uint64) (*payments.Payment, error) {
	var out *payments.Payment
	err := n.view(ctx, func() (err error) {
		out, err = n.payments.Payment(id)
		return err
	})
	return out, err
}

// PaymentStats returns the ledger totals.
func (n *Node) PaymentStats(ctx context.Context) (*payments.Stats, error) {
	var out *payments.Stats
	err := n.view(ctx, func() (err error) {
		out, err = n.payments.Stats()
		return err
	})
	return out, err
}

// CustomerPayments lists payments made by addr.
func (n *Node) CustomerPayments(ctx context.Context, addr [20]byte) ([]uint64, error) {
	var out []uint64
	err := n.view(ctx, func() (err error) {
		out, err = n.payments.CustomerPayments(addr)
		return err
	})
	return out, err
}

// RestaurantPayments lists payments received by addr.
func (n *Node) RestaurantPayments(ctx context.Context, addr [20]byte) ([]uint64, error) {
	var out []uint64
	err := n.view(ctx, func() (err error) {
		out, err = n.payments.RestaurantPayments(addr)
		return err
	})
	return out, err
}

// FeeConfig returns the active fee split.
func (n *Node) FeeConfig(ctx context.Context) (*payments.FeeConfig, error) {
	var out *payments.FeeConfig
	err := n.view(ctx, func() (err error) {
		out, err = n.payments.FeeConfig()
		return err
	})
	return out, err
}

// Quote previews a payment without changing state.
func (n *Node) Quote(ctx context.Context, customer [20]byte, gross *big.Int) (*payments.Quote, error) {
	var out *payments.Quote
	err := n.view(ctx, func() (err error) {
		out, err = n.payments.Quote(customer, gross)
		return err
	})
	return out, err
}

// --- Review registry ---

// CreateReview mints a review directly. caller must be the authorized creator.
func (n *Node) CreateReview(ctx context.Context, caller, reviewer, restaurant [20]byte, billID uint64, rating uint8, text, restaurantName string) (*reviews.Review, error) {
	var out *reviews.Review
	err := n.execute(ctx, "reviews.create", func(context.Context) error {
		r, err := n.reviews.CreateReview(caller, reviewer, restaurant, billID, rating, text, restaurantName)
		out = r
		return err
	})
	if err == nil {
		n.metrics.RecordReview(out.Rating)
	}
	return out, err
}

// ReviewBill lets the customer who paid paymentID review it. The node checks
// the payment, snapshots the restaurant name and mints the review as the
// ledger identity, which is the registry's authorized creator by default.
func (n *Node) ReviewBill(ctx context.Context, customer [20]byte, paymentID uint64, rating uint8, text string) (*reviews.Review, error) {
	var out *reviews.Review
	err := n.execute(ctx, "reviews.review_bill", func(context.Context) error {
		payment, err := n.payments.Payment(paymentID)
		if err != nil {
			return err
		}
		if payment.Customer != customer {
			return fmt.Errorf("%w: payment %d", ErrNotPayer, paymentID)
		}
		restaurant, ok, err := n.payments.Restaurant(payment.Restaurant)
		if err != nil {
			return err
		}
		name := ""
		if ok {
			name = restaurant.Name
		}
		r, err := n.reviews.CreateReview(n.payments.Identity(), customer, payment.Restaurant, payment.ID, rating, text, name)
		out = r
		return err
	})
	if err == nil {
		n.metrics.RecordReview(out.Rating)
	}
	return out, err
}

// TipReview forwards amount of native value from tipper to the review owner.
func (n *Node) TipReview(ctx context.Context, tipper [20]byte, id uint64, amount *big.Int) (*reviews.Review, error) {
	var out *reviews.Review
	err := n.execute(ctx, "reviews.tip", func(context.Context) error {
		r, err := n.reviews.TipReview(tipper, id, amount)
		out = r
		return err
	})
	if err == nil {
		n.metrics.AddValue("tip", amount)
	}
	return out, err
}

// ReportReview raises a moderation signal.
func (n *Node) ReportReview(ctx context.Context, reporter [20]byte, id uint64, reason string) error {
	return n.execute(ctx, "reviews.report", func(context.Context) error {
		return n.reviews.ReportReview(reporter, id, reason)
	})
}

// DeactivateReview hides a review. Administrator only.
func (n *Node) DeactivateReview(ctx context.Context, caller [20]byte, id uint64) error {
	return n.execute(ctx, "reviews.deactivate", func(context.Context) error {
		return n.reviews.DeactivateReview(caller, id)
	})
}

// TransferReview moves a review to a new owner.
func (n *Node) TransferReview(ctx context.Context, caller, to [20]byte, id uint64) error {
	return n.execute(ctx, "reviews.transfer", func(context.Context) error {
		return n.reviews.TransferReview(caller, to, id)
	})
}

// SetAuthorizedCreator changes who may mint reviews. Administrator only.
func (n *Node) SetAuthorizedCreator(ctx context.Context, caller, creator [20]byte) error {
	return n.execute(ctx, "reviews.creator", func(context.Context) error {
		return n.reviews.SetAuthorizedCreator(caller, creator)
	})
}

// SetBaseImageURI changes the review image prefix. Administrator only.
func (n *Node) SetBaseImageURI(ctx context.Context, caller [20]byte, uri string) error {
	return n.execute(ctx, "reviews.base_uri", func(context.Context) error {
		return n.reviews.SetBaseImageURI(caller, uri)
	})
}

// Review returns a review by id.
func (n *Node) Review(ctx context.Context, id uint64) (*reviews.Review, error) {
	var out *reviews.Review
	err := n.view(ctx, func() (err error) {
		out, err = n.reviews.Review(id)
		return err
	})
	return out, err
}

// ReviewWithOwner returns review id together with its current owner, read
// under one lock so both reflect the same committed state.
func (n *Node) ReviewWithOwner(ctx context.Context, id uint64) (*reviews.Review, [20]byte, error) {
	var (
		out   *reviews.Review
		owner [20]byte
	)
	err := n.view(ctx, func() (err error) {
		if out, err = n.reviews.Review(id); err != nil {
			return err
		}
		owner, err = n.reviews.OwnerOf(id)
		return err
	})
	return out, owner, err
}

// ReviewByBill returns the review minted for billID.
func (n *Node) ReviewByBill(ctx context.Context, billID uint64) (*reviews.Review, bool, error) {
	var (
		out *reviews.Review
		ok  bool
	)
	err := n.view(ctx, func() (err error) {
		out, ok, err = n.reviews.ReviewByBill(billID)
		return err
	})
	return out, ok, err
}

// RestaurantStats returns the rating aggregate of restaurant.
func (n *Node) RestaurantStats(ctx context.Context, restaurant [20]byte) (reviews.Stats, error) {
	var out reviews.Stats
	err := n.view(ctx, func() (err error) {
		out, err = n.reviews.RestaurantStats(restaurant)
		return err
	})
	return out, err
}

// RestaurantReviews lists review ids for restaurant.
func (n *Node) RestaurantReviews(ctx context.Context, restaurant [20]byte) ([]uint64, error) {
	var out []uint64
	err := n.view(ctx, func() (err error) {
		out, err = n.reviews.RestaurantReviews(restaurant)
		return err
	})
	return out, err
}

// OwnerReviews lists review ids held by owner.
func (n *Node) OwnerReviews(ctx context.Context, owner [20]byte) ([]uint64, error) {
	var out []uint64
	err := n.view(ctx, func() (err error) {
		out, err = n.reviews.OwnerReviews(owner)
		return err
	})
	return out, err
}

// OwnerOf returns the holder of review id.
func (n *Node) OwnerOf(ctx context.Context, id uint64) ([20]byte, error) {
	var out [20]byte
	err := n.view(ctx, func() (err error) {
		out, err = n.reviews.OwnerOf(id)
		return err
	})
	return out, err
}

// TipsFrom returns the cumulative tips tipper gave review id.
func (n *Node) TipsFrom(ctx context.Context, id uint64, tipper [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.view(ctx, func() (err error) {
		out, err = n.reviews.TipsFrom(id, tipper)
		return err
	})
	return out, err
}

// TokenURI returns the metadata data URI for review id.
func (n *Node) TokenURI(ctx context.Context, id uint64) (string, error) {
	var out string
	err := n.view(ctx, func() (err error) {
		out, err = n.reviews.TokenURI(id)
		return err
	})
	return out, err
}

// TotalReviews returns how many reviews exist.
func (n *Node) TotalReviews(ctx context.Context) (uint64, error) {
	var out uint64
	err := n.view(ctx, func() (err error) {
		out, err = n.reviews.TotalReviews()
		return err
	})
	return out, err
}

// --- Balances ---

// Approve sets the settlement asset allowance owner grants spender.
func (n *Node) Approve(ctx context.Context, owner, spender [20]byte, amount *big.Int) error {
	return n.execute(ctx, "stable.approve", func(context.Context) error {
		return n.stable.Approve(owner, spender, amount)
	})
}

// MintStable issues settlement asset units. Asset administrator only.
func (n *Node) MintStable(ctx context.Context, caller, to [20]byte, amount *big.Int) error {
	return n.execute(ctx, "stable.mint", func(context.Context) error {
		return n.stable.Mint(caller, to, amount)
	})
}

// CreditNative issues native value. Bank administrator only.
func (n *Node) CreditNative(ctx context.Context, caller, to [20]byte, amount *big.Int) error {
	return n.execute(ctx, "bank.credit", func(context.Context) error {
		return n.bank.Credit(caller, to, amount)
	})
}

// Balances is a snapshot of an account across both value media.
type Balances struct {
	Stable          *big.Int
	Native          *big.Int
	LedgerAllowance *big.Int
	ReviewsHeld     uint64
}

// Balances returns the settlement and native balances of addr together with
// the allowance it granted the payment ledger and the number of review records
// it holds.
func (n *Node) Balances(ctx context.Context, addr [20]byte) (*Balances, error) {
	out := &Balances{}
	err := n.view(ctx, func() (err error) {
		if out.Stable, err = n.stable.BalanceOf(addr); err != nil {
			return err
		}
		if out.Native, err = n.bank.Balance(addr); err != nil {
			return err
		}
		if out.LedgerAllowance, err = n.stable.Allowance(addr, n.payments.Identity()); err != nil {
			return err
		}
		out.ReviewsHeld, err = n.reviews.BalanceOf(addr)
		return err
	})
	return out, err
}

// --- Administration ---

type pausable interface {
	Pause(caller [20]byte) error
	Unpause(caller [20]byte) error
	Paused() bool
}

func (n *Node) pausable(module string) (pausable, error) {
	switch module {
	case payments.ModuleName:
		return n.payments, nil
	case reviews.ModuleName:
		return n.reviews, nil
	default:
		return nil, fmt.Errorf("%w: %q cannot be paused", ErrUnknownModule, module)
	}
}

func knownModule(module string) bool {
	switch module {
	case payments.ModuleName, reviews.ModuleName, stable.ModuleName, bank.ModuleName:
		return true
	}
	return false
}

// Pause engages the pause guard of module. Administrator only.
func (n *Node) Pause(ctx context.Context, caller [20]byte, module string) error {
	return n.setPaused(ctx, caller, module, true)
}

// Unpause lifts the pause guard of module. Administrator only.
func (n *Node) Unpause(ctx context.Context, caller [20]byte, module string) error {
	return n.setPaused(ctx, caller, module, false)
}

func (n *Node) setPaused(ctx context.Context, caller [20]byte, module string, paused bool) error {
	target, err := n.pausable(module)
	if err != nil {
		return err
	}
	op := module + ".unpause"
	if paused {
		op = module + ".pause"
	}
	err = n.execute(ctx, op, func(context.Context) error {
		if paused {
			return target.Pause(caller)
		}
		return target.Unpause(caller)
	})
	if err == nil {
		n.metrics.SetPaused(module, paused)
	}
	return err
}

// Paused reports whether module is paused.
func (n *Node) Paused(ctx context.Context, module string) (bool, error) {
	target, err := n.pausable(module)
	if err != nil {
		return false, err
	}
	var out bool
	err = n.view(ctx, func() error {
		out = target.Paused()
		return nil
	})
	return out, err
}

// Admin returns the administrator of module.
func (n *Node) Admin(ctx context.Context, module string) ([20]byte, error) {
	if !knownModule(module) {
		return [20]byte{}, fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	var out [20]byte
	err := n.view(ctx, func() (err error) {
		out, err = n.admins.Admin(module)
		return err
	})
	return out, err
}

// TransferAdministration hands module to next. Current administrator only.
func (n *Node) TransferAdministration(ctx context.Context, module string, caller, next [20]byte) error {
	if !knownModule(module) {
		return fmt.Errorf("%w: %q", ErrUnknownModule, module)
	}
	return n.execute(ctx, module+".transfer_admin", func(context.Context) error {
		return n.admins.TransferAdministration(module, caller, next)
	})
}

// Close releases the underlying database.
func (n *Node) Close() {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.db.Close()
}
