package core

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dineledger/core/events"
	"dineledger/core/types"
	"dineledger/crypto"
	"dineledger/native/bank"
	"dineledger/native/payments"
	"dineledger/native/reviews"
	"dineledger/native/stable"
	"dineledger/storage"
)

var (
	operator     = crypto.MustParseAddress("0x1000000000000000000000000000000000000001")
	ledgerID     = crypto.MustParseAddress("0x1100000000000000000000000000000000000011")
	feeRecipient = crypto.MustParseAddress("0x1200000000000000000000000000000000000012")
	restaurantR  = crypto.MustParseAddress("0x2000000000000000000000000000000000000002")
	customerC    = crypto.MustParseAddress("0x3000000000000000000000000000000000000003")
	customerD    = crypto.MustParseAddress("0x3100000000000000000000000000000000000031")
	tipperT      = crypto.MustParseAddress("0x4000000000000000000000000000000000000004")
)

func newTestNode(t *testing.T, db storage.Database) *Node {
	t.Helper()
	if db == nil {
		db = storage.NewMemDB()
	}
	node, err := NewNode(db, events.NewBus(64), Options{
		Operator:       operator,
		LedgerIdentity: ledgerID,
		FeeRecipient:   feeRecipient,
		FeeBps:         250,
		BaseImageURI:   "https://img.example/",
		Now:            func() int64 { return 1_700_000_000 },
	})
	require.NoError(t, err)
	return node
}

func amount(t *testing.T, human string) *big.Int {
	t.Helper()
	v, err := stable.ParseAmount(human)
	require.NoError(t, err)
	return v
}

func fundAndApprove(t *testing.T, n *Node, customer [20]byte, human string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, n.MintStable(ctx, operator, customer, amount(t, human)))
	require.NoError(t, n.Approve(ctx, customer, n.LedgerIdentity(), amount(t, human)))
}

func registerRestaurant(t *testing.T, n *Node) {
	t.Helper()
	_, err := n.RegisterRestaurant(context.Background(), operator, restaurantR, "Test Restaurant")
	require.NoError(t, err)
}

func TestPaymentScenario(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, nil)
	registerRestaurant(t, n)
	fundAndApprove(t, n, customerC, "100.00")

	payment, err := n.ProcessPayment(ctx, customerC, restaurantR, amount(t, "100.00"), "test bill")
	require.NoError(t, err)
	require.Equal(t, uint64(1), payment.ID)

	restaurantBal, err := n.Balances(ctx, restaurantR)
	require.NoError(t, err)
	require.Equal(t, "97.50", stable.FormatAmount(restaurantBal.Stable))
	feeBal, err := n.Balances(ctx, feeRecipient)
	require.NoError(t, err)
	require.Equal(t, "2.50", stable.FormatAmount(feeBal.Stable))

	stats, err := n.PaymentStats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.TotalPayments)
	require.Equal(t, "100.00", stable.FormatAmount(stats.TotalVolume))
}

func TestFailedPaymentLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, nil)
	registerRestaurant(t, n)
	require.NoError(t, n.MintStable(ctx, operator, customerC, amount(t, "100.00")))
	// 97.50 passes the allowance but the fee leg does not.
	require.NoError(t, n.Approve(ctx, customerC, ledgerID, amount(t, "98.00")))

	ch, _, cancel := n.Bus().Subscribe(n.Bus().Sequence(), 8)
	defer cancel()

	_, err := n.ProcessPayment(ctx, customerC, restaurantR, amount(t, "100.00"), "bill")
	require.ErrorIs(t, err, stable.ErrInsufficientAllowance)

	bal, err := n.Balances(ctx, customerC)
	require.NoError(t, err)
	require.Equal(t, "100.00", stable.FormatAmount(bal.Stable))
	require.Equal(t, "98.00", stable.FormatAmount(bal.LedgerAllowance))
	restaurantBal, err := n.Balances(ctx, restaurantR)
	require.NoError(t, err)
	require.Zero(t, restaurantBal.Stable.Sign())

	stats, err := n.PaymentStats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalPayments)
	_, err = n.Payment(ctx, 1)
	require.ErrorIs(t, err, payments.ErrPaymentNotFound)

	select {
	case evt := <-ch:
		t.Fatalf("failed payment leaked event %s", evt.Type)
	default:
	}

	// The next successful payment still gets id 1.
	require.NoError(t, n.Approve(ctx, customerC, ledgerID, amount(t, "100.00")))
	payment, err := n.ProcessPayment(ctx, customerC, restaurantR, amount(t, "100.00"), "bill")
	require.NoError(t, err)
	require.Equal(t, uint64(1), payment.ID)
}

func TestReviewScenario(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, nil)
	registerRestaurant(t, n)
	fundAndApprove(t, n, customerC, "10.00")
	fundAndApprove(t, n, customerD, "10.00")

	first, err := n.ProcessPayment(ctx, customerC, restaurantR, amount(t, "10.00"), "bill one")
	require.NoError(t, err)
	second, err := n.ProcessPayment(ctx, customerD, restaurantR, amount(t, "10.00"), "bill two")
	require.NoError(t, err)

	review, err := n.ReviewBill(ctx, customerC, first.ID, 5, "Amazing")
	require.NoError(t, err)
	require.Equal(t, customerC, review.Reviewer)
	require.Equal(t, restaurantR, review.Restaurant)
	require.Equal(t, first.ID, review.BillID)
	require.Equal(t, "Test Restaurant", review.RestaurantName)
	require.True(t, review.Active)
	require.Zero(t, review.TotalTips.Sign())

	_, err = n.ReviewBill(ctx, customerC, first.ID, 1, "Changed my mind")
	require.ErrorIs(t, err, reviews.ErrDuplicateReview)
	_, err = n.ReviewBill(ctx, customerC, second.ID, 4, "Not my bill")
	require.ErrorIs(t, err, ErrNotPayer)
	_, err = n.ReviewBill(ctx, customerC, 99, 4, "No such bill")
	require.ErrorIs(t, err, payments.ErrPaymentNotFound)

	_, err = n.ReviewBill(ctx, customerD, second.ID, 4, "Good")
	require.NoError(t, err)

	stats, err := n.RestaurantStats(ctx, restaurantR)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.TotalReviews)
	require.Equal(t, uint64(9), stats.TotalRatingSum)
	require.Equal(t, uint64(450), stats.AverageScaled())

	stored, err := n.Review(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Amazing", stored.Text)
}

func TestDirectCreateRequiresAuthorizedCreator(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, nil)

	_, err := n.CreateReview(ctx, customerC, customerC, restaurantR, 1, 5, "Amazing", "Test Restaurant")
	require.ErrorIs(t, err, reviews.ErrUnauthorized)

	review, err := n.CreateReview(ctx, ledgerID, customerC, restaurantR, 1, 5, "Amazing", "Test Restaurant")
	require.NoError(t, err)
	require.Equal(t, uint64(1), review.ID)

	_, err = n.CreateReview(ctx, ledgerID, customerD, restaurantR, 1, 3, "Other", "Other Name")
	require.ErrorIs(t, err, reviews.ErrDuplicateReview)
}

func TestTipScenario(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, nil)
	_, err := n.CreateReview(ctx, ledgerID, customerC, restaurantR, 1, 5, "Amazing", "Test Restaurant")
	require.NoError(t, err)
	require.NoError(t, n.CreditNative(ctx, operator, tipperT, big.NewInt(1_000)))

	_, err = n.TipReview(ctx, tipperT, 1, big.NewInt(300))
	require.NoError(t, err)
	review, err := n.TipReview(ctx, tipperT, 1, big.NewInt(200))
	require.NoError(t, err)
	require.Equal(t, "500", review.TotalTips.String())

	received, err := n.Balances(ctx, customerC)
	require.NoError(t, err)
	require.Equal(t, "500", received.Native.String())
	require.Equal(t, uint64(1), received.ReviewsHeld)
	given, err := n.TipsFrom(ctx, 1, tipperT)
	require.NoError(t, err)
	require.Equal(t, "500", given.String())

	_, err = n.TipReview(ctx, tipperT, 1, big.NewInt(501))
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	after, err := n.Review(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "500", after.TotalTips.String())

	require.NoError(t, n.DeactivateReview(ctx, operator, 1))
	_, err = n.TipReview(ctx, tipperT, 1, big.NewInt(1))
	require.ErrorIs(t, err, reviews.ErrReviewInactive)
	require.NoError(t, n.ReportReview(ctx, tipperT, 1, "still reportable"))
}

func TestPauseAndAdministration(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, nil)
	registerRestaurant(t, n)
	fundAndApprove(t, n, customerC, "1.00")

	require.ErrorIs(t, n.Pause(ctx, operator, "stable"), ErrUnknownModule)
	require.NoError(t, n.Pause(ctx, operator, payments.ModuleName))
	paused, err := n.Paused(ctx, payments.ModuleName)
	require.NoError(t, err)
	require.True(t, paused)

	_, err = n.ProcessPayment(ctx, customerC, restaurantR, amount(t, "1.00"), "")
	require.ErrorIs(t, err, payments.ErrPaused)
	require.NoError(t, n.Unpause(ctx, operator, payments.ModuleName))

	require.NoError(t, n.TransferAdministration(ctx, payments.ModuleName, operator, customerD))
	current, err := n.Admin(ctx, payments.ModuleName)
	require.NoError(t, err)
	require.Equal(t, customerD, current)
	require.ErrorIs(t, n.Pause(ctx, operator, payments.ModuleName), payments.ErrUnauthorized)

	// Other modules keep their administrator.
	reviewsAdmin, err := n.Admin(ctx, reviews.ModuleName)
	require.NoError(t, err)
	require.Equal(t, operator, reviewsAdmin)
	_, err = n.Admin(ctx, "lending")
	require.ErrorIs(t, err, ErrUnknownModule)
}

func TestExecuteRejectsReentrantCalls(t *testing.T) {
	n := newTestNode(t, nil)
	err := n.execute(context.Background(), "outer", func(inner context.Context) error {
		_, err := n.ProcessPayment(inner, customerC, restaurantR, big.NewInt(1), "")
		if !errors.Is(err, ErrReentrantCall) {
			t.Fatalf("expected ErrReentrantCall, got %v", err)
		}
		if _, err := n.PaymentStats(inner); !errors.Is(err, ErrReentrantCall) {
			t.Fatalf("expected read to be rejected too, got %v", err)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestCancelledContextIsRejectedBeforeJournal(t *testing.T) {
	n := newTestNode(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.RegisterRestaurant(ctx, operator, restaurantR, "Test Restaurant")
	require.ErrorIs(t, err, context.Canceled)
	_, ok, err := n.Restaurant(context.Background(), restaurantR)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEventsReleasedAfterCommit(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, nil)
	ch, _, cancel := n.Bus().Subscribe(n.Bus().Sequence(), 16)
	defer cancel()

	registerRestaurant(t, n)
	fundAndApprove(t, n, customerC, "100.00")
	_, err := n.ProcessPayment(ctx, customerC, restaurantR, amount(t, "100.00"), "bill")
	require.NoError(t, err)

	var seen []*types.Event
	for len(ch) > 0 {
		seen = append(seen, <-ch)
	}
	var processed *types.Event
	for _, evt := range seen {
		if evt.Type == payments.EventTypePaymentProcessed {
			processed = evt
		}
	}
	require.NotNil(t, processed)
	require.Equal(t, "100000000", processed.Attr("amount"))
	require.Equal(t, "2500000", processed.Attr("fee"))
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i].Sequence, seen[i-1].Sequence)
	}
}

func TestTransferKeepsTipsWithReviewer(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, nil)
	_, err := n.CreateReview(ctx, ledgerID, customerC, restaurantR, 1, 5, "Amazing", "Test Restaurant")
	require.NoError(t, err)
	require.NoError(t, n.TransferReview(ctx, customerC, customerD, 1))

	review, owner, err := n.ReviewWithOwner(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, customerC, review.Reviewer)
	require.Equal(t, customerD, owner)
	_, _, err = n.ReviewWithOwner(ctx, 2)
	require.ErrorIs(t, err, reviews.ErrReviewNotFound)

	require.NoError(t, n.CreditNative(ctx, operator, tipperT, big.NewInt(10)))
	_, err = n.TipReview(ctx, tipperT, 1, big.NewInt(4))
	require.NoError(t, err)
	author, err := n.Balances(ctx, customerC)
	require.NoError(t, err)
	require.Equal(t, "4", author.Native.String())
	holder, err := n.Balances(ctx, customerD)
	require.NoError(t, err)
	require.Zero(t, holder.Native.Sign())
	require.Equal(t, uint64(1), holder.ReviewsHeld)
}
