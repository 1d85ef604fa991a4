package reviews

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dineledger/core/events"
	"dineledger/core/state"
	"dineledger/crypto"
	"dineledger/native/admin"
	"dineledger/native/bank"
	"dineledger/native/common"
	"dineledger/storage"
)

var (
	operator   = crypto.MustParseAddress("0x1000000000000000000000000000000000000001")
	creator    = crypto.MustParseAddress("0x1100000000000000000000000000000000000011")
	restaurant = crypto.MustParseAddress("0x2000000000000000000000000000000000000002")
	reviewerX  = crypto.MustParseAddress("0x3000000000000000000000000000000000000003")
	reviewerY  = crypto.MustParseAddress("0x3100000000000000000000000000000000000031")
	tipper     = crypto.MustParseAddress("0x4000000000000000000000000000000000000004")
)

type fixture struct {
	st     *state.Manager
	bank   *bank.Bank
	engine *Engine
	events *events.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	admins := admin.NewRegistry(st)
	require.NoError(t, admins.Bootstrap(ModuleName, operator))
	require.NoError(t, admins.Bootstrap(bank.ModuleName, operator))

	b := bank.New(admins)
	b.SetState(st)

	engine := NewEngine(b, admins, common.NewPauses(st))
	engine.SetState(st)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	buf := &events.Buffer{}
	engine.SetEmitter(buf)
	require.NoError(t, engine.InitConfig(creator, "https://img.example/reviews/"))
	return &fixture{st: st, bank: b, engine: engine, events: buf}
}

func (f *fixture) create(t *testing.T, reviewer [20]byte, billID uint64, rating uint8) *Review {
	t.Helper()
	review, err := f.engine.CreateReview(creator, reviewer, restaurant, billID, rating, "Amazing", "Test Restaurant")
	require.NoError(t, err)
	return review
}

func TestCreateReviewStoresFields(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 1, 5)

	review, err := f.engine.Review(1)
	require.NoError(t, err)
	require.Equal(t, reviewerX, review.Reviewer)
	require.Equal(t, restaurant, review.Restaurant)
	require.Equal(t, uint64(1), review.BillID)
	require.Equal(t, uint8(5), review.Rating)
	require.Equal(t, "Amazing", review.Text)
	require.Equal(t, "Test Restaurant", review.RestaurantName)
	require.True(t, review.Active)
	require.Zero(t, review.TotalTips.Sign())

	owner, err := f.engine.OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, reviewerX, owner)

	_, err = f.engine.CreateReview(creator, reviewerY, restaurant, 1, 3, "Changed", "Other")
	require.ErrorIs(t, err, ErrDuplicateReview)

	again, err := f.engine.Review(1)
	require.NoError(t, err)
	require.Equal(t, review, again)

	byBill, ok, err := f.engine.ReviewByBill(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), byBill.ID)

	total, err := f.engine.TotalReviews()
	require.NoError(t, err)
	require.Equal(t, uint64(1), total)
}

func TestCreateReviewValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateReview(reviewerX, reviewerX, restaurant, 1, 5, "", "Test Restaurant")
	require.ErrorIs(t, err, ErrUnauthorized)

	for _, rating := range []uint8{0, 6, 255} {
		_, err := f.engine.CreateReview(creator, reviewerX, restaurant, 1, rating, "", "Test Restaurant")
		if !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("rating %d: expected ErrInvalidRating, got %v", rating, err)
		}
	}
	f.create(t, reviewerX, 1, MinRating)
	f.create(t, reviewerX, 2, MaxRating)

	// An unauthorized caller is rejected before the rating is looked at.
	_, err = f.engine.CreateReview(reviewerX, reviewerX, restaurant, 3, 9, "", "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRestaurantStatsAverage(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 1, 5)
	f.create(t, reviewerY, 2, 4)

	stats, err := f.engine.RestaurantStats(restaurant)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.TotalReviews)
	require.Equal(t, uint64(9), stats.TotalRatingSum)
	require.Equal(t, uint64(450), stats.AverageScaled())

	f.create(t, reviewerY, 3, 1)
	stats, err = f.engine.RestaurantStats(restaurant)
	require.NoError(t, err)
	require.Equal(t, uint64(333), stats.AverageScaled())

	ids, err := f.engine.RestaurantReviews(restaurant)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, ids)

	empty, err := f.engine.RestaurantStats(reviewerX)
	require.NoError(t, err)
	require.Zero(t, empty.AverageScaled())
}

func TestTipReviewForwardsToReviewer(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 1, 5)
	require.NoError(t, f.bank.Credit(operator, tipper, big.NewInt(100)))
	f.events.Reset()

	_, err := f.engine.TipReview(tipper, 1, big.NewInt(30))
	require.NoError(t, err)
	review, err := f.engine.TipReview(tipper, 1, big.NewInt(20))
	require.NoError(t, err)
	require.Equal(t, "50", review.TotalTips.String())

	received, err := f.bank.Balance(reviewerX)
	require.NoError(t, err)
	require.Equal(t, "50", received.String())
	given, err := f.engine.TipsFrom(1, tipper)
	require.NoError(t, err)
	require.Equal(t, "50", given.String())

	drained := f.events.Drain()
	require.Len(t, drained, 2)
	require.Equal(t, EventTypeReviewTipped, drained[1].EventType())
	require.Equal(t, "50", drained[1].Event().Attr("totalTips"))
}

func TestTipReviewRejections(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 1, 5)
	require.NoError(t, f.bank.Credit(operator, tipper, big.NewInt(100)))

	_, err := f.engine.TipReview(tipper, 1, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidTipAmount)
	_, err = f.engine.TipReview(tipper, 99, big.NewInt(1))
	require.ErrorIs(t, err, ErrReviewNotFound)

	require.ErrorIs(t, f.engine.DeactivateReview(tipper, 1), ErrUnauthorized)
	require.NoError(t, f.engine.DeactivateReview(operator, 1))
	_, err = f.engine.TipReview(tipper, 1, big.NewInt(1))
	require.ErrorIs(t, err, ErrReviewInactive)

	review, err := f.engine.Review(1)
	require.NoError(t, err)
	require.False(t, review.Active)
	require.Zero(t, review.TotalTips.Sign())
	given, err := f.engine.TipsFrom(1, tipper)
	require.NoError(t, err)
	require.Zero(t, given.Sign())
}

func TestTipReviewRollsBackWhenForwardFails(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 1, 5)
	require.NoError(t, f.bank.Credit(operator, tipper, big.NewInt(5)))

	require.NoError(t, f.st.Begin())
	_, err := f.engine.TipReview(tipper, 1, big.NewInt(6))
	require.ErrorIs(t, err, bank.ErrInsufficientFunds)
	f.st.Discard()

	review, err := f.engine.Review(1)
	require.NoError(t, err)
	require.Zero(t, review.TotalTips.Sign())
	given, err := f.engine.TipsFrom(1, tipper)
	require.NoError(t, err)
	require.Zero(t, given.Sign())
}

func TestReportReviewIgnoresLifecycle(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 1, 2)
	require.NoError(t, f.engine.DeactivateReview(operator, 1))
	f.events.Reset()

	require.NoError(t, f.engine.ReportReview(tipper, 1, " spam "))
	require.ErrorIs(t, f.engine.ReportReview(tipper, 2, "missing"), ErrReviewNotFound)

	drained := f.events.Drain()
	require.Len(t, drained, 1)
	evt := drained[0].Event()
	require.Equal(t, EventTypeReviewReported, evt.Type)
	require.Equal(t, "spam", evt.Attr("reason"))
}

func TestPauseBlocksMutations(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 1, 5)
	require.NoError(t, f.bank.Credit(operator, tipper, big.NewInt(10)))

	require.ErrorIs(t, f.engine.Pause(tipper), ErrUnauthorized)
	require.NoError(t, f.engine.Pause(operator))
	require.True(t, f.engine.Paused())

	_, err := f.engine.CreateReview(creator, reviewerX, restaurant, 2, 5, "", "Test Restaurant")
	require.ErrorIs(t, err, ErrPaused)
	_, err = f.engine.TipReview(tipper, 1, big.NewInt(1))
	require.ErrorIs(t, err, ErrPaused)
	require.ErrorIs(t, f.engine.TransferReview(reviewerX, reviewerY, 1), ErrPaused)

	require.NoError(t, f.engine.ReportReview(tipper, 1, "still allowed"))
	_, err = f.engine.Review(1)
	require.NoError(t, err)

	require.NoError(t, f.engine.Unpause(operator))
	_, err = f.engine.TipReview(tipper, 1, big.NewInt(1))
	require.NoError(t, err)
}

func TestTipsFollowReviewerAfterTransfer(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 1, 5)
	require.NoError(t, f.bank.Credit(operator, tipper, big.NewInt(10)))

	require.ErrorIs(t, f.engine.TransferReview(reviewerY, reviewerY, 1), ErrUnauthorized)
	require.ErrorIs(t, f.engine.TransferReview(reviewerX, [20]byte{}, 1), ErrInvalidAddress)
	require.NoError(t, f.engine.TransferReview(reviewerX, reviewerY, 1))

	owner, err := f.engine.OwnerOf(1)
	require.NoError(t, err)
	require.Equal(t, reviewerY, owner)
	countX, err := f.engine.BalanceOf(reviewerX)
	require.NoError(t, err)
	countY, err := f.engine.BalanceOf(reviewerY)
	require.NoError(t, err)
	require.Zero(t, countX)
	require.Equal(t, uint64(1), countY)

	_, err = f.engine.TipReview(tipper, 1, big.NewInt(4))
	require.NoError(t, err)
	toX, err := f.bank.Balance(reviewerX)
	require.NoError(t, err)
	require.Equal(t, "4", toX.String())
	toY, err := f.bank.Balance(reviewerY)
	require.NoError(t, err)
	require.Zero(t, toY.Sign())

	review, err := f.engine.Review(1)
	require.NoError(t, err)
	require.Equal(t, reviewerX, review.Reviewer)
}

func TestTokenURI(t *testing.T) {
	f := newFixture(t)
	f.create(t, reviewerX, 7, 4)

	uri, err := f.engine.TokenURI(1)
	require.NoError(t, err)
	meta, err := DecodeTokenURI(uri)
	require.NoError(t, err)
	require.Equal(t, "Review #1 - Test Restaurant", meta.Name)
	require.Equal(t, "Amazing", meta.Description)
	require.Equal(t, "https://img.example/reviews/1", meta.Image)

	traits := make(map[string]interface{}, len(meta.Attributes))
	for _, attr := range meta.Attributes {
		traits[attr.TraitType] = attr.Value
	}
	require.Equal(t, "Test Restaurant", traits["Restaurant"])
	require.Equal(t, float64(4), traits["Rating"])
	require.Equal(t, "2023-11-14", traits["Date"])
	require.Equal(t, float64(7), traits["Bill ID"])
	require.Equal(t, "Active", traits["Status"])

	_, err = f.engine.TokenURI(2)
	require.ErrorIs(t, err, ErrReviewNotFound)
}

func TestAuthorizedCreatorRotation(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.engine.SetAuthorizedCreator(reviewerX, reviewerX), ErrUnauthorized)
	require.NoError(t, f.engine.SetAuthorizedCreator(operator, reviewerY))

	_, err := f.engine.CreateReview(creator, reviewerX, restaurant, 1, 5, "", "Test Restaurant")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.engine.CreateReview(reviewerY, reviewerX, restaurant, 1, 5, "", "Test Restaurant")
	require.NoError(t, err)

	require.NoError(t, f.engine.SetBaseImageURI(operator, ""))
	meta, err := f.engine.Metadata(1)
	require.NoError(t, err)
	require.Empty(t, meta.Image)
}
