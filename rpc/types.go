package rpc

import (
	"math/big"

	"dineledger/core"
	"dineledger/crypto"
	"dineledger/native/payments"
	"dineledger/native/reviews"
	"dineledger/native/stable"
)

type RestaurantResult struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	Active       bool   `json:"active"`
	RegisteredAt uint64 `json:"registeredAt"`
}

type PaymentResult struct {
	ID               uint64 `json:"id"`
	Customer         string `json:"customer"`
	Restaurant       string `json:"restaurant"`
	Amount           string `json:"amount"`
	Fee              string `json:"fee"`
	RestaurantAmount string `json:"restaurantAmount"`
	BillDetails      string `json:"billDetails"`
	Timestamp        uint64 `json:"timestamp"`
}

type PaymentStatsResult struct {
	TotalPayments uint64 `json:"totalPayments"`
	TotalVolume   string `json:"totalVolume"`
}

type QuoteResult struct {
	Amount            string `json:"amount"`
	Fee               string `json:"fee"`
	RestaurantAmount  string `json:"restaurantAmount"`
	SufficientBalance bool   `json:"sufficientBalance"`
	SufficientAllow   bool   `json:"sufficientAllowance"`
}

type FeeConfigResult struct {
	Recipient string `json:"recipient"`
	Bps       uint32 `json:"bps"`
}

type ReviewResult struct {
	ID             uint64 `json:"id"`
	Owner          string `json:"owner,omitempty"`
	Reviewer       string `json:"reviewer"`
	Restaurant     string `json:"restaurant"`
	BillID         uint64 `json:"billId"`
	Rating         uint8  `json:"rating"`
	Text           string `json:"text"`
	RestaurantName string `json:"restaurantName"`
	TotalTips      string `json:"totalTips"`
	Active         bool   `json:"active"`
	CreatedAt      uint64 `json:"createdAt"`
}

type RestaurantStatsResult struct {
	TotalReviews   uint64 `json:"totalReviews"`
	TotalRatingSum uint64 `json:"totalRatingSum"`
	// AverageRating is the mean rating multiplied by 100.
	AverageRating uint64 `json:"averageRating"`
}

type BalancesResult struct {
	Address         string `json:"address"`
	Stable          string `json:"stable"`
	Native          string `json:"native"`
	LedgerAllowance string `json:"ledgerAllowance"`
	ReviewsHeld     uint64 `json:"reviewsHeld"`
}

type IDsResult struct {
	IDs []uint64 `json:"ids"`
}

type registerRestaurantRequest struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

type statusRequest struct {
	Active bool `json:"active"`
}

type processPaymentRequest struct {
	Restaurant  string `json:"restaurant"`
	Amount      string `json:"amount"`
	BillDetails string `json:"billDetails"`
}

type reviewBillRequest struct {
	Rating uint8  `json:"rating"`
	Text   string `json:"text"`
}

type createReviewRequest struct {
	Reviewer       string `json:"reviewer"`
	Restaurant     string `json:"restaurant"`
	BillID         uint64 `json:"billId"`
	Rating         uint8  `json:"rating"`
	Text           string `json:"text"`
	RestaurantName string `json:"restaurantName"`
}

// tipRequest carries native value in base units.
type tipRequest struct {
	Amount string `json:"amount"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

type addressRequest struct {
	To      string `json:"to"`
	Address string `json:"address"`
}

type approveRequest struct {
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

type feeRequest struct {
	Bps uint32 `json:"bps"`
}

type mintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type baseURIRequest struct {
	URI string `json:"uri"`
}

func restaurantResult(r *payments.Restaurant) RestaurantResult {
	return RestaurantResult{
		Address:      crypto.FormatAddress(r.Address),
		Name:         r.Name,
		Active:       r.Active,
		RegisteredAt: r.RegisteredAt,
	}
}

func paymentResult(p *payments.Payment) PaymentResult {
	return PaymentResult{
		ID:               p.ID,
		Customer:         crypto.FormatAddress(p.Customer),
		Restaurant:       crypto.FormatAddress(p.Restaurant),
		Amount:           stable.FormatAmount(p.Gross),
		Fee:              stable.FormatAmount(p.Fee),
		RestaurantAmount: stable.FormatAmount(p.RestaurantAmount),
		BillDetails:      p.BillDetails,
		Timestamp:        p.Timestamp,
	}
}

func reviewResult(r *reviews.Review, owner [20]byte) ReviewResult {
	out := ReviewResult{
		ID:             r.ID,
		Reviewer:       crypto.FormatAddress(r.Reviewer),
		Restaurant:     crypto.FormatAddress(r.Restaurant),
		BillID:         r.BillID,
		Rating:         r.Rating,
		Text:           r.Text,
		RestaurantName: r.RestaurantName,
		TotalTips:      bigString(r.TotalTips),
		Active:         r.Active,
		CreatedAt:      r.CreatedAt,
	}
	if !crypto.IsZeroAddress(owner) {
		out.Owner = crypto.FormatAddress(owner)
	}
	return out
}

func balancesResult(addr [20]byte, b *core.Balances) BalancesResult {
	return BalancesResult{
		Address:         crypto.FormatAddress(addr),
		Stable:          stable.FormatAmount(b.Stable),
		Native:          bigString(b.Native),
		LedgerAllowance: stable.FormatAmount(b.LedgerAllowance),
		ReviewsHeld:     b.ReviewsHeld,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
