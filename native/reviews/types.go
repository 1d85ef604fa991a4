package reviews

import "math/big"

const (
	MinRating uint8 = 1
	MaxRating uint8 = 5
)

// Review is the record minted for one paid bill. ID doubles as the ownership
// token id.
type Review struct {
	ID             uint64
	Reviewer       [20]byte
	Restaurant     [20]byte
	BillID         uint64
	Rating         uint8
	Text           string
	RestaurantName string
	TotalTips      *big.Int
	Active         bool
	CreatedAt      uint64
}

func (r *Review) ensureTips() {
	if r.TotalTips == nil {
		r.TotalTips = big.NewInt(0)
	}
}

// Stats aggregates the ratings a restaurant has received. It is only ever
// incremented.
type Stats struct {
	TotalReviews   uint64
	TotalRatingSum uint64
}

// AverageScaled returns the mean rating multiplied by 100, truncated.
func (s Stats) AverageScaled() uint64 {
	if s.TotalReviews == 0 {
		return 0
	}
	return s.TotalRatingSum * 100 / s.TotalReviews
}

// Config holds the registry settings the administrator controls.
type Config struct {
	AuthorizedCreator [20]byte
	BaseImageURI      string
}
