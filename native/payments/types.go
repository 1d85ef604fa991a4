package payments

import "math/big"

// Restaurant is a registered payee.
type Restaurant struct {
	Address      [20]byte
	Name         string
	Active       bool
	RegisteredAt uint64
}

// Payment is the immutable record of one settled bill.
type Payment struct {
	ID               uint64
	Customer         [20]byte
	Restaurant       [20]byte
	Gross            *big.Int
	Fee              *big.Int
	RestaurantAmount *big.Int
	BillDetails      string
	Timestamp        uint64
}

// Stats are the ledger-wide running counters.
type Stats struct {
	TotalPayments uint64
	TotalVolume   *big.Int
}

// FeeConfig holds the platform fee split.
type FeeConfig struct {
	Recipient [20]byte
	Bps       uint32
}

// Quote previews the split of a prospective payment together with whether the
// customer's balance and allowance would cover it.
type Quote struct {
	Gross             *big.Int
	Fee               *big.Int
	RestaurantAmount  *big.Int
	Balance           *big.Int
	Allowance         *big.Int
	SufficientBalance bool
	SufficientAllow   bool
}

func (p *Payment) ensureAmounts() {
	if p.Gross == nil {
		p.Gross = big.NewInt(0)
	}
	if p.Fee == nil {
		p.Fee = big.NewInt(0)
	}
	if p.RestaurantAmount == nil {
		p.RestaurantAmount = big.NewInt(0)
	}
}
