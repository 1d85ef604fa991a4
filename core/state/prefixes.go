package state

var (
	adminPrefix = []byte("admin/")
	pausePrefix = []byte("pause/")

	restaurantPrefix         = []byte("payments/restaurant/")
	paymentPrefix            = []byte("payments/record/")
	customerPaymentsPrefix   = []byte("payments/by-customer/")
	restaurantPaymentsPrefix = []byte("payments/by-restaurant/")
	paymentStatsKey          = []byte("payments/stats")
	paymentFeeConfigKey      = []byte("payments/fee")

	reviewPrefix          = []byte("reviews/record/")
	reviewBillPrefix      = []byte("reviews/bill/")
	reviewStatsPrefix     = []byte("reviews/stats/")
	reviewTipPrefix       = []byte("reviews/tip/")
	reviewOwnerPrefix     = []byte("reviews/owner/")
	reviewOwnedPrefix     = []byte("reviews/owned/")
	reviewByRestaurant    = []byte("reviews/by-restaurant/")
	reviewConfigKey       = []byte("reviews/config")
	stableBalancePrefix   = []byte("stable/balance/")
	stableAllowancePrefix = []byte("stable/allowance/")
	stableSupplyKey       = []byte("stable/supply")
	nativeBalancePrefix   = []byte("bank/balance/")
	nativeSupplyKey       = []byte("bank/supply")
)

// Sequence names used for id allocation.
const (
	PaymentSequence = "payments"
	ReviewSequence  = "reviews"
)

func join(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// AdminKey stores the administrator of a module.
func AdminKey(module string) []byte { return join(adminPrefix, []byte(module)) }

// PauseKey stores the paused flag of a module.
func PauseKey(module string) []byte { return join(pausePrefix, []byte(module)) }

func RestaurantKey(addr [20]byte) []byte { return join(restaurantPrefix, addr[:]) }

func PaymentKey(id uint64) []byte { return join(paymentPrefix, EncodeID(id)) }

func CustomerPaymentsKey(addr [20]byte) []byte { return join(customerPaymentsPrefix, addr[:]) }

func RestaurantPaymentsKey(addr [20]byte) []byte { return join(restaurantPaymentsPrefix, addr[:]) }

func PaymentStatsKey() []byte { return paymentStatsKey }

func PaymentFeeConfigKey() []byte { return paymentFeeConfigKey }

func ReviewKey(id uint64) []byte { return join(reviewPrefix, EncodeID(id)) }

// ReviewBillKey indexes bill ids to the review minted for them.
func ReviewBillKey(billID uint64) []byte { return join(reviewBillPrefix, EncodeID(billID)) }

func ReviewStatsKey(restaurant [20]byte) []byte { return join(reviewStatsPrefix, restaurant[:]) }

func ReviewTipKey(id uint64, tipper [20]byte) []byte {
	return join(reviewTipPrefix, EncodeID(id), tipper[:])
}

// ReviewOwnerKey maps a review id to its current owner.
func ReviewOwnerKey(id uint64) []byte { return join(reviewOwnerPrefix, EncodeID(id)) }

// ReviewOwnedKey lists the review ids held by an owner.
func ReviewOwnedKey(owner [20]byte) []byte { return join(reviewOwnedPrefix, owner[:]) }

func ReviewRestaurantIndexKey(restaurant [20]byte) []byte {
	return join(reviewByRestaurant, restaurant[:])
}

func ReviewConfigKey() []byte { return reviewConfigKey }

func StableBalanceKey(addr [20]byte) []byte { return join(stableBalancePrefix, addr[:]) }

func StableAllowanceKey(owner, spender [20]byte) []byte {
	return join(stableAllowancePrefix, owner[:], spender[:])
}

func StableSupplyKey() []byte { return stableSupplyKey }

func NativeBalanceKey(addr [20]byte) []byte { return join(nativeBalancePrefix, addr[:]) }

func NativeSupplyKey() []byte { return nativeSupplyKey }
