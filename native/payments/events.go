package payments

import (
	"strconv"

	"dineledger/core/types"
	"dineledger/crypto"
)

const (
	// EventTypeRestaurantRegistered is emitted when a payee is registered.
	EventTypeRestaurantRegistered = "payments.restaurant.registered"
	// EventTypeRestaurantStatus is emitted when a payee is enabled or disabled.
	EventTypeRestaurantStatus = "payments.restaurant.status"
	// EventTypePaymentProcessed is emitted once both transfers of a payment are applied.
	EventTypePaymentProcessed = "payments.processed"
	// EventTypeFeeRecipientUpdated is emitted when the fee recipient changes.
	EventTypeFeeRecipientUpdated = "payments.fee_recipient.updated"
	// EventTypeFeeUpdated is emitted when the platform fee rate changes.
	EventTypeFeeUpdated = "payments.fee.updated"
)

// RestaurantRegisteredEvent returns the payload announcing a new payee.
func RestaurantRegisteredEvent(r *Restaurant) *types.Event {
	return &types.Event{
		Type: EventTypeRestaurantRegistered,
		Attributes: map[string]string{
			"restaurant": crypto.FormatAddress(r.Address),
			"name":       r.Name,
		},
	}
}

func RestaurantStatusEvent(addr [20]byte, active bool) *types.Event {
	return &types.Event{
		Type: EventTypeRestaurantStatus,
		Attributes: map[string]string{
			"restaurant": crypto.FormatAddress(addr),
			"active":     strconv.FormatBool(active),
		},
	}
}

// PaymentProcessedEvent returns the payload for a settled payment.
func PaymentProcessedEvent(p *Payment) *types.Event {
	return &types.Event{
		Type: EventTypePaymentProcessed,
		Attributes: map[string]string{
			"paymentId":  strconv.FormatUint(p.ID, 10),
			"customer":   crypto.FormatAddress(p.Customer),
			"restaurant": crypto.FormatAddress(p.Restaurant),
			"amount":     p.Gross.String(),
			"fee":        p.Fee.String(),
		},
	}
}

func FeeRecipientUpdatedEvent(previous, next [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeFeeRecipientUpdated,
		Attributes: map[string]string{
			"previous": crypto.FormatAddress(previous),
			"next":     crypto.FormatAddress(next),
		},
	}
}

func FeeUpdatedEvent(previous, next uint32) *types.Event {
	return &types.Event{
		Type: EventTypeFeeUpdated,
		Attributes: map[string]string{
			"previousBps": strconv.FormatUint(uint64(previous), 10),
			"bps":         strconv.FormatUint(uint64(next), 10),
		},
	}
}
