package reviews

import (
	"strconv"
	"strings"

	"dineledger/core/types"
	"dineledger/crypto"
)

const (
	// EventTypeReviewCreated is emitted when a review is minted for a bill.
	EventTypeReviewCreated = "reviews.created"
	// EventTypeReviewTipped is emitted after a tip reaches the review owner.
	EventTypeReviewTipped = "reviews.tipped"
	// EventTypeReviewReported is the moderation signal raised by any caller.
	EventTypeReviewReported = "reviews.reported"
	// EventTypeReviewDeactivated is emitted when the administrator hides a review.
	EventTypeReviewDeactivated = "reviews.deactivated"
	// EventTypeReviewTransferred is emitted when a review changes owner.
	EventTypeReviewTransferred = "reviews.transferred"
	// EventTypeCreatorUpdated is emitted when the authorized creator changes.
	EventTypeCreatorUpdated = "reviews.creator.updated"
)

func idString(id uint64) string { return strconv.FormatUint(id, 10) }

// ReviewCreatedEvent returns the payload for a newly minted review.
func ReviewCreatedEvent(r *Review) *types.Event {
	return &types.Event{
		Type: EventTypeReviewCreated,
		Attributes: map[string]string{
			"reviewId":   idString(r.ID),
			"reviewer":   crypto.FormatAddress(r.Reviewer),
			"restaurant": crypto.FormatAddress(r.Restaurant),
			"billId":     idString(r.BillID),
			"rating":     strconv.Itoa(int(r.Rating)),
		},
	}
}

// ReviewTippedEvent returns the payload for a forwarded tip.
func ReviewTippedEvent(id uint64, tipper, recipient [20]byte, amount, total string) *types.Event {
	return &types.Event{
		Type: EventTypeReviewTipped,
		Attributes: map[string]string{
			"reviewId":  idString(id),
			"tipper":    crypto.FormatAddress(tipper),
			"recipient": crypto.FormatAddress(recipient),
			"amount":    amount,
			"totalTips": total,
		},
	}
}

func ReviewReportedEvent(id uint64, reporter [20]byte, reason string) *types.Event {
	return &types.Event{
		Type: EventTypeReviewReported,
		Attributes: map[string]string{
			"reviewId": idString(id),
			"reporter": crypto.FormatAddress(reporter),
			"reason":   strings.TrimSpace(reason),
		},
	}
}

func ReviewDeactivatedEvent(id uint64, by [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeReviewDeactivated,
		Attributes: map[string]string{
			"reviewId": idString(id),
			"by":       crypto.FormatAddress(by),
		},
	}
}

func ReviewTransferredEvent(id uint64, from, to [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeReviewTransferred,
		Attributes: map[string]string{
			"reviewId": idString(id),
			"from":     crypto.FormatAddress(from),
			"to":       crypto.FormatAddress(to),
		},
	}
}

func CreatorUpdatedEvent(previous, next [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeCreatorUpdated,
		Attributes: map[string]string{
			"previous": crypto.FormatAddress(previous),
			"next":     crypto.FormatAddress(next),
		},
	}
}
