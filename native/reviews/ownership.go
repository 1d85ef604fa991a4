package reviews

import (
	"fmt"

	"dineledger/core/state"
	"dineledger/crypto"
	"dineledger/native/common"
)

func (e *Engine) assignOwner(id uint64, owner [20]byte) error {
	if err := e.state.KVPut(state.ReviewOwnerKey(id), owner[:]); err != nil {
		return err
	}
	return e.state.KVAppend(state.ReviewOwnedKey(owner), state.EncodeID(id))
}

// OwnerOf returns the current holder of review id.
func (e *Engine) OwnerOf(id uint64) ([20]byte, error) {
	var owner [20]byte
	if err := e.ready(); err != nil {
		return owner, err
	}
	var raw []byte
	ok, err := e.state.KVGet(state.ReviewOwnerKey(id), &raw)
	if err != nil {
		return owner, err
	}
	if !ok || len(raw) != len(owner) {
		return owner, fmt.Errorf("%w: %d", ErrReviewNotFound, id)
	}
	copy(owner[:], raw)
	return owner, nil
}

// BalanceOf returns how many reviews owner holds.
func (e *Engine) BalanceOf(owner [20]byte) (uint64, error) {
	ids, err := e.OwnerReviews(owner)
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}

// OwnerReviews lists the review ids held by owner.
func (e *Engine) OwnerReviews(owner [20]byte) ([]uint64, error) {
	return e.idList(state.ReviewOwnedKey(owner))
}

// TransferReview moves review id from its current owner to to. The reviewer
// field keeps naming the author, who continues to receive tips.
func (e *Engine) TransferReview(caller, to [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	if crypto.IsZeroAddress(to) {
		return ErrInvalidAddress
	}
	owner, err := e.OwnerOf(id)
	if err != nil {
		return err
	}
	if owner != caller {
		return fmt.Errorf("%w: %s does not own review %d", ErrUnauthorized, crypto.FormatAddress(caller), id)
	}
	if owner == to {
		return nil
	}
	if err := e.state.KVRemove(state.ReviewOwnedKey(owner), state.EncodeID(id)); err != nil {
		return err
	}
	if err := e.assignOwner(id, to); err != nil {
		return err
	}
	e.emit(ReviewTransferredEvent(id, owner, to))
	return nil
}
