package events

import (
	"math/big"

	"dineledger/core/types"
	"dineledger/crypto"
)

const (
	// TypeTransfer is emitted for settlement asset and native value movements.
	TypeTransfer = "transfer"
	// TypeApproval is emitted when an owner changes a spender allowance.
	TypeApproval = "transfer.approval"
	// TypeMint is emitted when the administrator issues new units.
	TypeMint = "transfer.mint"
)

type Transfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = crypto.FormatAddress(e.From)
	attrs["to"] = crypto.FormatAddress(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type Approval struct {
	Asset   string
	Owner   [20]byte
	Spender [20]byte
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{Type: TypeApproval, Attributes: map[string]string{
		"asset":   normalizeAsset(e.Asset),
		"owner":   crypto.FormatAddress(e.Owner),
		"spender": crypto.FormatAddress(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}

// Mint records supply issued by a module administrator.
type Mint struct {
	Asset  string
	To     [20]byte
	Amount *big.Int
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	return &types.Event{Type: TypeMint, Attributes: map[string]string{
		"asset":  normalizeAsset(e.Asset),
		"to":     crypto.FormatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}}
}
