package escrow

import (
	"encoding/hex"
	"math/big"

	"agroledger/core/types"
)

const (
	EventTypeDeposited = "market.escrow.deposited"
	EventTypeSettled   = "market.escrow.settled"
	EventTypeRefunded  = "market.escrow.refunded"
)

// NewDepositedEvent returns the canonical payload emitted when a vault is
// funded.
func NewDepositedEvent(orderID [32]byte, token string, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDeposited,
		Attributes: map[string]string{
			"orderId": hex.EncodeToString(orderID[:]),
			"token":   token,
			"amount":  formatAmount(amount),
		},
	}
}

// NewSettledEvent returns the canonical payload for a settlement payout.
func NewSettledEvent(orderID [32]byte, token string, payout Payout) *types.Event {
	return &types.Event{
		Type: EventTypeSettled,
		Attributes: map[string]string{
			"orderId":         hex.EncodeToString(orderID[:]),
			"token":           token,
			"farmerAmount":    formatAmount(payout.Farmer),
			"warehouseAmount": formatAmount(payout.Warehouse),
			"logisticsAmount": formatAmount(payout.Logistics),
		},
	}
}

// NewRefundedEvent returns the canonical payload for a full refund to the
// buyer.
func NewRefundedEvent(orderID [32]byte, token string, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeRefunded,
		Attributes: map[string]string{
			"orderId": hex.EncodeToString(orderID[:]),
			"token":   token,
			"amount":  formatAmount(amount),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
