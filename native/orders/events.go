package orders

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"agroledger/core/types"
)

const (
	EventTypeOrderCreated      = "market.order.created"
	EventTypeOrderQuoted       = "market.order.quoted"
	EventTypeOrderEscrowed     = "market.order.escrowed"
	EventTypeOrderInTransit    = "market.order.in_transit"
	EventTypeOrderFulfilled    = "market.order.fulfilled"
	EventTypeOrderCanceled     = "market.order.canceled"
	EventTypeOrderRefused      = "market.order.refused"
	EventTypeOrderExpired      = "market.order.expired"
	EventTypeOrderStateChanged = "market.order.state_changed"
)

func NewCreatedEvent(o *Order) *types.Event   { return newOrderEvent(EventTypeOrderCreated, o) }
func NewQuotedEvent(o *Order) *types.Event    { return newOrderEvent(EventTypeOrderQuoted, o) }
func NewEscrowedEvent(o *Order) *types.Event  { return newOrderEvent(EventTypeOrderEscrowed, o) }
func NewInTransitEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderInTransit, o) }
func NewFulfilledEvent(o *Order) *types.Event { return newOrderEvent(EventTypeOrderFulfilled, o) }
func NewCanceledEvent(o *Order) *types.Event  { return newOrderEvent(EventTypeOrderCanceled, o) }
func NewRefusedEvent(o *Order) *types.Event   { return newOrderEvent(EventTypeOrderRefused, o) }
func NewExpiredEvent(o *Order) *types.Event   { return newOrderEvent(EventTypeOrderExpired, o) }

// NewStateChangedEvent is the uniform transition record consumed by external
// indexers: previous state, new state, timestamp and the amount that moved in
// or out of escrow as part of the transition (zero when none did).
func NewStateChangedEvent(o *Order, previous OrderState, moved *big.Int, timestamp int64) *types.Event {
	attrs := make(map[string]string)
	if o != nil {
		attrs["orderId"] = hex.EncodeToString(o.ID[:])
		attrs["previousState"] = previous.String()
		attrs["newState"] = o.State.String()
		attrs["token"] = o.Token
		attrs["amountsMoved"] = formatAmount(moved)
		attrs["timestamp"] = strconv.FormatInt(timestamp, 10)
	}
	return &types.Event{Type: EventTypeOrderStateChanged, Attributes: attrs}
}

func newOrderEvent(eventType string, o *Order) *types.Event {
	attrs := make(map[string]string)
	if o != nil {
		attrs["orderId"] = hex.EncodeToString(o.ID[:])
		attrs["buyerCustomerId"] = hex.EncodeToString(o.BuyerCustomerID[:])
		attrs["offerId"] = hex.EncodeToString(o.OfferID[:])
		attrs["warehouseId"] = hex.EncodeToString(o.WarehouseID[:])
		attrs["quantity"] = strconv.FormatUint(o.Quantity, 10)
		attrs["token"] = o.Token
		attrs["goodsAmount"] = formatAmount(o.GoodsAmount)
		attrs["escrowAmount"] = formatAmount(o.EscrowAmount)
		attrs["mode"] = o.Mode.String()
		attrs["state"] = o.State.String()
		attrs["createdAt"] = strconv.FormatInt(o.CreatedAt, 10)
		attrs["expiresAt"] = strconv.FormatInt(o.ExpiresAt, 10)
		if o.DeliveryQuote != nil {
			attrs["deliveryQuote"] = o.DeliveryQuote.String()
		}
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
