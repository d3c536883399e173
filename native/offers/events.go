package offers

import (
	"encoding/hex"
	"strconv"

	"agroledger/core/types"
)

const (
	EventTypeOfferCreated     = "market.offer.created"
	EventTypeOfferDeactivated = "market.offer.deactivated"
	EventTypeStockReserved    = "market.offer.stock_reserved"
	EventTypeStockReleased    = "market.offer.stock_released"
)

func NewOfferCreatedEvent(o *LotOffer) *types.Event {
	return newOfferEvent(EventTypeOfferCreated, o, 0)
}

func NewOfferDeactivatedEvent(o *LotOffer) *types.Event {
	return newOfferEvent(EventTypeOfferDeactivated, o, 0)
}

func NewStockReservedEvent(o *LotOffer, qty uint64) *types.Event {
	return newOfferEvent(EventTypeStockReserved, o, qty)
}

func NewStockReleasedEvent(o *LotOffer, qty uint64) *types.Event {
	return newOfferEvent(EventTypeStockReleased, o, qty)
}

func newOfferEvent(eventType string, o *LotOffer, qty uint64) *types.Event {
	attrs := make(map[string]string)
	if o != nil {
		attrs["id"] = hex.EncodeToString(o.ID[:])
		attrs["farmerId"] = hex.EncodeToString(o.FarmerID[:])
		attrs["warehouseId"] = hex.EncodeToString(o.WarehouseID[:])
		attrs["token"] = o.Token
		attrs["unitPrice"] = o.UnitPrice.String()
		attrs["qtyTotal"] = strconv.FormatUint(o.QtyTotal, 10)
		attrs["qtyRemaining"] = strconv.FormatUint(o.QtyRemaining, 10)
		attrs["active"] = strconv.FormatBool(o.Active)
	}
	if qty > 0 {
		attrs["qty"] = strconv.FormatUint(qty, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
