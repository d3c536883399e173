package registry

import (
	"encoding/hex"
	"strconv"

	"agroledger/core/types"
)

const (
	EventTypeWarehouseRegistered  = "market.registry.warehouse_registered"
	EventTypeWarehouseDeactivated = "market.registry.warehouse_deactivated"
	EventTypeFarmerRegistered     = "market.registry.farmer_registered"
	EventTypeCustomerRegistered   = "market.registry.customer_registered"
	EventTypeCustomerConfirmed    = "market.registry.customer_confirmed"
	EventTypeCustomerRevoked      = "market.registry.customer_revoked"
)

func NewWarehouseRegisteredEvent(w *Warehouse) *types.Event {
	return newWarehouseEvent(EventTypeWarehouseRegistered, w)
}

func NewWarehouseDeactivatedEvent(w *Warehouse) *types.Event {
	return newWarehouseEvent(EventTypeWarehouseDeactivated, w)
}

func newWarehouseEvent(eventType string, w *Warehouse) *types.Event {
	attrs := make(map[string]string)
	if w != nil {
		attrs["id"] = hex.EncodeToString(w.ID[:])
		attrs["authority"] = hex.EncodeToString(w.Authority[:])
		attrs["name"] = w.Name
		attrs["active"] = strconv.FormatBool(w.Active)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func NewFarmerRegisteredEvent(f *Farmer) *types.Event {
	attrs := make(map[string]string)
	if f != nil {
		attrs["id"] = hex.EncodeToString(f.ID[:])
		attrs["owner"] = hex.EncodeToString(f.Owner[:])
		attrs["warehouseId"] = hex.EncodeToString(f.WarehouseID[:])
		attrs["name"] = f.Name
	}
	return &types.Event{Type: EventTypeFarmerRegistered, Attributes: attrs}
}

func NewCustomerRegisteredEvent(c *Customer) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["id"] = hex.EncodeToString(c.ID[:])
		attrs["owner"] = hex.EncodeToString(c.Owner[:])
		attrs["name"] = c.Name
	}
	return &types.Event{Type: EventTypeCustomerRegistered, Attributes: attrs}
}

// The confirmation events deliberately carry no address material: the
// off-ledger address exchange keys off these and happens outside the ledger.
func NewCustomerConfirmedEvent(wc *WarehouseCustomer) *types.Event {
	return newConfirmationEvent(EventTypeCustomerConfirmed, wc)
}

func NewCustomerRevokedEvent(wc *WarehouseCustomer) *types.Event {
	return newConfirmationEvent(EventTypeCustomerRevoked, wc)
}

func newConfirmationEvent(eventType string, wc *WarehouseCustomer) *types.Event {
	attrs := make(map[string]string)
	if wc != nil {
		attrs["warehouseId"] = hex.EncodeToString(wc.WarehouseID[:])
		attrs["customerId"] = hex.EncodeToString(wc.CustomerID[:])
		attrs["confirmed"] = strconv.FormatBool(wc.Confirmed)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
